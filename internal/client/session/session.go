// Package session owns one room visit: it drives the broker connection
// through connect, join, active and teardown, keeps the ordered message log,
// and reconciles the roster against directory snapshots. All state lives on a
// single event loop; the presentation layer only ever sees copies.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pcameron/huddle/internal/client/directory"
	"github.com/pcameron/huddle/internal/client/transport"
	"github.com/pcameron/huddle/internal/domain"
)

// State is the connection lifecycle of one session.
type State int

const (
	Idle State = iota
	Connecting
	Active
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrNoIdentity means no cached display name exists; the presentation
	// layer should redirect to the entry screen.
	ErrNoIdentity = errors.New("session: no cached display name")
	// ErrNoRoomCode means the room code is missing or malformed.
	ErrNoRoomCode     = errors.New("session: missing or invalid room code")
	ErrAlreadyStarted = errors.New("session: already started")
)

type PresenceEntry struct {
	Username string
	Online   bool
}

// Snapshot is a read-only copy of session state for rendering.
type Snapshot struct {
	RoomCode  string
	LocalUser string
	State     State
	Events    []domain.ChatEvent
	Roster    []PresenceEntry
	UserCount int
}

// Directory resolves a room code to a membership snapshot.
type Directory interface {
	Fetch(ctx context.Context, roomCode string) (directory.Snapshot, error)
}

type Config struct {
	RoomCode  string
	Endpoint  string
	Directory Directory
	Dialer    transport.Dialer
	Identity  interface{ Get() (string, bool) }
	Logger    *zap.SugaredLogger
}

// Controller runs one room session. A controller is single-use: once closed
// it never reconnects; a new room visit constructs a new controller.
type Controller struct {
	cfg    Config
	logger *zap.SugaredLogger

	events  chan func()
	quit    chan struct{}
	updates chan struct{}

	started   atomic.Bool
	closeOnce sync.Once

	// Owned by the event loop after Start.
	state     State
	alive     bool
	roomCode  string
	localUser string
	handle    transport.Handle
	log       []domain.ChatEvent
	roster    []PresenceEntry
	userCount int

	snapMu sync.RWMutex
	snap   Snapshot
}

func New(cfg Config) (*Controller, error) {
	if cfg.Directory == nil || cfg.Dialer == nil || cfg.Identity == nil {
		return nil, errors.New("session: directory, dialer and identity are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Controller{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan func(), 64),
		quit:    make(chan struct{}),
		updates: make(chan struct{}, 1),
		state:   Idle,
	}, nil
}

// Start checks preconditions and begins connecting. It fails fast when no
// cached display name or valid room code exists; no connection is attempted
// in that case.
func (c *Controller) Start(ctx context.Context) error {
	if c.started.Load() {
		return ErrAlreadyStarted
	}

	name, ok := c.cfg.Identity.Get()
	if !ok || strings.TrimSpace(name) == "" {
		return ErrNoIdentity
	}

	roomCode, err := domain.NormalizeRoomCode(c.cfg.RoomCode)
	if err != nil {
		return ErrNoRoomCode
	}

	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.localUser = strings.TrimSpace(name)
	c.roomCode = roomCode
	c.state = Connecting
	c.alive = true
	c.publish()

	go c.loop()

	// Best-effort initial roster; failure keeps the (empty) roster and is
	// not fatal.
	c.refreshRoster(ctx)

	go func() {
		handle, err := c.cfg.Dialer.Dial(ctx, c.cfg.Endpoint)
		if !c.post(func() { c.onConnectResult(handle, err) }) && handle != nil {
			// Teardown won the race; never act on the stale connection.
			_ = handle.Close()
		}
	}()

	return nil
}

// Send emits a chat frame with the trimmed text. It is a silent no-op when
// the text is blank, the session is not active, or the transport is gone.
func (c *Controller) Send(text string) {
	trimmed := strings.TrimSpace(text)
	c.post(func() {
		if trimmed == "" || c.state != Active || c.handle == nil {
			return
		}

		err := c.handle.Send(domain.SendMessageDestination(c.roomCode), outboundPayload{
			Username: c.localUser,
			Content:  trimmed,
			Type:     domain.KindChat,
		})
		if err != nil {
			// Stale handle after a drop; sends fail until a new session.
			c.logger.Warnw("send failed", "room", c.roomCode, "error", err)
		}
	})
}

// Close tears the session down. If the transport is still live the leave
// announcement goes out before the socket closes; the call returns only once
// teardown has run, so callers can rely on the ordering.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		if c.started.CompareAndSwap(false, true) {
			// Never started; nothing to tear down.
			c.state = Closed
			c.publish()
			close(c.quit)
			return
		}

		done := make(chan struct{})
		c.post(func() {
			c.teardown()
			close(done)
		})
		<-done
		close(c.quit)
	})
}

// Snapshot returns the latest published copy of session state.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// Updates signals (coalesced) whenever the snapshot changes.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

type outboundPayload struct {
	Username string           `json:"username"`
	Content  string           `json:"content,omitempty"`
	Type     domain.EventKind `json:"type"`
}

func (c *Controller) loop() {
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			// Drain events that raced with shutdown; each one checks the
			// liveness flag, so running them here only releases resources.
			for {
				select {
				case fn := <-c.events:
					fn()
				default:
					return
				}
			}
		}
	}
}

// post schedules fn on the event loop. It reports false when the session has
// already shut down, in which case fn never runs.
func (c *Controller) post(fn func()) bool {
	select {
	case <-c.quit:
		return false
	case c.events <- fn:
		return true
	}
}

func (c *Controller) onConnectResult(handle transport.Handle, err error) {
	if !c.alive {
		// Torn down while the dial was in flight; the success callback must
		// not subscribe or join.
		if handle != nil {
			_ = handle.Close()
		}
		return
	}
	if c.state != Connecting {
		if handle != nil {
			_ = handle.Close()
		}
		return
	}

	if err != nil {
		c.logger.Warnw("broker connect failed", "room", c.roomCode, "error", err)
		c.state = Failed
		c.publish()
		return
	}

	// Subscribe before announcing the join so our own join echo is observed.
	subErr := handle.Subscribe(domain.TopicDestination(c.roomCode), func(f transport.Frame) {
		c.post(func() { c.onFrame(f) })
	})
	if subErr != nil {
		c.logger.Warnw("topic subscribe failed", "room", c.roomCode, "error", subErr)
		_ = handle.Close()
		c.state = Failed
		c.publish()
		return
	}

	joinErr := handle.Send(domain.AddUserDestination(c.roomCode), outboundPayload{
		Username: c.localUser,
		Type:     domain.KindJoin,
	})
	if joinErr != nil {
		c.logger.Warnw("join announce failed", "room", c.roomCode, "error", joinErr)
	}

	c.handle = handle
	c.state = Active
	c.publish()
}

func (c *Controller) onFrame(f transport.Frame) {
	if !c.alive || c.state != Active {
		return
	}

	event := domain.DecodeEvent(f.Body)
	c.log = append(c.log, event)

	if event.Kind == domain.KindJoin || event.Kind == domain.KindLeave {
		// Membership changed somewhere; resync the roster, best effort.
		c.refreshRoster(context.Background())
	}

	c.publish()
}

// refreshRoster fetches a directory snapshot off-loop and applies it. A
// failed fetch leaves the previous roster untouched.
func (c *Controller) refreshRoster(ctx context.Context) {
	go func() {
		snap, err := c.cfg.Directory.Fetch(ctx, c.roomCode)
		if err != nil {
			c.logger.Debugw("roster fetch failed", "room", c.roomCode, "error", err)
			return
		}
		c.post(func() { c.applySnapshot(snap) })
	}()
}

func (c *Controller) applySnapshot(snap directory.Snapshot) {
	if !c.alive {
		return
	}

	roster := make([]PresenceEntry, 0, len(snap.Users))
	seen := make(map[string]struct{}, len(snap.Users))
	for _, u := range snap.Users {
		if u.Name == "" {
			continue
		}
		if _, dup := seen[u.Name]; dup {
			continue
		}
		seen[u.Name] = struct{}{}
		roster = append(roster, PresenceEntry{Username: u.Name, Online: true})
	}

	c.roster = roster
	c.userCount = snap.UserCount
	c.publish()
}

func (c *Controller) teardown() {
	c.alive = false

	if c.state == Active && c.handle != nil {
		err := c.handle.Send(domain.SendMessageDestination(c.roomCode), outboundPayload{
			Username: c.localUser,
			Type:     domain.KindLeave,
		})
		if err != nil {
			c.logger.Debugw("leave announce failed", "room", c.roomCode, "error", err)
		}
	}

	if c.handle != nil {
		_ = c.handle.Close()
		c.handle = nil
	}

	c.state = Closed
	c.publish()
}

// publish copies loop-owned state into the shared snapshot and signals
// watchers. Runs on the event loop (or before it starts).
func (c *Controller) publish() {
	events := make([]domain.ChatEvent, len(c.log))
	copy(events, c.log)
	roster := make([]PresenceEntry, len(c.roster))
	copy(roster, c.roster)

	c.snapMu.Lock()
	c.snap = Snapshot{
		RoomCode:  c.roomCode,
		LocalUser: c.localUser,
		State:     c.state,
		Events:    events,
		Roster:    roster,
		UserCount: c.userCount,
	}
	c.snapMu.Unlock()

	select {
	case c.updates <- struct{}{}:
	default:
	}
}
