package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pcameron/huddle/internal/client/directory"
	"github.com/pcameron/huddle/internal/client/transport"
	"github.com/pcameron/huddle/internal/domain"
)

type fakeIdentity struct {
	name string
	ok   bool
}

func (f fakeIdentity) Get() (string, bool) { return f.name, f.ok }

type fakeDirectory struct {
	mu    sync.Mutex
	snap  directory.Snapshot
	err   error
	calls int
}

func (f *fakeDirectory) Fetch(ctx context.Context, roomCode string) (directory.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return directory.Snapshot{}, f.err
	}
	return f.snap, nil
}

func (f *fakeDirectory) set(snap directory.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	f.err = err
}

func (f *fakeDirectory) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sentFrame struct {
	destination string
	payload     outboundPayload
}

type fakeHandle struct {
	mu         sync.Mutex
	subscribed []string
	onFrame    func(transport.Frame)
	sent       []sentFrame
	sendErr    error
	subErr     error
	closed     bool
}

func (h *fakeHandle) Subscribe(topic string, onFrame func(transport.Frame)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subErr != nil {
		return h.subErr
	}
	h.subscribed = append(h.subscribed, topic)
	h.onFrame = onFrame
	return nil
}

func (h *fakeHandle) Send(destination string, body any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	payload, ok := body.(outboundPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", body)
	}
	h.sent = append(h.sent, sentFrame{destination: destination, payload: payload})
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// emit pushes a broker frame at the subscribed handler, the way the read
// loop would.
func (h *fakeHandle) emit(t *testing.T, body string) {
	t.Helper()
	h.mu.Lock()
	onFrame := h.onFrame
	h.mu.Unlock()
	if onFrame == nil {
		t.Fatal("no subscription registered")
	}
	onFrame(transport.Frame{Destination: "/topic/chatroom/ABC123", Body: json.RawMessage(body)})
}

func (h *fakeHandle) sentFrames() []sentFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]sentFrame, len(h.sent))
	copy(out, h.sent)
	return out
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeDialer struct {
	handle  *fakeHandle
	err     error
	release chan struct{} // nil means dial resolves immediately
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (transport.Handle, error) {
	if d.release != nil {
		<-d.release
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.handle, nil
}

func waitFor(t *testing.T, ctrl *Controller, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := ctrl.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never held; last snapshot: %+v", ctrl.Snapshot())
	return Snapshot{}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}

func newTestController(t *testing.T, dialer transport.Dialer, dir Directory) *Controller {
	t.Helper()
	ctrl, err := New(Config{
		RoomCode:  "abc123",
		Endpoint:  "ws://test/ws",
		Directory: dir,
		Dialer:    dialer,
		Identity:  fakeIdentity{name: "alice", ok: true},
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return ctrl
}

func startActive(t *testing.T) (*Controller, *fakeHandle, *fakeDirectory) {
	t.Helper()
	handle := &fakeHandle{}
	dir := &fakeDirectory{snap: directory.Snapshot{
		UserCount: 1,
		Users:     []domain.Sender{{Name: "alice"}},
	}}
	ctrl := newTestController(t, &fakeDialer{handle: handle}, dir)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, ctrl, func(s Snapshot) bool { return s.State == Active })
	return ctrl, handle, dir
}

func TestStartFailsFastWithoutIdentity(t *testing.T) {
	ctrl, err := New(Config{
		RoomCode:  "ABC123",
		Directory: &fakeDirectory{},
		Dialer:    &fakeDialer{handle: &fakeHandle{}},
		Identity:  fakeIdentity{},
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	if err := ctrl.Start(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if got := ctrl.Snapshot().State; got != Idle {
		t.Fatalf("expected state to stay idle, got %v", got)
	}
}

func TestStartFailsFastOnBadRoomCode(t *testing.T) {
	ctrl, err := New(Config{
		RoomCode:  "nope",
		Directory: &fakeDirectory{},
		Dialer:    &fakeDialer{handle: &fakeHandle{}},
		Identity:  fakeIdentity{name: "alice", ok: true},
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	if err := ctrl.Start(context.Background()); !errors.Is(err, ErrNoRoomCode) {
		t.Fatalf("expected ErrNoRoomCode, got %v", err)
	}
}

func TestStartSubscribesBeforeAnnouncingJoin(t *testing.T) {
	ctrl, handle, _ := startActive(t)
	defer ctrl.Close()

	if got := handle.subscribed; len(got) != 1 || got[0] != "/topic/chatroom/ABC123" {
		t.Fatalf("expected one topic subscription, got %v", got)
	}

	sent := handle.sentFrames()
	if len(sent) != 1 {
		t.Fatalf("expected exactly the join announcement, got %v", sent)
	}
	if sent[0].destination != "/app/chat.addUser/ABC123" {
		t.Fatalf("unexpected join destination %q", sent[0].destination)
	}
	if sent[0].payload.Type != domain.KindJoin || sent[0].payload.Username != "alice" {
		t.Fatalf("unexpected join payload %+v", sent[0].payload)
	}
}

func TestDialFailureTransitionsToFailed(t *testing.T) {
	dir := &fakeDirectory{}
	ctrl := newTestController(t, &fakeDialer{err: errors.New("connection refused")}, dir)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, ctrl, func(s Snapshot) bool { return s.State == Failed })
	ctrl.Close()
}

func TestSubscribeFailureTransitionsToFailed(t *testing.T) {
	handle := &fakeHandle{subErr: errors.New("broker rejected subscription")}
	ctrl := newTestController(t, &fakeDialer{handle: handle}, &fakeDirectory{})

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, ctrl, func(s Snapshot) bool { return s.State == Failed })

	if !handle.isClosed() {
		t.Fatal("expected the connection to be closed after subscribe failure")
	}
	if len(handle.sentFrames()) != 0 {
		t.Fatal("expected no join announcement after subscribe failure")
	}
	ctrl.Close()
}

func TestEventLogPreservesArrivalOrder(t *testing.T) {
	ctrl, handle, _ := startActive(t)
	defer ctrl.Close()

	for i := 0; i < 5; i++ {
		handle.emit(t, fmt.Sprintf(`{"username":"bob","content":"msg-%d","type":"CHAT"}`, i))
	}

	snap := waitFor(t, ctrl, func(s Snapshot) bool { return len(s.Events) == 5 })
	for i, event := range snap.Events {
		want := fmt.Sprintf("msg-%d", i)
		if event.Body != want {
			t.Fatalf("event %d out of order: got %q, want %q", i, event.Body, want)
		}
	}
}

func TestSendTrimsAndEmitsChatFrame(t *testing.T) {
	ctrl, handle, _ := startActive(t)
	defer ctrl.Close()

	ctrl.Send("  hello world  ")

	waitUntil(t, func() bool { return len(handle.sentFrames()) == 2 })
	sent := handle.sentFrames()[1]
	if sent.destination != "/app/chat.sendMessage/ABC123" {
		t.Fatalf("unexpected destination %q", sent.destination)
	}
	if sent.payload.Type != domain.KindChat || sent.payload.Content != "hello world" {
		t.Fatalf("unexpected chat payload %+v", sent.payload)
	}
}

func TestSendIgnoresBlankText(t *testing.T) {
	ctrl, handle, _ := startActive(t)

	ctrl.Send("")
	ctrl.Send("   \t\n  ")

	// Flush the event loop by waiting for a later observable action.
	ctrl.Send("real")
	waitUntil(t, func() bool { return len(handle.sentFrames()) == 2 })

	for _, f := range handle.sentFrames() {
		if f.payload.Type == domain.KindChat && f.payload.Content != "real" {
			t.Fatalf("blank send leaked onto the wire: %+v", f)
		}
	}
	ctrl.Close()
}

func TestSendIsNoopOutsideActive(t *testing.T) {
	handle := &fakeHandle{}
	release := make(chan struct{})
	ctrl := newTestController(t, &fakeDialer{handle: handle, release: release}, &fakeDirectory{})

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Still connecting; nothing may touch the transport.
	ctrl.Send("too early")
	close(release)
	waitFor(t, ctrl, func(s Snapshot) bool { return s.State == Active })

	for _, f := range handle.sentFrames() {
		if f.payload.Content == "too early" {
			t.Fatalf("pre-active send leaked onto the wire: %+v", f)
		}
	}
	ctrl.Close()
}

func TestCloseWhileActiveAnnouncesLeaveOnce(t *testing.T) {
	ctrl, handle, _ := startActive(t)

	ctrl.Close()
	ctrl.Close() // idempotent

	sent := handle.sentFrames()
	leaves := 0
	for _, f := range sent {
		if f.payload.Type == domain.KindLeave {
			leaves++
			if f.destination != "/app/chat.sendMessage/ABC123" {
				t.Fatalf("unexpected leave destination %q", f.destination)
			}
		}
	}
	if leaves != 1 {
		t.Fatalf("expected exactly one leave announcement, got %d (%v)", leaves, sent)
	}
	if !handle.isClosed() {
		t.Fatal("expected transport closed after teardown")
	}
	if got := ctrl.Snapshot().State; got != Closed {
		t.Fatalf("expected Closed, got %v", got)
	}
}

func TestCloseBeforeConnectNeverTouchesTheBroker(t *testing.T) {
	handle := &fakeHandle{}
	release := make(chan struct{})
	ctrl := newTestController(t, &fakeDialer{handle: handle, release: release}, &fakeDirectory{})

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctrl.Close()
	if got := ctrl.Snapshot().State; got != Closed {
		t.Fatalf("expected Closed, got %v", got)
	}

	// The dial resolves after teardown; its result must be discarded and the
	// stale connection closed without any subscribe or announce.
	close(release)
	waitUntil(t, handle.isClosed)

	if len(handle.subscribed) != 0 {
		t.Fatalf("stale connection subscribed: %v", handle.subscribed)
	}
	if len(handle.sentFrames()) != 0 {
		t.Fatalf("stale connection announced: %v", handle.sentFrames())
	}
}

func TestCloseAfterFailedSendsNothing(t *testing.T) {
	ctrl := newTestController(t, &fakeDialer{err: errors.New("refused")}, &fakeDirectory{})
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, ctrl, func(s Snapshot) bool { return s.State == Failed })

	ctrl.Close()
	if got := ctrl.Snapshot().State; got != Closed {
		t.Fatalf("expected Closed, got %v", got)
	}
}

func TestJoinEventRefreshesRoster(t *testing.T) {
	ctrl, handle, dir := startActive(t)
	defer ctrl.Close()

	before := dir.fetchCount()
	dir.set(directory.Snapshot{
		UserCount: 4,
		Users: []domain.Sender{
			{Name: "alice"}, {Name: "bob"}, {Name: "carol"}, {Name: "dave"},
		},
	}, nil)

	handle.emit(t, `{"username":"dave","content":"dave joined the chat","type":"JOIN","timestamp":"2026-09-01T12:00:00Z"}`)

	snap := waitFor(t, ctrl, func(s Snapshot) bool { return s.UserCount == 4 })
	if dir.fetchCount() <= before {
		t.Fatal("expected a roster refetch after the join event")
	}
	if len(snap.Roster) != 4 {
		t.Fatalf("expected 4 roster entries, got %v", snap.Roster)
	}
	if snap.Roster[3].Username != "dave" || !snap.Roster[3].Online {
		t.Fatalf("expected dave online at the end of the roster, got %+v", snap.Roster[3])
	}
}

func TestRosterFetchFailureKeepsPreviousRoster(t *testing.T) {
	ctrl, handle, dir := startActive(t)
	defer ctrl.Close()

	waitFor(t, ctrl, func(s Snapshot) bool { return s.UserCount == 1 })

	dir.set(directory.Snapshot{}, errors.New("directory unavailable"))
	handle.emit(t, `{"username":"bob","content":"bob joined the chat","type":"JOIN"}`)

	// The join event itself lands in the log; the roster stays as it was.
	snap := waitFor(t, ctrl, func(s Snapshot) bool { return len(s.Events) == 1 })
	if snap.UserCount != 1 {
		t.Fatalf("expected user count unchanged on fetch failure, got %d", snap.UserCount)
	}
	if len(snap.Roster) != 1 || snap.Roster[0].Username != "alice" {
		t.Fatalf("expected roster unchanged on fetch failure, got %v", snap.Roster)
	}
}

func TestStructuredSenderInEvents(t *testing.T) {
	ctrl, handle, _ := startActive(t)
	defer ctrl.Close()

	handle.emit(t, `{"username":{"username":"eve","sessionId":"s-9"},"content":"structured hello","type":"CHAT"}`)

	snap := waitFor(t, ctrl, func(s Snapshot) bool { return len(s.Events) == 1 })
	if snap.Events[0].Sender != "eve" {
		t.Fatalf("expected structured sender eve, got %q", snap.Events[0].Sender)
	}
}

func TestObjectContentRendersAsJSONText(t *testing.T) {
	ctrl, handle, _ := startActive(t)
	defer ctrl.Close()

	handle.emit(t, `{"username":"bob","content":{"k":[1,2]},"type":"CHAT"}`)

	snap := waitFor(t, ctrl, func(s Snapshot) bool { return len(s.Events) == 1 })
	if snap.Events[0].Body != `{"k":[1,2]}` {
		t.Fatalf("expected compact JSON body, got %q", snap.Events[0].Body)
	}
}

func TestFramesIgnoredAfterClose(t *testing.T) {
	ctrl, handle, _ := startActive(t)

	ctrl.Close()
	handle.emit(t, `{"username":"bob","content":"late","type":"CHAT"}`)

	time.Sleep(20 * time.Millisecond)
	if got := len(ctrl.Snapshot().Events); got != 0 {
		t.Fatalf("expected no events after close, got %d", got)
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	ctrl, _, _ := startActive(t)
	defer ctrl.Close()

	if err := ctrl.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestUpdatesSignalCoalesces(t *testing.T) {
	ctrl, handle, _ := startActive(t)
	defer ctrl.Close()

	// Drain whatever is pending, then trigger a change and expect a signal.
	select {
	case <-ctrl.Updates():
	default:
	}

	handle.emit(t, `{"username":"bob","content":"ping","type":"CHAT"}`)

	select {
	case <-ctrl.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("expected an update signal after a new event")
	}
}
