package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type EventKind string

const (
	KindChat  EventKind = "CHAT"
	KindJoin  EventKind = "JOIN"
	KindLeave EventKind = "LEAVE"
)

// Sender is the username field of a broker event. The broker may deliver it
// as a bare display name or as an attributed {username, sessionId} object;
// both decode into the same struct so call sites never branch on shape.
type Sender struct {
	Name      string
	SessionID string
}

func (s *Sender) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		s.Name = name
		s.SessionID = ""
		return nil
	}

	var attributed struct {
		Username  string `json:"username"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &attributed); err == nil {
		s.Name = attributed.Username
		s.SessionID = attributed.SessionID
		return nil
	}

	// Anything else (number, array) is coerced to its textual form.
	s.Name = strings.TrimSpace(string(data))
	s.SessionID = ""
	return nil
}

func (s Sender) MarshalJSON() ([]byte, error) {
	if s.SessionID == "" {
		return json.Marshal(s.Name)
	}
	return json.Marshal(struct {
		Username  string `json:"username"`
		SessionID string `json:"sessionId"`
	}{s.Name, s.SessionID})
}

// ChatEvent is one decoded broker event. Immutable once appended to a
// session's message log.
type ChatEvent struct {
	Kind       EventKind
	Sender     string
	Body       string
	OccurredAt string
}

// EventPayload is the wire shape of a broker event body.
type EventPayload struct {
	Username  Sender          `json:"username"`
	Content   json.RawMessage `json:"content,omitempty"`
	Type      EventKind       `json:"type"`
	Timestamp string          `json:"timestamp"`
}

// DecodeEvent turns a raw broker payload into a ChatEvent. It never fails:
// malformed or partially-structured frames degrade to a best-effort string
// rendering instead of an error.
func DecodeEvent(raw []byte) ChatEvent {
	var p EventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ChatEvent{
			Kind: KindChat,
			Body: strings.TrimSpace(string(raw)),
		}
	}

	kind := p.Type
	switch kind {
	case KindChat, KindJoin, KindLeave:
	default:
		kind = KindChat
	}

	return ChatEvent{
		Kind:       kind,
		Sender:     p.Username.Name,
		Body:       coerceContent(p.Content),
		OccurredAt: p.Timestamp,
	}
}

// coerceContent reduces a wire content field to a displayable string. A JSON
// string decodes as-is; any other shape renders as compact JSON text.
func coerceContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

var clockLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// FormatClock renders a broker timestamp as a short clock time for display.
// Unparsable values render as an empty string, never an error.
func FormatClock(ts string) string {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Format("3:04 PM")
		}
	}
	return ""
}
