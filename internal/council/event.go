package council

import "encoding/json"

// EventType is the wire name of a session event.
type EventType string

const (
	EventPhase             EventType = "phase"
	EventMembersSelected   EventType = "members_selected"
	EventMemberStatus      EventType = "member_status"
	EventSynthesisComplete EventType = "synthesis_complete"
	EventError             EventType = "error"
)

// Phase names carried by phase events.
const (
	PhaseSelecting    = "selecting"
	PhaseSynthesizing = "synthesizing"
)

// Event is one progress notification. It encodes as {"type": ..., "data": {...}}.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Terminal reports whether the stream ends after this event.
func (e Event) Terminal() bool {
	return e.Type == EventSynthesisComplete || e.Type == EventError
}

func (e Event) MarshalJSON() ([]byte, error) {
	type wire Event
	w := wire(e)
	if w.Data == nil {
		w.Data = struct{}{}
	}
	return json.Marshal(w)
}

type PhaseData struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

type MembersSelectedData struct {
	Members []Member `json:"members"`
}

type MemberStatusData struct {
	MemberID string `json:"memberId"`
	Status   string `json:"status"`
}

type SynthesisCompleteData struct {
	Synthesis string `json:"synthesis"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func PhaseEvent(phase, message string) Event {
	return Event{Type: EventPhase, Data: PhaseData{Phase: phase, Message: message}}
}

func MembersSelectedEvent(members []Member) Event {
	if members == nil {
		members = []Member{}
	}
	return Event{Type: EventMembersSelected, Data: MembersSelectedData{Members: members}}
}

func MemberStatusEvent(memberID, status string) Event {
	return Event{Type: EventMemberStatus, Data: MemberStatusData{MemberID: memberID, Status: status}}
}

func SynthesisCompleteEvent(report string) Event {
	return Event{Type: EventSynthesisComplete, Data: SynthesisCompleteData{Synthesis: report}}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Data: ErrorData{Message: message}}
}

// RawEvent is the decoded form of a wire event, for consumers that read a
// stream produced by this package.
type RawEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v.
func (r RawEvent) Decode(v any) error { return json.Unmarshal(r.Data, v) }

// Terminal reports whether the stream ends after this event.
func (r RawEvent) Terminal() bool {
	return r.Type == EventSynthesisComplete || r.Type == EventError
}
