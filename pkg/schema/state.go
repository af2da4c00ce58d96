package schema

import (
	"time"
)

// Role tags one turn of the message log.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the append-only message log.
type Message struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Capability string    `json:"capability,omitempty"` // set on tool observations
	At         time.Time `json:"at"`
}

// CapabilityCall is a structured request emitted by the reasoning step.
// It is untrusted model output and must be schema-validated before dispatch.
type CapabilityCall struct {
	Capability string         `json:"capability"`
	Args       map[string]any `json:"args,omitempty"`
}

// Recommendation is the terminal decision for one sub-task.
// Exactly one of Capability or Fallback carries the outcome: a capability is
// recorded only when the top retrieval score cleared the threshold.
type Recommendation struct {
	TaskIndex  int     `json:"task_index"`
	Capability string  `json:"capability,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Fallback   bool    `json:"fallback"`
	Exhausted  bool    `json:"exhausted,omitempty"` // iteration bound hit, not a threshold miss
	Detail     string  `json:"detail,omitempty"`
}

// RetrievedDoc is one retrieval-shaped observation (carries a similarity score).
type RetrievedDoc struct {
	Source string  `json:"source"` // catalog, updates, web
	Name   string  `json:"name,omitempty"`
	Text   string  `json:"text"`
	URL    string  `json:"url,omitempty"`
	Score  float64 `json:"score"`
}

// ExecutionState is the single mutable record shared by every node.
// It is exclusively owned by the engine for the duration of a run and is
// externally visible only through the checkpoint store.
type ExecutionState struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Request   string `json:"request"`

	// Messages is append-only; insertion order is the source of truth for
	// "what happened when" and is never reordered or compacted mid-run.
	Messages []Message `json:"messages"`

	// IsComplexTask is set once by the router; Routed marks the write.
	IsComplexTask bool `json:"is_complex_task"`
	Routed        bool `json:"routed"`

	SubTasks    []string `json:"sub_tasks,omitempty"`
	CurrentTask int      `json:"current_task"`

	PendingCall *CapabilityCall `json:"pending_call,omitempty"`

	// Recommendations is keyed by 0-based sub-task index; entries are
	// write-once per index except across an explicit re-planning pass.
	Recommendations map[int]*Recommendation `json:"recommendations,omitempty"`

	// Retrieved is scoped to the current sub-task evaluation and cleared
	// when the cursor advances.
	Retrieved []RetrievedDoc `json:"retrieved,omitempty"`

	UserFeedback  string `json:"user_feedback,omitempty"`
	FinalGuide    string `json:"final_guide,omitempty"`
	AwaitingInput bool   `json:"awaiting_input"`
	Iterations    int    `json:"iterations"`
	Cancelled     bool   `json:"cancelled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecutionState creates a fresh state for a new session, seeding the
// message log with the user request.
func NewExecutionState(sessionID, userID, request string) *ExecutionState {
	now := time.Now().UTC()
	return &ExecutionState{
		SessionID:       sessionID,
		UserID:          userID,
		Request:         request,
		Messages:        []Message{{Role: RoleUser, Content: request, At: now}},
		Recommendations: make(map[int]*Recommendation),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Append adds a turn to the message log. Append-only: there is no removal or
// in-place edit path.
func (s *ExecutionState) Append(role Role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, At: time.Now().UTC()})
	s.UpdatedAt = time.Now().UTC()
}

// AppendObservation adds a tool observation turn tagged with the capability name.
func (s *ExecutionState) AppendObservation(capability, content string) {
	s.Messages = append(s.Messages, Message{Role: RoleTool, Content: content, Capability: capability, At: time.Now().UTC()})
	s.UpdatedAt = time.Now().UTC()
}

// AdvanceTask moves the cursor to the next sub-task and resets the per-task
// iteration counter and retrieval scratch.
func (s *ExecutionState) AdvanceTask() {
	s.CurrentTask++
	s.Iterations = 0
	s.Retrieved = nil
	s.UpdatedAt = time.Now().UTC()
}

// ResetPlan clears all per-plan progress ahead of a re-planning pass.
func (s *ExecutionState) ResetPlan() {
	s.SubTasks = nil
	s.CurrentTask = 0
	s.Iterations = 0
	s.Retrieved = nil
	s.PendingCall = nil
	s.Recommendations = make(map[int]*Recommendation)
	s.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy, used for checkpoint snapshot isolation.
func (s *ExecutionState) Clone() *ExecutionState {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.SubTasks = append([]string(nil), s.SubTasks...)
	cp.Retrieved = append([]RetrievedDoc(nil), s.Retrieved...)
	if s.PendingCall != nil {
		call := *s.PendingCall
		if s.PendingCall.Args != nil {
			call.Args = make(map[string]any, len(s.PendingCall.Args))
			for k, v := range s.PendingCall.Args {
				call.Args[k] = v
			}
		}
		cp.PendingCall = &call
	}
	cp.Recommendations = make(map[int]*Recommendation, len(s.Recommendations))
	for i, r := range s.Recommendations {
		rec := *r
		cp.Recommendations[i] = &rec
	}
	return &cp
}
