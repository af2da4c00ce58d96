package schema

// Event type constants for the session event log.
const (
	EventSessionStarted   = "session_started"
	EventSessionSuspended = "session_suspended"
	EventSessionResumed   = "session_resumed"
	EventSessionCompleted = "session_completed"
	EventSessionFailed    = "session_failed"
	EventSessionCancelled = "session_cancelled"

	EventPlanProposed = "plan_proposed"
	EventPlanApproved = "plan_approved"
	EventPlanModified = "plan_modified"

	EventTaskRecommended = "task_recommended"
	EventTaskFallback    = "task_fallback"
	EventTaskExhausted   = "task_exhausted"

	EventCapabilityInvoked = "capability_invoked"
	EventCapabilityFailed  = "capability_failed"

	EventNodeEntered = "node_entered"

	EventGuideComposed    = "guide_composed"
	EventReflectionStored = "reflection_stored"
	EventReflectionFailed = "reflection_failed"
)

// RunStatus represents the lifecycle state of a session run.
type RunStatus string

const (
	RunStatusActive    RunStatus = "active"
	RunStatusSuspended RunStatus = "suspended"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// NodeID identifies one node of the reasoning graph.
type NodeID string

const (
	NodeRouting      NodeID = "routing"
	NodePlanning     NodeID = "planning"
	NodeApproval     NodeID = "awaiting_approval"
	NodeToolLoop     NodeID = "tool_loop"
	NodeSynthesizing NodeID = "synthesizing"
	NodeReflecting   NodeID = "reflecting"
	NodeDone         NodeID = "done"
)
