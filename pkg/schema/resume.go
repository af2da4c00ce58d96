package schema

// DecisionType enumerates the resume inputs accepted at the approval gate.
type DecisionType string

const (
	DecisionApprove DecisionType = "approve"
	DecisionModify  DecisionType = "modify"
	DecisionCancel  DecisionType = "cancel"
)

// ResumeDecision is the caller's response to a suspended session.
type ResumeDecision struct {
	Type     DecisionType `json:"type"`
	Feedback string       `json:"feedback,omitempty"` // required for modify
}

// Validate checks the decision shape before it touches any state.
func (d ResumeDecision) Validate() error {
	switch d.Type {
	case DecisionApprove, DecisionCancel:
		return nil
	case DecisionModify:
		if d.Feedback == "" {
			return NewError(ErrCodeValidation, "modify decision requires feedback text")
		}
		return nil
	default:
		return NewErrorf(ErrCodeValidation, "unknown decision type %q", string(d.Type))
	}
}
