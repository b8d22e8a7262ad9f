package dto

// DecisionRequest is a reviewer's verdict on a pending event.
// A rejection must carry a comment explaining the decision.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Comment  string `json:"comment" validate:"max=2000"`
}
