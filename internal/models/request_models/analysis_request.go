package request_models

import "wingman/internal/pricing"

// CreateAnalysisRequest is validated again inside AnalysisService with
// validator/v10 so the rules hold for non-HTTP callers too.
type CreateAnalysisRequest struct {
	Mode           pricing.Mode    `json:"mode" validate:"omitempty,oneof=snapshot expanded deep"`
	InputText      *string         `json:"input_text"`
	Images         []string        `json:"images" validate:"omitempty,dive,required,max=2048"`
	Toggles        pricing.Toggles `json:"toggles"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=128"`
	Recompute      bool            `json:"recompute"`
}

func (r CreateAnalysisRequest) Text() string {
	if r.InputText == nil {
		return ""
	}
	return *r.InputText
}
