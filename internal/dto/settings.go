package dto

// ThresholdResponse reports the review threshold in effect for a teacher.
type ThresholdResponse struct {
	Threshold float64 `json:"threshold"`

	// Source is one of "teacher_override", "default", or "fallback".
	Source string `json:"source"`
}

// ThresholdUpdateRequest sets a teacher's personal review threshold.
type ThresholdUpdateRequest struct {
	Threshold float64 `json:"threshold" validate:"gte=0,lte=1"`
}
