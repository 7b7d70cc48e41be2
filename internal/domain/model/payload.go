package model

// RangePayload is the decoded form of one successful call's structured
// payload, after it has passed schema validation. Field classes mirror the
// audit-report structure: controls, test exceptions, and CUECs.
type RangePayload struct {
	Controls   []ControlRecord   `json:"controls"`
	Exceptions []ExceptionRecord `json:"exceptions"`
	CUECs      []CUECRecord      `json:"cuecs"`
}
