package models

// Requests for the HTTP surface. Defined in domain for consistency and reuse.

type InjectSignalRequest struct {
	Market    string `json:"market" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=CALL PUT call put"`
	Strategy  string `json:"strategy" default:"manual" validate:"required"`
}
