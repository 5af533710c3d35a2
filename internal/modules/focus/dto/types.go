package dto

import "time"

type StartInput struct {
	PromiseID       string
	DurationMinutes int
}

// StatusOutput is the last known focus state. Error carries a user-facing
// reason when the operation that produced it failed.
type StatusOutput struct {
	SessionID        string
	PromiseID        string
	Status           string
	PlannedMinutes   int
	RemainingSeconds int
	Progress         float64
	ExpectedEnd      *time.Time
	Error            string
}
