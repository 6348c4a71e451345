package models

import "time"

// TimerStatus is never persisted; it is recomputed from the latest check-in
// row and the current instant on every read.
type TimerStatus string

const (
	TimerStatusWaiting TimerStatus = "waiting"
	TimerStatusPaused  TimerStatus = "paused"
	TimerStatusGreen   TimerStatus = "green"
	TimerStatusOrange  TimerStatus = "orange"
	TimerStatusExpired TimerStatus = "expired"
)

// CartSnapshot is a cart plus its derived timer state, as broadcast to
// dashboard observers every tick and after every mutation.
type CartSnapshot struct {
	Cart
	LastCheckin      *time.Time  `json:"last_checkin"`
	NextDeadline     *time.Time  `json:"next_deadline"`
	TimerStatus      TimerStatus `json:"timer_status"`
	SecondsRemaining int         `json:"seconds_remaining"`
}
