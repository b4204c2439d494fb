package notifier

import "time"

type Config struct {
	RatePerSec  int
	Burst       int
	SendTimeout time.Duration
	HistorySize int
}

type HistoryItem struct {
	At     time.Time
	UserID string
	Bytes  int
	Error  string
}

// DeliveryEvent is the bus payload for notifier events.
type DeliveryEvent struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
