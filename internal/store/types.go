package store

import "time"

// PushRecord is one entry of the append-only push notification history.
type PushRecord struct {
	ID       int64
	DeviceID string
	BundleID string
	Payload  string
	Success  bool
	Output   string // simctl output or error text, opaque to simsnap
	SentAt   time.Time
}
