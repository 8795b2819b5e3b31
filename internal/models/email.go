package models

import "time"

// Email represents a normalized parsed email message
type Email struct {
	UID        uint32
	From       string
	To         []string
	Subject    string
	BodyText   string
	BodyHTML   string
	ReceivedAt time.Time
	TraceID    string
}
