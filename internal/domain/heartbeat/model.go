package heartbeat

import "time"

// Heartbeat is one observed activity tick from an editor plugin.
type Heartbeat struct {
	ID        int64   `json:"id"`
	UserID    string  `json:"user_id"`
	Timestamp int64   `json:"timestamp"` // milliseconds since epoch
	Project   string  `json:"project,omitempty"`
	Language  string  `json:"language,omitempty"`
	Editor    string  `json:"editor,omitempty"`
	OS        string  `json:"os,omitempty"`
	File      string  `json:"file,omitempty"`
	Branch    string  `json:"branch,omitempty"`
	SummaryID *string `json:"summary_id,omitempty"`
}

// Time returns the heartbeat instant.
func (h Heartbeat) Time() time.Time {
	return time.UnixMilli(h.Timestamp).UTC()
}

// Day returns the UTC calendar day the heartbeat falls on, as YYYY-MM-DD.
func (h Heartbeat) Day() string {
	return h.Time().Format(DayFormat)
}

// DayFormat is the canonical day-key layout used throughout the service.
const DayFormat = "2006-01-02"
