package summary

import "github.com/codepulse/codepulse/internal/domain/accounting"

// Summary is the durable per-user-per-day rollup of heartbeats into
// elapsed seconds, total and per dimension. At most one exists per
// (user, day); re-aggregation replaces its numeric fields wholesale.
type Summary struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	Day          string           `json:"day"` // YYYY-MM-DD, UTC
	TotalSeconds int64            `json:"total_seconds"`
	Projects     map[string]int64 `json:"projects"`
	Languages    map[string]int64 `json:"languages"`
	Editors      map[string]int64 `json:"editors"`
	OS           map[string]int64 `json:"os"`
	Files        map[string]int64 `json:"files"`
	Branches     map[string]int64 `json:"branches"`
}

// ApplyTotals replaces the summary's numeric fields from an accounting pass.
func (s *Summary) ApplyTotals(t accounting.Totals) {
	s.TotalSeconds = t.TotalSeconds
	s.Projects = t.Projects
	s.Languages = t.Languages
	s.Editors = t.Editors
	s.OS = t.OS
	s.Files = t.Files
	s.Branches = t.Branches
}

// ProjectSummary is the coarser legacy rollup written by the closed-day
// rollover: one row per (user, day, project).
type ProjectSummary struct {
	UserID       string `json:"user_id"`
	Day          string `json:"day"`
	Project      string `json:"project"`
	TotalSeconds int64  `json:"total_seconds"`
}
