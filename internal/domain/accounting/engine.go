package accounting

import (
	"sort"
	"time"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
)

const (
	// HeartbeatInterval is the nominal period between editor heartbeats.
	// It is charged for the first event of a bucket and after an idle gap,
	// since the true active span is unknown in both cases.
	HeartbeatInterval = 30 * time.Second

	// DefaultIdleGap is the pause between heartbeats beyond which the user
	// is considered away. Overridable per user.
	DefaultIdleGap = 5 * time.Minute

	// UnknownProject buckets time from heartbeats that carry no project,
	// so the projects mapping accounts for every charged interval.
	UnknownProject = "unknown"
)

// Totals is the per-dimension elapsed-time breakdown for one bucket of
// heartbeats. All values are whole seconds.
type Totals struct {
	TotalSeconds int64            `json:"total_seconds"`
	Projects     map[string]int64 `json:"projects"`
	Languages    map[string]int64 `json:"languages"`
	Editors      map[string]int64 `json:"editors"`
	OS           map[string]int64 `json:"os"`
	Files        map[string]int64 `json:"files"`
	Branches     map[string]int64 `json:"branches"`
}

func newTotals() *totalsAcc {
	return &totalsAcc{
		projects:  map[string]int64{},
		languages: map[string]int64{},
		editors:   map[string]int64{},
		os:        map[string]int64{},
		files:     map[string]int64{},
		branches:  map[string]int64{},
	}
}

// totalsAcc accumulates milliseconds per key; rounding to seconds happens
// once at the end so sub-second gaps don't vanish.
type totalsAcc struct {
	projects  map[string]int64
	languages map[string]int64
	editors   map[string]int64
	os        map[string]int64
	files     map[string]int64
	branches  map[string]int64
}

func (a *totalsAcc) charge(h heartbeat.Heartbeat, ms int64) {
	project := h.Project
	if project == "" {
		project = UnknownProject
	}
	a.projects[project] += ms
	chargeDim(a.languages, h.Language, ms)
	chargeDim(a.editors, h.Editor, ms)
	chargeDim(a.os, h.OS, ms)
	chargeDim(a.files, h.File, ms)
	chargeDim(a.branches, h.Branch, ms)
}

func chargeDim(m map[string]int64, key string, ms int64) {
	if key == "" {
		return
	}
	m[key] += ms
}

func roundSeconds(ms int64) int64 {
	return (ms + 500) / 1000
}

func roundDim(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = roundSeconds(v)
	}
	return out
}

// ComputeTotals runs the idle-gap accounting pass over one bucket of
// heartbeats and returns elapsed seconds in total and per dimension.
//
// The first event of the bucket is charged HeartbeatInterval. Every later
// event charges the gap to its predecessor: the true gap when it is below
// the idle threshold (time attributed to the dimensions observed at the
// previous heartbeat), or a single HeartbeatInterval charged to the
// resuming event when the gap is idle.
//
// Every charge lands in exactly one projects key (UnknownProject for
// heartbeats without a project), and TotalSeconds is the sum of the rounded
// per-project values, so total and projects always agree.
//
// The pass is deterministic and side-effect free. Empty input yields zero
// totals.
func ComputeTotals(hbs []heartbeat.Heartbeat, idleGap time.Duration) Totals {
	acc := newTotals()
	run(hbs, idleGap, acc)
	projects := roundDim(acc.projects)
	return Totals{
		TotalSeconds: sumSeconds(projects),
		Projects:     projects,
		Languages:    roundDim(acc.languages),
		Editors:      roundDim(acc.editors),
		OS:           roundDim(acc.os),
		Files:        roundDim(acc.files),
		Branches:     roundDim(acc.branches),
	}
}

// ComputeTotal is the total-only variant of ComputeTotals. It applies the
// same attribution and rounding, so the total always matches the sum a
// ComputeTotals pass would produce for the same input.
func ComputeTotal(hbs []heartbeat.Heartbeat, idleGap time.Duration) int64 {
	acc := newTotals()
	run(hbs, idleGap, acc)
	return sumSeconds(roundDim(acc.projects))
}

func sumSeconds(m map[string]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

func run(hbs []heartbeat.Heartbeat, idleGap time.Duration, acc *totalsAcc) {
	if len(hbs) == 0 {
		return
	}
	if idleGap <= 0 {
		idleGap = DefaultIdleGap
	}

	ordered := make([]heartbeat.Heartbeat, len(hbs))
	copy(ordered, hbs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	intervalMs := HeartbeatInterval.Milliseconds()
	idleGapMs := idleGap.Milliseconds()

	acc.charge(ordered[0], intervalMs)
	prev := ordered[0]
	for _, cur := range ordered[1:] {
		diff := cur.Timestamp - prev.Timestamp
		if diff < idleGapMs {
			acc.charge(prev, diff)
		} else {
			acc.charge(cur, intervalMs)
		}
		prev = cur
	}
}
