package accounting_test

import (
	"testing"
	"time"

	"github.com/codepulse/codepulse/internal/domain/accounting"
	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/stretchr/testify/require"
)

func hb(tsSeconds int64, project string) heartbeat.Heartbeat {
	return heartbeat.Heartbeat{
		UserID:    "u1",
		Timestamp: tsSeconds * 1000,
		Project:   project,
		Language:  "Go",
		Editor:    "vim",
		OS:        "Linux",
		File:      "main.go",
		Branch:    "main",
	}
}

func TestComputeTotals_Empty(t *testing.T) {
	totals := accounting.ComputeTotals(nil, accounting.DefaultIdleGap)
	require.Zero(t, totals.TotalSeconds)
	require.Empty(t, totals.Projects)
}

func TestComputeTotals_SingleHeartbeat(t *testing.T) {
	totals := accounting.ComputeTotals([]heartbeat.Heartbeat{hb(0, "A")}, accounting.DefaultIdleGap)
	require.Equal(t, int64(30), totals.TotalSeconds)
	require.Equal(t, int64(30), totals.Projects["A"])
}

func TestComputeTotals_IdleGapScenario(t *testing.T) {
	// t=0 bootstraps 30s, t=100 is within the gap (charges 100s),
	// t=500 is 400s later, past the 300s idle cutoff (charges 30s).
	hbs := []heartbeat.Heartbeat{hb(0, "A"), hb(100, "A"), hb(500, "A")}
	totals := accounting.ComputeTotals(hbs, accounting.DefaultIdleGap)
	require.Equal(t, int64(160), totals.TotalSeconds)
	require.Equal(t, int64(160), totals.Projects["A"])
}

func TestComputeTotals_IdleCutoffBoundary(t *testing.T) {
	// One second below the threshold charges the real gap.
	below := accounting.ComputeTotal([]heartbeat.Heartbeat{hb(0, "A"), hb(299, "A")}, accounting.DefaultIdleGap)
	require.Equal(t, int64(30+299), below)

	// Exactly the threshold charges only the nominal interval.
	exact := accounting.ComputeTotal([]heartbeat.Heartbeat{hb(0, "A"), hb(300, "A")}, accounting.DefaultIdleGap)
	require.Equal(t, int64(30+30), exact)

	above := accounting.ComputeTotal([]heartbeat.Heartbeat{hb(0, "A"), hb(10_000, "A")}, accounting.DefaultIdleGap)
	require.Equal(t, int64(30+30), above)
}

func TestComputeTotals_BootstrapAlwaysCharged(t *testing.T) {
	for _, hbs := range [][]heartbeat.Heartbeat{
		{hb(42, "A")},
		{hb(0, "A"), hb(1000, "A")},
		{hb(0, "A"), hb(10, "A"), hb(20, "A")},
	} {
		totals := accounting.ComputeTotals(hbs, accounting.DefaultIdleGap)
		require.GreaterOrEqual(t, totals.TotalSeconds, int64(30))
	}
}

func TestComputeTotals_GapAttributedToPreviousDimensions(t *testing.T) {
	// The 100s between the two events belongs to the project active at the
	// previous heartbeat, not the one observed at the next.
	hbs := []heartbeat.Heartbeat{hb(0, "A"), hb(100, "B")}
	totals := accounting.ComputeTotals(hbs, accounting.DefaultIdleGap)
	require.Equal(t, int64(130), totals.Projects["A"])
	require.Zero(t, totals.Projects["B"])
}

func TestComputeTotals_IdleResumeChargesCurrentDimensions(t *testing.T) {
	hbs := []heartbeat.Heartbeat{hb(0, "A"), hb(1000, "B")}
	totals := accounting.ComputeTotals(hbs, accounting.DefaultIdleGap)
	require.Equal(t, int64(30), totals.Projects["A"])
	require.Equal(t, int64(30), totals.Projects["B"])
}

func TestComputeTotals_SortsUnorderedInput(t *testing.T) {
	hbs := []heartbeat.Heartbeat{hb(500, "A"), hb(0, "A"), hb(100, "A")}
	totals := accounting.ComputeTotals(hbs, accounting.DefaultIdleGap)
	require.Equal(t, int64(160), totals.TotalSeconds)
}

func TestComputeTotals_SumInvariant(t *testing.T) {
	for name, hbs := range map[string][]heartbeat.Heartbeat{
		"multi-project": {
			hb(0, "A"), hb(50, "A"), hb(120, "B"), hb(600, "B"), hb(700, "C"),
		},
		"projectless": {
			hb(0, "A"), hb(40, ""), hb(90, ""),
		},
		"sub-second gaps": {
			{UserID: "u1", Timestamp: 0, Project: "A", File: "a.go"},
			{UserID: "u1", Timestamp: 1400, Project: "B", File: "a.go"},
			{UserID: "u1", Timestamp: 2800, Project: "C", File: "a.go"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			totals := accounting.ComputeTotals(hbs, accounting.DefaultIdleGap)

			var sum int64
			for _, secs := range totals.Projects {
				sum += secs
			}
			require.Equal(t, totals.TotalSeconds, sum)
		})
	}
}

func TestComputeTotals_ProjectlessTimeBucketedAsUnknown(t *testing.T) {
	h := heartbeat.Heartbeat{UserID: "u1", Timestamp: 1000, File: "scratch.go"}
	totals := accounting.ComputeTotals([]heartbeat.Heartbeat{h}, accounting.DefaultIdleGap)
	require.Equal(t, int64(30), totals.TotalSeconds)
	require.Equal(t, int64(30), totals.Projects[accounting.UnknownProject])
}

func TestComputeTotals_RoundsPerProjectBeforeSumming(t *testing.T) {
	// 30000ms bootstrap plus two 1400ms gaps: A carries 31400ms, B 1400ms.
	// Rounding per project gives 31+1, and the total must be that sum, not
	// an independently rounded 32800ms.
	hbs := []heartbeat.Heartbeat{
		{UserID: "u1", Timestamp: 0, Project: "A", File: "a.go"},
		{UserID: "u1", Timestamp: 1400, Project: "B", File: "a.go"},
		{UserID: "u1", Timestamp: 2800, Project: "C", File: "a.go"},
	}
	totals := accounting.ComputeTotals(hbs, accounting.DefaultIdleGap)
	require.Equal(t, int64(31), totals.Projects["A"])
	require.Equal(t, int64(1), totals.Projects["B"])
	require.Equal(t, int64(32), totals.TotalSeconds)
	require.Equal(t, int64(32), accounting.ComputeTotal(hbs, accounting.DefaultIdleGap))
}

func TestComputeTotal_MatchesTotalsVariant(t *testing.T) {
	hbs := []heartbeat.Heartbeat{
		hb(0, "A"), hb(90, "B"), hb(450, "A"), hb(460, "C"),
	}
	require.Equal(t,
		accounting.ComputeTotals(hbs, accounting.DefaultIdleGap).TotalSeconds,
		accounting.ComputeTotal(hbs, accounting.DefaultIdleGap))
}

func TestComputeTotals_CustomIdleGap(t *testing.T) {
	hbs := []heartbeat.Heartbeat{hb(0, "A"), hb(100, "A")}
	totals := accounting.ComputeTotals(hbs, 60*time.Second)
	// 100s exceeds the 60s threshold, so only the interval is charged.
	require.Equal(t, int64(60), totals.TotalSeconds)
}

func TestComputeTotals_SkipsEmptyDimensionValues(t *testing.T) {
	h := heartbeat.Heartbeat{UserID: "u1", Timestamp: 1000, Project: "A"}
	totals := accounting.ComputeTotals([]heartbeat.Heartbeat{h}, accounting.DefaultIdleGap)
	require.Equal(t, int64(30), totals.Projects["A"])
	require.Empty(t, totals.Languages)
	require.Empty(t, totals.Branches)
}
