package importer

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/codepulse/codepulse/internal/domain/heartbeat"
	"github.com/codepulse/codepulse/internal/domain/summary"
)

// DaySink persists one normalized day of heartbeats. Satisfied by
// summary.Builder.
type DaySink interface {
	Process(ctx context.Context, userID, day string, hbs []heartbeat.Heartbeat, mode summary.DayMode) (*summary.Summary, error)
}

// Provider adapts one external data shape to the canonical date-grouped
// heartbeat representation.
//
// Validate checks credentials/input up front. Process fetches the full
// dataset and returns it normalized as a date-grouped map, updating job
// status through the registry as it moves through its states. ProcessChunk
// drives the daily summary builder for a date partition and reports how
// many days it completed.
type Provider interface {
	Validate(ctx context.Context, job *Job) error
	Process(ctx context.Context, job *Job) (map[string][]heartbeat.Heartbeat, error)
	ProcessChunk(ctx context.Context, chunk *Chunk) (int, error)
}

// dayProcessor is the chunk-processing half shared by all providers: every
// provider ends in the same builder-per-date sequence.
type dayProcessor struct {
	builder DaySink
	logger  *slog.Logger
}

// ProcessChunk runs the daily summary builder over each date of the chunk,
// in date order. The mode is decided here from the resolved date: the
// current UTC day stays live, everything else is a closed-day backfill.
// Day-scoped failures are already swallowed by the builder, so a chunk
// always completes.
func (p dayProcessor) ProcessChunk(ctx context.Context, chunk *Chunk) (int, error) {
	days := make([]string, 0, len(chunk.Days))
	for day := range chunk.Days {
		days = append(days, day)
	}
	sort.Strings(days)

	today := time.Now().UTC().Format(heartbeat.DayFormat)
	processed := 0
	for _, day := range days {
		mode := summary.ClosedDay
		if day == today {
			mode = summary.LiveDay
		}
		if _, err := p.builder.Process(ctx, chunk.UserID, day, chunk.Days[day], mode); err != nil {
			p.logger.Error("chunk day rejected", "user", chunk.UserID, "day", day, "error", err)
		}
		processed++
	}
	return processed, nil
}
