package service

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/repair-tracker/internal/repository"
)

const (
	ticketSequenceTTL = 48 * time.Hour
	jobSequenceTTL    = 400 * 24 * time.Hour
)

// NumberGenerator issues human-readable ticket numbers and job ids.
type NumberGenerator struct {
	sequences repository.SequenceRepository
	loc       *time.Location
	tickets   repository.ServiceRequestRepository
	jobs      repository.JobRepository
}

// NewNumberGenerator builds a generator whose day and year boundaries follow loc.
func NewNumberGenerator(sequences repository.SequenceRepository, loc *time.Location) *NumberGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return &NumberGenerator{sequences: sequences, loc: loc}
}

// WithStoredNumbers makes new counters start above the numbers already stored,
// so a restarted or reset counter does not reissue them. Either repository may be nil.
func (g *NumberGenerator) WithStoredNumbers(tickets repository.ServiceRequestRepository, jobs repository.JobRepository) *NumberGenerator {
	if tickets != nil {
		g.tickets = tickets
	}
	if jobs != nil {
		g.jobs = jobs
	}
	return g
}

// NextTicketNumber returns SRV-YYYYMMDD-NNNN, restarting the counter each day.
func (g *NumberGenerator) NextTicketNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.In(g.loc).Format("20060102")
	prefix := "SRV-" + day + "-"
	var floor repository.Floor
	if g.tickets != nil {
		floor = func(ctx context.Context) (int64, error) {
			return g.tickets.MaxTicketSequence(ctx, prefix)
		}
	}
	n, err := g.sequences.Next(ctx, "ticket:"+day, ticketSequenceTTL, floor)
	if err != nil {
		return "", fmt.Errorf("next ticket number: %w", err)
	}
	return fmt.Sprintf("%s%04d", prefix, n), nil
}

// NextJobID returns JOB-YYYY-NNNN, restarting the counter each year.
func (g *NumberGenerator) NextJobID(ctx context.Context, now time.Time) (string, error) {
	year := now.In(g.loc).Format("2006")
	prefix := "JOB-" + year + "-"
	var floor repository.Floor
	if g.jobs != nil {
		floor = func(ctx context.Context) (int64, error) {
			return g.jobs.MaxJobSequence(ctx, prefix)
		}
	}
	n, err := g.sequences.Next(ctx, "job:"+year, jobSequenceTTL, floor)
	if err != nil {
		return "", fmt.Errorf("next job id: %w", err)
	}
	return fmt.Sprintf("%s%04d", prefix, n), nil
}
