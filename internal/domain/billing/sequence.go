package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// FormatBillNumber renders {year}-{seq:04d}
func FormatBillNumber(year int, seq int64) string {
	return fmt.Sprintf("%d-%04d", year, seq)
}

// SequenceRepository increments a named counter atomically
type SequenceRepository interface {
	// Next increments the counter for scopeKey and returns the new value,
	// creating the scope at 1 when it does not exist. It must never return
	// the same value twice for a scope; if atomicity cannot be guaranteed it fails.
	Next(ctx context.Context, scopeKey string) (int64, error)
}

// SequenceGenerator issues bill and receipt numbers
type SequenceGenerator interface {
	// NextBillNumber returns a fresh {year}-{seq:04d} number and its year
	NextBillNumber(ctx context.Context) (number string, year int, err error)
}

// YearlySequence scopes the counter to the current calendar year
type YearlySequence struct {
	repo SequenceRepository
	now  func() time.Time
}

// YearlySequenceOption configures a YearlySequence
type YearlySequenceOption func(*YearlySequence)

// WithClock overrides the time source used to pick the year
func WithClock(now func() time.Time) YearlySequenceOption {
	return func(s *YearlySequence) {
		s.now = now
	}
}

// NewYearlySequence creates a generator backed by repo
func NewYearlySequence(repo SequenceRepository, opts ...YearlySequenceOption) *YearlySequence {
	s := &YearlySequence{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextBillNumber implements SequenceGenerator
func (s *YearlySequence) NextBillNumber(ctx context.Context) (string, int, error) {
	year := s.now().Year()
	seq, err := s.repo.Next(ctx, strconv.Itoa(year))
	if err != nil {
		return "", 0, fmt.Errorf("failed to allocate bill number: %w", err)
	}
	if seq <= 0 {
		return "", 0, fmt.Errorf("failed to allocate bill number: counter returned %d", seq)
	}
	return FormatBillNumber(year, seq), year, nil
}

var _ SequenceGenerator = (*YearlySequence)(nil)
