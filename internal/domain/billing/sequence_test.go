package billing

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySequenceRepo struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
}

func (r *memorySequenceRepo) Next(_ context.Context, scopeKey string) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = make(map[string]int64)
	}
	r.counters[scopeKey]++
	return r.counters[scopeKey], nil
}

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, 6, 15, 12, 0, 0, 0, time.UTC)
	}
}

func TestFormatBillNumber(t *testing.T) {
	assert.Equal(t, "2026-0001", FormatBillNumber(2026, 1))
	assert.Equal(t, "2026-0420", FormatBillNumber(2026, 420))
	assert.Equal(t, "2026-12345", FormatBillNumber(2026, 12345))
}

func TestYearlySequence_NextBillNumber(t *testing.T) {
	t.Run("starts each year at 0001", func(t *testing.T) {
		repo := &memorySequenceRepo{}
		gen := NewYearlySequence(repo, WithClock(fixedClock(2026)))

		number, year, err := gen.NextBillNumber(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "2026-0001", number)
		assert.Equal(t, 2026, year)

		number, _, err = gen.NextBillNumber(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "2026-0002", number)

		next := NewYearlySequence(repo, WithClock(fixedClock(2027)))
		number, _, err = next.NextBillNumber(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "2027-0001", number)
	})

	t.Run("fails instead of returning a possibly duplicated number", func(t *testing.T) {
		gen := NewYearlySequence(&memorySequenceRepo{err: errors.New("counter unavailable")})
		number, _, err := gen.NextBillNumber(context.Background())
		assert.Error(t, err)
		assert.Empty(t, number)
	})

	t.Run("concurrent callers get distinct numbers", func(t *testing.T) {
		gen := NewYearlySequence(&memorySequenceRepo{}, WithClock(fixedClock(2026)))

		const n = 64
		var wg sync.WaitGroup
		results := make(chan string, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				number, _, err := gen.NextBillNumber(context.Background())
				if err == nil {
					results <- number
				}
			}()
		}
		wg.Wait()
		close(results)

		seen := make(map[string]bool)
		for number := range results {
			assert.True(t, strings.HasPrefix(number, "2026-"))
			assert.False(t, seen[number], "duplicate %s", number)
			seen[number] = true
		}
		assert.Len(t, seen, n)

		for i := 1; i <= n; i++ {
			assert.True(t, seen[FormatBillNumber(2026, int64(i))], "missing seq %s", strconv.Itoa(i))
		}
	})
}
