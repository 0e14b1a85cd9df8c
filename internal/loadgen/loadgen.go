// Package loadgen burns CPU on the calling goroutine for a requested wall-clock
// duration. It exists for load and capacity testing of the host process.
package loadgen

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-gateway/internal/models"
)

// DefaultDuration applies when the duration parameter is missing or not an integer.
const DefaultDuration = 100 * time.Millisecond

// ctxCheckEvery is how many iterations run between cancellation checks.
const ctxCheckEvery = 1024

// Run busy-waits for d, accumulating sqrt(rand) on each iteration. Elapsed time
// is sampled in the loop condition, so the loop overshoots d by at most one
// iteration. d <= 0 returns immediately. Cancelling ctx ends the loop early.
func Run(ctx context.Context, d time.Duration) models.LoadResult {
	return run(ctx, d, time.Now, rand.Float64)
}

func run(ctx context.Context, d time.Duration, now func() time.Time, random func() float64) models.LoadResult {
	start := now()
	var result float64
	for i := 0; now().Sub(start) < d; i++ {
		result += math.Sqrt(random())
		if i%ctxCheckEvery == ctxCheckEvery-1 && ctx.Err() != nil {
			break
		}
	}
	return models.LoadResult{
		Elapsed: now().Sub(start),
		Result:  result,
	}
}

// ParseDuration reads a millisecond count the way a lenient integer parser
// would: optional surrounding space, an optional sign, then the leading run of
// digits. Anything after the digits is ignored ("250ms" is 250). Input with no
// leading digits, or a value that overflows, yields DefaultDuration.
func ParseDuration(raw string) time.Duration {
	s := trimLeftSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return DefaultDuration
	}
	ms, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil || ms > math.MaxInt64/int64(time.Millisecond) || ms < math.MinInt64/int64(time.Millisecond) {
		return DefaultDuration
	}
	return time.Duration(ms) * time.Millisecond
}

func trimLeftSpace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return s[i:]
}
