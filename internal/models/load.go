package models

import (
	"strconv"
	"time"
)

// LoadResult is the outcome of one synthetic CPU load run.
type LoadResult struct {
	Elapsed time.Duration
	Result  float64
}

// LoadReport is the response body for GET /api/load.
type LoadReport struct {
	Message  string  `json:"message"`
	Duration string  `json:"duration"`
	Result   float64 `json:"result"`
}

// NewLoadReport formats elapsed time as whole milliseconds with an "ms" suffix.
func NewLoadReport(r LoadResult) LoadReport {
	return LoadReport{
		Message:  "Load test completed",
		Duration: strconv.FormatInt(r.Elapsed.Milliseconds(), 10) + "ms",
		Result:   r.Result,
	}
}
