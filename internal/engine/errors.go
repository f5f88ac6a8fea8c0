package engine

import "fmt"

// InsufficientDataError aborts a prediction cycle before any partial result
// is produced: too few cleaned points for the quality tier, or a lookback
// window outside the configured bounds.
type InsufficientDataError struct {
	Points   int
	Required int
	Reason   string
}

func (e *InsufficientDataError) Error() string {
	if e.Required > 0 {
		return fmt.Sprintf("insufficient data: %s (%d points, need %d)", e.Reason, e.Points, e.Required)
	}
	return fmt.Sprintf("insufficient data: %s", e.Reason)
}
