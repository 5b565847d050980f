package domain

// QualityPolicy is the acceptance gate applied to any result before it is
// returned as authoritative. The server applies it before serving and the
// dashboard client re-applies it to every response; keeping the thresholds
// in one struct is what stops the two gates drifting apart.
type QualityPolicy struct {
	// MinForecastFloor rejects degenerate model output: a first forecast
	// value below this floor almost always means a skipped inverse
	// transform on a scaled target, not a real prediction.
	MinForecastFloor float64

	// DefaultHistoryDays is the window generated when no usable real
	// history exists and the request did not bound the range itself.
	DefaultHistoryDays int
}

// DefaultQualityPolicy returns the thresholds both sides ship with.
func DefaultQualityPolicy() QualityPolicy {
	return QualityPolicy{
		MinForecastFloor:   10,
		DefaultHistoryDays: 180,
	}
}

// AcceptHistory reports whether a historical slice can be served as real
// data. want is the requested window in days; pass want <= 1 when the
// request did not bound the range.
func (p QualityPolicy) AcceptHistory(points []TimeSeriesPoint, want int) bool {
	if len(points) == 0 {
		return false
	}
	if want > 1 && len(points) < want {
		return false
	}
	return true
}

// AcceptForecast reports whether a forecast can be served as model output.
// Insufficient length or an implausibly low first value triggers the
// synthetic path instead.
func (p QualityPolicy) AcceptForecast(points []PredictionPoint, want int) bool {
	if len(points) == 0 || len(points) < want {
		return false
	}
	return points[0].PredictedCases >= p.MinForecastFloor
}

// HistoryWindow resolves the generation window for a synthetic history
// substitute: the requested window when the caller bounded it, the default
// otherwise.
func (p QualityPolicy) HistoryWindow(want int) int {
	if want > 1 {
		return want
	}
	return p.DefaultHistoryDays
}
