package domain

import (
	"math"
	"math/rand"
	"time"
)

// Synthetic generation parameters. The wave period and drift are tuned to
// look like epidemic waves on a chart, not to model anything.
const (
	wavePeriodDays    = 30   // sin(t/30): one full wave roughly every 188 days
	driftPeriodDays   = 45   // slow drift of the daily increment
	driftRate         = 0.005
	minDailyIncrement = 10 // floor that keeps a series from collapsing to zero
	deathRatio        = 0.02
)

// countryTier seeds the synthetic baseline per country. Large reporters
// start higher so substituted charts stay in a familiar range.
type countryTier struct {
	startTotal float64
	dailyBase  float64
}

var countryTiers = map[string]countryTier{
	"us":             {startTotal: 2_000_000, dailyBase: 2000},
	"india":          {startTotal: 1_500_000, dailyBase: 1800},
	"brazil":         {startTotal: 1_000_000, dailyBase: 1000},
	"france":         {startTotal: 800_000, dailyBase: 1000},
	"united kingdom": {startTotal: 700_000, dailyBase: 900},
	"germany":        {startTotal: 600_000, dailyBase: 800},
	"italy":          {startTotal: 600_000, dailyBase: 800},
	"spain":          {startTotal: 500_000, dailyBase: 700},
	"china":          {startTotal: 400_000, dailyBase: 500},
}

var defaultTier = countryTier{startTotal: 100_000, dailyBase: 200}

func tierFor(country string) countryTier {
	if t, ok := countryTiers[CountryKey(country)]; ok {
		return t
	}
	return defaultTier
}

// NewRand returns a time-seeded source for production callers. Tests pass
// their own fixed-seed source instead; synthetic output is never compared
// across calls, only checked structurally.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Yesterday returns the most recent complete calendar day, the anchor for
// unbounded synthetic series.
func Yesterday() Date {
	return NewDate(time.Now().UTC()).AddDays(-1)
}

// GenerateHistory produces a plausible historical series of the given
// length ending on end, so bounded requests get data inside the range they
// asked for. Daily new cases follow a sine wave with multiplicative noise;
// the underlying increment drifts slowly and is floored so the series never
// collapses. Totals are cumulative sums of the non-negative dailies, so
// monotonicity holds by construction.
func GenerateHistory(rng *rand.Rand, country string, days int, end Date) []TimeSeriesPoint {
	if days < 1 {
		days = 1
	}
	tier := tierFor(country)

	start := end.AddDays(-(days - 1))
	increment := tier.dailyBase
	totalCases := int64(tier.startTotal)
	totalDeaths := int64(tier.startTotal * deathRatio)

	points := make([]TimeSeriesPoint, 0, days)
	for t := 0; t < days; t++ {
		wave := math.Sin(float64(t)/wavePeriodDays)*0.5 + 1
		noise := 0.8 + rng.Float64()*0.4
		daily := increment * wave * noise
		if daily < 0 {
			daily = 0
		}

		newCases := int64(daily)
		newDeaths := int64(daily * deathRatio)
		totalCases += newCases
		totalDeaths += newDeaths

		points = append(points, TimeSeriesPoint{
			Date:        start.AddDays(t),
			NewCases:    newCases,
			TotalCases:  totalCases,
			NewDeaths:   newDeaths,
			TotalDeaths: totalDeaths,
		})

		increment *= 1 + driftRate*math.Sin(float64(t)/driftPeriodDays)
		if increment < minDailyIncrement {
			increment = minDailyIncrement
		}
	}
	return points
}

// Per-kind trend multipliers: a rough prior that different model families
// historically drift slightly up, flat or down.
var kindTrend = map[ModelKind]float64{
	KindXGBoost:          1.05,
	KindGradientBoosting: 1.04,
	KindRandomForest:     1.03,
	KindRidgeRegression:  1.02,
	KindLSTM:             1.01,
	KindEnhanced:         1.01,
	KindLinearRegression: 1.00,
	KindLassoRegression:  0.98,
}

// GenerateForecast produces a synthetic forecast anchored on the last known
// real (or synthetic) point. Each day compounds the kind's trend multiplier
// on the previous forecast day with a [0.9, 1.1] jitter. Trend fields are
// computed against the anchor day's new-case value so the chart shows drift
// from reality rather than day-over-day noise.
func GenerateForecast(rng *rand.Rand, last TimeSeriesPoint, horizon int, kind ModelKind) []PredictionPoint {
	if horizon < 1 {
		horizon = 1
	}
	mult, ok := kindTrend[kind]
	if !ok {
		mult = 1.0
	}

	baseline := float64(last.NewCases)
	prev := baseline
	if prev < minDailyIncrement {
		prev = minDailyIncrement
	}

	points := make([]PredictionPoint, 0, horizon)
	for i := 1; i <= horizon; i++ {
		jitter := 0.9 + rng.Float64()*0.2
		next := prev * mult * jitter
		if next < 0 {
			next = 0
		}

		pct, dir := ClassifyTrend(next, baseline)
		points = append(points, PredictionPoint{
			Date:            last.Date.AddDays(i),
			PredictedCases:  next,
			TrendPercentage: pct,
			TrendDirection:  dir,
		})
		prev = next
	}
	return points
}
