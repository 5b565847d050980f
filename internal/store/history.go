// Package store serves historical time-series data from flat CSV files. The
// file is re-read and re-parsed per request; an optional Redis read-through
// cache (CachedStore) sits in front when that cost matters.
package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/epitrack/epitrack/internal/domain"
)

var (
	// ErrNoData means the backing file does not exist at all.
	ErrNoData = errors.New("no historical data available")
	// ErrCountryNotFound means the file loaded but has no rows for the
	// requested country.
	ErrCountryNotFound = errors.New("country not found")
)

// Series is the historical record for one country, ordered by date
// ascending with no duplicate dates.
type Series struct {
	Country string                   `json:"country"`
	Points  []domain.TimeSeriesPoint `json:"points"`
}

// HistoryStore is the read surface the handlers and the cache decorate.
type HistoryStore interface {
	// Countries lists available country display names, sorted.
	Countries(ctx context.Context) ([]string, error)
	// History returns the series for a country, optionally bounded by an
	// inclusive [from, to] date range.
	History(ctx context.Context, country string, from, to *domain.Date) (Series, error)
}

// FileStore reads one CSV of per-country daily rows. Expected columns:
// country, date (or date_value), new_cases, total_cases, new_deaths,
// total_deaths. Missing series are derived: cumulative from running sums,
// dailies from diffs, deaths at a fixed 2% of cases.
type FileStore struct {
	path string
}

// NewFileStore creates a store over the given CSV path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Countries(ctx context.Context) ([]string, error) {
	series, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(series))
	for _, cs := range series {
		names = append(names, cs.Country)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) History(ctx context.Context, country string, from, to *domain.Date) (Series, error) {
	series, err := s.load(ctx)
	if err != nil {
		return Series{}, err
	}

	cs, ok := series[domain.CountryKey(country)]
	if !ok {
		return Series{}, fmt.Errorf("%w: %s", ErrCountryNotFound, domain.CanonicalCountry(country))
	}

	points := make([]domain.TimeSeriesPoint, 0, len(cs.Points))
	for _, p := range cs.Points {
		if from != nil && p.Date.Time.Before(from.Time) {
			continue
		}
		if to != nil && p.Date.Time.After(to.Time) {
			continue
		}
		points = append(points, p)
	}
	return Series{Country: cs.Country, Points: points}, nil
}

// columnIndex maps the header names we accept to their positions.
type columnIndex struct {
	country, date, newCases, totalCases, newDeaths, totalDeaths int
}

func indexHeader(header []string) (columnIndex, error) {
	idx := columnIndex{country: -1, date: -1, newCases: -1, totalCases: -1, newDeaths: -1, totalDeaths: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "country", "country/region":
			idx.country = i
		case "date", "date_value":
			idx.date = i
		case "new_cases":
			idx.newCases = i
		case "total_cases", "cases":
			idx.totalCases = i
		case "new_deaths":
			idx.newDeaths = i
		case "total_deaths", "deaths":
			idx.totalDeaths = i
		}
	}
	if idx.country < 0 || idx.date < 0 {
		return idx, fmt.Errorf("history file missing country/date columns: %v", header)
	}
	if idx.newCases < 0 && idx.totalCases < 0 {
		return idx, fmt.Errorf("history file has neither new_cases nor total_cases: %v", header)
	}
	return idx, nil
}

func (s *FileStore) load(ctx context.Context) (map[string]Series, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoData, s.path)
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read history header: %w", err)
	}
	idx, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	byCountry := make(map[string][]domain.TimeSeriesPoint)
	display := make(map[string]string)

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping malformed history row")
			continue
		}

		point, country, ok := parseRow(record, idx, line)
		if !ok {
			continue
		}
		key := domain.CountryKey(country)
		if _, seen := display[key]; !seen {
			display[key] = domain.CanonicalCountry(country)
		}
		byCountry[key] = append(byCountry[key], point)
	}

	series := make(map[string]Series, len(byCountry))
	for key, points := range byCountry {
		series[key] = Series{Country: display[key], Points: normalizeSeries(points, idx)}
	}
	return series, nil
}

func parseRow(record []string, idx columnIndex, line int) (domain.TimeSeriesPoint, string, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	country := field(idx.country)
	if country == "" {
		return domain.TimeSeriesPoint{}, "", false
	}

	date, err := domain.ParseDate(field(idx.date))
	if err != nil {
		log.Warn().Int("line", line).Str("country", country).Msg("skipping row with unparsable date")
		return domain.TimeSeriesPoint{}, "", false
	}

	count := func(i int) int64 {
		raw := field(i)
		if raw == "" {
			return 0
		}
		// Some exports carry counts as floats.
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return 0
		}
		return int64(v)
	}

	return domain.TimeSeriesPoint{
		Date:        date,
		NewCases:    count(idx.newCases),
		TotalCases:  count(idx.totalCases),
		NewDeaths:   count(idx.newDeaths),
		TotalDeaths: count(idx.totalDeaths),
	}, country, true
}

// normalizeSeries sorts by date, drops duplicate dates and derives whichever
// series the file did not carry.
func normalizeSeries(points []domain.TimeSeriesPoint, idx columnIndex) []domain.TimeSeriesPoint {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Time.Before(points[j].Date.Time)
	})

	out := points[:0]
	for i, p := range points {
		if i > 0 && p.Date.Equal(out[len(out)-1].Date.Time) {
			continue
		}
		out = append(out, p)
	}

	var runningCases, runningDeaths int64
	var prevTotalCases, prevTotalDeaths int64
	for i := range out {
		p := &out[i]

		if idx.totalCases < 0 {
			runningCases += p.NewCases
			p.TotalCases = runningCases
		} else if idx.newCases < 0 {
			p.NewCases = p.TotalCases - prevTotalCases
			if p.NewCases < 0 {
				p.NewCases = 0
			}
		}

		if idx.totalDeaths < 0 && idx.newDeaths < 0 {
			// No death data at all: estimate at a fixed ratio of cases.
			p.NewDeaths = int64(float64(p.NewCases) * deathEstimateRatio)
			runningDeaths += p.NewDeaths
			p.TotalDeaths = runningDeaths
		} else if idx.totalDeaths < 0 {
			runningDeaths += p.NewDeaths
			p.TotalDeaths = runningDeaths
		} else if idx.newDeaths < 0 {
			p.NewDeaths = p.TotalDeaths - prevTotalDeaths
			if p.NewDeaths < 0 {
				p.NewDeaths = 0
			}
		}

		prevTotalCases = p.TotalCases
		prevTotalDeaths = p.TotalDeaths
	}
	return out
}

const deathEstimateRatio = 0.02
