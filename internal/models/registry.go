package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/epitrack/epitrack/internal/domain"
)

// ErrModelNotFound means no artifact exists for the country after the full
// fallback chain. The caller resolves it by synthetic generation; the
// registry itself never fabricates predictions.
var ErrModelNotFound = errors.New("no model available")

// Handle is one loaded artifact plus its training metadata.
type Handle struct {
	Country  string
	Kind     domain.ModelKind
	Metrics  domain.ModelMetrics
	artifact Artifact
}

// Infer evaluates the artifact for one day.
func (h *Handle) Infer(features []float64) (float64, error) {
	return h.artifact.Infer(features)
}

// Registry is the immutable (country, kind) -> Handle mapping. It is
// populated once by Builder.Build before serving begins and only read after
// that, so concurrent request handlers need no locking.
type Registry struct {
	byCountry map[string]map[domain.ModelKind]*Handle
	display   map[string]string
}

// Builder scans a directory tree of artifact exports, one subdirectory per
// country, one <kind>.json per trained model.
type Builder struct {
	dir string
}

// NewBuilder creates a builder over the given models directory.
func NewBuilder(dir string) *Builder {
	return &Builder{dir: dir}
}

// Build performs the one-time discovery scan. A missing directory yields an
// empty registry; a failure to load one artifact is logged and treated as
// that artifact being absent, never aborting the rest of the scan.
func (b *Builder) Build() (*Registry, error) {
	reg := &Registry{
		byCountry: make(map[string]map[domain.ModelKind]*Handle),
		display:   make(map[string]string),
	}

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("dir", b.dir).Msg("models directory not found, serving without trained models")
			return reg, nil
		}
		return nil, fmt.Errorf("failed to scan models directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		country := domain.CanonicalCountry(entry.Name())
		key := domain.CountryKey(country)
		b.loadCountry(reg, key, country, filepath.Join(b.dir, entry.Name()))
	}

	log.Info().Int("countries", len(reg.byCountry)).Msg("model registry built")
	return reg, nil
}

func (b *Builder) loadCountry(reg *Registry, key, country, dir string) {
	files, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("country", country).Msg("failed to read country model directory")
		return
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		kind, err := domain.ParseModelKind(strings.TrimSuffix(file.Name(), ".json"))
		if err != nil {
			log.Warn().Str("country", country).Str("file", file.Name()).Msg("skipping artifact with unknown kind")
			continue
		}

		handle, err := loadHandle(filepath.Join(dir, file.Name()), country, kind)
		if err != nil {
			log.Warn().Err(err).Str("country", country).Str("model", string(kind)).Msg("failed to load artifact, treating as absent")
			continue
		}

		if reg.byCountry[key] == nil {
			reg.byCountry[key] = make(map[domain.ModelKind]*Handle)
			reg.display[key] = country
		}
		reg.byCountry[key][kind] = handle
	}
}

func loadHandle(path, country string, kind domain.ModelKind) (*Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var file artifactFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse artifact: %w", err)
	}
	if file.Kind != "" && file.Kind != string(kind) {
		return nil, fmt.Errorf("artifact kind %q does not match file name %q", file.Kind, kind)
	}

	artifact, err := buildArtifact(file, kind)
	if err != nil {
		return nil, err
	}
	return &Handle{Country: country, Kind: kind, Metrics: file.Metrics, artifact: artifact}, nil
}

// Get resolves the best available handle for (country, kind):
//
//  1. exact match
//  2. enhanced falls back to lstm (enhanced is a refinement of the
//     deep-learning path)
//  3. xgboost falls back to gradient_boosting (interchangeable boosted-tree
//     families as a degraded default)
//  4. ErrModelNotFound
//
// The chain is deterministic and total: for every valid kind it returns a
// handle or ErrModelNotFound, never anything else.
func (r *Registry) Get(country string, kind domain.ModelKind) (*Handle, error) {
	kinds := r.byCountry[domain.CountryKey(country)]
	if kinds == nil {
		return nil, fmt.Errorf("%w for %s", ErrModelNotFound, domain.CanonicalCountry(country))
	}

	if h, ok := kinds[kind]; ok {
		return h, nil
	}
	if kind == domain.KindEnhanced {
		if h, ok := kinds[domain.KindLSTM]; ok {
			return h, nil
		}
	}
	if kind == domain.KindXGBoost {
		if h, ok := kinds[domain.KindGradientBoosting]; ok {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrModelNotFound, domain.CanonicalCountry(country), kind)
}

// Handles returns every loaded handle for a country, sorted by kind.
func (r *Registry) Handles(country string) []*Handle {
	kinds := r.byCountry[domain.CountryKey(country)]
	if kinds == nil {
		return nil
	}
	handles := make([]*Handle, 0, len(kinds))
	for _, h := range kinds {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Kind < handles[j].Kind })
	return handles
}

// Countries lists the display names of countries with at least one model,
// sorted.
func (r *Registry) Countries() []string {
	names := make([]string, 0, len(r.display))
	for _, name := range r.display {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasModels reports whether any artifact loaded for the country.
func (r *Registry) HasModels(country string) bool {
	return r.byCountry[domain.CountryKey(country)] != nil
}

// Best picks the strongest model per training metric: lowest RMSE, lowest
// MAE, highest R².
func (r *Registry) Best(country string) (byRMSE, byMAE, byR2 domain.ModelKind) {
	handles := r.Handles(country)
	if len(handles) == 0 {
		return "", "", ""
	}
	best := handles[0]
	byRMSE, byMAE, byR2 = best.Kind, best.Kind, best.Kind
	rmse, mae, r2 := best.Metrics.RMSE, best.Metrics.MAE, best.Metrics.R2
	for _, h := range handles[1:] {
		if h.Metrics.RMSE < rmse {
			rmse, byRMSE = h.Metrics.RMSE, h.Kind
		}
		if h.Metrics.MAE < mae {
			mae, byMAE = h.Metrics.MAE, h.Kind
		}
		if h.Metrics.R2 > r2 {
			r2, byR2 = h.Metrics.R2, h.Kind
		}
	}
	return byRMSE, byMAE, byR2
}
