package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"subvoice/internal/config"
	"subvoice/internal/fileutil"
	"subvoice/internal/logging"
)

// Voice is one entry of the backend's voice catalog.
type Voice struct {
	Name   string `json:"name"`
	Gender string `json:"gender,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// VoiceLister fetches the live voice list.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// CatalogSource says where a voice list came from.
type CatalogSource string

const (
	SourceCache    CatalogSource = "cache"
	SourceBackend  CatalogSource = "backend"
	SourceStale    CatalogSource = "stale_cache"
	SourceFallback CatalogSource = "fallback"
)

type catalogFile struct {
	Voices    []Voice   `json:"voices"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Catalog caches the voice list on disk and refreshes it after ttl.
type Catalog struct {
	path   string
	ttl    time.Duration
	lister VoiceLister
	logger *slog.Logger
	now    func() time.Time
}

// NewCatalog returns a catalog cached at path.
func NewCatalog(path string, ttl time.Duration, lister VoiceLister, logger *slog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Catalog{
		path:   path,
		ttl:    ttl,
		lister: lister,
		logger: logging.NewComponentLogger(logger, "voices"),
		now:    time.Now,
	}
}

// Voices returns the catalog, fetching it when the cache is missing or older
// than the TTL. When fetching fails a stale cache is preferred, then the
// single default voice. The fallback is not written to disk so the next call
// tries the backend again.
func (c *Catalog) Voices(ctx context.Context) ([]Voice, CatalogSource) {
	cached, err := c.load()
	if err == nil && c.now().Sub(cached.UpdatedAt) < c.ttl && len(cached.Voices) > 0 {
		return cached.Voices, SourceCache
	}
	return c.refresh(ctx, cached)
}

// Refresh fetches from the backend regardless of cache age.
func (c *Catalog) Refresh(ctx context.Context) ([]Voice, CatalogSource) {
	cached, _ := c.load()
	return c.refresh(ctx, cached)
}

func (c *Catalog) refresh(ctx context.Context, cached catalogFile) ([]Voice, CatalogSource) {
	var voices []Voice
	var err error
	if c.lister == nil {
		err = errors.New("no voice lister configured")
	} else {
		voices, err = c.lister.ListVoices(ctx)
	}
	if err == nil && len(voices) > 0 {
		sort.Slice(voices, func(i, j int) bool { return voices[i].Name < voices[j].Name })
		if saveErr := c.save(catalogFile{Voices: voices, UpdatedAt: c.now()}); saveErr != nil {
			logging.WarnWithContext(c.logger, "voice catalog cache not written", "voice_cache_write_failed",
				logging.String("path", c.path),
				logging.Error(saveErr),
				logging.String(logging.FieldErrorHint, "check cache_dir permissions"),
				logging.String(logging.FieldImpact, "voices will be fetched again next run"),
			)
		}
		c.logger.Info("voice catalog refreshed", logging.Int("voices", len(voices)))
		return voices, SourceBackend
	}
	if err == nil {
		err = errors.New("backend returned no voices")
	}
	if len(cached.Voices) > 0 {
		logging.WarnWithContext(c.logger, "voice catalog refresh failed; using stale cache", "voice_catalog_stale",
			logging.Error(err),
			logging.String("updated_at", cached.UpdatedAt.Format(time.RFC3339)),
			logging.String(logging.FieldErrorHint, "check network access and the edge-tts install"),
			logging.String(logging.FieldImpact, "recently added voices may be missing"),
		)
		return cached.Voices, SourceStale
	}
	fallback := config.DefaultVoice()
	logging.WarnWithContext(c.logger, "voice catalog unavailable; using default voice", "voice_catalog_fallback",
		logging.Error(err),
		logging.String("voice", fallback),
		logging.String(logging.FieldErrorHint, "run subvoice doctor to check edge-tts"),
		logging.String(logging.FieldImpact, "only the default voice is listed"),
	)
	return []Voice{{Name: fallback, Locale: localeOf(fallback)}}, SourceFallback
}

func (c *Catalog) load() (catalogFile, error) {
	var file catalogFile
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return file, err
		}
		return file, fmt.Errorf("read voice cache: %w", err)
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return catalogFile{}, fmt.Errorf("decode voice cache: %w", err)
	}
	return file, nil
}

func (c *Catalog) save(file catalogFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(c.path, data, 0o644)
}

// FilterByLocale returns voices whose locale starts with prefix
// (case-insensitive). An empty prefix returns all voices.
func FilterByLocale(voices []Voice, prefix string) []Voice {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return voices
	}
	out := make([]Voice, 0, len(voices))
	for _, v := range voices {
		if strings.HasPrefix(strings.ToLower(v.Locale), prefix) {
			out = append(out, v)
		}
	}
	return out
}

// Contains reports whether name is in voices.
func Contains(voices []Voice, name string) bool {
	for _, v := range voices {
		if v.Name == name {
			return true
		}
	}
	return false
}
