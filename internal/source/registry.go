// Package source describes where events come from: the immutable registry
// of configured sources, the transport strategies that fetch their raw
// payloads and the pure adapters that turn payloads into event candidates.
package source

import (
	"fmt"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
)

// Config is the resolved, immutable configuration of one source.
type Config struct {
	Name         string            `json:"name"`
	Enabled      bool              `json:"enabled"`
	PollInterval time.Duration     `json:"poll_interval"`
	Adapter      string            `json:"adapter"`
	Fetcher      string            `json:"fetcher"`
	Endpoint     string            `json:"endpoint"`
	Headers      map[string]string `json:"-"`
	Options      map[string]any    `json:"options,omitempty"`
	Credibility  float64           `json:"credibility,omitempty"`
}

// FromConfig converts the file-level source declarations.
func FromConfig(in []config.SourceConfig) []Config {
	out := make([]Config, 0, len(in))
	for _, sc := range in {
		out = append(out, Config{
			Name:         sc.Name,
			Enabled:      sc.IsEnabled(),
			PollInterval: time.Duration(sc.PollInterval) * time.Second,
			Adapter:      sc.Adapter,
			Fetcher:      sc.Fetcher,
			Endpoint:     sc.Endpoint,
			Headers:      sc.Headers,
			Options:      sc.Options,
			Credibility:  sc.Credibility,
		})
	}
	return out
}

// Registry holds the configured sources keyed by name.
type Registry struct {
	byName map[string]Config
	names  []string
}

func NewRegistry(cfgs []Config) (*Registry, error) {
	r := &Registry{byName: make(map[string]Config, len(cfgs))}
	for i, c := range cfgs {
		if c.Name == "" {
			return nil, apperrors.Invalid("source %d: name is required", i)
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, apperrors.Invalid("source %q: duplicate name", c.Name)
		}
		if c.PollInterval <= 0 {
			return nil, apperrors.Invalid("source %q: poll interval must be positive", c.Name)
		}
		if !KnownAdapter(c.Adapter) {
			return nil, apperrors.Invalid("source %q: unknown adapter %q", c.Name, c.Adapter)
		}
		if c.Fetcher == "" {
			c.Fetcher = DefaultFetcherKind(c.Adapter)
		}
		if !KnownFetcher(c.Fetcher) {
			return nil, apperrors.Invalid("source %q: unknown fetcher %q", c.Name, c.Fetcher)
		}
		if c.Endpoint == "" && c.Fetcher != FetcherStatic {
			return nil, apperrors.Invalid("source %q: endpoint is required", c.Name)
		}
		r.byName[c.Name] = c
		r.names = append(r.names, c.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) Get(name string) (Config, error) {
	c, ok := r.byName[name]
	if !ok {
		return Config{}, fmt.Errorf("source %q: %w", name, apperrors.ErrSourceNotFound)
	}
	return c, nil
}

// All returns every source ordered by name.
func (r *Registry) All() []Config {
	out := make([]Config, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

func (r *Registry) Enabled() []Config {
	out := make([]Config, 0, len(r.names))
	for _, n := range r.names {
		if c := r.byName[n]; c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// Credibility maps source names to their configured weight, omitting
// sources without one.
func (r *Registry) Credibility() map[string]float64 {
	out := make(map[string]float64)
	for n, c := range r.byName {
		if c.Credibility > 0 {
			out[n] = c.Credibility
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.names) }
