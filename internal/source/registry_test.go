package source

import (
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_OrdersAndFilters(t *testing.T) {
	off := false
	r, err := NewRegistry(FromConfig([]config.SourceConfig{
		{Name: "hn", PollInterval: 300, Adapter: AdapterHackerNews, Endpoint: "https://hn"},
		{Name: "aws", PollInterval: 120, Adapter: AdapterAWSStatus, Endpoint: "https://aws", Enabled: &off},
		{Name: "blog", PollInterval: 600, Adapter: AdapterRSS, Endpoint: "https://blog/rss", Credibility: 0.6},
	}))
	require.NoError(t, err)

	names := func(cs []Config) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.Name)
		}
		return out
	}
	assert.Equal(t, []string{"aws", "blog", "hn"}, names(r.All()))
	assert.Equal(t, []string{"blog", "hn"}, names(r.Enabled()))

	blog, err := r.Get("blog")
	require.NoError(t, err)
	assert.Equal(t, FetcherRSS, blog.Fetcher)
	assert.Equal(t, 10*time.Minute, blog.PollInterval)
	assert.Equal(t, map[string]float64{"blog": 0.6}, r.Credibility())

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
}

func TestNewRegistry_Rejects(t *testing.T) {
	cases := map[string][]Config{
		"empty name":       {{PollInterval: time.Minute, Adapter: AdapterRSS, Endpoint: "x"}},
		"duplicate":        {{Name: "a", PollInterval: time.Minute, Adapter: AdapterRSS, Endpoint: "x"}, {Name: "a", PollInterval: time.Minute, Adapter: AdapterRSS, Endpoint: "y"}},
		"zero interval":    {{Name: "a", Adapter: AdapterRSS, Endpoint: "x"}},
		"unknown adapter":  {{Name: "a", PollInterval: time.Minute, Adapter: "soap", Endpoint: "x"}},
		"missing endpoint": {{Name: "a", PollInterval: time.Minute, Adapter: AdapterRSS}},
	}
	for name, cfgs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(cfgs)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestNewRegistry_StaticNeedsNoEndpoint(t *testing.T) {
	_, err := NewRegistry([]Config{{Name: "demo", PollInterval: time.Minute, Adapter: AdapterGitHubStatus, Fetcher: FetcherStatic}})
	assert.NoError(t, err)
}
