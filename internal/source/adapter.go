package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
)

const (
	AdapterGitHubStatus     = "github_status"
	AdapterAWSStatus        = "aws_status"
	AdapterHackerNews       = "hackernews"
	AdapterGeneric          = "generic"
	AdapterRSS              = "rss"
	AdapterGitHubAdvisories = "github_advisories"
)

// KnownAdapter reports whether kind names an adapter.
func KnownAdapter(kind string) bool {
	switch kind {
	case AdapterGitHubStatus, AdapterAWSStatus, AdapterHackerNews,
		AdapterGeneric, AdapterRSS, AdapterGitHubAdvisories:
		return true
	}
	return false
}

// AdaptWarning records an item the adapter dropped. Index is the item's
// position in the payload, or -1 when the whole payload was unusable.
type AdaptWarning struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Adapter turns a raw payload into event candidates. Implementations do no
// I/O and return the same output for the same payload.
type Adapter interface {
	Adapt(p Payload) ([]event.Candidate, []AdaptWarning)
}

// NewAdapter builds the adapter configured for a source.
func NewAdapter(cfg Config) (Adapter, error) {
	switch cfg.Adapter {
	case AdapterGitHubStatus:
		return &GitHubStatusAdapter{Source: cfg.Name}, nil
	case AdapterAWSStatus:
		return &AWSStatusAdapter{Source: cfg.Name}, nil
	case AdapterHackerNews:
		return &HackerNewsAdapter{Source: cfg.Name, MaxItems: optInt(cfg.Options, "max_items", 10)}, nil
	case AdapterGeneric:
		return &GenericAdapter{
			Source:     cfg.Name,
			ItemsPath:  optString(cfg.Options, "items_path", "incidents"),
			IDField:    optString(cfg.Options, "id_field", "id"),
			TitleField: optString(cfg.Options, "title_field", "title"),
			BodyField:  optString(cfg.Options, "body_field", "body"),
			DateField:  optString(cfg.Options, "date_field", "created_at"),
			URLField:   optString(cfg.Options, "url_field", "url"),
		}, nil
	case AdapterRSS:
		return &RSSAdapter{Source: cfg.Name}, nil
	case AdapterGitHubAdvisories:
		return &GitHubAdvisoriesAdapter{Source: cfg.Name}, nil
	default:
		return nil, fmt.Errorf("unknown adapter kind %q", cfg.Adapter)
	}
}

func decodeJSON(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeObjectList decodes the payload and returns the list found under key.
func decodeObjectList(p Payload, key string) ([]any, *AdaptWarning) {
	if len(p.JSON) == 0 {
		return nil, &AdaptWarning{Index: -1, Reason: "payload is not JSON"}
	}
	v, err := decodeJSON(p.JSON)
	if err != nil {
		return nil, &AdaptWarning{Index: -1, Reason: "decoding payload: " + err.Error()}
	}
	if key == "" {
		list, ok := v.([]any)
		if !ok {
			return nil, &AdaptWarning{Index: -1, Reason: "payload is not a list"}
		}
		return list, nil
	}
	list, ok := lookupPath(v, key).([]any)
	if !ok {
		return nil, &AdaptWarning{Index: -1, Reason: fmt.Sprintf("no list at %q", key)}
	}
	return list, nil
}

// lookupPath follows a dot-separated path through nested objects.
func lookupPath(v any, path string) any {
	for _, part := range strings.Split(path, ".") {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[part]
	}
	return v
}

// str renders scalar JSON values as trimmed strings.
func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// pick returns the first non-empty string among keys.
func pick(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func scopedID(source, native string) string {
	if native == "" {
		return ""
	}
	return source + ":" + native
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts the layouts status pages and feeds commonly use, plus
// unix seconds. Unparseable input yields nil.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if isDigits(s) {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil
		}
		t := time.Unix(sec, 0).UTC()
		return &t
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func optString(opts map[string]any, key, def string) string {
	if s, ok := opts[key].(string); ok && s != "" {
		return s
	}
	return def
}

func optInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
