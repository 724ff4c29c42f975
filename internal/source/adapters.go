package source

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
)

// adaptObjects runs build over every element of list, dropping elements
// that are not objects or for which build reports a problem.
func adaptObjects(list []any, build func(obj map[string]any) (event.Candidate, string)) ([]event.Candidate, []AdaptWarning) {
	out := make([]event.Candidate, 0, len(list))
	var warnings []AdaptWarning
	for i, raw := range list {
		obj, ok := raw.(map[string]any)
		if !ok {
			warnings = append(warnings, AdaptWarning{Index: i, Reason: "item is not an object"})
			continue
		}
		c, problem := build(obj)
		if problem != "" {
			warnings = append(warnings, AdaptWarning{Index: i, Reason: problem})
			continue
		}
		out = append(out, c)
	}
	return out, warnings
}

// GitHubStatusAdapter reads the incidents list of a Statuspage-style API.
type GitHubStatusAdapter struct {
	Source string
}

func (a *GitHubStatusAdapter) Adapt(p Payload) ([]event.Candidate, []AdaptWarning) {
	list, w := decodeObjectList(p, "incidents")
	if w != nil {
		return nil, []AdaptWarning{*w}
	}
	return adaptObjects(list, func(obj map[string]any) (event.Candidate, string) {
		title := str(obj["name"])
		if title == "" {
			return event.Candidate{}, "incident has no name"
		}
		body := str(obj["body"])
		if body == "" {
			if updates, ok := obj["incident_updates"].([]any); ok && len(updates) > 0 {
				if first, ok := updates[0].(map[string]any); ok {
					body = str(first["body"])
				}
			}
		}
		return event.Candidate{
			ID:          scopedID(a.Source, str(obj["id"])),
			Source:      a.Source,
			Title:       title,
			Body:        body,
			URL:         str(obj["shortlink"]),
			PublishedAt: parseTime(pick(obj, "created_at", "started_at")),
		}, ""
	})
}

// AWSStatusAdapter reads the events list of the AWS health feed.
type AWSStatusAdapter struct {
	Source string
}

func (a *AWSStatusAdapter) Adapt(p Payload) ([]event.Candidate, []AdaptWarning) {
	list, w := decodeObjectList(p, "events")
	if w != nil {
		return nil, []AdaptWarning{*w}
	}
	return adaptObjects(list, func(obj map[string]any) (event.Candidate, string) {
		title := str(obj["summary"])
		if title == "" {
			return event.Candidate{}, "event has no summary"
		}
		return event.Candidate{
			ID:          scopedID(a.Source, pick(obj, "arn", "id")),
			Source:      a.Source,
			Title:       title,
			Body:        str(obj["description"]),
			PublishedAt: parseTime(pick(obj, "start_time", "date")),
		}, ""
	})
}

// HackerNewsAdapter accepts either a list of story ids or a list of item
// objects, keeping at most MaxItems entries.
type HackerNewsAdapter struct {
	Source   string
	MaxItems int
}

func (a *HackerNewsAdapter) Adapt(p Payload) ([]event.Candidate, []AdaptWarning) {
	list, w := decodeObjectList(p, "")
	if w != nil {
		return nil, []AdaptWarning{*w}
	}
	if a.MaxItems > 0 && len(list) > a.MaxItems {
		list = list[:a.MaxItems]
	}

	out := make([]event.Candidate, 0, len(list))
	var warnings []AdaptWarning
	for i, raw := range list {
		switch item := raw.(type) {
		case json.Number, string:
			id := str(item)
			if id == "" {
				warnings = append(warnings, AdaptWarning{Index: i, Reason: "empty story id"})
				continue
			}
			out = append(out, event.Candidate{
				ID:     scopedID(a.Source, id),
				Source: a.Source,
				Title:  "HackerNews Story #" + id,
				Body:   "Top story from HackerNews with ID " + id,
				URL:    "https://news.ycombinator.com/item?id=" + id,
			})
		case map[string]any:
			title := str(item["title"])
			if title == "" {
				warnings = append(warnings, AdaptWarning{Index: i, Reason: "story has no title"})
				continue
			}
			id := str(item["id"])
			url := str(item["url"])
			if url == "" && id != "" {
				url = "https://news.ycombinator.com/item?id=" + id
			}
			out = append(out, event.Candidate{
				ID:          scopedID(a.Source, id),
				Source:      a.Source,
				Title:       title,
				Body:        str(item["text"]),
				URL:         url,
				PublishedAt: parseTime(str(item["time"])),
			})
		default:
			warnings = append(warnings, AdaptWarning{Index: i, Reason: fmt.Sprintf("unsupported item type %T", raw)})
		}
	}
	return out, warnings
}

// GenericAdapter maps an arbitrary JSON status page through configured
// field names.
type GenericAdapter struct {
	Source     string
	ItemsPath  string
	IDField    string
	TitleField string
	BodyField  string
	DateField  string
	URLField   string
}

func (a *GenericAdapter) Adapt(p Payload) ([]event.Candidate, []AdaptWarning) {
	list, w := decodeObjectList(p, a.ItemsPath)
	if w != nil {
		return nil, []AdaptWarning{*w}
	}
	return adaptObjects(list, func(obj map[string]any) (event.Candidate, string) {
		title := str(lookupPath(obj, a.TitleField))
		if title == "" {
			return event.Candidate{}, fmt.Sprintf("missing %q", a.TitleField)
		}
		return event.Candidate{
			ID:          scopedID(a.Source, str(lookupPath(obj, a.IDField))),
			Source:      a.Source,
			Title:       title,
			Body:        str(lookupPath(obj, a.BodyField)),
			URL:         str(lookupPath(obj, a.URLField)),
			PublishedAt: parseTime(str(lookupPath(obj, a.DateField))),
		}, ""
	})
}

// RSSAdapter converts feed items. A JSON payload shaped like Feed is
// accepted too, so static sources can serve feed fixtures.
type RSSAdapter struct {
	Source string
}

func (a *RSSAdapter) Adapt(p Payload) ([]event.Candidate, []AdaptWarning) {
	feed := p.Feed
	if feed == nil && len(p.JSON) > 0 {
		var f Feed
		if err := json.Unmarshal(p.JSON, &f); err == nil {
			feed = &f
		}
	}
	if feed == nil {
		return nil, []AdaptWarning{{Index: -1, Reason: "payload is not a feed"}}
	}

	out := make([]event.Candidate, 0, len(feed.Items))
	var warnings []AdaptWarning
	for i, it := range feed.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			warnings = append(warnings, AdaptWarning{Index: i, Reason: "item has no title"})
			continue
		}
		body := it.Description
		if body == "" {
			body = it.Content
		}
		id := it.ID
		if id == "" {
			id = it.Link
		}
		out = append(out, event.Candidate{
			ID:          scopedID(a.Source, id),
			Source:      a.Source,
			Title:       title,
			Body:        strings.TrimSpace(body),
			URL:         it.Link,
			PublishedAt: parseTime(it.Published),
		})
	}
	return out, warnings
}

// GitHubAdvisoriesAdapter reads the global security advisories list.
type GitHubAdvisoriesAdapter struct {
	Source string
}

func (a *GitHubAdvisoriesAdapter) Adapt(p Payload) ([]event.Candidate, []AdaptWarning) {
	list, w := decodeObjectList(p, "")
	if w != nil {
		return nil, []AdaptWarning{*w}
	}
	return adaptObjects(list, func(obj map[string]any) (event.Candidate, string) {
		summary := str(obj["summary"])
		if summary == "" {
			return event.Candidate{}, "advisory has no summary"
		}
		ghsa := str(obj["ghsa_id"])
		ids := make([]string, 0, 2)
		for _, id := range []string{ghsa, str(obj["cve_id"])} {
			if id != "" {
				ids = append(ids, id)
			}
		}
		body := str(obj["description"])
		if len(ids) > 0 {
			body = strings.Join(ids, " ") + "\n" + body
		}
		return event.Candidate{
			ID:          scopedID(a.Source, ghsa),
			Source:      a.Source,
			Title:       summary,
			Body:        strings.TrimSpace(body),
			URL:         str(obj["html_url"]),
			PublishedAt: parseTime(pick(obj, "published_at", "updated_at")),
		}, ""
	})
}
