package source

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Feed is the normalised form of an RSS 2.0 channel or an Atom feed.
type Feed struct {
	Title string     `json:"title"`
	Items []FeedItem `json:"items"`
}

// FeedItem carries whichever of the RSS or Atom fields were present.
type FeedItem struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	Link        string `json:"link,omitempty"`
	Published   string `json:"published,omitempty"`
}

// RSSFetcher fetches and parses RSS or Atom feeds.
type RSSFetcher struct {
	client *http.Client
}

func NewRSSFetcher(client *http.Client) *RSSFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RSSFetcher{client: client}
}

func (f *RSSFetcher) Fetch(ctx context.Context, endpoint string, opts FetchOptions) (Payload, error) {
	body, err := get(ctx, f.client, endpoint, "application/rss+xml, application/atom+xml, application/xml, text/xml", opts)
	if err != nil {
		return Payload{}, err
	}
	feed, err := ParseFeed(body)
	if err != nil {
		return Payload{}, &FetchError{Kind: KindParse, Endpoint: endpoint, Err: err}
	}
	return Payload{Feed: feed}, nil
}

type rssDocument struct {
	Channel struct {
		Title string `xml:"title"`
		Items []struct {
			Title       string `xml:"title"`
			Description string `xml:"description"`
			Encoded     string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
			Link        string `xml:"link"`
			PubDate     string `xml:"pubDate"`
			GUID        string `xml:"guid"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomDocument struct {
	Title   string `xml:"title"`
	Entries []struct {
		ID      string `xml:"id"`
		Title   string `xml:"title"`
		Summary string `xml:"summary"`
		Content string `xml:"content"`
		Links   []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Published string `xml:"published"`
		Updated   string `xml:"updated"`
	} `xml:"entry"`
}

// ParseFeed decodes an RSS 2.0 or Atom document.
func ParseFeed(data []byte) (*Feed, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, err
	}

	switch root {
	case "rss":
		var doc rssDocument
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding rss: %w", err)
		}
		feed := &Feed{Title: strings.TrimSpace(doc.Channel.Title), Items: make([]FeedItem, 0, len(doc.Channel.Items))}
		for _, it := range doc.Channel.Items {
			feed.Items = append(feed.Items, FeedItem{
				ID:          strings.TrimSpace(it.GUID),
				Title:       strings.TrimSpace(it.Title),
				Description: strings.TrimSpace(it.Description),
				Content:     strings.TrimSpace(it.Encoded),
				Link:        strings.TrimSpace(it.Link),
				Published:   strings.TrimSpace(it.PubDate),
			})
		}
		return feed, nil

	case "feed":
		var doc atomDocument
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding atom: %w", err)
		}
		feed := &Feed{Title: strings.TrimSpace(doc.Title), Items: make([]FeedItem, 0, len(doc.Entries))}
		for _, e := range doc.Entries {
			item := FeedItem{
				ID:          strings.TrimSpace(e.ID),
				Title:       strings.TrimSpace(e.Title),
				Description: strings.TrimSpace(e.Summary),
				Content:     strings.TrimSpace(e.Content),
				Published:   strings.TrimSpace(e.Published),
			}
			if item.Published == "" {
				item.Published = strings.TrimSpace(e.Updated)
			}
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					item.Link = l.Href
					break
				}
			}
			feed.Items = append(feed.Items, item)
		}
		return feed, nil
	}
	return nil, fmt.Errorf("unknown feed format: <%s>", root)
}

func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", errors.New("empty document")
		}
		if err != nil {
			return "", fmt.Errorf("reading xml: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}
