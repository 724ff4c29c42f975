// Command loadtest drives a running newsfeed with a mix of ranked
// retrievals and event submissions and reports latency per operation.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
)

const (
	opRanked = "ranked"
	opSubmit = "submit"
)

var queries = []string{
	"",
	"database outage",
	"kubernetes upgrade",
	"critical vulnerability",
	"CVE remote code execution",
	"cloud region degraded",
	"dns resolution failures",
	"api latency",
	"tls certificate expiry",
	"security advisory",
}

var titles = []string{
	"Elevated error rates on the API",
	"Degraded performance in us-east-1",
	"Scheduled maintenance for the control plane",
	"Critical vulnerability disclosed in OpenSSL",
	"Partial outage affecting webhooks",
	"DNS resolution delays for some customers",
}

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	writeRatio  float64
	limit       int
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:          "loadtest",
		Short:        "Load test a running newsfeed API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "http://localhost:8000", "base URL of the newsfeed API")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	cmd.Flags().DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().Float64Var(&opts.writeRatio, "write-ratio", 0.1, "share of requests that submit events")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "limit passed to ranked retrievals")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	fmt.Fprintf(out, "=== Newsfeed Load Test ===\nTarget: %s  concurrency: %d  duration: %s  write ratio: %.2f\n\n",
		opts.baseURL, opts.concurrency, opts.duration, opts.writeRatio)

	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	st := newStats()
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := range opts.concurrency {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(start.UnixNano())))
			for ctx.Err() == nil {
				if rng.Float64() < opts.writeRatio {
					submit(ctx, client, opts, rng, st)
				} else {
					ranked(ctx, client, opts, rng, st)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	if st.total() == 0 {
		return fmt.Errorf("no requests completed; is the service running at %s?", opts.baseURL)
	}
	st.report(out, elapsed)
	return nil
}

func ranked(ctx context.Context, client *http.Client, opts options, rng *rand.Rand, st *stats) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.limit))
	if query := queries[rng.IntN(len(queries))]; query != "" {
		q.Set("q", query)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.baseURL+"/api/v1/events/ranked?"+q.Encode(), nil)
	if err != nil {
		st.record(opRanked, 0, 0, false, err)
		return
	}

	began := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			st.record(opRanked, 0, 0, false, err)
		}
		return
	}
	defer resp.Body.Close()
	var body struct {
		Cached bool `json:"cached"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	st.record(opRanked, time.Since(began), resp.StatusCode, body.Cached, nil)
}

func submit(ctx context.Context, client *http.Client, opts options, rng *rand.Rand, st *stats) {
	published := time.Now().Add(-time.Duration(rng.IntN(72)) * time.Hour)
	payload, err := json.Marshal(event.Candidate{
		ID:          "loadtest-" + uuid.NewString(),
		Source:      "loadtest",
		Title:       titles[rng.IntN(len(titles))],
		Body:        "Synthetic event " + uuid.NewString(),
		PublishedAt: &published,
	})
	if err != nil {
		st.record(opSubmit, 0, 0, false, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.baseURL+"/api/v1/events", bytes.NewReader(payload))
	if err != nil {
		st.record(opSubmit, 0, 0, false, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	began := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			st.record(opSubmit, 0, 0, false, err)
		}
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	st.record(opSubmit, time.Since(began), resp.StatusCode, false, nil)
}
