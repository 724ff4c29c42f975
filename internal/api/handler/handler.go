// Package handler implements the newsfeed HTTP endpoints: external event
// submission, ranked retrieval and the admin surface.
package handler

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/admin"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/logger"
)

// maxBodyBytes caps a submission request body.
const maxBodyBytes = 4 << 20

// Ingester admits submitted candidates.
type Ingester interface {
	Ingest(ctx context.Context, candidates []event.Candidate) ingestion.Result
}

// Retriever serves ranked and unranked reads.
type Retriever interface {
	Retrieve(ctx context.Context, query string, req ranking.Request) (*retrieval.Response, error)
	All(ctx context.Context) ([]event.Event, error)
	Invalidate(ctx context.Context) error
}

// Poller triggers on-demand polls.
type Poller interface {
	PollNow(ctx context.Context, name string) (scheduler.PollResult, error)
	PollAll(ctx context.Context) []scheduler.PollResult
}

type Handler struct {
	ingester  Ingester
	retriever Retriever
	poller    Poller
	admin     *admin.Service
	defaults  config.RankingConfig
	logger    *slog.Logger
}

func New(ing Ingester, ret Retriever, poller Poller, adm *admin.Service, defaults config.RankingConfig) *Handler {
	return &Handler{
		ingester:  ing,
		retriever: ret,
		poller:    poller,
		admin:     adm,
		defaults:  defaults,
		logger:    slog.Default().With("component", "api"),
	}
}

// ---------- Events ----------

// SubmitEvents accepts one event object or an array of them and answers
// 202 with per-batch counts. Items that fail to decode or validate are
// rejected one by one; only an unreadable body fails the request.
func (h *Handler) SubmitEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, apperrors.Invalid("reading body: %v", err))
		return
	}
	sub, err := decodeCandidates(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var res ingestion.Result
	if len(sub.candidates) > 0 {
		res = h.ingester.Ingest(r.Context(), sub.candidates)
	}
	res = sub.merge(res)
	logger.FromContext(r.Context()).Info("events submitted",
		"component", "api",
		"received", sub.size,
		"accepted", res.Accepted,
		"duplicates", res.Duplicates,
		"rejected", res.Rejected,
	)
	if res.Errors == nil {
		res.Errors = []ingestion.ItemError{}
	}
	h.writeJSON(w, http.StatusAccepted, res)
}

// submission is a decoded request body. positions[i] is the index in the
// request of candidates[i]; errs holds the items that did not decode.
type submission struct {
	size       int
	candidates []event.Candidate
	positions  []int
	errs       []ingestion.ItemError
}

func decodeCandidates(body []byte) (*submission, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, apperrors.Invalid("request body is empty")
	}
	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, apperrors.Invalid("malformed JSON: %v", err)
		}
	case '{':
		var one json.RawMessage
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, apperrors.Invalid("malformed JSON: %v", err)
		}
		items = []json.RawMessage{one}
	default:
		return nil, apperrors.Invalid("body must be a JSON object or array")
	}

	sub := &submission{size: len(items)}
	for i, raw := range items {
		var c event.Candidate
		if err := json.Unmarshal(raw, &c); err != nil {
			sub.errs = append(sub.errs, ingestion.ItemError{Index: i, ID: c.ID, Fields: decodeFields(err)})
			continue
		}
		sub.candidates = append(sub.candidates, c)
		sub.positions = append(sub.positions, i)
	}
	return sub, nil
}

// merge maps res back onto request positions and adds the decode
// rejections.
func (s *submission) merge(res ingestion.Result) ingestion.Result {
	for i := range res.Errors {
		res.Errors[i].Index = s.positions[res.Errors[i].Index]
	}
	res.Rejected += len(s.errs)
	res.Errors = append(res.Errors, s.errs...)
	slices.SortFunc(res.Errors, func(a, b ingestion.ItemError) int { return cmp.Compare(a.Index, b.Index) })
	return res
}

func decodeFields(err error) map[string]string {
	var typeErr *json.UnmarshalTypeError
	var timeErr *time.ParseError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return map[string]string{typeErr.Field: "must not be a JSON " + typeErr.Value}
	case errors.As(err, &timeErr):
		return map[string]string{"published_at": "must be an RFC 3339 timestamp"}
	case errors.As(err, &typeErr):
		return map[string]string{"event": "must be a JSON object"}
	default:
		return map[string]string{"event": err.Error()}
	}
}

// RankedEvents serves GET /api/v1/events/ranked. Omitted parameters fall
// back to the configured defaults.
func (h *Handler) RankedEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ranking.DefaultRequest(h.defaults)

	var err error
	if v := q.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			h.writeError(w, r, apperrors.Invalid("limit must be an integer"))
			return
		}
	}
	for name, dst := range map[string]*float64{
		"days_back":   &req.DaysBack,
		"alpha":       &req.Alpha,
		"decay_param": &req.DecayParam,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		if *dst, err = strconv.ParseFloat(v, 64); err != nil {
			h.writeError(w, r, apperrors.Invalid("%s must be a number", name))
			return
		}
	}

	resp, err := h.retriever.Retrieve(r.Context(), q.Get("q"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListEvents serves every processed event without ranking.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.retriever.All(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

// ---------- Admin ----------

func (h *Handler) AdminStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.admin.Status(r.Context()))
}

func (h *Handler) AdminSources(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"sources": h.admin.Sources()})
}

func (h *Handler) AdminScheduler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.admin.Scheduler())
}

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.admin.Stats(r.Context()))
}

// PollAll polls every enabled source and waits for the results.
func (h *Handler) PollAll(w http.ResponseWriter, r *http.Request) {
	results := h.poller.PollAll(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// PollSource polls the source named in the path.
func (h *Handler) PollSource(w http.ResponseWriter, r *http.Request) {
	res, err := h.poller.PollNow(r.Context(), r.PathValue("source"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// InvalidateCache drops every cached ranked response.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.retriever.Invalidate(r.Context()); err != nil {
		h.writeError(w, r, fmt.Errorf("invalidating cache: %w", err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// ---------- Helpers ----------

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response failed", "error", err)
	}
}

// writeError maps err to its HTTP status. Server-side failures are logged
// and answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"component", "api",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			msg = apperrors.ErrInternal.Error()
		}
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
