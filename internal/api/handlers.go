package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/price"
	"github.com/maltedev/catalog-scraper/internal/scraper"
	"github.com/maltedev/catalog-scraper/internal/validate"
)

type JobService interface {
	StartCrawl(ctx context.Context) (*models.CrawlRun, error)
	GetCrawl(ctx context.Context, id string) (*models.CrawlRun, error)
	CrawlCategories(ctx context.Context, id string) ([]*models.Category, error)
	Scrape(ctx context.Context, req models.ScrapeRequest) (*models.ProductRecord, bool, error)
	Stats() jobs.Stats
}

type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	jobs   JobService
	outbox OutboxStats
	logger *slog.Logger
}

func NewHandlers(jobs JobService, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:   jobs,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

// ScrapeError is the body of a failed scrape.
type ScrapeError struct {
	Error string      `json:"error"`
	URL   string      `json:"url"`
	Kind  models.Kind `json:"kind"`
	State string      `json:"state,omitempty"`
}

// Scrape runs a scrape synchronously and returns the product record.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	var req models.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	kind, err := models.ParseKind(string(req.Kind))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Kind = kind

	record, changed, err := h.jobs.Scrape(r.Context(), req)
	if err != nil {
		status := scrapeStatus(err)

		body := ScrapeError{Error: err.Error(), URL: req.URL, Kind: req.Kind}
		var runErr *scraper.RunError
		if errors.As(err, &runErr) {
			body.Error = runErr.Err.Error()
			body.State = runErr.State.String()
		}

		if status >= http.StatusInternalServerError {
			h.logger.Error("scrape failed", "url", req.URL, "kind", req.Kind, "error", err)
		} else {
			h.logger.Warn("scrape rejected", "url", req.URL, "kind", req.Kind, "error", err)
		}
		h.respondJSON(w, status, body)
		return
	}

	w.Header().Set("X-Record-Changed", strconv.FormatBool(changed))
	h.respondJSON(w, http.StatusOK, record)
}

// scrapeStatus maps a failed run to a response code: unusable pages are the
// retailer's fault (422), failed fetches an upstream failure (502).
func scrapeStatus(err error) int {
	switch {
	case errors.Is(err, scraper.ErrUnknownKind), errors.Is(err, scraper.ErrUnsupportedKind):
		return http.StatusBadRequest
	case errors.Is(err, browser.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, browser.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, scraper.ErrExtraction),
		errors.Is(err, validate.ErrSchemaViolation),
		errors.Is(err, price.ErrCurrencyMismatch),
		errors.Is(err, price.ErrInvalidPrice),
		errors.Is(err, price.ErrExcessPrecision):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) StartCrawl(w http.ResponseWriter, r *http.Request) {
	run, err := h.jobs.StartCrawl(r.Context())
	if errors.Is(err, jobs.ErrCrawlRunning) {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to start crawl", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start crawl")
		return
	}

	h.respondJSON(w, http.StatusAccepted, run)
}

func (h *Handlers) GetCrawl(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.jobs.GetCrawl(r.Context(), runID)
	if err != nil {
		h.crawlError(w, runID, err)
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) GetCrawlCategories(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	categories, err := h.jobs.CrawlCategories(r.Context(), runID)
	if err != nil {
		h.crawlError(w, runID, err)
		return
	}
	if categories == nil {
		categories = []*models.Category{}
	}

	h.respondJSON(w, http.StatusOK, categories)
}

func (h *Handlers) crawlError(w http.ResponseWriter, runID string, err error) {
	if errors.Is(err, database.ErrRunNotFound) {
		h.respondError(w, http.StatusNotFound, "crawl run not found")
		return
	}
	h.logger.Error("failed to load crawl run", "run_id", runID, "error", err)
	h.respondError(w, http.StatusInternalServerError, "failed to load crawl run")
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.Stats())
}

// Health reports the outbox backlog; a large dead letter count marks the
// service unavailable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, perr := h.outbox.GetPendingCount(r.Context())
		dead, derr := h.outbox.GetDeadLetterCount(r.Context())
		if err := errors.Join(perr, derr); err != nil {
			h.logger.Error("failed to read outbox counts", "error", err)
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "error",
				"message": "outbox unavailable",
			})
			return
		}

		health["outbox"] = map[string]any{
			"pending":     pending,
			"dead_letter": dead,
		}
		if pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if dead > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
