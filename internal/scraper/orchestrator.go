package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/codes"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/price"
	"github.com/maltedev/catalog-scraper/internal/validate"
)

// Config wires the collaborators of an Orchestrator. Nil collaborators fall
// back to the default implementations.
type Config struct {
	StoreKey  string
	Prices    PriceChecker
	Validator ResultValidator
	Codes     CodeNormalizer
}

// Orchestrator drives scrape runs for one site. It is safe for concurrent
// use; every run gets its own session and document tracker.
type Orchestrator struct {
	site      Site
	sessions  browser.Provider
	prices    PriceChecker
	validator ResultValidator
	codes     CodeNormalizer
	storeKey  string
	logger    *slog.Logger

	newTracker func() *parser.Tracker
}

func NewOrchestrator(site Site, sessions browser.Provider, cfg Config, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		site:       site,
		sessions:   sessions,
		prices:     cfg.Prices,
		validator:  cfg.Validator,
		codes:      cfg.Codes,
		storeKey:   cfg.StoreKey,
		logger:     logger.With("component", "orchestrator", "site", site.Name()),
		newTracker: parser.NewTracker,
	}

	if o.prices == nil {
		o.prices = price.NewChecker()
	}
	if o.validator == nil {
		o.validator = validate.New()
	}
	if o.codes == nil {
		o.codes = codes.NewNormalizer()
	}
	if o.storeKey == "" {
		o.storeKey = site.Name()
	}

	return o
}

func (o *Orchestrator) Site() Site {
	return o.site
}

// Run scrapes req.URL and returns the assembled record. On failure the error
// is a *RunError and no record is returned. Documents parsed during the run
// are released before Run returns, whatever the outcome.
func (o *Orchestrator) Run(ctx context.Context, req models.ScrapeRequest) (*models.ProductRecord, error) {
	start := time.Now()
	state := StateIdle
	logger := o.logger.With("url", req.URL, "kind", req.Kind, "product_id", req.ProductID)

	fail := func(err error) error {
		logger.Error("scrape failed", "state", state.String(), "error", err)
		return &RunError{
			URL:       req.URL,
			Kind:      req.Kind,
			StoreID:   req.StoreID,
			ProductID: req.ProductID,
			State:     state,
			Err:       err,
		}
	}

	v, ok := variants[req.Kind]
	if !ok {
		return nil, fail(fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind))
	}

	session, err := o.sessions.NewSession(ctx)
	if err != nil {
		return nil, fail(fmt.Errorf("failed to open session: %w", err))
	}
	defer session.Close()

	tracker := o.newTracker()
	defer func() {
		released := tracker.ReleaseAll()
		logger.Debug("released documents", "count", released)
	}()

	state = StateScraping
	session.ClearCookies()

	run := &Run{
		session: session,
		tracker: tracker,
		prices:  o.prices,
		baseURL: o.site.BaseURL(),
		logger:  logger,
	}

	payload, err := v.scrape(ctx, o.site, run, req.URL)
	if err != nil {
		return nil, fail(err)
	}
	if payload.Product() == nil {
		return nil, fail(fmt.Errorf("%w: site returned no product", ErrExtraction))
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}

	if v.normalize != nil {
		state = StateNormalizing
		if added := v.normalize(&payload); added {
			logger.Debug("added default asset")
		}
		if err := ctx.Err(); err != nil {
			return nil, fail(err)
		}
	}

	state = StateValidating
	result, err := v.parse(o, req, payload)
	if err != nil {
		return nil, fail(err)
	}
	if err := o.validator.Validate(result.product, true); err != nil {
		return nil, fail(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}

	state = StateAssembling
	record, err := Assemble(req, result.product, result.extractedURL, metrics(session.Stats(), time.Since(start)))
	if err != nil {
		return nil, fail(err)
	}

	state = StateDone
	logger.Info("scrape completed",
		"requests", record.Metrics.NumOfHTTPRequests,
		"network_time", record.Metrics.OverallNetworkTime,
		"hash", record.Hash.Text(16))

	return record, nil
}

// metrics converts session counters. Time not spent waiting on the network
// is accounted as processing time.
func metrics(stats browser.Stats, elapsed time.Duration) models.Metrics {
	cpu := elapsed - stats.NetworkTime
	if cpu < 0 {
		cpu = 0
	}

	return models.Metrics{
		NumOfHTTPRequests:  stats.Requests,
		OverallNetworkTime: stats.NetworkTime.Seconds(),
		NumberOfRetries:    stats.Retries,
		NumberOfTimeouts:   stats.Timeouts,
		CPUTime:            cpu.Seconds(),
	}
}
