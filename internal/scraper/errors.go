package scraper

import (
	"fmt"

	"github.com/maltedev/catalog-scraper/internal/models"
)

// State is a step of a scrape run.
type State int

const (
	StateIdle State = iota
	StateScraping
	StateNormalizing
	StateValidating
	StateAssembling
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScraping:
		return "scraping"
	case StateNormalizing:
		return "normalizing"
	case StateValidating:
		return "validating"
	case StateAssembling:
		return "assembling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RunError is returned by a failed run. It carries what a caller needs to
// retry the scrape and the state the run failed in.
type RunError struct {
	URL       string
	Kind      models.Kind
	StoreID   string
	ProductID string
	State     State
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s scrape of %s (store %s, product %s) failed while %s: %v",
		e.Kind, e.URL, e.StoreID, e.ProductID, e.State, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
