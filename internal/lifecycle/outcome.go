package lifecycle

import (
	"errors"
	"time"

	"github.com/cephalon-sofis/wfbuddy/internal/transport"
)

var (
	ErrRecipeAlreadyStarted     = errors.New("recipe already started")
	ErrRecipeNotStarted         = errors.New("recipe not started")
	ErrRecipeNotFinished        = errors.New("recipe not finished")
	ErrExtractorAlreadyDeployed = errors.New("extractor already deployed")
	ErrExtractorNotDeployed     = errors.New("extractor not deployed")
	ErrExtractorNotFinished     = errors.New("extractor not finished")
)

// Outcome is the outcome of a lifecycle operation.
type Outcome uint8

const (
	// Done means the request was sent to the server.
	Done Outcome = iota
	// NotFinished means the extractor or recipe is still running.
	NotFinished
	// AlreadyActive means the extractor is already deployed or the recipe already started.
	AlreadyActive
	// NotFound means the extractor is not deployed or the recipe not started.
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Done:
		return "done"
	case NotFinished:
		return "not finished"
	case AlreadyActive:
		return "already active"
	case NotFound:
		return "not found"
	}
	return "?"
}

type kind uint8

const (
	kindExtractor kind = iota + 1
	kindRecipe
)

// Result is the result of a lifecycle operation.
type Result struct {
	Outcome Outcome
	// Response from the server. Only set when the outcome is Done.
	Response transport.Result
	// FinishesAt is when a running extractor or recipe is finished. Zero when not known.
	FinishesAt time.Time

	kind kind
}

// Err returns the error for an outcome other than Done or nil.
func (r Result) Err() error {
	switch r.kind {
	case kindExtractor:
		switch r.Outcome {
		case NotFinished:
			return ErrExtractorNotFinished
		case AlreadyActive:
			return ErrExtractorAlreadyDeployed
		case NotFound:
			return ErrExtractorNotDeployed
		}
	case kindRecipe:
		switch r.Outcome {
		case NotFinished:
			return ErrRecipeNotFinished
		case AlreadyActive:
			return ErrRecipeAlreadyStarted
		case NotFound:
			return ErrRecipeNotStarted
		}
	}
	return nil
}
