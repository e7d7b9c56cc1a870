package scraper

import (
	"errors"
	"fmt"

	"realtor_scraper/models"
)

// Extraction stages, in the order Extract walks through them. A failure
// reports the stage it stopped in.
const (
	StageNavigate         = "navigate"
	StageAwaitResolution  = "awaiting_manual_resolution"
	StageScroll           = "scroll"
	StageReadFields       = "read_fields"
	StageParseAddress     = "parse_address"
	StageParseCoordinates = "parse_coordinates"
	StageSettle           = "settle"
)

var (
	ErrMissingElement = errors.New("element not found")
	ErrMalformedField = errors.New("malformed field")
)

// ExtractError explains why a detail link produced no record.
type ExtractError struct {
	Kind  models.FailureKind
	Stage string
	Link  string
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("[%s] %s at %s: %v", e.Kind, e.Link, e.Stage, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Failure converts the error into the record stored in the run ledger.
func (e *ExtractError) Failure() models.ExtractionFailure {
	return models.ExtractionFailure{
		Link:    e.Link,
		Kind:    e.Kind,
		Stage:   e.Stage,
		Message: e.Err.Error(),
	}
}

func newExtractError(kind models.FailureKind, stage, link string, err error) *ExtractError {
	return &ExtractError{Kind: kind, Stage: stage, Link: link, Err: err}
}

// failureFor maps any extraction error onto a ledger record.
func failureFor(link string, err error) models.ExtractionFailure {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Failure()
	}
	return models.ExtractionFailure{Link: link, Kind: models.FailureNavigation, Message: err.Error()}
}
