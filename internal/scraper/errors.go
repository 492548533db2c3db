package scraper

import (
	"errors"
	"fmt"

	"github.com/pavelanni/studibot/internal/model"
)

// Reason classifies why a fetch failed.
type Reason string

const (
	ReasonCredentials Reason = "credentials"
	ReasonBusy        Reason = "busy"
	ReasonLaunch      Reason = "launch"
	ReasonLogin       Reason = "login"
	ReasonNavigate    Reason = "navigate"
	ReasonExtract     Reason = "extract"
)

// ErrNoCredentials is wrapped by a FetchError when username or password is empty.
var ErrNoCredentials = errors.New("username and password required")

// FetchError is the failure half of a fetch result.
type FetchError struct {
	Kind   model.DataKind
	Reason Reason
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fail(kind model.DataKind, reason Reason, err error) error {
	return &FetchError{Kind: kind, Reason: reason, Err: err}
}

// ReasonOf returns the failure reason of err, or "" if err is not a FetchError.
func ReasonOf(err error) Reason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}
