package models

import (
	"errors"
	"time"
)

// RunStatus is the terminal outcome of a sync run
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusFailure RunStatus = "failure"
)

var (
	ErrNavigation         = errors.New("navigation failed")
	ErrCredentialRejected = errors.New("2FA prompt not shown")
	ErrCodeTimeout        = errors.New("verification code not received")
	ErrTokenNotFound      = errors.New("session token not found")
	ErrForwarding         = errors.New("token forwarding failed")
)

// Reason names the failure class of a run, empty on success
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNavigation         Reason = "navigation"
	ReasonCredentialRejected Reason = "credential_rejected"
	ReasonCodeTimeout        Reason = "code_timeout"
	ReasonTokenNotFound      Reason = "token_not_found"
	ReasonForwarding         Reason = "forwarding"
	ReasonTimeout            Reason = "timeout"
	ReasonInternal           Reason = "internal"
)

// ReasonOf maps an error returned by the pipeline steps to its failure class
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrForwarding):
		return ReasonForwarding
	case errors.Is(err, ErrCredentialRejected):
		return ReasonCredentialRejected
	case errors.Is(err, ErrCodeTimeout):
		return ReasonCodeTimeout
	case errors.Is(err, ErrTokenNotFound):
		return ReasonTokenNotFound
	case errors.Is(err, ErrNavigation):
		return ReasonNavigation
	case errors.Is(err, ErrRunTimeout):
		return ReasonTimeout
	default:
		return ReasonInternal
	}
}

// ErrRunTimeout is returned when the overall run budget is exhausted
var ErrRunTimeout = errors.New("run timeout exceeded")

// Result represents the outcome of one sync run
type Result struct {
	RunID      string    `json:"run_id"`
	Status     RunStatus `json:"status"`
	Reason     Reason    `json:"reason,omitempty"`
	Detail     string    `json:"detail"`
	SignedIn   bool      `json:"signed_in"`
	Forwarded  bool      `json:"forwarded"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the run signed in and forwarded the token
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Duration returns how long the run took
func (r Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
