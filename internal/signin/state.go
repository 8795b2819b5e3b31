package signin

import "fmt"

// State is a step of the sign-in flow
type State int

const (
	Idle State = iota
	Navigated
	CredentialsSubmitted
	AwaitingCode
	CodeSubmitted
	Authenticated
	Success
	Failed
)

var stateNames = [...]string{
	Idle:                 "idle",
	Navigated:            "navigated",
	CredentialsSubmitted: "credentials_submitted",
	AwaitingCode:         "awaiting_code",
	CodeSubmitted:        "code_submitted",
	Authenticated:        "authenticated",
	Success:              "success",
	Failed:               "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// StepError reports the state the flow failed in, the failure class and its cause
type StepError struct {
	From   State
	Reason error
	Err    error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.From, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %v", e.From, e.Reason, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{e.Reason, e.Err}
}
