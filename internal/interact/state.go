// internal/interact/state.go
// Package interact drives one full chat interaction: navigate, locate the
// input, submit the prompt with human-plausible motion and typing, wait for
// the streamed answer to stabilize, and capture it.
package interact

import "errors"

// State names a stage of the interaction lifecycle. Transitions only move
// forward; FAILED is terminal from any state.
type State string

const (
	StateInit             State = "INIT"
	StateBrowserReady     State = "BROWSER_READY"
	StateNavigated        State = "NAVIGATED"
	StateInputLocated     State = "INPUT_LOCATED"
	StateSubmitted        State = "SUBMITTED"
	StateResponseCaptured State = "RESPONSE_CAPTURED"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)

// Sentinel errors for result classification via errors.Is.
var (
	// ErrBlocked means the target served an anti-bot interstitial. Retrying
	// the same session only digs the reputation hole deeper.
	ErrBlocked = errors.New("access blocked by target")

	// ErrInputNotFound means no candidate selector matched a visible input.
	ErrInputNotFound = errors.New("chat input not found")

	// ErrEmptyResponse means extraction produced no text from the page.
	ErrEmptyResponse = errors.New("captured response is empty")
)
