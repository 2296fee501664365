// internal/browser/driver.go
// Package browser owns the Chrome process behind a session and exposes the
// low-level primitives the orchestrator replays humanoid plans against.
package browser

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xkilldash9x/specter-cli/internal/humanoid"
)

// Driver abstracts the browser so the orchestrator can be exercised against
// a fake in tests. All blocking calls honor the passed context; Close tears
// down the tab and the browser process.
type Driver interface {
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs the script in the page and returns the JSON-encoded
	// result. Promises are awaited; page exceptions surface as errors.
	Evaluate(ctx context.Context, script string) (json.RawMessage, error)

	// MoveMouse dispatches a single mouse-move event at viewport coordinates.
	MoveMouse(ctx context.Context, x, y float64) error

	// Click presses and releases the left button at viewport coordinates.
	Click(ctx context.Context, x, y float64) error

	// TypeRune dispatches the key events for one character into the focused
	// element.
	TypeRune(ctx context.Context, r rune) error

	// PressKey dispatches a named key (Enter, Backspace) into the focused
	// element.
	PressKey(ctx context.Context, key string) error

	// HTML returns the full serialized document.
	HTML(ctx context.Context) (string, error)

	// Screenshot captures the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Sleep pauses for d, aborting promptly on cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	// Viewport reports the emulated page size.
	Viewport() humanoid.Vector2D

	// Close releases the tab and the underlying browser process.
	Close(ctx context.Context) error
}
