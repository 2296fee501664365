// internal/artifacts/artifacts.go
// Package artifacts writes session outputs to disk: the captured response in
// its three forms, plus failure and retry diagnostics. Every session gets
// its own directory under the configured output root.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/config"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Metadata describes the interaction that produced a response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Model     string    `json:"model,omitempty"`
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	TimedOut  bool      `json:"timed_out,omitempty"`
}

// Link is a hyperlink found in the response region.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Image is an image reference found in the response region.
type Image struct {
	Alt string `json:"alt"`
	URL string `json:"url"`
}

// Response is the JSON artifact shape.
type Response struct {
	Content  string   `json:"content"`
	Raw      string   `json:"raw,omitempty"`
	Links    []Link   `json:"links,omitempty"`
	Images   []Image  `json:"images,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Writer persists the artifacts of one session.
type Writer struct {
	cfg    config.CaptureConfig
	logger *zap.Logger
	dir    string
}

// NewWriter creates the session directory <output_dir>/<sessionID> up front
// so later writes cannot fail on a missing parent.
func NewWriter(cfg config.CaptureConfig, sessionID string, logger *zap.Logger) (*Writer, error) {
	root, err := homedir.Expand(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("expand output dir %q: %w", cfg.OutputDir, err)
	}

	dir := filepath.Join(root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir %q: %w", dir, err)
	}

	return &Writer{cfg: cfg, logger: logger.Named("artifacts"), dir: dir}, nil
}

// Dir returns the session artifact directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteResponse persists the captured response: always response.json, plus
// response.txt and response.html when enabled.
func (w *Writer) WriteResponse(resp Response, html string) error {
	data, err := jsonAPI.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal response artifact: %w", err)
	}
	if err := w.write("response.json", data); err != nil {
		return err
	}

	if w.cfg.SaveText {
		if err := w.write("response.txt", []byte(resp.Content)); err != nil {
			return err
		}
	}
	if w.cfg.SaveHTML && html != "" {
		if err := w.write("response.html", []byte(html)); err != nil {
			return err
		}
	}
	return nil
}

// WriteFailure saves the page state at the moment a session failed. Both
// writes are best-effort; a nil slice skips the screenshot.
func (w *Writer) WriteFailure(html string, screenshot []byte) {
	if html != "" {
		if err := w.write("failure.html", []byte(html)); err != nil {
			w.logger.Warn("Failed to write failure page", zap.Error(err))
		}
	}
	if w.cfg.ScreenshotOnFailure && len(screenshot) > 0 {
		if err := w.write("failure.png", screenshot); err != nil {
			w.logger.Warn("Failed to write failure screenshot", zap.Error(err))
		}
	}
}

// WriteRetryScreenshot saves a diagnostic capture taken before a retry of
// the named operation. Best-effort.
func (w *Writer) WriteRetryScreenshot(operation string, attempt int, screenshot []byte) {
	if !w.cfg.ScreenshotOnRetry || len(screenshot) == 0 {
		return
	}
	name := fmt.Sprintf("retry-%s-%d.png", operation, attempt)
	if err := w.write(name, screenshot); err != nil {
		w.logger.Warn("Failed to write retry screenshot",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
}

func (w *Writer) write(name string, data []byte) error {
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %q: %w", path, err)
	}
	w.logger.Debug("Artifact written", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}
