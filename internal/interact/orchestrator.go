// internal/interact/orchestrator.go
package interact

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/artifacts"
	"github.com/xkilldash9x/specter-cli/internal/browser"
	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/humanoid"
	"github.com/xkilldash9x/specter-cli/internal/quiesce"
	"github.com/xkilldash9x/specter-cli/internal/retry"
)

// blockPhrases are scanned case-sensitively in the page after navigation.
// A hit means the target decided we are a bot; retrying the same session
// only worsens its reputation.
var blockPhrases = []string{
	"captcha",
	"verify you are not a bot",
	"unusual traffic",
	"Access denied",
	"Just a moment",
}

const diagnosticsTimeout = 10 * time.Second

// Result is the terminal outcome of one interaction session.
type Result struct {
	SessionID   string
	State       State
	Response    *CapturedResponse
	ArtifactDir string
}

// Orchestrator walks one session through the interaction state machine. It
// owns the driver for the session's lifetime and guarantees release on every
// exit path.
type Orchestrator struct {
	cfg      config.InteractionConfig
	driver   browser.Driver
	human    *humanoid.Humanoid
	detector *quiesce.Detector
	writer   *artifacts.Writer
	logger   *zap.Logger

	sessionID   string
	model       string
	state       State
	releaseOnce sync.Once
}

// New assembles an orchestrator around an already-launched driver.
func New(cfg config.InteractionConfig, driver browser.Driver, human *humanoid.Humanoid, detector *quiesce.Detector, writer *artifacts.Writer, sessionID string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		driver:    driver,
		human:     human,
		detector:  detector,
		writer:    writer,
		logger:    logger.Named("interact").With(zap.String("session_id", sessionID)),
		sessionID: sessionID,
		model:     cfg.Model,
		state:     StateInit,
	}
}

// Run executes the full interaction for one query. The returned Result is
// non-nil even on failure; classify the error with errors.Is against
// ErrBlocked and retry.ErrExhausted.
func (o *Orchestrator) Run(ctx context.Context, query string) (result *Result, err error) {
	defer o.release()
	defer func() {
		if err != nil {
			o.transition(StateFailed)
			o.persistFailure(ctx)
			result = o.result(nil)
		}
	}()

	o.transition(StateBrowserReady)

	if err = o.navigate(ctx); err != nil {
		return nil, err
	}
	o.transition(StateNavigated)

	loc, err := o.locateInput(ctx)
	if err != nil {
		return nil, err
	}
	o.transition(StateInputLocated)

	if err = o.submit(ctx, query, loc); err != nil {
		return nil, err
	}
	o.transition(StateSubmitted)

	captured, err := o.capture(ctx)
	if err != nil {
		return nil, err
	}
	o.transition(StateResponseCaptured)

	if err = o.persistResponse(query, captured); err != nil {
		return nil, err
	}
	o.transition(StateDone)

	return o.result(captured), nil
}

func (o *Orchestrator) result(resp *CapturedResponse) *Result {
	r := &Result{SessionID: o.sessionID, State: o.state, Response: resp}
	if o.writer != nil {
		r.ArtifactDir = o.writer.Dir()
	}
	return r
}

func (o *Orchestrator) transition(next State) {
	o.logger.Debug("State transition", zap.String("from", string(o.state)), zap.String("to", string(next)))
	o.state = next
}

// release closes the driver exactly once, however Run exits.
func (o *Orchestrator) release() {
	o.releaseOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), diagnosticsTimeout)
		defer cancel()
		if err := o.driver.Close(ctx); err != nil {
			o.logger.Warn("Browser release failed", zap.Error(err))
		}
	})
}

func (o *Orchestrator) policy(maxRetries int, shouldRetry func(error, int) bool, onRetry func(error, int, time.Duration)) retry.Policy {
	return retry.Policy{
		MaxRetries:    maxRetries,
		InitialDelay:  o.cfg.RetryInitialDelay,
		BackoffFactor: o.cfg.RetryBackoffFactor,
		ShouldRetry:   shouldRetry,
		OnRetry:       onRetry,
	}
}

// retryObserver logs the failure and captures a diagnostic screenshot before
// the backoff sleep.
func (o *Orchestrator) retryObserver(operation string) func(error, int, time.Duration) {
	return func(err error, attempt int, delay time.Duration) {
		o.logger.Warn("Operation failed; will retry",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if o.writer != nil {
			shotCtx, cancel := context.WithTimeout(context.Background(), diagnosticsTimeout)
			defer cancel()
			if shot, shotErr := o.driver.Screenshot(shotCtx); shotErr == nil {
				o.writer.WriteRetryScreenshot(operation, attempt, shot)
			}
		}
	}
}

// navigate loads the target and scans for block interstitials. Only
// timeout and connection-class failures are retried; a block or any other
// failure is fatal and surfaces unwrapped.
func (o *Orchestrator) navigate(ctx context.Context) error {
	policy := o.policy(o.cfg.NavRetries,
		func(err error, _ int) bool { return retryableNavError(err) },
		o.retryObserver("navigate"))

	return retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		navCtx, cancel := context.WithTimeout(ctx, o.cfg.NavigationTimeout)
		defer cancel()
		if err := o.driver.Navigate(navCtx, o.cfg.URL); err != nil {
			return err
		}
		return o.checkBlocked(ctx)
	})
}

// retryableNavError reports whether a navigation failure is transient.
// Timeouts and connection-level failures earn another attempt; a blocked
// page, a canceled context, or anything else does not.
func retryableNavError(err error) bool {
	if errors.Is(err, ErrBlocked) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Chrome reports network failures as net:: error codes in the message.
	return strings.Contains(err.Error(), "net::ERR_")
}

func (o *Orchestrator) checkBlocked(ctx context.Context) error {
	html, err := o.driver.HTML(ctx)
	if err != nil {
		return fmt.Errorf("read page for block scan: %w", err)
	}
	for _, phrase := range blockPhrases {
		if strings.Contains(html, phrase) {
			return fmt.Errorf("%w: page contains %q", ErrBlocked, phrase)
		}
	}
	return nil
}

// locateInput finds the chat input's viewport center. Retries may reload
// the page first, which recovers from half-rendered SPA states.
func (o *Orchestrator) locateInput(ctx context.Context) (*inputLocation, error) {
	selectors := o.cfg.InputSelectors
	if o.cfg.SelectorOverride != "" {
		selectors = []string{o.cfg.SelectorOverride}
	}

	observer := o.retryObserver("locate-input")
	onRetry := func(err error, attempt int, delay time.Duration) {
		observer(err, attempt, delay)
		if o.cfg.ReloadOnInputRetry {
			navCtx, cancel := context.WithTimeout(ctx, o.cfg.NavigationTimeout)
			defer cancel()
			if navErr := o.driver.Navigate(navCtx, o.cfg.URL); navErr != nil {
				o.logger.Warn("Reload before input retry failed", zap.Error(navErr))
			}
		}
	}

	return retry.DoValue(ctx, o.policy(o.cfg.InputRetries, nil, onRetry),
		func(ctx context.Context, attempt int) (*inputLocation, error) {
			raw, err := o.driver.Evaluate(ctx, locateScript(selectors))
			if err != nil {
				return nil, fmt.Errorf("input locator script: %w", err)
			}
			if len(raw) == 0 || string(raw) == "null" {
				return nil, fmt.Errorf("%w: none of %d candidates matched", ErrInputNotFound, len(selectors))
			}
			var loc inputLocation
			if err := jsoniter.Unmarshal(raw, &loc); err != nil {
				return nil, fmt.Errorf("decode input location: %w", err)
			}
			o.logger.Debug("Input located", zap.String("selector", loc.Selector))
			return &loc, nil
		})
}

// submit plays the human-plausible approach: wander, curve to the input,
// click, type the query with cadence, then send.
func (o *Orchestrator) submit(ctx context.Context, query string, loc *inputLocation) error {
	viewport := o.driver.Viewport()
	pos := o.human.EntryPoint(viewport)

	for _, leg := range o.human.IdleWander(pos, viewport) {
		if err := o.replayCurve(ctx, leg); err != nil {
			return fmt.Errorf("idle wander: %w", err)
		}
		pos = leg.Points[len(leg.Points)-1]
	}

	target := humanoid.Vector2D{X: loc.X, Y: loc.Y}
	if err := o.replayCurve(ctx, o.human.GenerateCurve(pos, target)); err != nil {
		return fmt.Errorf("approach input: %w", err)
	}
	if err := o.driver.Click(ctx, loc.X, loc.Y); err != nil {
		return fmt.Errorf("click input: %w", err)
	}

	if err := o.replayTyping(ctx, o.human.PlanTyping(query)); err != nil {
		return fmt.Errorf("type query: %w", err)
	}

	return o.send(ctx, target)
}

func (o *Orchestrator) replayCurve(ctx context.Context, curve humanoid.Curve) error {
	for i, pt := range curve.Points {
		if err := o.driver.MoveMouse(ctx, pt.X, pt.Y); err != nil {
			return err
		}
		if i < len(curve.StepDelays) {
			if err := o.driver.Sleep(ctx, curve.StepDelays[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// replayTyping executes a typing plan. Typos are played in full: wrong key,
// recognition pause, backspace, correction pause, intended key.
func (o *Orchestrator) replayTyping(ctx context.Context, plan humanoid.Plan) error {
	for _, stroke := range plan.Strokes {
		if err := o.driver.Sleep(ctx, stroke.Delay); err != nil {
			return err
		}
		if typo := stroke.Typo; typo != nil {
			if err := o.driver.TypeRune(ctx, typo.Rune); err != nil {
				return err
			}
			if err := o.driver.Sleep(ctx, typo.RecognitionDelay); err != nil {
				return err
			}
			if err := o.driver.PressKey(ctx, kb.Backspace); err != nil {
				return err
			}
			if err := o.driver.Sleep(ctx, typo.CorrectionDelay); err != nil {
				return err
			}
		}
		if err := o.driver.TypeRune(ctx, stroke.Rune); err != nil {
			return err
		}
	}
	return nil
}

// send submits the typed query: mouse over to a visible send button when one
// matches, Enter otherwise.
func (o *Orchestrator) send(ctx context.Context, inputCenter humanoid.Vector2D) error {
	if len(o.cfg.SendSelectors) > 0 {
		raw, err := o.driver.Evaluate(ctx, locateScript(o.cfg.SendSelectors))
		if err == nil && len(raw) > 0 && string(raw) != "null" {
			var btn inputLocation
			if err := jsoniter.Unmarshal(raw, &btn); err == nil {
				o.logger.Debug("Submitting via send button", zap.String("selector", btn.Selector))
				if err := o.replayCurve(ctx, o.human.GenerateCurve(inputCenter, humanoid.Vector2D{X: btn.X, Y: btn.Y})); err != nil {
					return fmt.Errorf("approach send button: %w", err)
				}
				return o.driver.Click(ctx, btn.X, btn.Y)
			}
		}
	}

	o.logger.Debug("Submitting via Enter")
	return o.driver.PressKey(ctx, kb.Enter)
}

// capture waits for the streamed answer to stabilize, then extracts it from
// the page with a small retry budget.
func (o *Orchestrator) capture(ctx context.Context) (*CapturedResponse, error) {
	poll := func(ctx context.Context) (string, error) {
		raw, err := o.driver.Evaluate(ctx, regionTextScript(o.cfg.ResponseSelector))
		if err != nil {
			return "", err
		}
		var text string
		if err := jsoniter.Unmarshal(raw, &text); err != nil {
			return "", fmt.Errorf("decode region text: %w", err)
		}
		return text, nil
	}

	stable, err := o.detector.WaitForStable(ctx, poll, quiesce.Options{
		Interval:            o.cfg.PollInterval,
		RequiredStablePolls: o.cfg.RequiredStablePolls,
		MaxWait:             o.cfg.MaxResponseWait,
		MinGrowth:           o.cfg.MinGrowthBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("wait for response: %w", err)
	}

	captured, err := retry.DoValue(ctx,
		o.policy(o.cfg.CaptureRetries, nil, o.retryObserver("capture")),
		func(ctx context.Context, attempt int) (*CapturedResponse, error) {
			html, err := o.driver.HTML(ctx)
			if err != nil {
				return nil, fmt.Errorf("capture page: %w", err)
			}
			return extractResponse(html, o.cfg.ResponseSelector)
		})
	if err != nil {
		return nil, err
	}

	captured.TimedOut = stable.TimedOut
	o.logger.Info("Response captured",
		zap.Int("text_len", len(captured.Text)),
		zap.Int("links", len(captured.Links)),
		zap.Bool("timed_out", captured.TimedOut))
	return captured, nil
}

func (o *Orchestrator) persistResponse(query string, captured *CapturedResponse) error {
	if o.writer == nil {
		return nil
	}
	resp := artifacts.Response{
		Content: captured.Text,
		Links:   captured.Links,
		Images:  captured.Images,
		Metadata: artifacts.Metadata{
			Timestamp: captured.Timestamp,
			Query:     query,
			Model:     o.model,
			URL:       o.cfg.URL,
			SessionID: o.sessionID,
			TimedOut:  captured.TimedOut,
		},
	}
	if err := o.writer.WriteResponse(resp, captured.HTML); err != nil {
		return fmt.Errorf("persist response: %w", err)
	}
	return nil
}

// persistFailure saves the page state for post-mortems. Runs on a fresh
// context so a cancelled session can still leave evidence behind.
func (o *Orchestrator) persistFailure(ctx context.Context) {
	if o.writer == nil {
		return
	}
	diagCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsTimeout)
	defer cancel()

	html, htmlErr := o.driver.HTML(diagCtx)
	shot, shotErr := o.driver.Screenshot(diagCtx)
	if htmlErr != nil && shotErr != nil {
		o.logger.Warn("Failure diagnostics unavailable",
			zap.NamedError("html_err", htmlErr),
			zap.NamedError("screenshot_err", shotErr))
		return
	}
	o.writer.WriteFailure(html, shot)
}
