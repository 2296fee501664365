package interact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/artifacts"
	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/humanoid"
	"github.com/xkilldash9x/specter-cli/internal/quiesce"
	"github.com/xkilldash9x/specter-cli/internal/retry"
)

// fakeDriver scripts a page: navigation counts, a fixed document, and a
// sequence of response-region polls.
type fakeDriver struct {
	mu sync.Mutex

	html        string
	regionTexts []string // successive region polls; last value repeats
	pollIdx     int
	locator     string   // JSON result of the input locator, "null" to miss
	navErrs     []error  // consumed one per Navigate call; nil afterwards

	navigations int
	moves       int
	clicks      int
	typed       []rune
	pressed     []string
	closeCalls  int
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations++
	if len(d.navErrs) > 0 {
		err := d.navErrs[0]
		d.navErrs = d.navErrs[1:]
		return err
	}
	return nil
}

func (d *fakeDriver) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.Contains(script, "innerText") {
		text := ""
		if len(d.regionTexts) > 0 {
			text = d.regionTexts[d.pollIdx]
			if d.pollIdx < len(d.regionTexts)-1 {
				d.pollIdx++
			}
		}
		encoded, _ := jsoniter.Marshal(text)
		return encoded, nil
	}
	// Input / send-button locator.
	return json.RawMessage(d.locator), nil
}

func (d *fakeDriver) MoveMouse(ctx context.Context, x, y float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.moves++
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, x, y float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks++
	return nil
}

func (d *fakeDriver) TypeRune(ctx context.Context, r rune) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed = append(d.typed, r)
	return nil
}

func (d *fakeDriver) PressKey(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pressed = append(d.pressed, key)
	return nil
}

func (d *fakeDriver) HTML(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.html, nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (d *fakeDriver) Sleep(ctx context.Context, dur time.Duration) error {
	return ctx.Err()
}

func (d *fakeDriver) Viewport() humanoid.Vector2D {
	return humanoid.Vector2D{X: 1280, Y: 800}
}

func (d *fakeDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func testInteractionConfig() config.InteractionConfig {
	return config.InteractionConfig{
		URL:                 "https://chat.test",
		NavigationTimeout:   5 * time.Second,
		InputSelectors:      []string{"textarea"},
		NavRetries:          2,
		InputRetries:        2,
		CaptureRetries:      1,
		RetryInitialDelay:   time.Millisecond,
		RetryBackoffFactor:  2.0,
		PollInterval:        time.Millisecond,
		RequiredStablePolls: 2,
		MaxResponseWait:     time.Second,
		MinGrowthBytes:      1,
	}
}

func fastHumanoid() *humanoid.Humanoid {
	cfg := config.HumanoidConfig{
		CurveSteps:     5,
		Randomization:  0.7,
		StepDelayMin:   0,
		StepDelayMax:   time.Microsecond,
		IdleWanderLegs: 1,
		TypingDelayMin: 0,
		TypingDelayMax: time.Microsecond,
	}
	return humanoid.New(cfg, zap.NewNop(), rand.New(rand.NewSource(1)))
}

func newTestOrchestrator(t *testing.T, driver *fakeDriver) *Orchestrator {
	t.Helper()
	writer, err := artifacts.NewWriter(
		config.CaptureConfig{OutputDir: t.TempDir(), SaveText: true, ScreenshotOnFailure: true},
		"sess-test", zap.NewNop())
	require.NoError(t, err)

	return New(testInteractionConfig(), driver, fastHumanoid(),
		quiesce.New(zap.NewNop()), writer, "sess-test", zap.NewNop())
}

func TestRun_HappyPath(t *testing.T) {
	driver := &fakeDriver{
		html:        `<html><body><main>pong</main></body></html>`,
		regionTexts: []string{"", "pong", "pong", "pong"},
		locator:     `{"x":640,"y":700,"selector":"textarea"}`,
	}
	o := newTestOrchestrator(t, driver)

	result, err := o.Run(context.Background(), "ping")
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	require.NotNil(t, result.Response)
	assert.Equal(t, "pong", result.Response.Text)
	assert.False(t, result.Response.TimedOut)

	// The query was typed character for character and sent with Enter.
	assert.Equal(t, "ping", string(driver.typed))
	assert.Contains(t, driver.pressed, kb.Enter)
	assert.Equal(t, 1, driver.clicks)
	assert.Greater(t, driver.moves, 5, "approach must be a trajectory, not a teleport")

	assert.Equal(t, 1, driver.closeCalls, "browser released exactly once")
	assert.FileExists(t, filepath.Join(result.ArtifactDir, "response.json"))
	assert.FileExists(t, filepath.Join(result.ArtifactDir, "response.txt"))
}

func TestRun_BlockedPageFailsWithoutRetry(t *testing.T) {
	driver := &fakeDriver{
		html:    `<html><body><h1>Just a moment</h1></body></html>`,
		locator: `null`,
	}
	o := newTestOrchestrator(t, driver)

	result, err := o.Run(context.Background(), "ping")
	require.ErrorIs(t, err, ErrBlocked)
	assert.NotErrorIs(t, err, retry.ErrExhausted, "block must short-circuit, not exhaust")

	assert.Equal(t, 1, driver.navigations, "a block must not trigger navigation retries")
	assert.Equal(t, 1, driver.closeCalls, "browser released exactly once")
	require.NotNil(t, result)
	assert.Equal(t, StateFailed, result.State)
	assert.FileExists(t, filepath.Join(result.ArtifactDir, "failure.html"))
	assert.FileExists(t, filepath.Join(result.ArtifactDir, "failure.png"))
}

func TestRetryableNavError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("navigate: %w", context.DeadlineExceeded), true},
		{"net error", &net.DNSError{Err: "no such host", IsTimeout: true}, true},
		{"chrome connection failure", errors.New("page load error net::ERR_CONNECTION_RESET"), true},
		{"blocked page", fmt.Errorf("%w: page contains %q", ErrBlocked, "captcha"), false},
		{"canceled context", context.Canceled, false},
		{"anything else", errors.New("tab crashed"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryableNavError(tc.err))
		})
	}
}

func TestRun_TransientNavigationErrorIsRetried(t *testing.T) {
	driver := &fakeDriver{
		html:        `<html><body><main>pong</main></body></html>`,
		regionTexts: []string{"", "pong", "pong", "pong"},
		locator:     `{"x":640,"y":700,"selector":"textarea"}`,
		navErrs:     []error{fmt.Errorf("navigate: %w", context.DeadlineExceeded)},
	}
	o := newTestOrchestrator(t, driver)

	result, err := o.Run(context.Background(), "ping")
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 2, driver.navigations, "one timeout, one successful retry")
}

func TestRun_FatalNavigationErrorDoesNotRetry(t *testing.T) {
	driver := &fakeDriver{
		html:    `<html><body><main>never reached</main></body></html>`,
		locator: `null`,
		navErrs: []error{errors.New("tab crashed"), errors.New("tab crashed"), errors.New("tab crashed")},
	}
	o := newTestOrchestrator(t, driver)

	result, err := o.Run(context.Background(), "ping")
	require.Error(t, err)
	assert.NotErrorIs(t, err, retry.ErrExhausted, "a non-transient failure must short-circuit")

	assert.Equal(t, 1, driver.navigations)
	require.NotNil(t, result)
	assert.Equal(t, StateFailed, result.State)
}

func TestRun_InputNotFoundExhaustsRetries(t *testing.T) {
	driver := &fakeDriver{
		html:    `<html><body><main>fine page, no input</main></body></html>`,
		locator: `null`,
	}
	o := newTestOrchestrator(t, driver)

	result, err := o.Run(context.Background(), "ping")
	require.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, ErrInputNotFound)

	assert.Equal(t, 1, driver.closeCalls)
	require.NotNil(t, result)
	assert.Equal(t, StateFailed, result.State)
}

func TestRun_TimedOutCaptureStillSucceeds(t *testing.T) {
	driver := &fakeDriver{
		html: `<html><body><main>partial answer</main></body></html>`,
		// Never stabilizes: every poll grows.
		regionTexts: []string{"p", "pa", "par", "part", "parti", "partial answer"},
		locator:     `{"x":640,"y":700,"selector":"textarea"}`,
	}
	o := newTestOrchestrator(t, driver)
	o.cfg.MaxResponseWait = 20 * time.Millisecond
	o.cfg.RequiredStablePolls = 50 // unreachable within the deadline

	result, err := o.Run(context.Background(), "ping")
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	require.NotNil(t, result.Response)
	assert.True(t, result.Response.TimedOut, "deadline capture must carry the timeout flag")
	assert.Equal(t, "partial answer", result.Response.Text)
}

func TestRun_ContextCancellation(t *testing.T) {
	driver := &fakeDriver{
		html:    `<html><body><main>slow page</main></body></html>`,
		locator: `{"x":1,"y":1,"selector":"textarea"}`,
	}
	o := newTestOrchestrator(t, driver)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, "ping")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, driver.closeCalls)
}
