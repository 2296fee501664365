// internal/browser/chrome.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/browser/stealth"
	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/humanoid"
)

const launchProbeTimeout = 30 * time.Second

// Chrome drives a single headless tab over the DevTools protocol. One
// instance per session; not safe for concurrent use.
type Chrome struct {
	logger *zap.Logger

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	viewport humanoid.Vector2D
}

var _ Driver = (*Chrome)(nil)

// NewChrome launches the browser process, opens a tab, applies the stealth
// persona, and verifies responsiveness before returning.
func NewChrome(ctx context.Context, cfg config.BrowserConfig, proxy config.ProxyConfig, persona stealth.Persona, logger *zap.Logger) (*Chrome, error) {
	logger = logger.Named("browser")

	proxyServer := ""
	username, password := "", ""
	if proxy.Enabled {
		proxyServer = proxy.Server
		username, password = proxy.VendorCredentials()
	}

	opts := allocatorOptions(cfg, persona.UserAgent, proxyServer)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	ctxOpts := []chromedp.ContextOption{}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(logger.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	c := &Chrome{
		logger:      logger,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		viewport:    viewportFromConfig(cfg),
	}

	init := chromedp.Tasks{
		chromedp.EmulateViewport(int64(c.viewport.X), int64(c.viewport.Y)),
		stealth.Apply(persona, logger),
	}
	if username != "" {
		// Auth challenges from the proxy are answered out of band; the fetch
		// domain must be enabled before the first navigation.
		init = append(chromedp.Tasks{fetch.Enable().WithHandleAuthRequests(true)}, init...)
		c.handleProxyAuth(username, password)
	}
	init = append(init, chromedp.Navigate("about:blank"))

	probeCtx, cancelProbe := context.WithTimeout(tabCtx, launchProbeTimeout)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, init...); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	logger.Info("Browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.Bool("proxied", proxyServer != ""),
		zap.Float64("viewport_w", c.viewport.X),
		zap.Float64("viewport_h", c.viewport.Y))
	return c, nil
}

// allocatorOptions assembles the launch flags for a stealthy browser. The
// chromedp default set ships --enable-automation, which flips
// navigator.webdriver; a later Flag with a false value drops it from the
// command line.
func allocatorOptions(cfg config.BrowserConfig, userAgent, proxyServer string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("enable-automation", false))

	for name, value := range allocatorFlags(cfg, proxyServer) {
		opts = append(opts, chromedp.Flag(name, value))
	}

	opts = append(opts, chromedp.UserAgent(userAgent))
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// allocatorFlags returns the flag set as plain data so it stays testable.
func allocatorFlags(cfg config.BrowserConfig, proxyServer string) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                  cfg.Headless,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
		// Disables the Blink feature behind navigator.webdriver.
		"disable-blink-features": "AutomationControlled",
		"disable-extensions":     true,
		"disable-gpu":            cfg.Headless,
	}

	if proxyServer != "" {
		flags["proxy-server"] = proxyServer
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}

	// Required when running inside containers.
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}

	return flags
}

func viewportFromConfig(cfg config.BrowserConfig) humanoid.Vector2D {
	v := humanoid.Vector2D{X: 1280, Y: 800}
	if w, ok := cfg.Viewport["width"]; ok && w > 0 {
		v.X = float64(w)
	}
	if h, ok := cfg.Viewport["height"]; ok && h > 0 {
		v.Y = float64(h)
	}
	return v
}

// handleProxyAuth answers authentication challenges from the upstream proxy
// with the configured credentials. Paused requests are resumed untouched.
func (c *Chrome) handleProxyAuth(username, password string) {
	chromedp.ListenTarget(c.tabCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				execCtx := cdp.WithExecutor(c.tabCtx, chromedp.FromContext(c.tabCtx).Target)
				err := fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				}).Do(execCtx)
				if err != nil && c.tabCtx.Err() == nil {
					c.logger.Warn("Failed to answer proxy auth challenge", zap.Error(err))
				}
			}()
		case *fetch.EventRequestPaused:
			go func() {
				execCtx := cdp.WithExecutor(c.tabCtx, chromedp.FromContext(c.tabCtx).Target)
				_ = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
			}()
		}
	})
}

// run executes chromedp actions against the tab while honoring the caller's
// context. Cancelling the derived context aborts the actions, not the tab.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(c.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads the URL and waits until the document body is ready.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.logger.Debug("Navigating", zap.String("url", url))
	if err := c.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Evaluate runs the script in the page, awaiting promises and returning the
// raw JSON result. Page exceptions are suppressed in the page console and
// surfaced as Go errors.
func (c *Chrome) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	var res json.RawMessage
	err := c.run(ctx, chromedp.Evaluate(script, &res, func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return res, nil
}

// MoveMouse dispatches a single mouse-move event.
func (c *Chrome) MoveMouse(ctx context.Context, x, y float64) error {
	return c.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y).
		WithButton(input.None))
}

// Click presses and releases the left button at the given coordinates.
func (c *Chrome) Click(ctx context.Context, x, y float64) error {
	return c.run(ctx,
		input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1),
	)
}

// TypeRune sends the key events for one character to the focused element.
func (c *Chrome) TypeRune(ctx context.Context, r rune) error {
	return c.run(ctx, chromedp.KeyEvent(string(r)))
}

// PressKey sends a named key (use the chromedp/kb constants).
func (c *Chrome) PressKey(ctx context.Context, key string) error {
	return c.run(ctx, chromedp.KeyEvent(key))
}

// HTML returns the serialized document.
func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capture html: %w", err)
	}
	return html, nil
}

// Screenshot captures the visible viewport as PNG.
func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Sleep pauses for d, aborting promptly on cancellation.
func (c *Chrome) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Viewport reports the emulated page size.
func (c *Chrome) Viewport() humanoid.Vector2D {
	return c.viewport
}

// Close tears down the tab and the browser process.
func (c *Chrome) Close(ctx context.Context) error {
	c.logger.Debug("Closing browser")
	c.tabCancel()
	c.allocCancel()
	return nil
}
