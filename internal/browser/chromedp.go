package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/models"
	"signin-token-sync/internal/retry"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromedpDriver implements Driver with chromedp, as an alternative to RodDriver
type ChromedpDriver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	tmpDir      string

	mu       sync.Mutex
	handlers []responseRoute
	pending  map[network.RequestID]string

	closeOnce sync.Once
}

// LaunchChromedp starts Chromium with a fresh profile. The browser lives until Close, not until ctx ends.
func LaunchChromedp(ctx context.Context, cfg models.BrowserConfig) (*ChromedpDriver, error) {
	activeSessions.Add(1)

	tmpDir, err := os.MkdirTemp("", tempDirPattern)
	if err != nil {
		activeSessions.Add(-1)
		return nil, fmt.Errorf("failed to create temp user data dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.UserDataDir(tmpDir),
		chromedp.Flag("headless", !cfg.Headful),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("no-zygote", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Bin != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Bin))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	d := &ChromedpDriver{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		tmpDir:      tmpDir,
		pending:     make(map[network.RequestID]string),
	}

	chromedp.ListenTarget(browserCtx, d.onEvent(cfg.LoadAllResources))

	actions := []chromedp.Action{network.Enable()}
	if !cfg.LoadAllResources {
		var patterns []*fetch.RequestPattern
		for _, rt := range []network.ResourceType{
			network.ResourceTypeImage,
			network.ResourceTypeStylesheet,
			network.ResourceTypeFont,
			network.ResourceTypeMedia,
		} {
			patterns = append(patterns, &fetch.RequestPattern{URLPattern: "*", ResourceType: rt})
		}
		actions = append(actions, fetch.Enable().WithPatterns(patterns))
	}

	if err := d.run(ctx, actions...); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return d, nil
}

func (d *ChromedpDriver) onEvent(loadAll bool) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			// only blocked resource types are intercepted
			if loadAll {
				return
			}
			go func() {
				_ = chromedp.Run(d.ctx, fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient))
			}()
		case *network.EventResponseReceived:
			if e.Response == nil {
				return
			}
			d.mu.Lock()
			if len(matchRoutes(d.handlers, e.Response.URL)) > 0 {
				d.pending[e.RequestID] = e.Response.URL
			}
			d.mu.Unlock()
		case *network.EventLoadingFinished:
			d.mu.Lock()
			url, ok := d.pending[e.RequestID]
			delete(d.pending, e.RequestID)
			routes := matchRoutes(d.handlers, url)
			d.mu.Unlock()
			if !ok {
				return
			}
			go d.deliver(e.RequestID, url, routes)
		}
	}
}

func (d *ChromedpDriver) deliver(id network.RequestID, url string, routes []responseRoute) {
	var body []byte
	err := chromedp.Run(d.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		logging.Log.WithError(err).WithField("url", url).Debug("Failed to read response body")
		return
	}
	for _, route := range routes {
		route.fn(url, body)
	}
}

// run executes actions on the browser tab, bounded by the caller's ctx
func (d *ChromedpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
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

// Navigate returns on DOMContentLoaded. chromedp.Navigate would also wait for the load event.
func (d *ChromedpDriver) Navigate(ctx context.Context, url string) error {
	loaded := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(d.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, domContentLoaded(loaded))

	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		return nil
	}))
	if err != nil {
		return err
	}

	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// domContentLoaded signals loaded once the document is parsed, without blocking the event loop
func domContentLoaded(loaded chan<- struct{}) func(ev any) {
	return func(ev any) {
		if _, ok := ev.(*page.EventDomContentEventFired); !ok {
			return
		}
		select {
		case loaded <- struct{}{}:
		default:
		}
	}
}

func (d *ChromedpDriver) WaitVisible(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *ChromedpDriver) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if err := d.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
	); err != nil {
		return err
	}

	for i, r := range text {
		if i > 0 {
			if err := retry.Sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := d.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
	}
	return nil
}

func (d *ChromedpDriver) Submit(ctx context.Context) error {
	return d.run(ctx, chromedp.KeyEvent(kb.Enter))
}

func (d *ChromedpDriver) URL(ctx context.Context) (string, error) {
	var u string
	if err := d.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (d *ChromedpDriver) Cookie(ctx context.Context, name string) (string, bool, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return "", false, err
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true, nil
		}
	}
	return "", false, nil
}

func (d *ChromedpDriver) OnResponse(match string, fn ResponseHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, responseRoute{match: match, fn: fn})
}

// Close stops the browser and removes the profile directory. It is safe to call more than once.
func (d *ChromedpDriver) Close() error {
	d.closeOnce.Do(func() {
		defer activeSessions.Add(-1)

		d.cancel()
		d.allocCancel()
		if err := os.RemoveAll(d.tmpDir); err != nil {
			logging.Log.WithError(err).Warn("failed to remove temp user data dir")
		}
	})
	return nil
}
