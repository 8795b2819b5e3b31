package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/models"
	"signin-token-sync/internal/retry"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var activeSessions atomic.Int32

// RodDriver implements Driver with go-rod on a throwaway browser profile
type RodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	tmpDir   string

	events    context.Context
	stopEvent context.CancelFunc

	mu       sync.Mutex
	handlers []responseRoute

	closeOnce sync.Once
	closeErr  error
}

type responseRoute struct {
	match string
	fn    ResponseHandler
}

// LaunchRod starts Chromium with a fresh profile and opens a blank page
func LaunchRod(ctx context.Context, cfg models.BrowserConfig) (*RodDriver, error) {
	activeSessions.Add(1)

	d := &RodDriver{}
	launched := false
	defer func() {
		if !launched {
			_ = d.Close()
		}
	}()

	tmpDir, err := os.MkdirTemp("", tempDirPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp user data dir: %w", err)
	}
	d.tmpDir = tmpDir

	l := launcher.New().
		Context(ctx).
		Headless(!cfg.Headful).
		NoSandbox(true).
		UserDataDir(tmpDir).
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-zygote")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	// Cleanup blocks until the process exits, so only a started launcher is kept
	d.launcher = l

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	d.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	d.page = page

	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if !cfg.LoadAllResources {
		router := page.HijackRequests()
		if err := router.Add("*", "", func(h *rod.Hijack) {
			if blockedResource(string(h.Request.Type())) {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
			h.ContinueRequest(&proto.FetchContinueRequest{})
		}); err != nil {
			return nil, fmt.Errorf("failed to install request filter: %w", err)
		}
		go router.Run()
		d.router = router
	}

	if err := d.watchResponses(); err != nil {
		return nil, err
	}

	launched = true
	return d, nil
}

// watchResponses records matching responses and hands their bodies to the registered handlers once loaded
func (d *RodDriver) watchResponses() error {
	if err := (proto.NetworkEnable{}).Call(d.page); err != nil {
		return fmt.Errorf("failed to enable network events: %w", err)
	}

	d.events, d.stopEvent = context.WithCancel(context.Background())
	page := d.page.Context(d.events)

	var pending sync.Map
	wait := page.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Response != nil && len(d.routesFor(e.Response.URL)) > 0 {
				pending.Store(e.RequestID, e.Response.URL)
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			v, ok := pending.LoadAndDelete(e.RequestID)
			if !ok {
				return
			}
			go d.deliver(page, e.RequestID, v.(string))
		},
	)
	go wait()

	return nil
}

func (d *RodDriver) deliver(page *rod.Page, id proto.NetworkRequestID, url string) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
	if err != nil {
		logging.Log.WithError(err).WithField("url", url).Debug("Failed to read response body")
		return
	}

	body := []byte(res.Body)
	if res.Base64Encoded {
		if body, err = decodeBase64(res.Body); err != nil {
			logging.Log.WithError(err).WithField("url", url).Debug("Failed to decode response body")
			return
		}
	}

	for _, route := range d.routesFor(url) {
		route.fn(url, body)
	}
}

func (d *RodDriver) routesFor(url string) []responseRoute {
	d.mu.Lock()
	defer d.mu.Unlock()
	return matchRoutes(d.handlers, url)
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (d *RodDriver) WaitVisible(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (d *RodDriver) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	page := d.page.Context(ctx)
	el, err := page.Element(selector)
	if err != nil {
		return err
	}
	if err := el.WaitVisible(); err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return err
	}

	for i, r := range text {
		if i > 0 {
			if err := retry.Sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := page.InsertText(string(r)); err != nil {
			return err
		}
	}
	return nil
}

func (d *RodDriver) Submit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.page.Keyboard.Type(input.Enter)
}

func (d *RodDriver) URL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *RodDriver) Cookie(ctx context.Context, name string) (string, bool, error) {
	cookies, err := d.page.Context(ctx).Cookies(nil)
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

func (d *RodDriver) OnResponse(match string, fn ResponseHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, responseRoute{match: match, fn: fn})
}

// Close releases the page, the browser process and the profile directory. It is safe to call more than once.
func (d *RodDriver) Close() error {
	d.closeOnce.Do(func() {
		defer activeSessions.Add(-1)

		if d.stopEvent != nil {
			d.stopEvent()
		}
		if d.router != nil {
			_ = d.router.Stop()
		}
		if d.page != nil {
			_ = d.page.Close()
		}
		if d.browser != nil {
			d.closeErr = d.browser.Close()
		}
		if d.launcher != nil {
			d.launcher.Kill()
			d.launcher.Cleanup()
		}
		if d.tmpDir != "" {
			if err := os.RemoveAll(d.tmpDir); err != nil {
				logging.Log.WithError(err).Warn("failed to remove temp user data dir")
			}
		}
	})
	return d.closeErr
}
