// Package browser drives a headless Chromium through the steps of an interactive sign-in.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signin-token-sync/internal/models"
	"signin-token-sync/internal/retry"
)

const (
	tempDirPattern  = "signin-browser-*"
	urlPollInterval = 250 * time.Millisecond
)

// ResponseHandler receives the URL and body of a finished network response
type ResponseHandler func(url string, body []byte)

// Driver is the set of browser capabilities the sign-in flow needs. A Driver owns one browser and one page.
type Driver interface {
	// Navigate loads url and returns once the DOM content is loaded.
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	// Type enters text into the element one character at a time, pausing delay between characters.
	Type(ctx context.Context, selector, text string, delay time.Duration) error
	// Submit presses Enter in the focused element.
	Submit(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	// Cookie reads a cookie visible to the current page.
	Cookie(ctx context.Context, name string) (value string, found bool, err error)
	// OnResponse registers fn for every finished response whose URL contains match.
	OnResponse(match string, fn ResponseHandler)
	Close() error
}

// Factory launches a new Driver for one run
type Factory func(ctx context.Context) (Driver, error)

// NewFactory returns the Factory for the configured driver
func NewFactory(cfg models.BrowserConfig) (Factory, error) {
	switch cfg.Driver {
	case "", "rod":
		return func(ctx context.Context) (Driver, error) {
			d, err := LaunchRod(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return d, nil
		}, nil
	case "chromedp":
		return func(ctx context.Context) (Driver, error) {
			d, err := LaunchChromedp(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return d, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

// WaitURLExcludes polls the page URL until it no longer contains fragment. Polling survives full page navigations.
func WaitURLExcludes(ctx context.Context, d Driver, fragment string) (string, error) {
	var last string
	policy := retry.Policy{Interval: urlPollInterval}
	_, _, err := retry.Poll(ctx, policy, func(ctx context.Context, _ int) (struct{}, bool, error) {
		u, err := d.URL(ctx)
		if err != nil {
			// the page may be between documents
			return struct{}{}, false, nil
		}
		last = u
		return struct{}{}, u != "" && !strings.Contains(u, fragment), nil
	})
	if err != nil {
		return last, fmt.Errorf("url still contains %q (last %q): %w", fragment, last, err)
	}
	return last, nil
}

func blockedResource(resourceType string) bool {
	switch resourceType {
	case "Image", "Stylesheet", "Font", "Media":
		return true
	}
	return false
}
