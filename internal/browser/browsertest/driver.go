// Package browsertest provides a scriptable in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"signin-token-sync/internal/browser"
)

// Driver records every call and answers from its scripted fields. Zero value is a page that accepts everything.
type Driver struct {
	mu sync.Mutex

	// Missing selectors never become visible; WaitVisible blocks until ctx ends.
	Missing map[string]bool
	// Errors returns an error for a method name, e.g. "Navigate".
	Errors map[string]error
	// URLs is returned by successive URL calls, the last entry repeats.
	URLs []string
	// CookieAfter makes Cookie report CookieValue from that call number on (1-based), 0 means never.
	CookieAfter int
	CookieName  string
	CookieValue string
	// OnSubmit runs after each Submit with the submit count.
	OnSubmit func(n int)

	Calls       []string
	Typed       map[string]string
	Delays      map[string]time.Duration
	Submits     int
	CookieCalls int
	CloseCalls  int

	urlCalls int
	routes   []route
}

type route struct {
	match string
	fn    browser.ResponseHandler
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) record(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, call)
	name, _, _ := strings.Cut(call, " ")
	return d.Errors[name]
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.record("Navigate " + url); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Driver) WaitVisible(ctx context.Context, selector string) error {
	if err := d.record("WaitVisible " + selector); err != nil {
		return err
	}
	d.mu.Lock()
	missing := d.Missing[selector]
	d.mu.Unlock()
	if missing {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (d *Driver) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if err := d.record("Type " + selector); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Typed == nil {
		d.Typed = make(map[string]string)
		d.Delays = make(map[string]time.Duration)
	}
	d.Typed[selector] = text
	d.Delays[selector] = delay
	return ctx.Err()
}

func (d *Driver) Submit(ctx context.Context) error {
	if err := d.record("Submit"); err != nil {
		return err
	}
	d.mu.Lock()
	d.Submits++
	n := d.Submits
	hook := d.OnSubmit
	d.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.Errors["URL"]; err != nil {
		return "", err
	}
	if len(d.URLs) == 0 {
		return "", errors.New("no url scripted")
	}
	i := d.urlCalls
	if i >= len(d.URLs) {
		i = len(d.URLs) - 1
	}
	d.urlCalls++
	return d.URLs[i], ctx.Err()
}

func (d *Driver) Cookie(ctx context.Context, name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CookieCalls++
	if err := d.Errors["Cookie"]; err != nil {
		return "", false, err
	}
	if d.CookieAfter > 0 && d.CookieCalls >= d.CookieAfter && name == d.CookieName {
		return d.CookieValue, true, ctx.Err()
	}
	return "", false, ctx.Err()
}

func (d *Driver) OnResponse(match string, fn browser.ResponseHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{match: match, fn: fn})
}

// Respond delivers a finished response to every handler whose match is contained in url
func (d *Driver) Respond(url string, body []byte) {
	d.mu.Lock()
	routes := append([]route(nil), d.routes...)
	d.mu.Unlock()
	for _, r := range routes {
		if strings.Contains(url, r.match) {
			r.fn(url, body)
		}
	}
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCalls++
	return nil
}

// Closed returns how many times Close was called
func (d *Driver) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CloseCalls
}
