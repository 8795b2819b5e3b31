// Package pipeline runs one complete sync: sign in, capture the token, forward it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signin-token-sync/internal/browser"
	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/models"
	"signin-token-sync/internal/notify"
	"signin-token-sync/internal/signin"
	"signin-token-sync/internal/token"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 4 * time.Minute
	reportTimeout  = 15 * time.Second
)

// Forwarder delivers a captured token downstream
type Forwarder interface {
	Forward(ctx context.Context, token string) error
}

// Recorder keeps the outcome of finished runs
type Recorder interface {
	Record(ctx context.Context, r models.Result) error
}

// Pipeline owns the collaborators of a run. It holds no per-run state and can be reused.
type Pipeline struct {
	newBrowser browser.Factory
	codes      signin.CodeSource
	newTokens  func() token.Extractor
	store      Forwarder
	site       models.SiteConfig
	timeout    time.Duration

	history  Recorder
	notifier notify.Notifier
	now      func() time.Time
}

// Option customises a Pipeline
type Option func(*Pipeline)

// WithHistory records every finished run
func WithHistory(r Recorder) Option {
	return func(p *Pipeline) { p.history = r }
}

// WithNotifier reports failed runs
func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// New creates a Pipeline from the validated configuration
func New(cfg *models.Config, newBrowser browser.Factory, codes signin.CodeSource, store Forwarder, opts ...Option) *Pipeline {
	tokenCfg := cfg.Token
	p := &Pipeline{
		newBrowser: newBrowser,
		codes:      codes,
		newTokens:  func() token.Extractor { return token.New(tokenCfg) },
		store:      store,
		site:       cfg.Site,
		timeout:    cfg.Pipeline.Timeout,
		notifier:   notify.Noop{},
		now:        time.Now,
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one sync. The outcome is reported in the Result; a panic during sign-in counts as an internal failure.
func (p *Pipeline) Run(ctx context.Context) models.Result {
	res := models.Result{
		RunID:     uuid.New().String(),
		StartedAt: p.now(),
	}
	log := logging.Log.WithField("run_id", res.RunID)
	log.Info("Sync run started")

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	value, err := p.signIn(runCtx, log)
	if err == nil {
		res.SignedIn = true
		log.WithField("token", logging.Mask(value)).Info("Session token captured")

		err = p.store.Forward(runCtx, value)
		if err == nil {
			res.Forwarded = true
		}
	}

	res.FinishedAt = p.now()
	p.settle(ctx, runCtx, &res, err)

	fields := logrus.Fields{
		"status":   res.Status,
		"duration": res.Duration().String(),
	}
	if res.Succeeded() {
		log.WithFields(fields).Info("Sync run finished")
	} else {
		fields["reason"] = res.Reason
		log.WithFields(fields).WithError(err).Error("Sync run failed")
	}

	p.report(ctx, res, log)
	return res
}

// signIn launches a browser, runs the flow and closes the browser exactly once.
// A panic in the flow becomes an error after the browser is closed.
func (p *Pipeline) signIn(ctx context.Context, log *logrus.Entry) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = "", fmt.Errorf("sign-in panicked: %v", r)
		}
	}()

	d, err := p.newBrowser(ctx)
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser")
		}
	}()

	flow := signin.NewFlow(d, p.codes, p.newTokens(), p.site, log)
	return flow.Run(ctx)
}

func (p *Pipeline) settle(parent, runCtx context.Context, res *models.Result, err error) {
	if err == nil {
		res.Status = models.StatusSuccess
		res.Detail = "token forwarded"
		return
	}

	res.Status = models.StatusFailure
	if !res.SignedIn && parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", models.ErrRunTimeout, p.timeout, err)
		res.Reason = models.ReasonTimeout
	} else {
		res.Reason = models.ReasonOf(err)
	}
	res.Detail = err.Error()
}

// report stores and announces a finished run. Failures here are logged and never change the Result.
func (p *Pipeline) report(ctx context.Context, res models.Result, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	if p.history != nil {
		if err := p.history.Record(ctx, res); err != nil {
			log.WithError(err).Warn("Failed to record run history")
		}
	}
	if !res.Succeeded() && p.notifier != nil {
		if err := p.notifier.Notify(ctx, res); err != nil {
			log.WithError(err).Warn("Failed to send failure notification")
		}
	}
}
