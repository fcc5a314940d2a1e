// Package agent drives a Chrome browser through chromedp and adapts it to
// the rendering-agent contract consumed by the crawl controller.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/fieldworks/postwatch/internal/crawl"
)

// Config controls browser startup and per-operation timeouts.
type Config struct {
	// Headless hides the browser window. Manual sign-in needs a visible
	// browser, so interactive runs set this false.
	Headless bool
	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string
	// NavigationTimeout bounds full page navigations.
	NavigationTimeout time.Duration
	// StepTimeout bounds scripted steps (evaluate, cookies, text reads).
	StepTimeout time.Duration
	// WindowWidth and WindowHeight size the browser window.
	WindowWidth  int
	WindowHeight int
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 15 * time.Second
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1440
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1000
	}
	return c
}

// Chrome is one live browser session. Each Chrome owns its own allocator and
// tab; disposing it kills the whole browser process, which is what session
// recovery relies on.
type Chrome struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	taskCtx     context.Context
	taskCancel  context.CancelFunc
}

// New launches a browser and returns the live session. The browser process
// starts eagerly so launch failures surface here rather than on first use.
func New(ctx context.Context, cfg Config) (*Chrome, error) {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	c := &Chrome{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
	}
	if err := chromedp.Run(taskCtx, c.setupAction()); err != nil {
		c.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return c, nil
}

// Factory adapts New to the crawl.AgentFactory contract.
func Factory(cfg Config) crawl.AgentFactory {
	return func(ctx context.Context) (crawl.Agent, error) {
		return New(ctx, cfg)
	}
}

func (c *Chrome) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// run executes actions against the session under timeout, honoring caller
// cancellation. chromedp contexts do not inherit from per-call contexts, so
// the caller's cancellation is propagated explicitly.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(c.taskCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Navigate displays url and blocks until the document body is ready.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	err := c.run(ctx, c.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Location returns the browser's current URL.
func (c *Chrome) Location(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, c.cfg.StepTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// BodyText returns the rendered text of the page body.
func (c *Chrome) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := c.run(ctx, c.cfg.StepTimeout, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read body text: %w", err)
	}
	return text, nil
}

// Eval runs a JavaScript expression in the page, decoding the result into
// out when out is non-nil.
func (c *Chrome) Eval(ctx context.Context, js string, out any) error {
	if err := c.run(ctx, c.cfg.StepTimeout, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Cookies returns the browser's full cookie set.
func (c *Chrome) Cookies(ctx context.Context) ([]crawl.Cookie, error) {
	var out []crawl.Cookie
	err := c.run(ctx, c.cfg.StepTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		out = make([]crawl.Cookie, 0, len(cookies))
		for _, ck := range cookies {
			out = append(out, crawl.Cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Expires:  ck.Expires,
				Secure:   ck.Secure,
				HTTPOnly: ck.HTTPOnly,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return out, nil
}

// SetCookies installs cookies into the browser before navigation.
func (c *Chrome) SetCookies(ctx context.Context, cookies []crawl.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		p := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		}
		if ck.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	err := c.run(ctx, c.cfg.StepTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// Close kills the browser process. Safe to call more than once.
func (c *Chrome) Close() error {
	c.taskCancel()
	c.allocCancel()
	return nil
}
