// Package browser implements the browser capability with headless Chrome
// driven over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/fentz26/taskforge/internal/connectors"
)

// DefaultTimeout bounds navigation when LoadOptions carries no timeout.
const DefaultTimeout = 30 * time.Second

// Config controls how Chrome is launched.
type Config struct {
	ExecPath  string `yaml:"exec_path"`  // empty uses chromedp's lookup
	NoSandbox bool   `yaml:"no_sandbox"` // needed when running as root in containers
	UserAgent string `yaml:"user_agent"`
}

// Chrome is a connectors.Browser. Every LoadPage starts its own browser
// process and closes it before returning.
type Chrome struct {
	cfg Config
}

// New creates a Chrome browser capability.
func New(cfg Config) *Chrome {
	return &Chrome{cfg: cfg}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	if c.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	return opts
}

// LoadPage navigates to url, waits for the network to go idle and then
// opts.Settle for scripts to run, and reports what it saw. A navigation
// that is not idle within opts.Timeout returns
// connectors.ErrNavigationTimeout.
func (c *Chrome) LoadPage(ctx context.Context, url string, opts connectors.LoadOptions) (*connectors.Page, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	// Start the browser on the long-lived tab context; cancelling the
	// context of the first Run would kill the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	var (
		mu      sync.Mutex
		scripts []string
		console []string
	)
	idle := newIdleWatcher()
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		idle.observe(ev)
		switch e := ev.(type) {
		case *runtime.EventExceptionThrown:
			mu.Lock()
			scripts = append(scripts, exceptionText(e.ExceptionDetails))
			mu.Unlock()
		case *runtime.EventConsoleAPICalled:
			if e.Type != runtime.APITypeError {
				return
			}
			mu.Lock()
			console = append(console, consoleText(e.Args))
			mu.Unlock()
		}
	})

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	navCtx, cancelNav := context.WithTimeout(tabCtx, timeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx, page.SetLifecycleEventsEnabled(true), chromedp.Navigate(url)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return nil, connectors.ErrNavigationTimeout
		}
		return nil, fmt.Errorf("navigate: %w", err)
	}
	select {
	case <-idle.done:
	case <-navCtx.Done():
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return nil, connectors.ErrNavigationTimeout
		}
		return nil, navCtx.Err()
	}

	loaded := &connectors.Page{}
	err := chromedp.Run(tabCtx,
		chromedp.Sleep(opts.Settle),
		chromedp.Title(&loaded.Title),
		chromedp.OuterHTML("html", &loaded.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect page: %w", err)
	}

	mu.Lock()
	loaded.ScriptErrors = append([]string(nil), scripts...)
	loaded.ConsoleErrors = append([]string(nil), console...)
	mu.Unlock()
	return loaded, nil
}

// idleWatcher closes done once the document last committed in the main
// frame reports networkIdle. Lifecycle events of the initial about:blank
// document are ignored.
type idleWatcher struct {
	mu     sync.Mutex
	loader cdp.LoaderID
	once   sync.Once
	done   chan struct{}
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{done: make(chan struct{})}
}

func (w *idleWatcher) observe(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" || e.Frame.URL == "about:blank" {
			return
		}
		w.mu.Lock()
		w.loader = e.Frame.LoaderID
		w.mu.Unlock()
	case *page.EventLifecycleEvent:
		if e.Name != "networkIdle" {
			return
		}
		w.mu.Lock()
		current := w.loader
		w.mu.Unlock()
		if current != "" && e.LoaderID == current {
			w.once.Do(func() { close(w.done) })
		}
	}
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d == nil {
		return "unknown exception"
	}
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	if d.Text != "" {
		return d.Text
	}
	return fmt.Sprintf("exception at %d:%d", d.LineNumber, d.ColumnNumber)
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case len(arg.Value) > 0:
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}

var _ connectors.Browser = (*Chrome)(nil)
