package scrape

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ChromeOptions configures the headless Chrome session.
type ChromeOptions struct {
	Headless    bool
	DisableGPU  bool
	UserAgent   string
	LoadTimeout time.Duration
	// TabTimeout bounds each tab click. A missing tab fails without waiting.
	TabTimeout time.Duration
}

func (o ChromeOptions) withDefaults() ChromeOptions {
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = 60 * time.Second
	}
	if o.TabTimeout <= 0 {
		o.TabTimeout = 10 * time.Second
	}
	return o
}

// ChromeRenderer drives a single headless Chrome tab via the DevTools protocol.
type ChromeRenderer struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	loadTimeout time.Duration
	tabTimeout  time.Duration
	closeOnce   sync.Once
	closeErr    error
}

// NewChromeRenderer launches Chrome and opens the tab used for the whole run.
func NewChromeRenderer(opts ChromeOptions) (*ChromeRenderer, error) {
	opts = opts.withDefaults()
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("log-level", "3"),
	)
	if opts.DisableGPU {
		allocOpts = append(allocOpts, chromedp.DisableGPU)
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(zap.S().Debugf),
		chromedp.WithErrorf(zap.S().Debugf),
	)

	// An empty Run starts the browser so launch failures surface here.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, eris.Wrap(err, "chrome: start browser")
	}

	return &ChromeRenderer{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		loadTimeout: opts.LoadTimeout,
		tabTimeout:  opts.TabTimeout,
	}, nil
}

// run executes actions on the browser tab bounded by timeout and by the
// caller's context.
func (c *ChromeRenderer) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

func (c *ChromeRenderer) Load(ctx context.Context, url string) error {
	err := c.run(ctx, c.loadTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return NewNavigationError("chrome: load "+url, err)
	}
	return nil
}

// ClickTab clicks the tab control if it is on the page. The presence check
// does not wait, so a municipality without that year fails immediately.
func (c *ChromeRenderer) ClickTab(ctx context.Context, tabID string) error {
	sel := "#" + tabID
	var nodes []*cdp.Node
	err := c.run(ctx, c.tabTimeout, chromedp.Nodes(sel, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
	if err == nil && len(nodes) == 0 {
		err = errTabMissing
	}
	if err == nil {
		err = c.run(ctx, c.tabTimeout, chromedp.Click(sel, chromedp.ByQuery))
	}
	return tabError(tabID, err)
}

var errTabMissing = eris.New("tab not present on page")

// tabError classifies a failed tab click.
func tabError(tabID string, err error) error {
	if err == nil {
		return nil
	}
	op := "chrome: click tab " + tabID
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(op, err)
	}
	return NewParseError(op, "%v", err)
}

func (c *ChromeRenderer) WaitForReady(ctx context.Context, elementID string, timeout time.Duration) error {
	err := c.run(ctx, timeout, chromedp.WaitReady("#"+elementID, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("chrome: wait for "+elementID, err)
	}
	return NewNavigationError("chrome: wait for "+elementID, err)
}

func (c *ChromeRenderer) CurrentDocument(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, c.loadTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", NewNavigationError("chrome: read document", err)
	}
	return html, nil
}

// Close shuts the browser down. Subsequent calls return the first result.
func (c *ChromeRenderer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = eris.Wrap(chromedp.Cancel(c.ctx), "chrome: close browser")
		c.cancel()
		c.allocCancel()
	})
	return c.closeErr
}
