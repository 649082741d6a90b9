package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserOptions configures ChromeBrowser.
type BrowserOptions struct {
	// TableSelector locates the results table whose HTML is snapshotted.
	TableSelector string
	// NextSelector locates the "next page" control.
	NextSelector string
	// CookieSelector optionally locates a consent button dismissed after navigation.
	CookieSelector string
	// Timeout bounds each browser action.
	Timeout time.Duration
	// Settle is the wait after clicking next before the table is read again.
	Settle time.Duration
	// Headless runs Chrome without a window.
	Headless bool
}

// DefaultBrowserOptions returns options for a generic results table.
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		TableSelector:  "table",
		NextSelector:   `a[rel="next"], button.next, .pagination .next`,
		CookieSelector: `button[id*="accept"], button[class*="accept"]`,
		Timeout:        DefaultTimeout,
		Settle:         time.Second,
		Headless:       true,
	}
}

// ChromeBrowser drives a headless Chrome through a paginated results table.
// It is not safe for concurrent use; one instance serves one crawl.
type ChromeBrowser struct {
	opts        BrowserOptions
	ctx         context.Context
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
}

// NewChromeBrowser returns a browser that starts Chrome lazily on Open.
// Requires Chrome/Chromium to be installed on the system.
func NewChromeBrowser(opts BrowserOptions) *ChromeBrowser {
	def := DefaultBrowserOptions()
	if opts.TableSelector == "" {
		opts.TableSelector = def.TableSelector
	}
	if opts.NextSelector == "" {
		opts.NextSelector = def.NextSelector
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Settle <= 0 {
		opts.Settle = def.Settle
	}
	return &ChromeBrowser{opts: opts}
}

// Open starts Chrome, navigates to url and waits for the results table.
func (b *ChromeBrowser) Open(ctx context.Context, url string) error {
	_ = b.Close()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx),
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", b.opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	b.ctx, b.allocCancel, b.tabCancel = tabCtx, allocCancel, tabCancel

	return b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if b.opts.CookieSelector != "" {
				_ = chromedp.Click(b.opts.CookieSelector, chromedp.NodeVisible, chromedp.AtLeast(0)).Do(ctx)
			}
			return nil
		}),
		chromedp.WaitVisible(b.opts.TableSelector),
	)
}

// Snapshot returns the outer HTML of the results table.
func (b *ChromeBrowser) Snapshot(ctx context.Context) (string, error) {
	var html string
	if err := b.run(ctx, chromedp.OuterHTML(b.opts.TableSelector, &html)); err != nil {
		return "", err
	}
	return html, nil
}

// Next clicks the next-page control. It returns false when the control is absent or disabled.
func (b *ChromeBrowser) Next(ctx context.Context) (bool, error) {
	sel := strconv.Quote(b.opts.NextSelector)
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return !!el && !el.disabled && !el.classList.contains("disabled") && el.getAttribute("aria-disabled") !== "true";
	})()`, sel)

	var enabled bool
	if err := b.run(ctx, chromedp.Evaluate(script, &enabled)); err != nil {
		return false, err
	}
	if !enabled {
		return false, nil
	}
	if err := b.run(ctx,
		chromedp.Click(b.opts.NextSelector, chromedp.NodeVisible),
		chromedp.Sleep(b.opts.Settle),
	); err != nil {
		return false, err
	}
	return true, nil
}

// Wait pauses for the settle interval, used when the table has not changed yet.
func (b *ChromeBrowser) Wait(ctx context.Context) error {
	return b.run(ctx, chromedp.Sleep(b.opts.Settle))
}

// Close shuts down Chrome. It is safe to call more than once.
func (b *ChromeBrowser) Close() error {
	if b.tabCancel != nil {
		b.tabCancel()
		b.tabCancel = nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
	b.ctx = nil
	return nil
}

func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	if b.ctx == nil {
		return fmt.Errorf("browser not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(b.ctx, b.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("browser action failed: %w", err)
	}
	return nil
}

// Fingerprint returns the SHA-256 of a table snapshot, used to detect page changes.
func Fingerprint(html string) string {
	sum := sha256.Sum256([]byte(html))
	return hex.EncodeToString(sum[:])
}
