// Package scrape renders municipality pages and classifies scrape failures.
package scrape

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Renderer produces fully rendered HTML for a municipality page and switches
// between its fiscal-year tabs. A Renderer holds one browser session and is
// not safe for concurrent use.
type Renderer interface {
	// Load navigates to url and waits for the default view.
	Load(ctx context.Context, url string) error

	// ClickTab triggers the tab control with the given element id.
	ClickTab(ctx context.Context, tabID string) error

	// WaitForReady blocks until the element with the given id is present or
	// the timeout elapses. A timeout is returned as a KindTimeout error.
	WaitForReady(ctx context.Context, elementID string, timeout time.Duration) error

	// CurrentDocument returns the HTML of the current view.
	CurrentDocument(ctx context.Context) (string, error)

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// MunicipioURL builds the page URL for a municipality id.
func MunicipioURL(baseURL string, id int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", eris.Wrapf(err, "scrape: parse base url %q", baseURL)
	}
	q := u.Query()
	q.Set("idMunicipio", strconv.Itoa(id))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// MunicipioID extracts the idMunicipio query parameter from a page URL.
func MunicipioID(pageURL string) (int, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return 0, eris.Wrapf(err, "scrape: parse url %q", pageURL)
	}
	raw := u.Query().Get("idMunicipio")
	if raw == "" {
		return 0, eris.Errorf("scrape: url %q has no idMunicipio", pageURL)
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "scrape: invalid idMunicipio %q", raw)
	}
	return id, nil
}
