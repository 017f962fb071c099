package scrape

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// DefaultView is the snapshot name of a municipality's unclicked page.
const DefaultView = "default"

// FileRenderer serves saved municipality pages from disk, for offline runs
// and tests. Layout:
//
//	<dir>/<id>/default.html   default view
//	<dir>/<id>/<tabID>.html   view after clicking tabID
type FileRenderer struct {
	dir     string
	id      int
	current string
	loaded  bool
}

// NewFileRenderer creates a FileRenderer rooted at dir.
func NewFileRenderer(dir string) *FileRenderer {
	return &FileRenderer{dir: dir}
}

func (f *FileRenderer) Load(_ context.Context, url string) error {
	id, err := MunicipioID(url)
	if err != nil {
		return NewNavigationError("file: load", err)
	}
	html, err := f.read(id, DefaultView)
	if err != nil {
		f.loaded = false
		return NewNavigationError("file: load "+url, err)
	}
	f.id = id
	f.current = html
	f.loaded = true
	return nil
}

func (f *FileRenderer) ClickTab(_ context.Context, tabID string) error {
	if !f.loaded {
		return NewNavigationError("file: click tab "+tabID, eris.New("no page loaded"))
	}
	html, err := f.read(f.id, tabID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewParseError("file: click tab "+tabID, "tab %s not found", tabID)
		}
		return NewNavigationError("file: click tab "+tabID, err)
	}
	f.current = html
	return nil
}

// WaitForReady checks the current snapshot once; a missing element is a
// timeout since a saved page never changes.
func (f *FileRenderer) WaitForReady(_ context.Context, elementID string, _ time.Duration) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.current))
	if err != nil {
		return NewNavigationError("file: wait for "+elementID, err)
	}
	if doc.Find("#"+elementID).Length() == 0 {
		return NewTimeoutError("file: wait for "+elementID, eris.Errorf("element %s not present", elementID))
	}
	return nil
}

func (f *FileRenderer) CurrentDocument(_ context.Context) (string, error) {
	if !f.loaded {
		return "", NewNavigationError("file: read document", eris.New("no page loaded"))
	}
	return f.current, nil
}

func (f *FileRenderer) Close() error {
	f.loaded = false
	f.current = ""
	return nil
}

func (f *FileRenderer) read(id int, view string) (string, error) {
	path := filepath.Join(f.dir, strconv.Itoa(id), view+".html")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
