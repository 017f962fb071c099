package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sells-group/sisplade-cli/internal/config"
	"github.com/sells-group/sisplade-cli/internal/model"
	"github.com/sells-group/sisplade-cli/internal/scrape"
)

const tabFormat = "ContentPlaceHolder1_tabEjercicios_T%dT"

func pageHTML(municipio, amount string) string {
	return fmt.Sprintf(`<html><body>
<span id="ContentPlaceHolder1_lblMunicipio">Municipio de %s</span>
<div class="col-lg-9"><div><span>Total: <b>$ %s</b></span></div></div>
<span id="ContentPlaceHolder1_lblTextoFISMDF">FISMDF</span>
</body></html>`, municipio, amount)
}

// municipioPages returns the default view and every tab view for id.
func municipioPages(id int) map[string]string {
	name := fmt.Sprintf("Municipio %03d", id)
	views := map[string]string{
		scrape.DefaultView: pageHTML(name, fmt.Sprintf("%d,021.00", id)),
	}
	for _, tab := range model.DefaultYearTabs() {
		views[fmt.Sprintf(tabFormat, tab.Index)] = pageHTML(name, fmt.Sprintf("%d,%03d.00", id, tab.Year%1000))
	}
	return views
}

func testConfig(t *testing.T, idEnd int) *config.Config {
	t.Helper()
	return &config.Config{
		Site: config.SiteConfig{
			BaseURL:     "https://sisplade.example/sisplade/smIngresosMunicipio.aspx",
			IDStart:     1,
			IDEnd:       idEnd,
			CurrentYear: 2021,
			StartYear:   2015,
			EndYear:     2021,
			YearTabs:    model.DefaultYearTabs(),
		},
		Selectors: config.SelectorsConfig{
			Municipio:       "#ContentPlaceHolder1_lblMunicipio",
			IncomeContainer: "div.col-lg-9",
			TabIDFormat:     tabFormat,
			ReadyElementID:  "ContentPlaceHolder1_lblTextoFISMDF",
		},
		Browser: config.BrowserConfig{TabTimeoutSecs: 1},
		Retry:   config.RetryConfig{MaxAttempts: 1},
		Output: config.OutputConfig{
			CSVPath: filepath.Join(t.TempDir(), "data", "ingresos_por_municipio.csv"),
		},
	}
}

// fakeRenderer serves generated pages and injects failures per id.
type fakeRenderer struct {
	pages    func(id int) map[string]string
	loadErr  map[int]error
	tabErr   map[int]map[string]error
	panicOn  map[int]bool
	tabPanic map[int]string
	loadCall map[int]int
	docReads map[int]int

	id      int
	views   map[string]string
	view    string
	closed  int
	maxOpen int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		pages:    municipioPages,
		loadErr:  map[int]error{},
		tabErr:   map[int]map[string]error{},
		panicOn:  map[int]bool{},
		tabPanic: map[int]string{},
		loadCall: map[int]int{},
		docReads: map[int]int{},
	}
}

func (f *fakeRenderer) Load(_ context.Context, url string) error {
	id, err := scrape.MunicipioID(url)
	if err != nil {
		return scrape.NewNavigationError("fake: load", err)
	}
	f.loadCall[id]++
	f.views = nil
	if f.panicOn[id] {
		panic("renderer crashed")
	}
	if err := f.loadErr[id]; err != nil {
		return err
	}
	f.id = id
	f.views = f.pages(id)
	f.view = scrape.DefaultView
	return nil
}

func (f *fakeRenderer) ClickTab(_ context.Context, tabID string) error {
	if f.tabPanic[f.id] == tabID {
		panic("tab control detached")
	}
	if err := f.tabErr[f.id][tabID]; err != nil {
		return err
	}
	if _, ok := f.views[tabID]; !ok {
		return scrape.NewParseError("fake: click tab", "tab %s not found", tabID)
	}
	f.view = tabID
	return nil
}

func (f *fakeRenderer) WaitForReady(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

func (f *fakeRenderer) CurrentDocument(_ context.Context) (string, error) {
	if f.views == nil {
		return "", scrape.NewNavigationError("fake: document", fmt.Errorf("no page loaded"))
	}
	f.docReads[f.id]++
	return f.views[f.view], nil
}

func (f *fakeRenderer) Close() error {
	f.closed++
	return nil
}
