package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/sells-group/sisplade-cli/internal/model"
	"github.com/sells-group/sisplade-cli/internal/scrape"
)

const readyID = "ContentPlaceHolder1_lblTextoFISMDF"

// pageHTML renders a municipality view shaped like the live site.
func pageHTML(municipio, amount string) string {
	return fmt.Sprintf(`<html><body>
<span id="ContentPlaceHolder1_lblMunicipio">%s</span>
<div class="row">
  <div class="col-lg-9">
    <div class="total">
      <span>Ingreso total: <b>%s</b></span>
    </div>
  </div>
</div>
<span id="%s">FISMDF</span>
</body></html>`, municipio, amount, readyID)
}

// fakeRenderer serves a default view and per-tab views from memory and can
// inject failures per tab.
type fakeRenderer struct {
	defaultView string
	tabs        map[string]string
	clickErr    map[string]error
	waitErr     map[string]error
	panicOn     map[string]bool

	current  string
	docReads int
	lastTab string
	clicks  []string
}

func (f *fakeRenderer) Load(_ context.Context, _ string) error {
	f.current = f.defaultView
	return nil
}

func (f *fakeRenderer) ClickTab(_ context.Context, tabID string) error {
	f.clicks = append(f.clicks, tabID)
	f.lastTab = tabID
	if f.panicOn[tabID] {
		panic("tab control detached")
	}
	if err := f.clickErr[tabID]; err != nil {
		return err
	}
	html, ok := f.tabs[tabID]
	if !ok {
		return scrape.NewParseError("fake: click tab", "tab %s not found", tabID)
	}
	f.current = html
	return nil
}

func (f *fakeRenderer) WaitForReady(_ context.Context, _ string, _ time.Duration) error {
	return f.waitErr[f.lastTab]
}

func (f *fakeRenderer) CurrentDocument(_ context.Context) (string, error) {
	f.docReads++
	if f.current == "" {
		return f.defaultView, nil
	}
	return f.current, nil
}

func (f *fakeRenderer) Close() error { return nil }

func testOptions() Options {
	return Options{
		Selectors:      DefaultSelectors(),
		Years:          []int{2015, 2016, 2017, 2018, 2019, 2020, 2021},
		CurrentYear:    2021,
		YearTabs:       model.DefaultYearTabs(),
		TabIDFormat:    "ContentPlaceHolder1_tabEjercicios_T%dT",
		ReadyElementID: readyID,
		TabTimeout:     10 * time.Millisecond,
	}
}

func tabID(i int) string {
	return fmt.Sprintf("ContentPlaceHolder1_tabEjercicios_T%dT", i)
}

// fullRenderer returns a renderer where every tab succeeds with a distinct amount.
func fullRenderer(municipio string) *fakeRenderer {
	f := &fakeRenderer{
		defaultView: pageHTML("Municipio de "+municipio, "$ 2,021.00"),
		tabs:        map[string]string{},
		clickErr:    map[string]error{},
		waitErr:     map[string]error{},
		panicOn:     map[string]bool{},
	}
	for _, tab := range model.DefaultYearTabs() {
		f.tabs[tabID(tab.Index)] = pageHTML("Municipio de "+municipio, fmt.Sprintf("$ %d.00", tab.Year))
	}
	return f
}
