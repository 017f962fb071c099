package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sisplade-cli/internal/model"
	"github.com/sells-group/sisplade-cli/internal/scrape"
)

// Options configures an Extractor.
type Options struct {
	Selectors      Selectors
	Years          []int
	CurrentYear    int
	YearTabs       []model.YearTab
	TabIDFormat    string
	ReadyElementID string
	TabTimeout     time.Duration
}

// YearFailure records a year whose income could not be extracted.
type YearFailure struct {
	Year int
	Err  error
}

// Result is the outcome of extracting one municipality.
type Result struct {
	Record   model.MunicipalityRecord
	Failures []YearFailure
}

// Extractor builds a MunicipalityRecord from the page currently loaded in a
// Renderer, visiting every configured year tab.
type Extractor struct {
	renderer scrape.Renderer
	opts     Options
}

// New creates an Extractor that drives r.
func New(r scrape.Renderer, opts Options) *Extractor {
	if opts.TabTimeout <= 0 {
		opts.TabTimeout = 10 * time.Second
	}
	return &Extractor{renderer: r, opts: opts}
}

// TabID returns the element id of the tab with the given index.
func (e *Extractor) TabID(index int) string {
	return fmt.Sprintf(e.opts.TabIDFormat, index)
}

// Extract reads the default view of the loaded page and then each year tab.
// A failure on the default view, including a challenge page, is returned and
// nothing is collected. A failure or panic on a year tab leaves that year
// absent and moves on to the next tab.
func (e *Extractor) Extract(ctx context.Context, id int) (*Result, error) {
	rec := model.NewMunicipalityRecord(id, e.opts.Years)

	html, err := e.renderer.CurrentDocument(ctx)
	if err != nil {
		return nil, err
	}
	if blocked, kind := scrape.DetectBlock(html); blocked {
		return nil, scrape.NewNavigationError("extract: default view", eris.Errorf("page blocked by %s", kind))
	}
	doc, err := ParseDocument(html)
	if err != nil {
		return nil, err
	}
	municipio, err := ParseMunicipio(doc, e.opts.Selectors)
	if err != nil {
		return nil, err
	}
	income, err := ParseIncome(doc, e.opts.Selectors)
	if err != nil {
		return nil, err
	}
	rec.Municipio = model.Value(municipio)
	rec.Income[e.opts.CurrentYear] = model.Value(income)

	log := zap.L().With(zap.Int("municipio_id", id), zap.String("municipio", municipio))
	log.Info("processing municipio")

	res := &Result{}
	for _, tab := range e.opts.YearTabs {
		income, err := e.extractTab(ctx, tab)
		if err != nil {
			log.Error("year extraction failed",
				zap.Int("year", tab.Year),
				zap.Int("tab", tab.Index),
				zap.String("kind", string(scrape.KindOf(err))),
				zap.Error(err),
			)
			rec.Income[tab.Year] = model.Absent()
			res.Failures = append(res.Failures, YearFailure{Year: tab.Year, Err: err})
			continue
		}
		rec.Income[tab.Year] = model.Value(income)
		log.Debug("year extracted", zap.Int("year", tab.Year), zap.String("income", income))
	}

	res.Record = rec
	return res, nil
}

// extractTab switches to one year tab and reads its income figure. A panic
// is returned as an error for this tab only.
func (e *Extractor) extractTab(ctx context.Context, tab model.YearTab) (income string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("extract: panic on tab %d: %v", tab.Index, r)
		}
	}()

	if err := e.renderer.ClickTab(ctx, e.TabID(tab.Index)); err != nil {
		return "", err
	}
	if err := e.renderer.WaitForReady(ctx, e.opts.ReadyElementID, e.opts.TabTimeout); err != nil {
		return "", err
	}
	html, err := e.renderer.CurrentDocument(ctx)
	if err != nil {
		return "", err
	}
	doc, err := ParseDocument(html)
	if err != nil {
		return "", err
	}
	return ParseIncome(doc, e.opts.Selectors)
}
