// Package pipeline runs a scrape over the configured municipality range and
// writes the consolidated dataset.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/sisplade-cli/internal/config"
	"github.com/sells-group/sisplade-cli/internal/dataset"
	"github.com/sells-group/sisplade-cli/internal/extract"
	"github.com/sells-group/sisplade-cli/internal/model"
	"github.com/sells-group/sisplade-cli/internal/resilience"
	"github.com/sells-group/sisplade-cli/internal/scrape"
	"github.com/sells-group/sisplade-cli/internal/store"
)

// Pipeline visits every municipality id in order with a single renderer.
type Pipeline struct {
	cfg       *config.Config
	renderer  scrape.Renderer
	extractor *extract.Extractor
	store     store.Store
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	schema    dataset.Schema
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Dataset   *dataset.Dataset
	Collected int
	FailedIDs []int
	Absent    int
	// OutputErr is set when writing an export failed. The run is still
	// considered complete.
	OutputErr error
}

// New creates a Pipeline. st may be nil to disable persistence.
func New(cfg *config.Config, r scrape.Renderer, st store.Store) (*Pipeline, error) {
	schema, err := dataset.NewSchema(cfg.Site.StartYear, cfg.Site.EndYear)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: schema")
	}

	ext := extract.New(r, extract.Options{
		Selectors: extract.Selectors{
			Municipio:       cfg.Selectors.Municipio,
			IncomeContainer: cfg.Selectors.IncomeContainer,
		},
		Years:          schema.Years(),
		CurrentYear:    cfg.Site.CurrentYear,
		YearTabs:       cfg.Site.YearTabs,
		TabIDFormat:    cfg.Selectors.TabIDFormat,
		ReadyElementID: cfg.Selectors.ReadyElementID,
		TabTimeout:     time.Duration(cfg.Browser.TabTimeoutSecs) * time.Second,
	})

	var limiter *rate.Limiter
	if cfg.Site.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Site.RequestsPerSecond), 1)
	}

	return &Pipeline{
		cfg:       cfg,
		renderer:  r,
		extractor: ext,
		store:     st,
		limiter:   limiter,
		retry:     resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs),
		schema:    schema,
	}, nil
}

// Run processes ids site.id_start..site.id_end sequentially. Failures are
// contained to the year or municipality they occur in; the dataset is always
// written and the renderer is always closed. An error is returned only when
// ctx is cancelled before the range is exhausted.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := zap.L().With(
		zap.Int("id_start", p.cfg.Site.IDStart),
		zap.Int("id_end", p.cfg.Site.IDEnd),
	)
	log.Info("pipeline: starting run")

	defer func() {
		if err := p.renderer.Close(); err != nil {
			log.Warn("pipeline: close renderer", zap.Error(err))
		}
	}()

	res := &Result{Dataset: dataset.New(p.schema)}
	res.RunID = p.createRun(ctx)

	var runErr error
	for id := p.cfg.Site.IDStart; id <= p.cfg.Site.IDEnd; id++ {
		if err := p.wait(ctx); err != nil {
			runErr = eris.Wrapf(err, "pipeline: interrupted before municipio %d", id)
			break
		}
		p.collect(ctx, res, id)
	}

	res.Absent = res.Dataset.AbsentCount()
	res.OutputErr = p.writeOutputs(res.Dataset)

	p.completeRun(res, runErr)

	log.Info("pipeline: run finished",
		zap.String("run_id", res.RunID),
		zap.Int("rows", res.Dataset.Len()),
		zap.Int("collected", res.Collected),
		zap.Int("failed", len(res.FailedIDs)),
		zap.Ints("failed_ids", res.FailedIDs),
		zap.Int("absent", res.Absent),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, runErr
}

func (p *Pipeline) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// collect processes one id and appends its row to the dataset.
func (p *Pipeline) collect(ctx context.Context, res *Result, id int) {
	out, err := p.process(ctx, id)
	if err != nil {
		zap.L().Error("pipeline: skipping municipio",
			zap.Int("municipio_id", id),
			zap.String("kind", string(scrape.KindOf(err))),
			zap.Error(err),
		)
		res.FailedIDs = append(res.FailedIDs, id)
		p.saveFailure(ctx, res.RunID, id, 0, err)
		if p.cfg.Output.SkipFailed {
			return
		}
		p.appendRecord(ctx, res, model.NewMunicipalityRecord(id, p.schema.Years()))
		return
	}

	res.Collected++
	for _, f := range out.Failures {
		p.saveFailure(ctx, res.RunID, id, f.Year, f.Err)
	}
	p.appendRecord(ctx, res, out.Record)
}

// process loads and extracts one municipality. A panic anywhere below is
// reported as an error for this id only.
func (p *Pipeline) process(ctx context.Context, id int) (out *extract.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: panic processing municipio %d: %v", id, r)
		}
	}()

	url, err := scrape.MunicipioURL(p.cfg.Site.BaseURL, id)
	if err != nil {
		return nil, scrape.NewNavigationError("pipeline: build url", err)
	}

	retry := p.retry
	retry.OnRetry = resilience.RetryLogger(id, url)
	if err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		return p.renderer.Load(ctx, url)
	}); err != nil {
		return nil, err
	}

	return p.extractor.Extract(ctx, id)
}

func (p *Pipeline) appendRecord(ctx context.Context, res *Result, rec model.MunicipalityRecord) {
	if err := res.Dataset.Append(rec); err != nil {
		zap.L().Error("pipeline: append record", zap.Int("municipio_id", rec.ID), zap.Error(err))
		return
	}
	if p.store == nil || res.RunID == "" {
		return
	}
	if err := p.store.SaveRecord(ctx, res.RunID, rec); err != nil {
		zap.L().Warn("pipeline: failed to save record", zap.Int("municipio_id", rec.ID), zap.Error(err))
	}
}

func (p *Pipeline) saveFailure(ctx context.Context, runID string, id, year int, cause error) {
	if p.store == nil || runID == "" {
		return
	}
	f := model.Failure{
		RunID:       runID,
		MunicipioID: id,
		Year:        year,
		Kind:        string(scrape.KindOf(cause)),
		Message:     cause.Error(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.store.SaveFailure(ctx, f); err != nil {
		zap.L().Warn("pipeline: failed to save failure", zap.Int("municipio_id", id), zap.Error(err))
	}
}

// writeOutputs writes the CSV and, when configured, the XLSX export. Errors
// are logged and returned joined; they never abort the run.
func (p *Pipeline) writeOutputs(ds *dataset.Dataset) error {
	var errs []error
	if err := dataset.WriteCSV(ds, p.cfg.Output.CSVPath); err != nil {
		zap.L().Error("pipeline: write csv", zap.String("path", p.cfg.Output.CSVPath), zap.Error(err))
		errs = append(errs, err)
	}
	if p.cfg.Output.XLSXPath != "" {
		if err := dataset.WriteXLSX(ds, p.cfg.Output.XLSXPath); err != nil {
			zap.L().Error("pipeline: write xlsx", zap.String("path", p.cfg.Output.XLSXPath), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) createRun(ctx context.Context) string {
	if p.store == nil {
		return ""
	}
	run, err := p.store.CreateRun(ctx, model.RunScope{
		IDStart:   p.cfg.Site.IDStart,
		IDEnd:     p.cfg.Site.IDEnd,
		StartYear: p.cfg.Site.StartYear,
		EndYear:   p.cfg.Site.EndYear,
	})
	if err != nil {
		zap.L().Warn("pipeline: failed to create run, continuing without store", zap.Error(err))
		return ""
	}
	return run.ID
}

func (p *Pipeline) completeRun(res *Result, runErr error) {
	if p.store == nil || res.RunID == "" {
		return
	}
	status := model.RunStatusComplete
	summary := model.RunSummary{
		Collected:  res.Collected,
		Failed:     len(res.FailedIDs),
		Absent:     res.Absent,
		OutputPath: p.cfg.Output.CSVPath,
	}
	if runErr != nil {
		status = model.RunStatusFailed
		summary.Error = runErr.Error()
	} else if res.OutputErr != nil {
		summary.Error = res.OutputErr.Error()
	}
	// The run context may already be cancelled; the summary is still recorded.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.CompleteRun(ctx, res.RunID, status, summary); err != nil {
		zap.L().Warn("pipeline: failed to complete run", zap.String("run_id", res.RunID), zap.Error(err))
	}
}
