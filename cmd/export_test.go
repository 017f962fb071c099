package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sisplade-cli/internal/config"
	"github.com/sells-group/sisplade-cli/internal/dataset"
	"github.com/sells-group/sisplade-cli/internal/model"
	"github.com/sells-group/sisplade-cli/internal/scrape"
	"github.com/sells-group/sisplade-cli/internal/store"
)

func TestLoadDatasetAndWriteExports(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, model.RunScope{IDStart: 1, IDEnd: 2, StartYear: 2015, EndYear: 2021})
	require.NoError(t, err)
	years := run.Scope().Years()

	first := model.NewMunicipalityRecord(1, years)
	first.Municipio = model.Value("Abejones")
	first.Income[2021] = model.Value("3,512,000.00")
	require.NoError(t, st.SaveRecord(ctx, run.ID, first))
	require.NoError(t, st.SaveRecord(ctx, run.ID, model.NewMunicipalityRecord(2, years)))

	ds, err := loadDataset(ctx, st, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "ingresos.csv")
	xlsxPath := filepath.Join(dir, "out", "ingresos.xlsx")
	require.NoError(t, writeExports(ds, csvPath, xlsxPath))

	schema, err := dataset.NewSchema(2015, 2021)
	require.NoError(t, err)
	back, err := dataset.ReadCSV(csvPath, schema)
	require.NoError(t, err)
	assert.Equal(t, ds.Rows(), back.Rows())

	_, err = os.Stat(xlsxPath)
	assert.NoError(t, err)
}

func TestLoadDataset_UnknownRun(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	_, err = loadDataset(ctx, st, "missing")
	require.Error(t, err)
}

func TestWriteExports_SkipsXLSXWhenUnset(t *testing.T) {
	schema, err := dataset.NewSchema(2015, 2021)
	require.NoError(t, err)
	dir := t.TempDir()

	require.NoError(t, writeExports(dataset.New(schema), filepath.Join(dir, "a.csv"), ""))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewRenderer_Offline(t *testing.T) {
	r, err := newRenderer(config.BrowserConfig{OfflineDir: t.TempDir()})
	require.NoError(t, err)
	_, ok := r.(*scrape.FileRenderer)
	assert.True(t, ok)
	assert.NoError(t, r.Close())
}

func TestRequireStore_Disabled(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{Store: config.StoreConfig{Driver: "none"}}

	_, err := requireStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run store configured")
}

func TestPoolConfig_FromStoreConfig(t *testing.T) {
	pc := poolConfig(config.StoreConfig{Driver: "postgres", MaxConns: 6, MinConns: 2})
	require.NotNil(t, pc)
	assert.Equal(t, int32(6), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
}
