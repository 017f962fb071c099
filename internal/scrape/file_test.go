package scrape

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, dir string, id, view, html string) {
	t.Helper()
	path := filepath.Join(dir, id, view+".html")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(html), 0o644))
}

func TestFileRenderer_LoadClickWait(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "3", DefaultView, `<html><body><p id="marker">default</p></body></html>`)
	writeSnapshot(t, dir, "3", "tab1", `<html><body><p id="marker">tab1</p></body></html>`)
	r := NewFileRenderer(dir)
	ctx := context.Background()

	require.NoError(t, r.Load(ctx, "https://example.com/p.aspx?idMunicipio=3"))
	doc, err := r.CurrentDocument(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, "default")

	require.NoError(t, r.ClickTab(ctx, "tab1"))
	require.NoError(t, r.WaitForReady(ctx, "marker", time.Second))
	doc, err = r.CurrentDocument(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, "tab1")

	require.NoError(t, r.Close())
	_, err = r.CurrentDocument(ctx)
	assert.True(t, IsKind(err, KindNavigation))
}

func TestFileRenderer_MissingPageIsNavigationError(t *testing.T) {
	r := NewFileRenderer(t.TempDir())
	err := r.Load(context.Background(), "https://example.com/p.aspx?idMunicipio=9")
	require.Error(t, err)
	assert.Equal(t, KindNavigation, KindOf(err))
}

func TestFileRenderer_MissingTabAndMarker(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "1", DefaultView, `<html><body></body></html>`)
	r := NewFileRenderer(dir)
	ctx := context.Background()

	require.NoError(t, r.Load(ctx, "https://example.com/p.aspx?idMunicipio=1"))

	err := r.ClickTab(ctx, "tab4")
	assert.Equal(t, KindParse, KindOf(err))

	err = r.WaitForReady(ctx, "marker", time.Second)
	assert.Equal(t, KindTimeout, KindOf(err))
}
