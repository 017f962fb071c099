package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sisplade-cli/internal/extract"
)

const savedPage = `<html><body>
<span id="ContentPlaceHolder1_lblMunicipio">Municipio de Example</span>
<div class="col-lg-9"><div><span>Ingresos: <b>$ 12,345.00</b></span></div></div>
</body></html>`

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	path := writeTemp(t, "page.html", savedPage)

	out, err := parseFile(path, extract.DefaultSelectors())
	require.NoError(t, err)
	require.NotNil(t, out.Municipio)
	require.NotNil(t, out.Income)
	assert.Equal(t, "Example", *out.Municipio)
	assert.Equal(t, "12,345.00", *out.Income)
	assert.Empty(t, out.Errors)
	assert.Empty(t, out.Blocked)
}

func TestParseFile_ReportsParserErrors(t *testing.T) {
	path := writeTemp(t, "captcha.html", `<html><body><div class="g-recaptcha"></div></body></html>`)

	out, err := parseFile(path, extract.DefaultSelectors())
	require.NoError(t, err)
	assert.Nil(t, out.Municipio)
	assert.Nil(t, out.Income)
	assert.Contains(t, out.Errors, "municipio")
	assert.Contains(t, out.Errors, "income")
	assert.Equal(t, "captcha", out.Blocked)
}

func TestParseFile_Missing(t *testing.T) {
	_, err := parseFile(filepath.Join(t.TempDir(), "nope.html"), extract.DefaultSelectors())
	require.Error(t, err)
}
