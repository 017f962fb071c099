package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sisplade-cli/internal/scrape"
)

func TestParse_Example(t *testing.T) {
	doc, err := ParseDocument(pageHTML("Municipio de Example", "$ 12,345.00"))
	require.NoError(t, err)

	municipio, err := ParseMunicipio(doc, DefaultSelectors())
	require.NoError(t, err)
	assert.Equal(t, "Example", municipio)

	income, err := ParseIncome(doc, DefaultSelectors())
	require.NoError(t, err)
	assert.Equal(t, "12,345.00", income)
}

func TestParseMunicipio(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		want    string
		wantErr bool
	}{
		{name: "accented", label: "Municipio de San Juan Bautista Tuxtepec", want: "San Juan Bautista Tuxtepec"},
		{name: "surrounding whitespace", label: "\n   Municipio de Ayoquezco de Aldama  ", want: "Ayoquezco de Aldama"},
		{name: "decomposed accent normalized", label: "Municipio de Santa Mari\u0301a", want: "Santa Mar\u00eda"},
		{name: "missing prefix", label: "Santa Lucía del Camino", wantErr: true},
		{name: "empty", label: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument(pageHTML(tt.label, "$ 1.00"))
			require.NoError(t, err)

			got, err := ParseMunicipio(doc, DefaultSelectors())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, scrape.KindParse, scrape.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMunicipio_ElementMissing(t *testing.T) {
	doc, err := ParseDocument("<html><body><p>Error de servidor</p></body></html>")
	require.NoError(t, err)

	_, err = ParseMunicipio(doc, DefaultSelectors())
	require.Error(t, err)
	assert.Equal(t, scrape.KindParse, scrape.KindOf(err))
	assert.Contains(t, err.Error(), "#ContentPlaceHolder1_lblMunicipio")
}

func TestParseIncome(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		want    string
		wantErr bool
	}{
		{name: "with space", amount: "$ 12,345.00", want: "12,345.00"},
		{name: "no space", amount: "$98,765,432.10", want: "98,765,432.10"},
		{name: "only symbol", amount: "$ ", want: ""},
		{name: "no symbol", amount: "12,345.00", wantErr: true},
		{name: "other currency", amount: "MXN 12,345.00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument(pageHTML("Municipio de Example", tt.amount))
			require.NoError(t, err)

			got, err := ParseIncome(doc, DefaultSelectors())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, scrape.KindParse, scrape.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIncome_MissingStructure(t *testing.T) {
	tests := map[string]string{
		"no container": `<html><body><div class="col-lg-3"><div><span><b>$ 1.00</b></span></div></div></body></html>`,
		"no bold":      `<html><body><div class="col-lg-9"><div><span>$ 1.00</span></div></div></body></html>`,
	}

	for name, html := range tests {
		t.Run(name, func(t *testing.T) {
			doc, err := ParseDocument(html)
			require.NoError(t, err)
			_, err = ParseIncome(doc, DefaultSelectors())
			require.Error(t, err)
			assert.Equal(t, scrape.KindParse, scrape.KindOf(err))
		})
	}
}
