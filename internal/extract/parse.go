// Package extract parses municipality revenue pages and walks their
// fiscal-year tabs.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/sisplade-cli/internal/scrape"
)

var (
	municipioRe = regexp.MustCompile(`^Municipio de (.*)$`)
	incomeRe    = regexp.MustCompile(`^\$\s*(.*)$`)
)

// Selectors locate the municipality name and income figure on the page.
type Selectors struct {
	Municipio       string
	IncomeContainer string
}

// DefaultSelectors returns the selectors of the deployed site.
func DefaultSelectors() Selectors {
	return Selectors{
		Municipio:       "#ContentPlaceHolder1_lblMunicipio",
		IncomeContainer: "div.col-lg-9",
	}
}

// ParseDocument parses raw HTML into a goquery document.
func ParseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, scrape.NewParseError("extract: parse html", "%v", err)
	}
	return doc, nil
}

// ParseMunicipio returns the municipality name with its "Municipio de "
// prefix removed.
func ParseMunicipio(doc *goquery.Document, sel Selectors) (string, error) {
	node := doc.Find(sel.Municipio).First()
	if node.Length() == 0 {
		return "", scrape.NewParseError("extract: municipio", "element %s not found", sel.Municipio)
	}
	text := norm.NFC.String(strings.TrimSpace(node.Text()))
	m := municipioRe.FindStringSubmatch(text)
	if m == nil {
		return "", scrape.NewParseError("extract: municipio", "unexpected label %q", text)
	}
	return m[1], nil
}

// ParseIncome returns the total income figure with its currency symbol
// removed. The figure is the bold text of the first span of the first div
// inside the income container.
func ParseIncome(doc *goquery.Document, sel Selectors) (string, error) {
	container := doc.Find(sel.IncomeContainer).First()
	if container.Length() == 0 {
		return "", scrape.NewParseError("extract: income", "element %s not found", sel.IncomeContainer)
	}
	bold := container.Find("div").First().Find("span").First().Find("b").First()
	if bold.Length() == 0 {
		return "", scrape.NewParseError("extract: income", "income figure not found in %s", sel.IncomeContainer)
	}
	text := strings.TrimSpace(bold.Text())
	m := incomeRe.FindStringSubmatch(text)
	if m == nil {
		return "", scrape.NewParseError("extract: income", "unexpected amount %q", text)
	}
	return m[1], nil
}
