package selector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// readTestdata parses a file from the testdata directory
func readTestdata(t *testing.T, filename string) *Document {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", filename))
	if err != nil {
		t.Fatalf("failed to read testdata %s: %v", filename, err)
	}
	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return doc
}

// --- Compile Tests ---

func TestCompile_Dialects(t *testing.T) {
	tests := []struct {
		expr string
		want Dialect
	}{
		{"h1.page-title", DialectCSS},
		{"a.brand::attr(href)", DialectCSS},
		{"span.price::text", DialectCSS},
		{"//h1", DialectXPath},
		{"./td[1]", DialectXPath},
		{"(//tr)[1]", DialectXPath},
		{"xpath: //span[@class='price']", DialectXPath},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			q, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if q.Dialect() != tt.want {
				t.Errorf("Dialect() = %s, want %s", q.Dialect(), tt.want)
			}
			if q.String() == "" {
				t.Error("String() should return the expression")
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"div[",
		"//div[",
		"::attr(href)",
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			if _, err := Compile(expr); err == nil {
				t.Errorf("Compile(%q) expected error", expr)
			}
		})
	}

	if _, err := Compile(""); !errors.Is(err, ErrEmptyExpression) {
		t.Errorf("expected ErrEmptyExpression, got %v", err)
	}
}

func TestMustCompile_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustCompile should panic on invalid input")
		}
	}()
	MustCompile("div[")
}

// --- Evaluation Tests ---

func TestQuery_CSS_Text(t *testing.T) {
	doc := readTestdata(t, "product.html")

	node, ok := MustCompile("h1.page-title").First(doc.Root())
	if !ok {
		t.Fatal("expected a match")
	}
	if got := node.Text(); got != "Geekvape Peak Kit" {
		t.Errorf("Text() = %q, want whitespace collapsed title", got)
	}
}

func TestQuery_CSS_AttrProjection(t *testing.T) {
	doc := readTestdata(t, "product.html")

	node, ok := MustCompile("a.brand::attr(href)").First(doc.Root())
	if !ok {
		t.Fatal("expected a match")
	}
	if got := node.Text(); got != "/brands/geekvape" {
		t.Errorf("Text() = %q, want attribute value", got)
	}
	if got := node.Href(); got != "/brands/geekvape" {
		t.Errorf("Href() = %q", got)
	}
}

func TestQuery_CSS_AttrProjection_SkipsMissing(t *testing.T) {
	doc := readTestdata(t, "product.html")

	nodes := MustCompile("td::attr(data-id)").All(doc.Root())
	if len(nodes) != 0 {
		t.Errorf("expected no nodes without the attribute, got %d", len(nodes))
	}
}

func TestQuery_XPath(t *testing.T) {
	doc := readTestdata(t, "product.html")

	node, ok := MustCompile("//div[contains(@class,'sku')]/div").First(doc.Root())
	if !ok {
		t.Fatal("expected a match")
	}
	if got := node.Text(); got != "GV-PEAK-01" {
		t.Errorf("Text() = %q", got)
	}

	href, ok := MustCompile("//a[@class='brand']/@href").First(doc.Root())
	if !ok {
		t.Fatal("expected attribute match")
	}
	if got := href.Href(); got != "/brands/geekvape" {
		t.Errorf("Href() of attribute node = %q", got)
	}
}

func TestQuery_RelativeToNode(t *testing.T) {
	doc := readTestdata(t, "product.html")

	options := MustCompile("tr.option").All(doc.Root())
	if len(options) != 3 {
		t.Fatalf("expected 3 option rows, got %d", len(options))
	}

	name := MustCompile("td.name")
	xname := MustCompile("./td[@class='name']")
	qty := MustCompile("td.qty")

	wantNames := []string{"Black", "Silver", "Blue"}
	for i, opt := range options {
		n, ok := name.First(opt)
		if !ok || n.Text() != wantNames[i] {
			t.Errorf("option %d css name = %q", i, n.Text())
		}
		x, ok := xname.First(opt)
		if !ok || x.Text() != wantNames[i] {
			t.Errorf("option %d xpath name = %q", i, x.Text())
		}
	}

	if _, ok := qty.First(options[2]); ok {
		t.Error("third option has no qty cell")
	}
}

func TestQuery_CSS_ExcludesContextNode(t *testing.T) {
	doc := readTestdata(t, "product.html")

	row, _ := MustCompile("tr.option").First(doc.Root())
	if got := MustCompile("tr.option").All(row); len(got) != 0 {
		t.Errorf("CSS evaluation should only search descendants, got %d", len(got))
	}
}

func TestQuery_NoMatch(t *testing.T) {
	doc := readTestdata(t, "product.html")

	if _, ok := MustCompile("span.special-price").First(doc.Root()); ok {
		t.Error("expected no match")
	}
	if got := MustCompile("//section").All(doc.Root()); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestNode_Zero(t *testing.T) {
	var n Node
	if n.Text() != "" || n.Href() != "" {
		t.Error("zero node should have no text")
	}
	if _, ok := n.Attr("href"); ok {
		t.Error("zero node should have no attributes")
	}
	if got := MustCompile("a").All(n); got != nil {
		t.Error("evaluating against zero node should return nil")
	}
}

func TestNode_Href_FallsBackToAttr(t *testing.T) {
	doc, err := Parse([]byte(`<a class="item" href=" /p/1 ">One</a><span class="item">/p/2</span>`))
	if err != nil {
		t.Fatal(err)
	}

	nodes := MustCompile(".item").All(doc.Root())
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if got := nodes[0].Href(); got != "/p/1" {
		t.Errorf("Href() = %q, want trimmed href attribute", got)
	}
	if got := nodes[1].Href(); got != "/p/2" {
		t.Errorf("Href() = %q, want text fallback", got)
	}
}
