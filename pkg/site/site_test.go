package site

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func validSpec() Spec {
	return Spec{
		BaseURL:          "https://shop.example.com",
		Categories:       []Category{{Name: "widgets", EntryURL: "/cat"}},
		ItemLinkSelector: "a.item",
		FieldSelectors:   map[string]string{"name": "h1.title"},
	}
}

// --- Loading Tests ---

func TestFromFile_YAML(t *testing.T) {
	sites, err := FromFile(filepath.Join("testdata", "sites.yaml"))
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("expected 1 site, got %d", len(sites))
	}

	s := sites[0]
	if s.Name() != "demandvape" {
		t.Errorf("Name() = %q", s.Name())
	}
	if got := len(s.Categories()); got != 2 {
		t.Errorf("expected 2 categories, got %d", got)
	}
	if s.NextPage() == nil {
		t.Error("expected next page selector")
	}
	if s.OptionGroup() != nil {
		t.Error("expected no option group")
	}
	if !s.IsRequired("product_name") || s.IsRequired("sku") {
		t.Error("required fields not loaded")
	}
	if !s.IsNumeric("wholesale_price") {
		t.Error("numeric fields not loaded")
	}
	if s.RequestsPerSecond() != 2 {
		t.Errorf("RequestsPerSecond() = %v", s.RequestsPerSecond())
	}

	wantFields := []string{"product_name", "sku", "stock_level", "wholesale_price"}
	var gotFields []string
	for _, f := range s.Fields() {
		gotFields = append(gotFields, f.Name)
	}
	if diff := cmp.Diff(wantFields, gotFields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	wantCookies := map[string]string{"PHPSESSID": "abc123", "customer_group": "wholesale"}
	if diff := cmp.Diff(wantCookies, s.Auth().Cookies()); diff != "" {
		t.Errorf("cookies mismatch (-want +got):\n%s", diff)
	}
	if got := s.Auth().Headers()["User-Agent"]; got != "Mozilla/5.0" {
		t.Errorf("expected canonical User-Agent header, got %q", got)
	}
}

func TestFromFile_JSON_BareArray(t *testing.T) {
	sites, err := FromFile(filepath.Join("testdata", "sites.json"))
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}

	s := sites[0]
	if s.Name() != "1oakwholesale.com" {
		t.Errorf("Name() should default to host, got %q", s.Name())
	}
	if s.OptionGroup() == nil || len(s.OptionFields()) != 2 {
		t.Error("expected option group with 2 option fields")
	}
	if s.MaxPages() != 10 {
		t.Errorf("MaxPages() = %d", s.MaxPages())
	}

	page, err := s.PageURL(s.Categories()[0], 3)
	if err != nil {
		t.Fatal(err)
	}
	if page != "https://1oakwholesale.com/vapes.html?page=3" {
		t.Errorf("PageURL() = %q", page)
	}
}

func TestFromFile_UnsupportedExtension(t *testing.T) {
	_, err := FromFile(filepath.Join("testdata", "sites.toml"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFromYAML_BareList(t *testing.T) {
	data := []byte(`
- base_url: https://a.example.com
  categories: [{name: c, entry_url: /c}]
  item_link_selector: a
  field_selectors: {name: h1}
- base_url: https://b.example.com
  categories: [{name: c, entry_url: /c}]
  item_link_selector: a
  field_selectors: {name: h1}
`)
	sites, err := FromYAML(data)
	if err != nil {
		t.Fatalf("FromYAML() error = %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(sites))
	}
}

func TestCompileAll_Errors(t *testing.T) {
	dup := validSpec()
	dup.Name = "same"

	tests := []struct {
		name  string
		specs []Spec
		want  string
	}{
		{"empty", nil, "no sites defined"},
		{"duplicate site", []Spec{dup, dup}, "duplicate site name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileAll(tt.specs)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestCompile_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
		want   string
	}{
		{"missing base", func(s *Spec) { s.BaseURL = "" }, "BaseURL is required"},
		{"relative base", func(s *Spec) { s.BaseURL = "/shop" }, "must be a URL"},
		{"no categories", func(s *Spec) { s.Categories = nil }, "Categories is required"},
		{"category without entry", func(s *Spec) { s.Categories = []Category{{Name: "x"}} }, "EntryURL is required"},
		{"duplicate category", func(s *Spec) {
			s.Categories = append(s.Categories, Category{Name: "widgets", EntryURL: "/other"})
		}, `duplicate category "widgets"`},
		{"no fields", func(s *Spec) { s.FieldSelectors = nil }, "FieldSelectors is required"},
		{"reserved field", func(s *Spec) { s.FieldSelectors["product_url"] = "a" }, "reserved key"},
		{"reserved option field", func(s *Spec) {
			s.OptionGroupSelector = "tr"
			s.OptionFieldSelectors = map[string]string{"category": "td"}
		}, "reserved key"},
		{"bad item selector", func(s *Spec) { s.ItemLinkSelector = "a[" }, "item_link_selector"},
		{"bad field selector", func(s *Spec) { s.FieldSelectors["price"] = "//span[" }, "field_selectors.price"},
		{"options without group", func(s *Spec) {
			s.OptionFieldSelectors = map[string]string{"size": "td"}
		}, "requires option_group_selector"},
		{"unknown required field", func(s *Spec) { s.RequiredFields = []string{"sku"} }, `field "sku" is not defined`},
		{"negative max pages", func(s *Spec) { s.MaxPages = -1 }, "MaxPages failed gte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			spec.FieldSelectors = map[string]string{"name": "h1.title"}
			tt.mutate(&spec)

			_, err := Compile(spec)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

// --- URL Tests ---

func TestConfig_EntryAndPageURL(t *testing.T) {
	cfg, err := Compile(validSpec())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		entry string
		page  int
		want  string
	}{
		{"/cat", 1, "https://shop.example.com/cat?p=1"},
		{"'https://shop.example.com/liquids'", 2, "https://shop.example.com/liquids?p=2"},
		{`"https://shop.example.com/kits"`, 1, "https://shop.example.com/kits?p=1"},
		{"/search?q=coil", 4, "https://shop.example.com/search?p=4&q=coil"},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := cfg.PageURL(Category{Name: "c", EntryURL: tt.entry}, tt.page)
			if err != nil {
				t.Fatalf("PageURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("PageURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		"'/liquids'":             "/liquids",
		` "/kits" `:              "/kits",
		"/c/men's-and-women's":   "/c/men's-and-women's",
		"'/c/men's-and-women's'": "/c/men's-and-women's",
		`'/mismatched"`:          `'/mismatched"`,
		"'":                      "'",
		"/plain":                 "/plain",
	}
	for in, want := range tests {
		if got := unquote(in); got != want {
			t.Errorf("unquote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfig_EntryURL_KeepsInnerApostrophes(t *testing.T) {
	cfg, err := Compile(validSpec())
	if err != nil {
		t.Fatal(err)
	}

	got, err := cfg.EntryURL(Category{Name: "c", EntryURL: "/c/men's-and-women's"})
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/c/men's-and-women's" {
		t.Errorf("EntryURL() path = %q, want the apostrophes kept", u.Path)
	}
}

func TestConfig_ResolveFrom(t *testing.T) {
	cfg, err := Compile(validSpec())
	if err != nil {
		t.Fatal(err)
	}

	got, err := cfg.ResolveFrom("https://shop.example.com/cat/sub/?p=2", "item-1.html#reviews")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://shop.example.com/cat/sub/item-1.html" {
		t.Errorf("ResolveFrom() = %q", got)
	}

	got, err = cfg.Resolve("/p/2")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://shop.example.com/p/2" {
		t.Errorf("Resolve() = %q", got)
	}

	got, _ = cfg.Resolve("https://cdn.example.net/x")
	if got != "https://cdn.example.net/x" {
		t.Errorf("absolute URLs should be kept, got %q", got)
	}
}

func TestConfig_CategoriesIsCopy(t *testing.T) {
	cfg, err := Compile(validSpec())
	if err != nil {
		t.Fatal(err)
	}
	cats := cfg.Categories()
	cats[0].Name = "mutated"
	if cfg.Categories()[0].Name != "widgets" {
		t.Error("Categories() must not expose internal state")
	}
}

// --- AuthContext Tests ---

func TestParseCookieString(t *testing.T) {
	tests := []struct {
		raw  string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"a=1", map[string]string{"a": "1"}},
		{"a=1; b=2", map[string]string{"a": "1", "b": "2"}},
		{" a = 1 ;b=2;; flag ; =x", map[string]string{"a": "1", "b": "2"}},
		{"token=abc==; x=", map[string]string{"token": "abc==", "x": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseCookieString(tt.raw)); diff != "" {
				t.Errorf("ParseCookieString(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestAuthContext_Apply(t *testing.T) {
	auth := NewAuthContext("z=26; a=1", map[string]string{"x-requested-with": "XMLHttpRequest"})

	h := http.Header{}
	auth.Apply(h)

	if got := h.Get("Cookie"); got != "a=1; z=26" {
		t.Errorf("Cookie = %q, want sorted cookie header", got)
	}
	if got := h.Get("X-Requested-With"); got != "XMLHttpRequest" {
		t.Errorf("X-Requested-With = %q", got)
	}
}

func TestAuthContext_Empty(t *testing.T) {
	var auth AuthContext
	h := http.Header{}
	auth.Apply(h)
	if len(h) != 0 {
		t.Errorf("empty auth should not set headers, got %v", h)
	}
	if auth.CookieHeader() != "" {
		t.Error("expected empty cookie header")
	}
}

func TestAuthContext_CopiesAreIsolated(t *testing.T) {
	auth := NewAuthContext("a=1", nil)
	cookies := auth.Cookies()
	cookies["a"] = "2"
	if auth.Cookies()["a"] != "1" {
		t.Error("Cookies() must return a copy")
	}
}

func TestFromFile_ExampleConfig(t *testing.T) {
	sites, err := FromFile("../../examples/sites/sites.yaml")
	if err != nil {
		t.Fatalf("example configuration should compile: %v", err)
	}
	if len(sites) != 2 || sites[1].OptionGroup() == nil {
		t.Errorf("unexpected example sites %d", len(sites))
	}
}
