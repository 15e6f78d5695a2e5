// Package site defines the declarative crawl rules for one target site.
package site

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmylchreest/catalogcrawl/pkg/selector"
)

// Reserved record keys written by the pipeline itself.
const (
	KeyProductURL = "product_url"
	KeyCategory   = "category"
)

// DefaultPageParam is the query parameter carrying the listing page number.
const DefaultPageParam = "p"

// ErrInvalidConfig marks every configuration error. Check with errors.Is.
var ErrInvalidConfig = errors.New("invalid site config")

// Category is one listing entry point of a site.
type Category struct {
	Name     string `json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	EntryURL string `json:"entry_url" yaml:"entry_url" mapstructure:"entry_url" validate:"required"`
}

// Spec is the on-disk form of a site definition. It is decoded from YAML or
// JSON and turned into an immutable Config by Compile.
type Spec struct {
	Name                 string            `json:"name,omitempty" yaml:"name,omitempty"`
	BaseURL              string            `json:"base_url" yaml:"base_url" validate:"required,url"`
	Categories           []Category        `json:"categories" yaml:"categories" validate:"required,min=1,dive"`
	Cookie               string            `json:"cookie,omitempty" yaml:"cookie,omitempty"`
	Headers              map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	ItemLinkSelector     string            `json:"item_link_selector" yaml:"item_link_selector" validate:"required"`
	NextPageSelector     string            `json:"next_page_selector,omitempty" yaml:"next_page_selector,omitempty"`
	FieldSelectors       map[string]string `json:"field_selectors" yaml:"field_selectors" validate:"required,min=1"`
	OptionGroupSelector  string            `json:"option_group_selector,omitempty" yaml:"option_group_selector,omitempty"`
	OptionFieldSelectors map[string]string `json:"option_field_selectors,omitempty" yaml:"option_field_selectors,omitempty"`
	RequiredFields       []string          `json:"required_fields,omitempty" yaml:"required_fields,omitempty"`
	NumericFields        []string          `json:"numeric_fields,omitempty" yaml:"numeric_fields,omitempty"`
	PageParam            string            `json:"page_param,omitempty" yaml:"page_param,omitempty"`
	MaxPages             int               `json:"max_pages,omitempty" yaml:"max_pages,omitempty" validate:"gte=0"`
	RequestsPerSecond    float64           `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty" validate:"gte=0"`
}

// Field is a named, compiled selector.
type Field struct {
	Name  string
	Query *selector.Query
}

// Config is the validated, compiled form of a Spec. It is never mutated after
// Compile returns and is safe to share between goroutines.
type Config struct {
	name              string
	base              *url.URL
	categories        []Category
	auth              AuthContext
	itemLink          *selector.Query
	nextPage          *selector.Query
	fields            []Field
	optionGroup       *selector.Query
	optionFields      []Field
	required          map[string]bool
	numeric           map[string]bool
	pageParam         string
	maxPages          int
	requestsPerSecond float64
}

// Name returns the site identifier.
func (c *Config) Name() string { return c.name }

// BaseURL returns the root used to resolve relative links.
func (c *Config) BaseURL() string { return c.base.String() }

// Categories returns a copy of the category list.
func (c *Config) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Auth returns the read-only request context for the site.
func (c *Config) Auth() AuthContext { return c.auth }

// ItemLink returns the listing-page item selector.
func (c *Config) ItemLink() *selector.Query { return c.itemLink }

// NextPage returns the next-page selector, or nil for single-page categories.
func (c *Config) NextPage() *selector.Query { return c.nextPage }

// Fields returns the page-level field selectors in name order.
func (c *Config) Fields() []Field { return c.fields }

// OptionGroup returns the option node selector, or nil.
func (c *Config) OptionGroup() *selector.Query { return c.optionGroup }

// OptionFields returns the per-option field selectors in name order.
func (c *Config) OptionFields() []Field { return c.optionFields }

// IsRequired reports whether a nil value for field aborts the item.
func (c *Config) IsRequired(field string) bool { return c.required[field] }

// IsNumeric reports whether field values are normalised to numbers.
func (c *Config) IsNumeric(field string) bool { return c.numeric[field] }

// MaxPages returns the per-category page cap (0 = unlimited).
func (c *Config) MaxPages() int { return c.maxPages }

// RequestsPerSecond returns the per-site request rate (0 = unlimited).
func (c *Config) RequestsPerSecond() float64 { return c.requestsPerSecond }

// Resolve makes ref absolute against the site's base URL.
func (c *Config) Resolve(ref string) (string, error) {
	return c.ResolveFrom(c.base.String(), ref)
}

// ResolveFrom makes ref absolute against from, falling back to the base URL
// when from is empty.
func (c *Config) ResolveFrom(from, ref string) (string, error) {
	base := c.base
	if from != "" {
		b, err := url.Parse(from)
		if err != nil {
			return "", err
		}
		base = b
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String(), nil
}

// EntryURL resolves a category entry point. Entry URLs that were written as
// quoted literals ("'https://x/cat'") are unwrapped first.
func (c *Config) EntryURL(cat Category) (string, error) {
	return c.Resolve(unquote(cat.EntryURL))
}

// PageURL returns the listing URL for a 1-based page number.
func (c *Config) PageURL(cat Category, page int) (string, error) {
	entry, err := c.EntryURL(cat)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(entry)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(c.pageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// unquote strips one layer of quotes wrapping the whole value. Quotes
// inside a URL ("/c/men's-and-women's") are left alone.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if q := s[0]; (q == '\'' || q == '"') && s[len(s)-1] == q {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// configError wraps a message in ErrInvalidConfig.
func configError(site, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if site != "" {
		return fmt.Errorf("%w: site %q: %s", ErrInvalidConfig, site, msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
