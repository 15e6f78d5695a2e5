// Package selector evaluates selector expressions against parsed HTML.
//
// Two dialects share one parsed tree: CSS (cascadia, evaluated through
// goquery) and XPath (antchfx/htmlquery). An expression is XPath when it
// starts with "xpath:", "/", "./" or "("; everything else is CSS.
//
// CSS expressions may end in a pseudo-element projection:
//
//	a.product-item-link::attr(href)
//	span.price::text
//
// XPath expressions project attributes natively ("//a/@href").
package selector

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Dialect identifies the query language of a compiled Query.
type Dialect string

const (
	DialectCSS   Dialect = "css"
	DialectXPath Dialect = "xpath"
)

// ErrEmptyExpression is returned when compiling a blank expression.
var ErrEmptyExpression = errors.New("empty selector expression")

var attrSuffix = regexp.MustCompile(`::attr\(\s*([^)\s]+)\s*\)\s*$`)

// Query is a compiled, immutable selector expression.
type Query struct {
	expr    string
	dialect Dialect
	css     cascadia.Selector
	xpath   *xpath.Expr
	attr    string // attribute projection (CSS only)
}

// Compile parses expr and reports syntax errors up front so that
// evaluation never has to.
func Compile(expr string) (*Query, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return nil, ErrEmptyExpression
	}

	q := &Query{expr: raw}

	if body, ok := xpathBody(raw); ok {
		compiled, err := xpath.Compile(body)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", raw, err)
		}
		q.dialect = DialectXPath
		q.xpath = compiled
		return q, nil
	}

	body := raw
	if m := attrSuffix.FindStringSubmatch(body); m != nil {
		q.attr = m[1]
		body = strings.TrimSpace(body[:len(body)-len(m[0])])
	} else if strings.HasSuffix(body, "::text") {
		body = strings.TrimSpace(strings.TrimSuffix(body, "::text"))
	}
	if body == "" {
		return nil, fmt.Errorf("invalid css %q: %w", raw, ErrEmptyExpression)
	}

	compiled, err := cascadia.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("invalid css %q: %w", raw, err)
	}
	q.dialect = DialectCSS
	q.css = compiled
	return q, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level variables.
func MustCompile(expr string) *Query {
	q, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return q
}

func xpathBody(expr string) (string, bool) {
	if rest, ok := strings.CutPrefix(expr, "xpath:"); ok {
		return strings.TrimSpace(rest), true
	}
	if strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "./") || strings.HasPrefix(expr, "(") {
		return expr, true
	}
	return "", false
}

// String returns the original expression.
func (q *Query) String() string { return q.expr }

// Dialect returns the query language.
func (q *Query) Dialect() Dialect { return q.dialect }

// All returns every node under n matching the query, in document order.
// n itself is never part of the result for CSS queries.
func (q *Query) All(n Node) []Node {
	if n.n == nil {
		return nil
	}

	switch q.dialect {
	case DialectXPath:
		found := htmlquery.QuerySelectorAll(n.n, q.xpath)
		nodes := make([]Node, 0, len(found))
		for _, f := range found {
			nodes = append(nodes, Node{n: f})
		}
		return nodes
	default:
		var nodes []Node
		goquery.NewDocumentFromNode(n.n).FindMatcher(q.css).Each(func(_ int, s *goquery.Selection) {
			node := Node{n: s.Get(0)}
			if q.attr != "" {
				v, ok := s.Attr(q.attr)
				if !ok {
					return
				}
				node.value = &v
			}
			nodes = append(nodes, node)
		})
		return nodes
	}
}

// First returns the first match under n.
func (q *Query) First(n Node) (Node, bool) {
	all := q.All(n)
	if len(all) == 0 {
		return Node{}, false
	}
	return all[0], true
}

// Document is a parsed HTML page.
type Document struct {
	root *html.Node
}

// Parse parses an HTML body. The HTML5 parser is lenient, so errors only
// surface for unreadable input.
func Parse(body []byte) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// Root returns the document node.
func (d *Document) Root() Node {
	return Node{n: d.root}
}

// Node is a matched element, or an attribute value projected from one.
type Node struct {
	n     *html.Node
	value *string
}

// Text returns the node's whitespace-collapsed, trimmed text. For an
// attribute projection it is the attribute value.
func (n Node) Text() string {
	if n.value != nil {
		return cleanText(*n.value)
	}
	if n.n == nil {
		return ""
	}
	return cleanText(htmlquery.InnerText(n.n))
}

// Attr returns the named attribute of the underlying element.
func (n Node) Attr(name string) (string, bool) {
	if n.n == nil {
		return "", false
	}
	for _, a := range n.n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// Href returns the link target carried by the node: the projected value if
// any, otherwise the href attribute, otherwise the node text.
func (n Node) Href() string {
	if n.value != nil {
		return strings.TrimSpace(*n.value)
	}
	if href, ok := n.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return n.Text()
}

// cleanText normalizes whitespace in text.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
