package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

func newShop(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var flaky atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/cat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "session=abc" {
			http.Error(w, "login required", http.StatusForbidden)
			return
		}
		switch r.URL.Query().Get("p") {
		case "1":
			fmt.Fprint(w, `<a class="item" href="/w/1">1</a><a class="item" href="/w/2">2</a><a class="next" href="?p=2">next</a>`)
		case "2":
			fmt.Fprint(w, `<a class="item" href="/w/3">3</a>`)
		default:
			fmt.Fprint(w, `<p>nothing here</p>`)
		}
	})
	mux.HandleFunc("/w/", func(w http.ResponseWriter, r *http.Request) {
		// the third item fails once before succeeding
		if r.URL.Path == "/w/3" && flaky.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `<h1 class="title">Widget %s</h1><span class="price">$%s.00</span>`, filepath.Base(r.URL.Path), filepath.Base(r.URL.Path))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &flaky
}

func shopSite(t *testing.T, baseURL string) *site.Config {
	t.Helper()
	cfg, err := site.Compile(site.Spec{
		Name:             "widgets-inc",
		BaseURL:          baseURL,
		Cookie:           "session=abc",
		Categories:       []site.Category{{Name: "widgets", EntryURL: "/cat"}},
		ItemLinkSelector: "a.item",
		NextPageSelector: "a.next",
		FieldSelectors:   map[string]string{"name": "h1.title", "price": "span.price"},
		NumericFields:    []string{"price"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestCrawler_Run_EndToEnd(t *testing.T) {
	srv, flaky := newShop(t)
	cfg := shopSite(t, srv.URL)
	path := filepath.Join(t.TempDir(), "products.json")

	sink, err := OpenSink(path, "", "", false)
	if err != nil {
		t.Fatal(err)
	}

	c := New(WithRetry(3, time.Millisecond), WithWorkers(2))
	summary, err := c.Run(context.Background(), []*site.Config{cfg}, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.RecordsWritten != 3 || summary.PagesWalked != 2 || summary.FetchFailures != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if flaky.Load() != 2 {
		t.Errorf("flaky item should have been retried once, hits = %d", flaky.Load())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatal(err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i]["product_url"].(string) < records[j]["product_url"].(string)
	})

	want := []map[string]any{
		{"product_url": srv.URL + "/w/1", "category": "widgets", "name": "Widget 1", "price": 1.0},
		{"product_url": srv.URL + "/w/2", "category": "widgets", "name": "Widget 2", "price": 2.0},
		{"product_url": srv.URL + "/w/3", "category": "widgets", "name": "Widget 3", "price": 3.0},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestCrawler_Run_PartitionedBySite(t *testing.T) {
	srv, _ := newShop(t)
	cfg := shopSite(t, srv.URL)
	path := filepath.Join(t.TempDir(), "products.yaml")

	sink, err := OpenSink(path, "json", "site", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(WithRetry(3, time.Millisecond)).Run(context.Background(), []*site.Config{cfg}, sink); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	var grouped map[string][]map[string]any
	if err := json.Unmarshal(data, &grouped); err != nil {
		t.Fatalf("explicit json format should override the extension: %v", err)
	}
	if len(grouped["widgets-inc"]) != 3 {
		t.Errorf("unexpected grouping %v", grouped)
	}
}

func TestCrawler_Run_NonFinitePricesStillWriteOutput(t *testing.T) {
	prices := map[string]string{"/w/a": "$5.00", "/w/b": "NaN", "/w/c": "Inf"}
	mux := http.NewServeMux()
	mux.HandleFunc("/cat", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("p") != "1" {
			return
		}
		fmt.Fprint(w, `<a class="item" href="/w/a">a</a><a class="item" href="/w/b">b</a><a class="item" href="/w/c">c</a>`)
	})
	mux.HandleFunc("/w/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<h1 class="title">%s</h1><span class="price">%s</span>`, r.URL.Path, prices[r.URL.Path])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := shopSite(t, srv.URL)
	path := filepath.Join(t.TempDir(), "products.json")
	sink, err := OpenSink(path, "", "", false)
	if err != nil {
		t.Fatal(err)
	}

	summary, err := New(WithRetry(1, time.Millisecond)).Run(context.Background(), []*site.Config{cfg}, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.RecordsWritten != 3 {
		t.Errorf("RecordsWritten = %d, want 3", summary.RecordsWritten)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("output artifact missing: %v", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatal(err)
	}
	got := make(map[string]any, len(records))
	for _, rec := range records {
		got[rec["name"].(string)] = rec["price"]
	}
	want := map[string]any{"/w/a": 5.0, "/w/b": "NaN", "/w/c": "Inf"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("prices mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_WithLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	New(WithLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	t.Cleanup(func() { logger.Init(logger.Options{}) })

	if !strings.Contains(buf.String(), "crawler configured") {
		t.Errorf("expected crawl logging on the injected logger, got %q", buf.String())
	}
}

func TestCrawler_Run_NoSites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	sink, err := OpenSink(path, "", "", false)
	if err != nil {
		t.Fatal(err)
	}

	_, err = New().Run(context.Background(), nil, sink)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("no artifact should be written when nothing ran")
	}
}

func TestCrawler_Extract(t *testing.T) {
	srv, _ := newShop(t)
	cfg := shopSite(t, srv.URL)

	records, err := New().Extract(context.Background(), cfg, srv.URL+"/w/7", "widgets")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0]["name"] != "Widget 7" || records[0]["price"] != 7.0 {
		t.Errorf("unexpected records %v", records)
	}
}

func TestOpenSink_InvalidArguments(t *testing.T) {
	dir := t.TempDir()
	if _, err := OpenSink(filepath.Join(dir, "a.json"), "csv", "", false); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := OpenSink(filepath.Join(dir, "a.json"), "", "brand", false); err == nil {
		t.Error("expected error for unknown partition")
	}
	if _, err := OpenSink(filepath.Join(dir, "a.jsonl"), "", "domain", false); err == nil {
		t.Error("expected error for partitioned jsonl")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialDelay != time.Second {
		t.Errorf("unexpected retry defaults %+v", cfg.Retry)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}

	var c Config
	WithRelay("https://api.scraperapi.com", "k")(&c)
	if c.Relay == nil || c.Relay.APIKey != "k" {
		t.Error("WithRelay should configure the relay")
	}
	WithRelay("", "k")(&c)
	if c.Relay != nil {
		t.Error("empty relay URL should disable the relay")
	}
}
