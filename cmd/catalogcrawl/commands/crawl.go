package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/pkg/catalog"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the configured sites and write product records",
	Long: `Walk every category of every configured site, follow item links and
extract one record per product or per product option.

Output is written to a temporary file beside the destination and renamed
into place when the crawl ends, so an interrupted run never leaves a
truncated file. Ctrl-C stops discovery, lets in-flight items finish and
keeps what was extracted.

Examples:
  # Everything to one JSON array
  catalogcrawl crawl -s sites.yaml -o products.json

  # Grouped by site into YAML
  catalogcrawl crawl -s sites.yaml -o products.yaml --partition site

  # Through a scraping relay (key may also come from SCRAPERAPI_KEY)
  catalogcrawl crawl -s sites.yaml -o products.db \
      --relay-url https://api.scraperapi.com --relay-key $KEY`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	flags := crawlCmd.Flags()
	flags.StringP("output", "o", "-", "output file (- for stdout)")
	flags.StringP("format", "f", "", "output format: json, jsonl, yaml, sqlite (default from extension)")
	flags.String("partition", "none", "group records by: none, domain, site, category")
	flags.Bool("pretty", true, "indent JSON output")
	flags.IntP("concurrency", "n", 4, "concurrent item fetches")
	flags.Int("walkers", 4, "categories walked concurrently")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.Int("max-attempts", 3, "fetch attempts per URL")
	flags.Duration("retry-delay", time.Second, "first retry delay, doubled on each attempt")
	flags.String("max-body-size", "10MB", "maximum response size (e.g. 5MB, 512KB)")
	flags.String("user-agent", "", "HTTP user agent (site headers take precedence)")
	flags.String("relay-url", "", "route requests through a relay at this URL")
	flags.String("relay-key", "", "relay API key")
	flags.Bool("strict-numeric", false, "store null for numeric fields that do not parse")

	_ = viper.BindPFlag("output", flags.Lookup("output"))
	_ = viper.BindPFlag("format", flags.Lookup("format"))
	_ = viper.BindPFlag("partition", flags.Lookup("partition"))
	_ = viper.BindPFlag("pretty", flags.Lookup("pretty"))
	_ = viper.BindPFlag("concurrency", flags.Lookup("concurrency"))
	_ = viper.BindPFlag("walkers", flags.Lookup("walkers"))
	_ = viper.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = viper.BindPFlag("max_attempts", flags.Lookup("max-attempts"))
	_ = viper.BindPFlag("retry_delay", flags.Lookup("retry-delay"))
	_ = viper.BindPFlag("max_body_size", flags.Lookup("max-body-size"))
	_ = viper.BindPFlag("user_agent", flags.Lookup("user-agent"))
	_ = viper.BindPFlag("relay.url", flags.Lookup("relay-url"))
	_ = viper.BindPFlag("relay.api_key", flags.Lookup("relay-key"))
	_ = viper.BindPFlag("strict_numeric", flags.Lookup("strict-numeric"))
}

func runCrawl(_ *cobra.Command, _ []string) error {
	initLogger()

	// Stop discovery on SIGINT/SIGTERM; in-flight items still complete.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Debug("crawl command starting")

	sites, err := loadSites()
	if err != nil {
		logError("%v", err)
		return err
	}

	opts, err := crawlOptions()
	if err != nil {
		logError("%v", err)
		return err
	}

	outPath := viper.GetString("output")
	sink, err := catalog.OpenSink(outPath, viper.GetString("format"), viper.GetString("partition"), viper.GetBool("pretty"))
	if err != nil {
		logger.Error("failed to open output", "path", outPath, "error", err)
		return err
	}

	logInfo("Crawling %d site(s) with %d workers...", len(sites), viper.GetInt("concurrency"))
	start := time.Now()

	summary, err := catalog.New(opts...).Run(ctx, sites, sink)
	if runErr := crawlResult(summary, err); runErr != nil {
		return runErr
	}

	logger.Info("crawl summary", summary.LogArgs()...)
	logInfo("Wrote %s record(s) from %s item page(s) in %s (%d fetch, %d extraction failures)",
		humanize.Comma(summary.RecordsWritten),
		humanize.Comma(summary.ItemsExtracted),
		time.Since(start).Round(time.Millisecond),
		summary.FetchFailures, summary.ExtractionFailures)
	return nil
}

// crawlOptions maps configuration keys onto crawler options.
func crawlOptions() ([]catalog.Option, error) {
	maxBody, err := humanize.ParseBytes(viper.GetString("max_body_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid max-body-size %q: %w", viper.GetString("max_body_size"), err)
	}
	logger.Debug("max body size", "bytes", maxBody)

	attempts := viper.GetInt("max_attempts")
	if attempts < 1 {
		return nil, fmt.Errorf("max-attempts must be at least 1, got %d", attempts)
	}

	opts := []catalog.Option{
		catalog.WithWorkers(viper.GetInt("concurrency")),
		catalog.WithWalkers(viper.GetInt("walkers")),
		catalog.WithTimeout(viper.GetDuration("timeout")),
		catalog.WithMaxBodySize(int(maxBody)),
		catalog.WithRetry(attempts, viper.GetDuration("retry_delay")),
		catalog.WithRelay(viper.GetString("relay.url"), viper.GetString("relay.api_key")),
		catalog.WithStrictNumeric(viper.GetBool("strict_numeric")),
	}
	if ua := viper.GetString("user_agent"); ua != "" {
		opts = append(opts, catalog.WithUserAgent(ua))
	}
	return opts, nil
}

// errInterrupted marks a run stopped by a signal. Its output holds only the
// items completed before the stop.
var errInterrupted = errors.New("crawl interrupted")

// crawlResult turns the outcome of a run into the command's exit error.
func crawlResult(summary catalog.Summary, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		logInfo("Interrupted: kept %s record(s)", humanize.Comma(summary.RecordsWritten))
		return fmt.Errorf("%w: %w", errInterrupted, err)
	case err != nil:
		logger.Error("crawl failed", "error", err)
		return err
	}
	return nil
}
