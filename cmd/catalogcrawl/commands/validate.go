package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a site configuration file",
	Long: `Load and compile every site in a configuration file without fetching
anything. Selectors are compiled, URLs resolved and required or numeric
fields checked against the declared field selectors.

Examples:
  catalogcrawl validate -s sites.yaml
  catalogcrawl validate -s sites.yaml --site demandvape`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	initLogger()

	sites, err := loadSites()
	if err != nil {
		logError("%v", err)
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Site", "Base URL", "Categories", "Fields", "Option Fields", "Max Pages", "Req/s", "Auth"})

	for _, s := range sites {
		maxPages := "-"
		if s.MaxPages() > 0 {
			maxPages = fmt.Sprint(s.MaxPages())
		}
		rps := "-"
		if s.RequestsPerSecond() > 0 {
			rps = fmt.Sprintf("%g", s.RequestsPerSecond())
		}
		auth := s.Auth()
		t.AppendRow(table.Row{
			s.Name(),
			s.BaseURL(),
			len(s.Categories()),
			len(s.Fields()),
			len(s.OptionFields()),
			maxPages,
			rps,
			fmt.Sprintf("%d cookies, %d headers", len(auth.Cookies()), len(auth.Headers())),
		})
	}
	t.AppendFooter(table.Row{"Total", len(sites)})
	t.Render()

	logInfo("%d site(s) OK", len(sites))
	return nil
}
