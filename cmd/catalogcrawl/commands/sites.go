package commands

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

var errNoSites = errors.New("no site configuration: pass --sites or set sites in the config file")

// loadSites reads the configured site file and applies the --site filter.
func loadSites() ([]*site.Config, error) {
	path := viper.GetString("sites")
	if path == "" {
		return nil, errNoSites
	}

	logger.Debug("loading sites", "path", path)
	sites, err := site.FromFile(path)
	if err != nil {
		return nil, err
	}
	return filterSites(sites, viper.GetStringSlice("site"))
}

func filterSites(sites []*site.Config, names []string) ([]*site.Config, error) {
	if len(names) == 0 {
		return sites, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}

	var out []*site.Config
	for _, s := range sites {
		if want[s.Name()] {
			out = append(out, s)
			delete(want, s.Name())
		}
	}
	if len(want) > 0 {
		return nil, fmt.Errorf("unknown site(s): %s", strings.Join(slices.Sorted(maps.Keys(want)), ", "))
	}
	return out, nil
}
