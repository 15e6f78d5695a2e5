package site

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/catalogcrawl/pkg/selector"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// document is the top-level shape of a sites file.
type document struct {
	Sites []Spec `json:"sites" yaml:"sites"`
}

// FromFile loads every site from a JSON or YAML file.
func FromFile(path string) ([]*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- CLI reads a user-specified config file
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return FromJSON(data)
	case ".yaml", ".yml":
		return FromYAML(data)
	default:
		return nil, fmt.Errorf("%w: unsupported sites file format: %s", ErrInvalidConfig, ext)
	}
}

// FromJSON loads sites from JSON: either {"sites": [...]} or a bare array.
func FromJSON(data []byte) ([]*Config, error) {
	var specs []Spec
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &specs); err != nil {
			return nil, fmt.Errorf("%w: failed to parse JSON: %v", ErrInvalidConfig, err)
		}
	} else {
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: failed to parse JSON: %v", ErrInvalidConfig, err)
		}
		specs = doc.Sites
	}
	return CompileAll(specs)
}

// FromYAML loads sites from YAML: either a "sites:" mapping or a bare list.
func FromYAML(data []byte) ([]*Config, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	var specs []Spec
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		if err := node.Content[0].Decode(&specs); err != nil {
			return nil, fmt.Errorf("%w: failed to decode YAML: %v", ErrInvalidConfig, err)
		}
	} else {
		var doc document
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: failed to decode YAML: %v", ErrInvalidConfig, err)
		}
		specs = doc.Sites
	}
	return CompileAll(specs)
}

// CompileAll compiles specs and enforces unique site names.
func CompileAll(specs []Spec) ([]*Config, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no sites defined", ErrInvalidConfig)
	}

	configs := make([]*Config, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	var errs []error
	for i, spec := range specs {
		cfg, err := Compile(spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("sites[%d]: %w", i, err))
			continue
		}
		if seen[cfg.Name()] {
			errs = append(errs, configError(cfg.Name(), "duplicate site name"))
			continue
		}
		seen[cfg.Name()] = true
		configs = append(configs, cfg)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return configs, nil
}

// Compile validates a Spec and compiles its selectors.
func Compile(spec Spec) (*Config, error) {
	name := strings.TrimSpace(spec.Name)

	if err := validate.Struct(spec); err != nil {
		return nil, configError(name, "%s", describeValidation(err))
	}

	base, err := url.Parse(spec.BaseURL)
	if err != nil || base.Host == "" {
		return nil, configError(name, "base_url %q is not an absolute URL", spec.BaseURL)
	}
	if name == "" {
		name = base.Hostname()
	}

	cfg := &Config{
		name:              name,
		base:              base,
		auth:              NewAuthContext(spec.Cookie, spec.Headers),
		pageParam:         spec.PageParam,
		maxPages:          spec.MaxPages,
		requestsPerSecond: spec.RequestsPerSecond,
		required:          toSet(spec.RequiredFields),
		numeric:           toSet(spec.NumericFields),
	}
	if cfg.pageParam == "" {
		cfg.pageParam = DefaultPageParam
	}

	seenCategory := make(map[string]bool, len(spec.Categories))
	for _, cat := range spec.Categories {
		if seenCategory[cat.Name] {
			return nil, configError(name, "duplicate category %q", cat.Name)
		}
		seenCategory[cat.Name] = true
		if _, err := cfg.EntryURL(cat); err != nil {
			return nil, configError(name, "category %q: bad entry_url: %v", cat.Name, err)
		}
		cfg.categories = append(cfg.categories, cat)
	}

	if cfg.itemLink, err = compileSelector(name, "item_link_selector", spec.ItemLinkSelector); err != nil {
		return nil, err
	}
	if spec.NextPageSelector != "" {
		if cfg.nextPage, err = compileSelector(name, "next_page_selector", spec.NextPageSelector); err != nil {
			return nil, err
		}
	}
	if cfg.fields, err = compileFields(name, "field_selectors", spec.FieldSelectors); err != nil {
		return nil, err
	}

	if spec.OptionGroupSelector != "" {
		if cfg.optionGroup, err = compileSelector(name, "option_group_selector", spec.OptionGroupSelector); err != nil {
			return nil, err
		}
		if cfg.optionFields, err = compileFields(name, "option_field_selectors", spec.OptionFieldSelectors); err != nil {
			return nil, err
		}
	} else if len(spec.OptionFieldSelectors) > 0 {
		return nil, configError(name, "option_field_selectors requires option_group_selector")
	}

	known := make(map[string]bool)
	for _, f := range cfg.fields {
		known[f.Name] = true
	}
	for _, f := range cfg.optionFields {
		known[f.Name] = true
	}
	for _, f := range slices.Concat(spec.RequiredFields, spec.NumericFields) {
		if !known[f] {
			return nil, configError(name, "field %q is not defined by any selector", f)
		}
	}

	return cfg, nil
}

func compileSelector(site, key, expr string) (*selector.Query, error) {
	q, err := selector.Compile(expr)
	if err != nil {
		return nil, configError(site, "%s: %v", key, err)
	}
	return q, nil
}

func compileFields(site, key string, exprs map[string]string) ([]Field, error) {
	names := make([]string, 0, len(exprs))
	for name := range exprs {
		names = append(names, name)
	}
	slices.Sort(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, configError(site, "%s: empty field name", key)
		}
		if name == KeyProductURL || name == KeyCategory {
			return nil, configError(site, "%s: %q is a reserved key", key, name)
		}
		q, err := compileSelector(site, key+"."+name, exprs[name])
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: name, Query: q})
	}
	return fields, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Spec.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s needs at least %s entries", field, fe.Param()))
		case "url":
			msgs = append(msgs, field+" must be a URL")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
