package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/trialfunnel-cli/internal/aggregate"
	"github.com/KaramelBytes/trialfunnel-cli/internal/classify"
	"github.com/KaramelBytes/trialfunnel-cli/internal/exclusion"
	"github.com/KaramelBytes/trialfunnel-cli/internal/normalize"
	"github.com/KaramelBytes/trialfunnel-cli/internal/pipeline"
	"github.com/KaramelBytes/trialfunnel-cli/internal/utils"
)

// Global configuration structure.
type Global struct {
	// Business rules
	RetentionMinVisits int              `mapstructure:"retention_min_visits" yaml:"retention_min_visits" validate:"gte=1"`
	ExcludedProducts   []string         `mapstructure:"excluded_products" yaml:"excluded_products"`
	ExcludedCategories []string         `mapstructure:"excluded_categories" yaml:"excluded_categories"`
	AggregateLabels    []string         `mapstructure:"aggregate_labels" yaml:"aggregate_labels"`
	ExclusionRules     []exclusion.Rule `mapstructure:"exclusion_rules" yaml:"exclusion_rules" validate:"dive"`
	// ExtraSynonyms adds column labels: source -> field -> labels.
	ExtraSynonyms  map[string]map[string][]string `mapstructure:"extra_synonyms" yaml:"extra_synonyms,omitempty"`
	PeriodLayout   string                         `mapstructure:"period_layout" yaml:"period_layout" validate:"required"`
	CurrencySymbol string                         `mapstructure:"currency_symbol" yaml:"currency_symbol"`
	// NumberFormat pins money separators; left empty they are detected per cell.
	NumberFormat NumberFormat `mapstructure:"number_format" yaml:"number_format"`

	// Runtime
	Workers      int    `mapstructure:"workers" yaml:"workers" validate:"gte=0,lte=1024"`
	SnapshotsDir string `mapstructure:"snapshots_dir" yaml:"snapshots_dir"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat    string `mapstructure:"log_format" yaml:"log_format" validate:"oneof=text json"`
	HTTPAddr     string `mapstructure:"http_addr" yaml:"http_addr" validate:"required"`
	MetricsFile  string `mapstructure:"metrics_file" yaml:"metrics_file"`
}

// NumberFormat holds single-character decimal and thousands separators.
type NumberFormat struct {
	Decimal   string `mapstructure:"decimal" yaml:"decimal" validate:"omitempty,len=1"`
	Thousands string `mapstructure:"thousands" yaml:"thousands" validate:"omitempty,len=1"`
}

// DefaultPath returns ~/.trialfunnel/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".trialfunnel", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.trialfunnel/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (applied by the caller) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("TRIALFUNNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("retention_min_visits", classify.DefaultMinPostTrialVisits)
	v.SetDefault("excluded_products", classify.DefaultConversionRules().ExcludedProducts)
	v.SetDefault("excluded_categories", classify.DefaultConversionRules().ExcludedCategories)
	v.SetDefault("aggregate_labels", normalize.DefaultAggregateLabels)
	v.SetDefault("exclusion_rules", defaultRuleMaps())
	v.SetDefault("period_layout", aggregate.DefaultPeriodLayout)
	v.SetDefault("currency_symbol", "$")
	v.SetDefault("number_format.decimal", "")
	v.SetDefault("number_format.thousands", "")
	v.SetDefault("workers", 0)
	v.SetDefault("snapshots_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_file", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".trialfunnel"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Resolve snapshots_dir default: ~/.trialfunnel/snapshots
	if c.SnapshotsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		c.SnapshotsDir = filepath.Join(home, ".trialfunnel", "snapshots")
	}
	for _, p := range []*string{&c.SnapshotsDir, &c.MetricsFile} {
		expanded, err := utils.ExpandHome(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = validator.New()

// Validate checks field constraints and the synonym table keys.
func (c *Global) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	known := normalize.DefaultSynonyms()
	for src, fields := range c.ExtraSynonyms {
		canon, ok := known[normalize.Source(src)]
		if !ok {
			return fmt.Errorf("invalid config: extra_synonyms source %q (want clients, purchases or bookings)", src)
		}
		for f := range fields {
			if _, ok := canon[normalize.Field(f)]; !ok {
				return fmt.Errorf("invalid config: extra_synonyms field %q is not a %s field (want one of %s)",
					f, src, strings.Join(fieldNames(canon), ", "))
			}
		}
	}
	nf := c.NumberFormat
	if nf.Thousands != "" && nf.Decimal == "" {
		return errors.New("invalid config: number_format.thousands needs number_format.decimal")
	}
	if nf.Decimal != "" && nf.Decimal == nf.Thousands {
		return errors.New("invalid config: number_format separators must differ")
	}
	return nil
}

func fieldNames(m map[normalize.Field][]string) []string {
	out := make([]string, 0, len(m))
	for f := range m {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

// Options converts the configuration into pipeline options.
func (c *Global) Options() pipeline.Options {
	nopt := normalize.DefaultOptions()
	nopt.AggregateLabels = append([]string{}, c.AggregateLabels...)
	nopt.Numbers = normalize.NumberFormat{
		DecimalSeparator:   firstRune(c.NumberFormat.Decimal),
		ThousandsSeparator: firstRune(c.NumberFormat.Thousands),
	}
	if len(c.ExtraSynonyms) > 0 {
		extra := normalize.Synonyms{}
		for src, fields := range c.ExtraSynonyms {
			m := map[normalize.Field][]string{}
			for f, labels := range fields {
				m[normalize.Field(f)] = labels
			}
			extra[normalize.Source(src)] = m
		}
		nopt.Synonyms = nopt.Synonyms.Merge(extra)
	}
	rules := append([]exclusion.Rule{}, c.ExclusionRules...)
	return pipeline.Options{
		Normalize: nopt,
		Conversion: classify.ConversionRules{
			ExcludedProducts:   append([]string{}, c.ExcludedProducts...),
			ExcludedCategories: append([]string{}, c.ExcludedCategories...),
			CurrencySymbol:     c.CurrencySymbol,
		},
		MinPostTrialVisits: c.RetentionMinVisits,
		Exclusions:         rules,
		PeriodLayout:       c.PeriodLayout,
		Workers:            c.Workers,
	}
}

func defaultRuleMaps() []map[string]any {
	rules := exclusion.DefaultRules()
	out := make([]map[string]any, len(rules))
	for i, r := range rules {
		out[i] = map[string]any{"field": string(r.Field), "pattern": r.Pattern, "reason": r.Reason}
	}
	return out
}
