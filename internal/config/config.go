// Package config loads and validates controls configuration files.
//
// A file is checked twice: against the embedded CUE schema (types, enums and
// identifiers, with line numbers) and then by Validate for the rules CUE
// cannot express (non-empty partition, unique check ids, range bounds).
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/controls/internal/checks"
	"github.com/roach88/controls/internal/engine"
	"github.com/roach88/controls/internal/metrics"
	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/store"
)

// Config is one controls configuration file.
type Config struct {
	Database    Database        `yaml:"database" json:"database"`
	Partition   model.Partition `yaml:"partition" json:"partition"`
	Tables      model.Layout    `yaml:"tables,omitempty" json:"tables"`
	StalePolicy string          `yaml:"stale_policy,omitempty" json:"stale_policy"`
	Checks      []checks.Spec   `yaml:"checks,omitempty" json:"checks"`
	Metrics     Metrics         `yaml:"metrics,omitempty" json:"metrics"`
}

// Database selects the driver and data source.
type Database struct {
	Driver string `yaml:"driver,omitempty" json:"driver"`

	// DSN is expanded with os.ExpandEnv, so secrets can stay in the environment.
	DSN string `yaml:"dsn" json:"dsn"`
}

// Metrics configures the Pushgateway push after a run.
type Metrics struct {
	Pushgateway string `yaml:"pushgateway,omitempty" json:"pushgateway,omitempty"`
	Job         string `yaml:"job,omitempty" json:"job,omitempty"`
}

// Load reads, schema-checks, decodes and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse is Load for in-memory content. filename is used in error positions.
func Parse(filename string, data []byte) (*Config, error) {
	if errs := checkSchema(filename, data); len(errs) > 0 {
		return nil, errs
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	cfg.applyDefaults()
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = store.DefaultDriver
	}
	c.Database.DSN = os.ExpandEnv(c.Database.DSN)
	c.Tables = c.Tables.WithDefaults()
	if c.StalePolicy == "" {
		c.StalePolicy = string(engine.DefaultStalePolicy)
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = metrics.DefaultJob
	}
	for i := range c.Checks {
		c.Checks[i] = c.Checks[i].WithDefaults()
	}
}

// Validate reports every rule violation of a decoded configuration.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := store.DialectFor(c.Database.Driver); err != nil {
		add("database.driver", "%v", err)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		add("database.dsn", "empty after environment expansion")
	}
	if c.Partition.IsZero() {
		add("partition", "at least one field is required")
	}
	for _, col := range c.Partition.Columns() {
		if model.IsReservedColumn(col) {
			add("partition."+col, "collides with an outcome column")
		}
	}
	if err := c.Tables.Validate(); err != nil {
		add("tables", "%v", err)
	}
	if _, err := engine.ParseStalePolicy(c.StalePolicy); err != nil {
		add("stale_policy", "%v", err)
	}

	seen := make(map[string]int)
	for i, spec := range c.Checks {
		field := fmt.Sprintf("checks[%d]", i)
		if err := spec.Validate(); err != nil {
			add(field, "%v", err)
		}
		if prev, dup := seen[spec.ID]; dup {
			add(field+".id", "duplicate id %q (also checks[%d])", spec.ID, prev)
		}
		seen[spec.ID] = i
	}
	return errs
}

// CheckIDs returns the ids of the declared checks in file order.
func (c *Config) CheckIDs() []string {
	ids := make([]string, len(c.Checks))
	for i, s := range c.Checks {
		ids[i] = s.ID
	}
	return ids
}

// PushGrouping returns the Pushgateway grouping labels: the partition fields.
func (c *Config) PushGrouping() map[string]string {
	g := make(map[string]string)
	for _, f := range c.Partition.Fields() {
		g[f.Name] = f.Value
	}
	return g
}
