// Package config provides configuration structures and loading for autoreg.
package config

import (
	"path"
	"path/filepath"
	"strings"
)

// Config represents the complete application configuration.
type Config struct {
	Namespace string         `yaml:"namespace" mapstructure:"namespace"` // import path of the generated package
	Whitelist []string       `yaml:"whitelist" mapstructure:"whitelist"` // capability interface identifiers
	Output    OutputConfig   `yaml:"output" mapstructure:"output"`
	Sources   SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	Pipeline  PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	State     StateConfig    `yaml:"state" mapstructure:"state"`
	Watch     WatchConfig    `yaml:"watch" mapstructure:"watch"`
	Logging   LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// OutputConfig controls where the generated registry is written.
type OutputConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	File    string `yaml:"file" mapstructure:"file"`
	Package string `yaml:"package" mapstructure:"package"` // defaults to the last namespace element
	Verify  string `yaml:"verify" mapstructure:"verify"`   // check method: sha256, count, skip
}

// SourcesConfig selects the declaration sources to scan.
type SourcesConfig struct {
	Root    string   `yaml:"root" mapstructure:"root"`
	Module  string   `yaml:"module" mapstructure:"module"` // overrides the go.mod module path
	Include []string `yaml:"include" mapstructure:"include"`
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
}

// PipelineConfig represents discovery pipeline tuning.
type PipelineConfig struct {
	Workers  int `yaml:"workers" mapstructure:"workers"`     // 0 means GOMAXPROCS
	MemoSize int `yaml:"memo_size" mapstructure:"memo_size"` // classification memo entries
}

// StateConfig selects where the previous discovery set is persisted between runs.
type StateConfig struct {
	Backend     string         `yaml:"backend" mapstructure:"backend"` // none, file, mysql
	Dir         string         `yaml:"dir" mapstructure:"dir"`
	Table       string         `yaml:"table" mapstructure:"table"`               // mysql state table
	LockTimeout int            `yaml:"lock_timeout" mapstructure:"lock_timeout"` // seconds
	Database    DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig represents a MySQL database connection configuration.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// WatchConfig represents watch mode settings.
type WatchConfig struct {
	DebounceMS int      `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	Ignore     []string `yaml:"ignore" mapstructure:"ignore"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// State backends.
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendMySQL = "mysql"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Dir:    "registry",
			File:   "autoreg_registry.go",
			Verify: "sha256",
		},
		Sources: SourcesConfig{
			Root:    ".",
			Include: []string{"**/*.go", "**/*.autoreg.yaml"},
			Exclude: []string{"**/*_test.go", "**/testdata/**", "vendor/**"},
		},
		Pipeline: PipelineConfig{
			Workers:  0,
			MemoSize: 4096,
		},
		State: StateConfig{
			Backend:     BackendNone,
			Dir:         ".autoreg",
			Table:       "autoreg_discovery",
			LockTimeout: 10,
			Database: DatabaseConfig{
				Port:               3306,
				TLS:                "preferred",
				MaxConnections:     2,
				MaxIdleConnections: 1,
			},
		},
		Watch: WatchConfig{
			DebounceMS: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// PackageName returns the Go package name of the generated file.
func (c *Config) PackageName() string {
	if c.Output.Package != "" {
		return c.Output.Package
	}
	name := path.Base(c.Namespace)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	return name
}

// OutputPath returns the path of the generated file.
func (c *Config) OutputPath() string {
	return filepath.Join(c.Output.Dir, c.Output.File)
}
