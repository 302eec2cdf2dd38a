package config

import (
	"fmt"
	"go/token"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dbsmedya/autoreg/internal/sqlutil"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
// An empty whitelist is not an error: it only ever yields an empty registry.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if c.Namespace == "" {
		errors = append(errors, ValidationError{
			Field:   "namespace",
			Message: "namespace (import path of the generated package) is required",
		})
	}

	for i, id := range c.Whitelist {
		if strings.TrimSpace(id) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("whitelist[%d]", i),
				Message: "identifier cannot be empty",
			})
		}
	}

	errors = append(errors, c.validateOutput()...)
	errors = append(errors, c.validateSources()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateState()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateOutput() ValidationErrors {
	var errors ValidationErrors

	if c.Output.File == "" {
		errors = append(errors, ValidationError{
			Field:   "output.file",
			Message: "file name is required",
		})
	} else if !strings.HasSuffix(c.Output.File, ".go") {
		errors = append(errors, ValidationError{
			Field:   "output.file",
			Message: "file name must end in .go",
		})
	}

	validVerify := map[string]bool{"sha256": true, "count": true, "skip": true, "": true}
	if !validVerify[c.Output.Verify] {
		errors = append(errors, ValidationError{
			Field:   "output.verify",
			Message: "verify must be 'sha256', 'count', or 'skip'",
		})
	}

	if c.Namespace != "" && !token.IsIdentifier(c.PackageName()) {
		errors = append(errors, ValidationError{
			Field:   "output.package",
			Message: fmt.Sprintf("%q is not a valid Go package name", c.PackageName()),
		})
	}

	return errors
}

func (c *Config) validateSources() ValidationErrors {
	var errors ValidationErrors

	if len(c.Sources.Include) == 0 {
		errors = append(errors, ValidationError{
			Field:   "sources.include",
			Message: "at least one include pattern is required",
		})
	}

	check := func(field string, patterns []string) {
		for i, pat := range patterns {
			if !doublestar.ValidatePattern(pat) {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", field, i),
					Message: fmt.Sprintf("invalid glob pattern %q", pat),
				})
			}
		}
	}
	check("sources.include", c.Sources.Include)
	check("sources.exclude", c.Sources.Exclude)
	check("watch.ignore", c.Watch.Ignore)

	return errors
}

func (c *Config) validatePipeline() ValidationErrors {
	var errors ValidationErrors

	if c.Pipeline.Workers < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.workers",
			Message: "workers cannot be negative",
		})
	}

	if c.Pipeline.MemoSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.memo_size",
			Message: "memo_size must be positive",
		})
	}

	if c.Watch.DebounceMS < 0 {
		errors = append(errors, ValidationError{
			Field:   "watch.debounce_ms",
			Message: "debounce_ms cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateState() ValidationErrors {
	var errors ValidationErrors

	switch c.State.Backend {
	case BackendNone, "":
	case BackendFile:
		if c.State.Dir == "" {
			errors = append(errors, ValidationError{
				Field:   "state.dir",
				Message: "dir is required for the file backend",
			})
		}
	case BackendMySQL:
		if c.State.Table != "" && !sqlutil.IsValidIdentifier(c.State.Table) {
			errors = append(errors, ValidationError{
				Field:   "state.table",
				Message: fmt.Sprintf("%q is not a valid table name", c.State.Table),
			})
		}
		errors = append(errors, c.validateDatabase("state.database", &c.State.Database)...)
	default:
		errors = append(errors, ValidationError{
			Field:   "state.backend",
			Message: "backend must be 'none', 'file', or 'mysql'",
		})
	}

	if c.State.LockTimeout < -1 {
		errors = append(errors, ValidationError{
			Field:   "state.lock_timeout",
			Message: "lock_timeout must be -1 (infinite) or greater",
		})
	}

	return errors
}

func (c *Config) validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".host",
			Message: "host is required",
		})
	}

	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".port",
			Message: "port must be between 1 and 65535",
		})
	}

	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".user",
			Message: "user is required",
		})
	}

	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".database",
			Message: "database name is required",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
