// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-aper.
//
// go-aper is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-aper/pkg/adapters"
	"github.com/jeremyhahn/go-aper/pkg/aper"
	"github.com/jeremyhahn/go-aper/pkg/local"
)

// Default database file names.
const (
	DefaultReplyFile   = "phishing_reply_addresses"
	DefaultClearedFile = "phishing_cleared_addresses"
	DefaultLinksFile   = "phishing_links"
)

// Config holds the CLI configuration settings.
type Config struct {
	DataDir     string
	ReplyFile   string
	ClearedFile string
	LinksFile   string
	TempDir     string
	TempPrefix  string

	OutputFormat string
	LogLevel     string
	LogFormat    string

	// MetricsTextfile is where run metrics are written. Empty disables them.
	MetricsTextfile string

	// AuditLog is a JSON lines file recording every database change. Empty
	// disables it.
	AuditLog string
}

// InitConfig initializes the configuration using Viper.
// Configuration priority: flags > env vars > config file > defaults.
func InitConfig(cfgFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("data-dir", ".")
	v.SetDefault("reply-file", DefaultReplyFile)
	v.SetDefault("cleared-file", DefaultClearedFile)
	v.SetDefault("links-file", DefaultLinksFile)
	v.SetDefault("temp-dir", "")
	v.SetDefault("temp-prefix", local.DefaultTempPrefix)
	v.SetDefault("output-format", string(FormatText))
	v.SetDefault("log-level", "warn")
	v.SetDefault("log-format", adapters.FormatText)
	v.SetDefault("metrics-textfile", "")
	v.SetDefault("audit-log", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".aper")
		v.SetConfigType("yaml")
	}

	// APER_DATA_DIR maps to data-dir.
	v.SetEnvPrefix("APER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return v, nil
}

// GetConfig extracts the configuration from Viper into a Config struct.
func GetConfig(v *viper.Viper) *Config {
	return &Config{
		DataDir:         v.GetString("data-dir"),
		ReplyFile:       v.GetString("reply-file"),
		ClearedFile:     v.GetString("cleared-file"),
		LinksFile:       v.GetString("links-file"),
		TempDir:         v.GetString("temp-dir"),
		TempPrefix:      v.GetString("temp-prefix"),
		OutputFormat:    v.GetString("output-format"),
		LogLevel:        v.GetString("log-level"),
		LogFormat:       v.GetString("log-format"),
		MetricsTextfile: v.GetString("metrics-textfile"),
		AuditLog:        v.GetString("audit-log"),
	}
}

// DatabaseConfig converts Config to the file backend settings.
func (c *Config) DatabaseConfig() local.Config {
	return local.Config{
		DataDir: c.DataDir,
		Files: map[aper.List]string{
			aper.Reply:   c.ReplyFile,
			aper.Cleared: c.ClearedFile,
			aper.Links:   c.LinksFile,
		},
		TempDir:    c.TempDir,
		TempPrefix: c.TempPrefix,
	}
}

// NewLogger builds the logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) (adapters.Logger, error) {
	level, err := adapters.ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return adapters.NewLogger(w, c.LogFormat, level), nil
}

// DisplayConfig formats and displays the current configuration.
func DisplayConfig(cfg *Config, format string) string {
	switch format {
	case string(FormatJSON):
		return formatConfigJSON(cfg)
	case string(FormatTable):
		return formatConfigTable(cfg)
	default:
		return formatConfigText(cfg)
	}
}

type configEntry struct {
	label string
	key   string
	value string
}

// entries lists the settings in display order. Empty optional values are
// left out.
func (c *Config) entries() []configEntry {
	all := []configEntry{
		{"Data Dir", "data_dir", c.DataDir},
		{"Reply File", "reply_file", c.ReplyFile},
		{"Cleared File", "cleared_file", c.ClearedFile},
		{"Links File", "links_file", c.LinksFile},
		{"Temp Dir", "temp_dir", c.TempDir},
		{"Temp Prefix", "temp_prefix", c.TempPrefix},
		{"Log Level", "log_level", c.LogLevel},
		{"Log Format", "log_format", c.LogFormat},
		{"Metrics File", "metrics_textfile", c.MetricsTextfile},
		{"Audit Log", "audit_log", c.AuditLog},
		{"Output Format", "output_format", c.OutputFormat},
	}

	entries := all[:0]
	for _, e := range all {
		if e.value != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

func formatConfigText(cfg *Config) string {
	var b strings.Builder
	for _, e := range cfg.entries() {
		fmt.Fprintf(&b, "%s: %s\n", e.label, e.value)
	}
	return b.String()
}

func formatConfigTable(cfg *Config) string {
	var result string
	result += "┌──────────────────┬────────────────────────────────────────┐\n"
	result += "│ Setting          │ Value                                  │\n"
	result += "├──────────────────┼────────────────────────────────────────┤\n"
	for _, e := range cfg.entries() {
		result += fmt.Sprintf("│ %-16s │ %-38s │\n", e.label, truncate(e.value, 38))
	}
	result += "└──────────────────┴────────────────────────────────────────┘\n"
	return result
}

func formatConfigJSON(cfg *Config) string {
	m := make(map[string]string)
	for _, e := range cfg.entries() {
		m[e.key] = e.value
	}
	return formatJSON(m)
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// ValidateConfig validates the configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.DataDir == "" {
		return ErrDataDirRequired
	}
	// Expand path if it contains ~
	if strings.HasPrefix(cfg.DataDir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		cfg.DataDir = filepath.Join(home, cfg.DataDir[1:])
	}

	for _, name := range []string{cfg.ReplyFile, cfg.ClearedFile, cfg.LinksFile} {
		if name == "" {
			return ErrFileNameRequired
		}
	}

	switch OutputFormat(cfg.OutputFormat) {
	case FormatText, FormatJSON, FormatTable:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedOutputFormat, cfg.OutputFormat)
	}

	if cfg.LogFormat != adapters.FormatText && cfg.LogFormat != adapters.FormatJSON {
		return fmt.Errorf("%w: %q", ErrUnsupportedLogFormat, cfg.LogFormat)
	}
	if _, err := adapters.ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	return nil
}
