package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LogConfig is the user-facing logging configuration, embedded in the
// application config under the "log" key.
type LogConfig struct {
	Level      string          `json:"level" koanf:"level"`
	Format     string          `json:"format" koanf:"format"`
	Output     string          `json:"output" koanf:"output"`
	Components map[string]bool `json:"components" koanf:"components"`
	ShowCaller bool            `json:"show_caller" koanf:"show_caller"`
	Timestamp  bool            `json:"timestamp" koanf:"timestamp"`
	Rotation   *RotationConfig `json:"rotation,omitempty" koanf:"rotation"`
}

// RotationConfig represents log rotation configuration
type RotationConfig struct {
	MaxSize    string `json:"max_size" koanf:"max_size"`       // e.g., "100MB", "1GB"
	MaxAge     string `json:"max_age" koanf:"max_age"`         // e.g., "7d", "24h"
	MaxBackups int    `json:"max_backups" koanf:"max_backups"` // number of backup files
	Compress   bool   `json:"compress" koanf:"compress"`       // gzip rotated files
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	components := make(map[string]bool, len(AllComponents))
	for c, on := range DefaultConfig().Components {
		components[string(c)] = on
	}
	return &LogConfig{
		Level:      "INFO",
		Format:     "text",
		Output:     "stdout",
		Components: components,
		ShowCaller: false,
		Timestamp:  true,
		Rotation: &RotationConfig{
			MaxSize:    "100MB",
			MaxAge:     "7d",
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// ApplyEnv overrides fields from TWITVID_LOG_* environment variables.
func (c *LogConfig) ApplyEnv() {
	if level := os.Getenv("TWITVID_LOG_LEVEL"); level != "" {
		c.Level = level
	}
	if format := os.Getenv("TWITVID_LOG_FORMAT"); format != "" {
		c.Format = format
	}
	if output := os.Getenv("TWITVID_LOG_OUTPUT"); output != "" {
		c.Output = output
	}
	if caller := os.Getenv("TWITVID_LOG_CALLER"); caller != "" {
		c.ShowCaller = caller == "true" || caller == "1"
	}
	if timestamp := os.Getenv("TWITVID_LOG_TIMESTAMP"); timestamp != "" {
		c.Timestamp = timestamp == "true" || timestamp == "1"
	}
	// TWITVID_LOG_COMPONENTS=all or a comma separated allow-list
	if components := os.Getenv("TWITVID_LOG_COMPONENTS"); components != "" {
		c.Components = make(map[string]bool)
		for _, comp := range strings.Split(components, ",") {
			comp = strings.TrimSpace(comp)
			if comp == "all" {
				for _, known := range AllComponents {
					c.Components[string(known)] = true
				}
				continue
			}
			if comp != "" {
				c.Components[comp] = true
			}
		}
	}
}

// Validate validates the configuration
func (c *LogConfig) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if _, err := parseFormat(c.Format); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	if err := validateOutput(c.Output); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}
	if c.Rotation != nil {
		if err := c.Rotation.Validate(); err != nil {
			return fmt.Errorf("invalid rotation config: %w", err)
		}
	}
	return nil
}

// Validate validates rotation configuration
func (r *RotationConfig) Validate() error {
	if _, err := parseSize(r.MaxSize); err != nil {
		return fmt.Errorf("invalid max_size: %w", err)
	}
	if _, err := parseDuration(r.MaxAge); err != nil {
		return fmt.Errorf("invalid max_age: %w", err)
	}
	if r.MaxBackups < 0 {
		return fmt.Errorf("max_backups must be non-negative")
	}
	return nil
}

// Build creates a Logger from the configuration. File outputs ("file:<path>")
// are rotated when Rotation is set. The returned closer releases the file and
// is a no-op for stdout/stderr.
func (c *LogConfig) Build() (*Logger, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}
	level, _ := parseLevel(c.Level)
	format, _ := parseFormat(c.Format)

	output, closer, err := c.openOutput()
	if err != nil {
		return nil, nil, err
	}

	components := make(map[Component]bool, len(c.Components))
	for name, enabled := range c.Components {
		components[Component(name)] = enabled
	}

	return New(&Config{
		Level:      level,
		Format:     format,
		Output:     output,
		Components: components,
		ShowCaller: c.ShowCaller,
		Timestamp:  c.Timestamp,
	}), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (c *LogConfig) openOutput() (io.Writer, io.Closer, error) {
	switch strings.ToLower(c.Output) {
	case "", "stdout":
		return os.Stdout, nopCloser{}, nil
	case "stderr":
		return os.Stderr, nopCloser{}, nil
	case "null", "none":
		return io.Discard, nopCloser{}, nil
	}

	path := strings.TrimPrefix(c.Output, "file:")
	if c.Rotation != nil {
		maxSize, _ := parseSize(c.Rotation.MaxSize)
		maxAge, _ := parseDuration(c.Rotation.MaxAge)
		rw, err := NewRotatingWriter(path, maxSize, maxAge, c.Rotation.MaxBackups, c.Rotation.Compress)
		if err != nil {
			return nil, nil, fmt.Errorf("create rotating writer: %w", err)
		}
		return rw, rw, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, f, nil
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(levelStr string) (Level, error) {
	return parseLevel(levelStr)
}

func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

func validateOutput(outputStr string) error {
	switch strings.ToLower(outputStr) {
	case "", "stdout", "stderr", "null", "none":
		return nil
	}
	if strings.HasPrefix(outputStr, "file:") && strings.TrimPrefix(outputStr, "file:") != "" {
		return nil
	}
	return fmt.Errorf("unknown output: %s", outputStr)
}

// splitNumber splits "100MB" into ("100", "MB").
func splitNumber(s string) (int64, string, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("no number found in %q", s)
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse number: %w", err)
	}
	return n, strings.TrimSpace(s[i:]), nil
}

// parseSize parses size string (e.g., "100MB", "1GB") to bytes
func parseSize(sizeStr string) (int64, error) {
	if strings.TrimSpace(sizeStr) == "" {
		return 0, nil
	}
	num, unit, err := splitNumber(sizeStr)
	if err != nil {
		return 0, err
	}
	switch strings.ToUpper(unit) {
	case "B", "":
		return num, nil
	case "KB", "K":
		return num << 10, nil
	case "MB", "M":
		return num << 20, nil
	case "GB", "G":
		return num << 30, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}

// parseDuration parses duration string (e.g., "7d", "24h", "30m")
func parseDuration(durationStr string) (time.Duration, error) {
	if strings.TrimSpace(durationStr) == "" {
		return 0, nil
	}
	num, unit, err := splitNumber(durationStr)
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(unit) {
	case "s", "sec":
		return time.Duration(num) * time.Second, nil
	case "m", "min":
		return time.Duration(num) * time.Minute, nil
	case "h", "hour", "hours":
		return time.Duration(num) * time.Hour, nil
	case "d", "day", "days":
		return time.Duration(num) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}
