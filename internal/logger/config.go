package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LogConfig is the serializable form of Config. It is embedded in the module
// configuration file under the "log" key.
type LogConfig struct {
	Level      string          `json:"level" yaml:"level" toml:"level"`
	Format     string          `json:"format" yaml:"format" toml:"format"`
	Output     string          `json:"output" yaml:"output" toml:"output"`
	Components map[string]bool `json:"components,omitempty" yaml:"components,omitempty" toml:"components,omitempty"`
	Timestamp  bool            `json:"timestamp" yaml:"timestamp" toml:"timestamp"`
	Rotation   *RotationConfig `json:"rotation,omitempty" yaml:"rotation,omitempty" toml:"rotation,omitempty"`
}

// RotationConfig represents log rotation configuration for file outputs.
type RotationConfig struct {
	MaxSize    string `json:"max_size" yaml:"max_size" toml:"max_size"` // e.g. "10MB"
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	components := make(map[string]bool, len(AllComponents))
	for _, c := range AllComponents {
		components[string(c)] = true
	}
	return &LogConfig{
		Level:      "WARN",
		Format:     "text",
		Output:     "stderr",
		Components: components,
	}
}

// EnvironmentConfig overlays DESCRAMBLE_LOG_* variables onto base. A nil base
// starts from DefaultLogConfig.
func EnvironmentConfig(base *LogConfig) *LogConfig {
	config := base
	if config == nil {
		config = DefaultLogConfig()
	}

	if level := os.Getenv("DESCRAMBLE_LOG_LEVEL"); level != "" {
		config.Level = level
	}
	if format := os.Getenv("DESCRAMBLE_LOG_FORMAT"); format != "" {
		config.Format = format
	}
	if output := os.Getenv("DESCRAMBLE_LOG_OUTPUT"); output != "" {
		config.Output = output
	}
	if timestamp := os.Getenv("DESCRAMBLE_LOG_TIMESTAMP"); timestamp != "" {
		config.Timestamp = timestamp == "true" || timestamp == "1"
	}
	if components := os.Getenv("DESCRAMBLE_LOG_COMPONENTS"); components != "" {
		config.Components = make(map[string]bool)
		for _, comp := range strings.Split(components, ",") {
			if comp = strings.TrimSpace(comp); comp != "" {
				config.Components[comp] = true
			}
		}
	}
	return config
}

// Validate checks that every field can be converted.
func (c *LogConfig) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if _, err := parseFormat(c.Format); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	if c.Rotation != nil {
		if _, err := parseSize(c.Rotation.MaxSize); err != nil {
			return fmt.Errorf("invalid max_size: %w", err)
		}
		if c.Rotation.MaxBackups < 0 {
			return fmt.Errorf("max_backups must be non-negative")
		}
	}
	return nil
}

// Build creates a Logger from the configuration. The returned closer releases
// a file output and is a no-op for stdout and stderr.
func (c *LogConfig) Build() (*Logger, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	level, _ := parseLevel(c.Level)
	format, _ := parseFormat(c.Format)

	output, closer, err := c.openOutput()
	if err != nil {
		return nil, nil, err
	}

	components := make(map[Component]bool)
	for name, enabled := range c.Components {
		components[Component(name)] = enabled
	}

	return New(&Config{
		Level:      level,
		Format:     format,
		Output:     output,
		Components: components,
		Timestamp:  c.Timestamp,
	}), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (c *LogConfig) openOutput() (io.Writer, io.Closer, error) {
	switch strings.ToLower(c.Output) {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	case "discard", "none":
		return io.Discard, nopCloser{}, nil
	}
	filename := strings.TrimPrefix(c.Output, "file:")
	var maxSize int64
	backups := 0
	if c.Rotation != nil {
		maxSize, _ = parseSize(c.Rotation.MaxSize)
		backups = c.Rotation.MaxBackups
	}
	w, err := NewRotatingWriter(filename, maxSize, backups)
	if err != nil {
		return nil, nil, err
	}
	return w, w, nil
}

func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(levelStr) {
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
	switch strings.ToLower(formatStr) {
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

// parseSize parses size strings such as "512KB" or "10MB" into bytes.
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, nil
	}
	i := 0
	for i < len(sizeStr) && sizeStr[i] >= '0' && sizeStr[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("no number found in size: %s", sizeStr)
	}
	num, err := strconv.ParseInt(sizeStr[:i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number: %w", err)
	}
	switch strings.ToUpper(strings.TrimSpace(sizeStr[i:])) {
	case "B", "":
		return num, nil
	case "KB":
		return num << 10, nil
	case "MB":
		return num << 20, nil
	case "GB":
		return num << 30, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", sizeStr[i:])
	}
}
