package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the logging level
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// String returns the level name.
func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// MarshalJSON writes the level as its name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Component represents the logging component
type Component string

const (
	ComponentApp        Component = "app"
	ComponentResolver   Component = "resolver"
	ComponentDownloader Component = "downloader"
	ComponentShortCode  Component = "shortcode"
	ComponentStorage    Component = "storage"
	ComponentUpload     Component = "upload"
	ComponentServer     Component = "server"
	ComponentClient     Component = "client"
	ComponentScript     Component = "script"
	ComponentCache      Component = "cache"
)

// AllComponents lists every known component.
var AllComponents = []Component{
	ComponentApp,
	ComponentResolver,
	ComponentDownloader,
	ComponentShortCode,
	ComponentStorage,
	ComponentUpload,
	ComponentServer,
	ComponentClient,
	ComponentScript,
	ComponentCache,
}

// Fields carries structured key/value pairs for a log entry.
type Fields = map[string]interface{}

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Config holds logger configuration
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	ShowCaller bool
	Timestamp  bool
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  INFO,
		Format: FormatText,
		Output: os.Stdout,
		Components: map[Component]bool{
			ComponentApp:        true,
			ComponentResolver:   true,
			ComponentDownloader: false,
			ComponentShortCode:  true,
			ComponentStorage:    true,
			ComponentUpload:     true,
			ComponentServer:     true,
			ComponentClient:     false,
			ComponentScript:     false,
			ComponentCache:      false,
		},
		ShowCaller: false,
		Timestamp:  true,
	}
}

// Entry represents a single log entry
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Component Component `json:"component"`
	Message   string    `json:"message"`
	Fields    Fields    `json:"fields,omitempty"`
	Caller    string    `json:"caller,omitempty"`
}

// Logger provides structured logging functionality
type Logger struct {
	config *Config
	mu     sync.RWMutex
	// serializes writes so concurrent entries never interleave
	wmu sync.Mutex
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Components == nil {
		config.Components = make(map[Component]bool)
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Logger{
		config: config,
	}
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{
		logger:    l,
		component: component,
	}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// SetFormat changes the log format
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Format = format
}

// SetOutput changes the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Output = w
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = true
}

// DisableComponent disables logging for a specific component
func (l *Logger) DisableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = false
}

// Enabled reports whether an entry at level for component would be written.
func (l *Logger) Enabled(level Level, component Component) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.config.Level && l.config.Components[component]
}

// log writes a log entry
func (l *Logger) log(level Level, component Component, message string, fields Fields) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level < l.config.Level {
		return
	}
	if !l.config.Components[component] {
		return
	}

	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Component: component,
		Message:   message,
		Fields:    fields,
	}

	if l.config.ShowCaller {
		// log <- ComponentLogger.log <- ComponentLogger.Info <- caller
		if _, file, line, ok := runtime.Caller(3); ok {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}

	l.writeEntry(entry)
}

// writeEntry writes the log entry to output
func (l *Logger) writeEntry(entry Entry) {
	var output string

	switch l.config.Format {
	case FormatJSON:
		output = l.formatJSON(entry)
	case FormatColor:
		output = l.formatColor(entry)
	default:
		output = l.formatText(entry)
	}

	l.wmu.Lock()
	fmt.Fprintln(l.config.Output, output)
	l.wmu.Unlock()
}

// sortedKeys keeps text output stable between runs.
func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatText formats entry as plain text
func (l *Logger) formatText(entry Entry) string {
	var parts []string

	if l.config.Timestamp {
		parts = append(parts, entry.Timestamp.Format("2006-01-02 15:04:05"))
	}

	parts = append(parts, fmt.Sprintf("[%s]", entry.Level))
	parts = append(parts, fmt.Sprintf("[%s]", entry.Component))
	parts = append(parts, entry.Message)

	if entry.Caller != "" {
		parts = append(parts, fmt.Sprintf("(%s)", entry.Caller))
	}

	if len(entry.Fields) > 0 {
		var fieldParts []string
		for _, k := range sortedKeys(entry.Fields) {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
		}
		parts = append(parts, strings.Join(fieldParts, " "))
	}

	return strings.Join(parts, " ")
}

// formatJSON formats entry as JSON
func (l *Logger) formatJSON(entry Entry) string {
	if len(entry.Fields) > 0 {
		fields := make(Fields, len(entry.Fields))
		for k, v := range entry.Fields {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			fields[k] = v
		}
		entry.Fields = fields
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":"ERROR","component":"app","message":"marshal log entry: %v"}`, err)
	}
	return string(data)
}

// formatColor formats entry with colors
func (l *Logger) formatColor(entry Entry) string {
	var parts []string

	if l.config.Timestamp {
		parts = append(parts, "\033[90m"+entry.Timestamp.Format("2006-01-02 15:04:05")+"\033[0m")
	}

	levelColor := l.getLevelColor(entry.Level)
	parts = append(parts, fmt.Sprintf("%s[%s]\033[0m", levelColor, entry.Level))
	parts = append(parts, fmt.Sprintf("\033[36m[%s]\033[0m", entry.Component))
	parts = append(parts, entry.Message)

	if entry.Caller != "" {
		parts = append(parts, fmt.Sprintf("\033[90m(%s)\033[0m", entry.Caller))
	}

	if len(entry.Fields) > 0 {
		var fieldParts []string
		for _, k := range sortedKeys(entry.Fields) {
			fieldParts = append(fieldParts, fmt.Sprintf("\033[33m%s\033[0m=\033[32m%v\033[0m", k, entry.Fields[k]))
		}
		parts = append(parts, strings.Join(fieldParts, " "))
	}

	return strings.Join(parts, " ")
}

// getLevelColor returns color code for log level
func (l *Logger) getLevelColor(level Level) string {
	switch level {
	case TRACE:
		return "\033[37m" // White
	case DEBUG:
		return "\033[94m" // Blue
	case INFO:
		return "\033[92m" // Green
	case WARN:
		return "\033[93m" // Yellow
	case ERROR:
		return "\033[91m" // Red
	default:
		return "\033[0m" // Reset
	}
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...Fields) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...Fields) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...Fields) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...Fields) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...Fields) {
	cl.log(ERROR, message, fields...)
}

// log merges the optional field maps and forwards to the parent logger.
func (cl *ComponentLogger) log(level Level, message string, fields ...Fields) {
	var merged Fields
	switch len(fields) {
	case 0:
	case 1:
		merged = fields[0]
	default:
		merged = make(Fields)
		for _, f := range fields {
			for k, v := range f {
				merged[k] = v
			}
		}
	}
	l := cl.logger
	if l == nil {
		l = GetGlobalLogger()
	}
	l.log(level, cl.component, message, merged)
}

// Global logger instance
var (
	globalMu     sync.RWMutex
	globalLogger = New(DefaultConfig())
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithComponent returns a component logger bound to whatever the global
// logger is at write time, so package-level loggers follow SetGlobalLogger.
func WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{logger: nil, component: component}
}
