package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ytget/twitvid/internal/logger"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "TWITVID_"

// ErrReadBytesNotSupported is returned by the map provider's ReadBytes.
var ErrReadBytesNotSupported = errors.New("config: ReadBytes not supported by map provider")

// Loader layers configuration sources on top of Default().
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithFile sets the YAML configuration file. Empty means no file.
func WithFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithEnvPrefix replaces the TWITVID_ prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithOverrides applies dotted keys (e.g. "log.level") after every other source.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) { l.overrides = values }
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads all sources, unmarshals onto Default() and validates the result.
func (l *Loader) Load() (*Config, error) {
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load file %s: %w", l.filePath, err)
		}
	}

	if err := l.k.Load(env.ProviderWithValue(l.envPrefix, ".", l.envValue), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := l.k.Load(mapProvider(l.overrides), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	cfg := Default()
	if err := l.k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Keys returns every key set by a non-default source.
func (l *Loader) Keys() []string {
	return l.k.Keys()
}

var sections = map[string]bool{
	"server": true, "codec": true, "resolver": true, "download": true,
	"upload": true, "storage": true, "history": true, "log": true,
}

// envKey maps TWITVID_SERVER_PUBLIC_ORIGIN to server.public_origin. Variables
// outside a known section (TWITVID_PPROF, TWITVID_E2E) map to "" and are skipped.
func (l *Loader) envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok || !sections[section] || key == "" {
		return ""
	}
	return section + "." + key
}

func (l *Loader) envValue(k, v string) (string, any) {
	key := l.envKey(k)
	if key == "log.components" {
		return key, componentSet(v)
	}
	return key, v
}

// componentSet parses "all" or a comma separated allow-list. Components not
// listed are switched off.
func componentSet(v string) map[string]any {
	set := make(map[string]any, len(logger.AllComponents))
	for _, c := range logger.AllComponents {
		set[string(c)] = false
	}
	for _, name := range strings.Split(v, ",") {
		name = strings.TrimSpace(name)
		if name == "all" {
			for _, c := range logger.AllComponents {
				set[string(c)] = true
			}
			continue
		}
		if name != "" {
			set[name] = true
		}
	}
	return set
}

// Load is shorthand for NewLoader(WithFile(path)).Load().
func Load(path string) (*Config, error) {
	return NewLoader(WithFile(path)).Load()
}

// mapProvider feeds an in-memory map to koanf. Dotted keys are expanded.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	out := make(map[string]any)
	for k, v := range m {
		parts := strings.Split(k, ".")
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = v
	}
	return out, nil
}
