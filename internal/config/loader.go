// Package config loads the change-watch settings.
//
// Sources are layered, later ones overriding earlier ones:
//
//  1. Built-in defaults
//  2. YAML configuration file
//  3. .env files (ENV_FILE, or .env.local then .env), which only populate
//     the process environment
//  4. Environment variables prefixed CHANGEWATCH_, with "__" separating
//     nesting levels: CHANGEWATCH_STORAGE__MAX_HISTORY_DAYS=7
//  5. Explicit overrides (command-line flags)
//
// The result is validated as a whole; every violation is reported at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix of environment variables read by Load.
const DefaultEnvPrefix = "CHANGEWATCH_"

// DefaultFile is the configuration file used when none is given and it exists.
const DefaultFile = "change-watch.yml"

// Options controls Load.
type Options struct {
	// File is a YAML file to read. Empty means no file.
	File string
	// EnvPrefix defaults to DefaultEnvPrefix.
	EnvPrefix string
	// SkipDotEnv disables .env file loading.
	SkipDotEnv bool
	// Overrides are applied last, keyed by dotted path ("storage.backend").
	Overrides map[string]any
}

// Load resolves the settings from all sources and validates them.
func Load(opts Options) (*Settings, error) {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	if !opts.SkipDotEnv {
		if err := loadEnvFiles(); err != nil {
			return nil, fmt.Errorf("load environment files: %w", err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", opts.File, err)
		}
	}
	if err := k.Load(env.Provider(opts.EnvPrefix, ".", envKey(opts.EnvPrefix)), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if len(opts.Overrides) > 0 {
		if err := k.Load(mapProvider(unflatten(opts.Overrides)), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// envKey maps CHANGEWATCH_STORAGE__MAX_HISTORY_DAYS to storage.max_history_days.
func envKey(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
}

// unflatten turns {"a.b": 1} into {"a": {"b": 1}}.
func unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, val := range flat {
		parts := strings.Split(key, ".")
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = val
	}
	return out
}

// loadEnvFiles loads .env files in priority order:
//  1. ENV_FILE (if set, only this file)
//  2. .env.local
//  3. .env
//
// godotenv never overrides variables already set, so the process
// environment wins over .env.local, which wins over .env.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks s against its struct tags and returns one error listing
// every violation.
func Validate(s *Settings) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ErrEmptySecret is returned by ResolveSecret when an env: reference points
// at an unset or empty variable.
var ErrEmptySecret = errors.New("referenced environment variable is empty")

// ResolveSecret expands "env:NAME" to the value of NAME. Any other value is
// returned unchanged.
func ResolveSecret(value string) (string, error) {
	name, ok := strings.CutPrefix(value, "env:")
	if !ok {
		return value, nil
	}
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%s: %w", name, ErrEmptySecret)
	}
	return v, nil
}
