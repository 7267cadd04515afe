package logger

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum logging level (debug, info, warn, error, fatal).
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	// Development disables sampling so every entry is visible.
	Development bool `koanf:"development"`
	// OutputPaths is a list of URLs or file paths to write logging output to.
	OutputPaths []string `koanf:"output_paths"`
}

// Default configuration values.
const (
	DefaultLevel = "info"
)

// DefaultOutputPaths is used when no output path is configured. Standard
// output is reserved for command results.
var DefaultOutputPaths = []string{"stderr"}

// SetDefaults applies default values to the config if not set.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = DefaultOutputPaths
	}
}
