// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config populated with defaults.
// - Load layers defaults, an optional YAML file and the environment.
// - External errors are wrapped with this package's sentinel errors.
package config

// Default values.
const (
	DefaultAddr           = ":5000"
	DefaultModelSnapshot  = "ai_detection_model.yaml"
	DefaultMaxUploadBytes = 10 << 20
	DefaultMemoSize       = 1024
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`

	// ModelSnapshot is the path of the persisted scoring model snapshot.
	ModelSnapshot string `koanf:"model_snapshot"`

	// CORSOrigins lists origins allowed to call the JSON endpoints.
	CORSOrigins []string `koanf:"cors_origins"`

	// MaxUploadBytes caps the multipart body of /compare-files.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MemoSize bounds the detection result memo. Zero or less disables it.
	MemoSize int `koanf:"memo_size"`

	// StaticDir, when set, serves the frontend from disk instead of the
	// bundle compiled into the binary.
	StaticDir string `koanf:"static_dir"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           DefaultAddr,
		ModelSnapshot:  DefaultModelSnapshot,
		CORSOrigins:    []string{"http://127.0.0.1:5000"},
		MaxUploadBytes: DefaultMaxUploadBytes,
		MemoSize:       DefaultMemoSize,
	}
}
