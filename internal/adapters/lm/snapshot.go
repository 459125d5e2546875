package lm

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Snapshot defaults.
const (
	DefaultModelName = "gpt2"
	DefaultEncoding  = "r50k_base"
	DefaultTimeoutMS = 60_000
)

// Snapshot is the persisted identity of the scoring model. It is written once
// by the snapshot command and loaded read-only at process start.
type Snapshot struct {
	// ModelName is the causal language model served by Endpoint.
	ModelName string `koanf:"model_name"`
	// Encoding is the tiktoken encoding matching the model vocabulary.
	Encoding string `koanf:"encoding"`
	// Endpoint is the base URL of the inference server.
	Endpoint string `koanf:"endpoint"`
	// MaxRetries is the number of retries after a failed call; 0 disables them.
	MaxRetries int `koanf:"max_retries"`
	// TimeoutMS bounds a single inference call.
	TimeoutMS int `koanf:"timeout_ms"`
	// CreatedAt records when the snapshot was written (RFC3339). It is read
	// by hand since YAML decoders may resolve it to a timestamp.
	CreatedAt string `koanf:"-"`
}

// Timeout returns the per-call timeout.
func (s Snapshot) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Validate fills defaults and checks required fields.
func (s *Snapshot) Validate() error {
	if strings.TrimSpace(s.ModelName) == "" {
		return fmt.Errorf("%w: model_name is required", ErrSnapshotInvalid)
	}
	if s.Encoding == "" {
		s.Encoding = DefaultEncoding
	}
	if s.TimeoutMS <= 0 {
		s.TimeoutMS = DefaultTimeoutMS
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrSnapshotInvalid)
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an http(s) URL, got %q", ErrSnapshotInvalid, s.Endpoint)
	}
	return nil
}

// LoadSnapshot reads the YAML snapshot at path.
func LoadSnapshot(path string) (Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}
		return Snapshot{}, fmt.Errorf("%w: %w", ErrSnapshotInvalid, err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrSnapshotInvalid, path, err)
	}
	var s Snapshot
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrSnapshotInvalid, err)
	}
	switch v := k.Get("created_at").(type) {
	case time.Time:
		s.CreatedAt = v.UTC().Format(time.RFC3339)
	case string:
		s.CreatedAt = v
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// SaveSnapshot validates s, stamps CreatedAt when empty and writes it to path.
func SaveSnapshot(path string, s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.CreatedAt == "" {
		s.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	k := koanf.New(".")
	for key, val := range map[string]interface{}{
		"model_name":  s.ModelName,
		"encoding":    s.Encoding,
		"endpoint":    s.Endpoint,
		"max_retries": s.MaxRetries,
		"timeout_ms":  s.TimeoutMS,
		"created_at":  s.CreatedAt,
	} {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSnapshotInvalid, key, err)
		}
	}
	b, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotInvalid, err)
	}
	return os.WriteFile(path, b, 0o644) //nolint:gosec // snapshot holds no secrets
}
