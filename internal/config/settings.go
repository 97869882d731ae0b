package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds all configuration options.
type Settings struct {
	// Download settings
	MaxConcurrentSegments int               `json:"max_concurrent_segments"`
	RetryMaxCount         int               `json:"retry_max_count"`
	Headers               map[string]string `json:"headers"`

	// DecryptSegments decrypts each segment at fetch time, so the files
	// in the working directory hold plaintext. When false, ciphertext is
	// persisted and decryption is deferred to the merge stage.
	DecryptSegments bool `json:"decrypt_segments"`

	// Merge settings
	Merge         bool   `json:"merge"`
	DeleteWorkDir bool   `json:"delete_work_dir"`
	FFmpegPath    string `json:"ffmpeg_path"`
	FFmpegThreads int    `json:"ffmpeg_threads"`

	// Manifest settings
	MaxVariantDepth int `json:"max_variant_depth"`

	// Logging
	LogLevel string `json:"log_level"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		MaxConcurrentSegments: 16,
		RetryMaxCount:         50,
		DecryptSegments:       false,
		Merge:                 true,
		DeleteWorkDir:         false,
		FFmpegPath:            "ffmpeg",
		FFmpegThreads:         32,
		MaxVariantDepth:       8,
		LogLevel:              "info",
	}
}

// Load reads settings from a JSON file. A missing file yields defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
