package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSettingsPath is where optional sync settings are read from
	DefaultSettingsPath = ".git/s3git.yaml"
	// DefaultRemoteConfigPath is the INI file holding remote profiles
	DefaultRemoteConfigPath = ".git/s3config.cfg"
	// DefaultIgnoreFile lists paths that are never synced
	DefaultIgnoreFile = ".s3ignore"

	defaultDeleteBatchSize = 1000
	maxDeleteBatchSize     = 1000
	defaultSniffSize       = 1024
)

// Settings tunes a sync run. Every field has a default, so the file is optional.
type Settings struct {
	IgnoreFile   string         `yaml:"ignore_file"`
	RemoteConfig string         `yaml:"remote_config"`
	Delete       DeleteSettings `yaml:"delete"`
	Upload       UploadSettings `yaml:"upload"`
}

// DeleteSettings configures batched deletes
type DeleteSettings struct {
	BatchSize   int `yaml:"batch_size"`
	Parallelism int `yaml:"parallelism"`
}

// UploadSettings configures uploads
type UploadSettings struct {
	SniffSize int `yaml:"sniff_size"`
}

// Default returns settings with every default applied
func Default() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

// Load reads the settings file. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	s.expandEnv()
	s.applyDefaults()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return &s, nil
}

// expandEnv expands environment variables in all string fields
func (s *Settings) expandEnv() {
	s.IgnoreFile = os.ExpandEnv(s.IgnoreFile)
	s.RemoteConfig = os.ExpandEnv(s.RemoteConfig)
}

// ResolvePaths anchors relative file paths at root, the top of the repository
func (s *Settings) ResolvePaths(root string) {
	s.IgnoreFile = ResolvePath(root, s.IgnoreFile)
	s.RemoteConfig = ResolvePath(root, s.RemoteConfig)
}

// ResolvePath joins p to root unless p is empty or absolute
func ResolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (s *Settings) applyDefaults() {
	if s.IgnoreFile == "" {
		s.IgnoreFile = DefaultIgnoreFile
	}
	if s.RemoteConfig == "" {
		s.RemoteConfig = DefaultRemoteConfigPath
	}
	if s.Delete.BatchSize == 0 {
		s.Delete.BatchSize = defaultDeleteBatchSize
	}
	if s.Delete.Parallelism == 0 {
		s.Delete.Parallelism = 1
	}
	if s.Upload.SniffSize == 0 {
		s.Upload.SniffSize = defaultSniffSize
	}
}

// Validate checks the settings for errors
func (s *Settings) Validate() error {
	if s.Delete.BatchSize < 1 || s.Delete.BatchSize > maxDeleteBatchSize {
		return fmt.Errorf("delete.batch_size must be between 1 and %d, got %d", maxDeleteBatchSize, s.Delete.BatchSize)
	}
	if s.Delete.Parallelism < 1 {
		return fmt.Errorf("delete.parallelism must be positive, got %d", s.Delete.Parallelism)
	}
	if s.Upload.SniffSize < 1 {
		return fmt.Errorf("upload.sniff_size must be positive, got %d", s.Upload.SniffSize)
	}
	return nil
}
