package bucket

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the bucket storage core.
type Config struct {
	// BucketDir is the directory adopted bucket files live in.
	BucketDir string `yaml:"bucket_dir"`

	// PageSizeExponent selects the index granularity: 0 indexes every
	// record at its exact offset, N > 0 indexes 2^N-byte pages.
	PageSizeExponent uint `yaml:"page_size_exponent"`

	// BloomFalsePositiveRate tunes the per-bucket bloom filter.
	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate"`

	// SyncOnClose fsyncs bucket files before adoption.
	SyncOnClose bool `yaml:"sync_on_close"`

	// IndexSidecars persists bucket indexes next to their bucket files
	// so adoption after a restart skips the rebuild scan.
	IndexSidecars bool `yaml:"index_sidecars"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig(bucketDir string) Config {
	return Config{
		BucketDir:              bucketDir,
		PageSizeExponent:       14, // 16KB pages
		BloomFalsePositiveRate: 0.01,
		SyncOnClose:            true,
		IndexSidecars:          true,
	}
}

// LoadConfig reads a yaml config file, filling unset fields from defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.BucketDir == "" {
		return Config{}, fmt.Errorf("config %s: bucket_dir is required", path)
	}
	return cfg, nil
}

// pageSize returns the configured page size in bytes, 0 for exact offsets.
func (c Config) pageSize() int64 {
	if c.PageSizeExponent == 0 {
		return 0
	}
	return int64(1) << c.PageSizeExponent
}
