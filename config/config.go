// Copyright 2025 Quarry AI
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config defines the explicit configuration injected into every
// engine component at construction. There is no ambient global state;
// components receive the sections they need.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects the chunk storage implementation.
type Backend string

const (
	// BackendVectorIndex stores vectors in a dedicated BadgerDB index
	// keyspace with a side metadata keyspace.
	BackendVectorIndex Backend = "vector_index"

	// BackendUnified stores content, metadata, vector, and a derived
	// lexical index in a single SQLite database.
	BackendUnified Backend = "unified"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig selects and locates the chunk storage backend.
type StorageConfig struct {
	Backend Backend `yaml:"backend"` // "vector_index" or "unified"
	Path    string  `yaml:"path"`    // BadgerDB directory or SQLite database file
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Host                 string `yaml:"host"`      // OpenAI-compatible base URL
	Model                string `yaml:"model"`     // e.g. "embeddinggemma", "text-embedding-3-small"
	Dimension            int    `yaml:"dimension"` // deployment-wide vector dimension, validated at write time
	BatchSize            int    `yaml:"batch_size"`
	MaxConcurrentBatches int    `yaml:"max_concurrent_batches"`
	MaxAttempts          int    `yaml:"max_attempts"` // per-batch retry ceiling inside the generator
	RetryBaseDelay       time.Duration `yaml:"retry_base_delay"`
}

// ChunkingConfig holds the splitting policy parameters.
type ChunkingConfig struct {
	ChunkSize       int     `yaml:"chunk_size"`        // target chunk length in characters
	ChunkOverlap    int     `yaml:"chunk_overlap"`     // overlap in characters for size-based policies
	MediaWindow     float64 `yaml:"media_window"`      // transcript window length in seconds
	MediaGapBoundary float64 `yaml:"media_gap_boundary"` // gap treated as a scene boundary, seconds
}

// SearchConfig holds hybrid search fusion parameters.
type SearchConfig struct {
	VectorWeight      float64 `yaml:"vector_weight"`
	KeywordWeight     float64 `yaml:"keyword_weight"`
	RRFK              int     `yaml:"rrf_k"`
	CandidatePoolMult int     `yaml:"candidate_pool_mult"` // candidate pool = limit * mult
}

// IngestConfig holds the orchestrator's worker and retry policy.
type IngestConfig struct {
	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"max_attempts"` // job-level retry ceiling
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	JobTimeout     time.Duration `yaml:"job_timeout"` // soft wall-clock timeout per attempt
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with sensible defaults for a local deployment.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendVectorIndex,
			Path:    "quarry-data",
		},
		Embedding: EmbeddingConfig{
			Host:                 "http://localhost:11434/v1",
			Model:                "embeddinggemma",
			Dimension:            768,
			BatchSize:            64,
			MaxConcurrentBatches: 4,
			MaxAttempts:          3,
			RetryBaseDelay:       time.Second,
		},
		Chunking: ChunkingConfig{
			ChunkSize:        1000,
			ChunkOverlap:     150,
			MediaWindow:      60,
			MediaGapBoundary: 40,
		},
		Search: SearchConfig{
			VectorWeight:      0.7,
			KeywordWeight:     0.3,
			RRFK:              60,
			CandidatePoolMult: 4,
		},
		Ingest: IngestConfig{
			Workers:        4,
			MaxAttempts:    3,
			RetryBaseDelay: 2 * time.Second,
			RetryMaxDelay:  2 * time.Minute,
			JobTimeout:     10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file and merges it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is complete and coherent.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendVectorIndex, BackendUnified:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return errors.New("config: storage path is required")
	}
	if c.Embedding.Model == "" {
		return errors.New("config: embedding model is required")
	}
	if c.Embedding.Dimension <= 0 {
		return errors.New("config: embedding dimension must be positive")
	}
	if c.Embedding.BatchSize <= 0 {
		return errors.New("config: embedding batch size must be positive")
	}
	if c.Chunking.ChunkSize <= 0 {
		return errors.New("config: chunk size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return errors.New("config: chunk overlap must be non-negative and smaller than chunk size")
	}
	if c.Chunking.MediaWindow <= 0 {
		return errors.New("config: media window must be positive")
	}
	if c.Search.VectorWeight < 0 || c.Search.KeywordWeight < 0 {
		return errors.New("config: fusion weights must be non-negative")
	}
	if c.Search.RRFK <= 0 {
		return errors.New("config: rrf_k must be positive")
	}
	if c.Ingest.Workers <= 0 {
		return errors.New("config: ingest workers must be positive")
	}
	if c.Ingest.MaxAttempts <= 0 {
		return errors.New("config: ingest max attempts must be positive")
	}
	return nil
}
