// Package app wires the generation pipeline together: configuration,
// the orchestrator, and the job lifecycle around it.
package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmaia/sitesmith/internal/generator"
	"github.com/rmaia/sitesmith/internal/preview"
	"github.com/rmaia/sitesmith/internal/publisher"
)

// MirrorLink configures the GitHub mirror target of one project.
type MirrorLink struct {
	Repo  string `yaml:"repo"`
	Token string `yaml:"token"`
}

// Config aggregates all component configuration. Zero values fall back
// to DefaultConfig equivalents during Load.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	StorageRoot string `yaml:"storage_root"`

	// PublicBaseURL is where uploads are served from, usually the
	// server's own address plus /uploads.
	PublicBaseURL string `yaml:"public_base_url"`

	Generator generator.Config `yaml:"generator"`
	Publisher publisher.Config `yaml:"publisher"`
	Preview   preview.Config   `yaml:"preview"`

	// VerifyAfterPublish fetches the published page through the
	// preview client before the job is marked done.
	VerifyAfterPublish bool `yaml:"verify_after_publish"`

	// StageTimeout bounds each pipeline stage individually.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// JobRetention is how long finished jobs stay pollable.
	JobRetention time.Duration `yaml:"job_retention"`

	// MirrorLinks maps project IDs to their GitHub mirror targets.
	MirrorLinks map[string]MirrorLink `yaml:"mirror_links"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		StorageRoot:   "./data",
		PublicBaseURL: "http://localhost:8080/uploads",
		StageTimeout:  2 * time.Minute,
		JobRetention:  30 * time.Minute,
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults untouched.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultConfig().StageTimeout
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = DefaultConfig().JobRetention
	}
	return cfg, nil
}
