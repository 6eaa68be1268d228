// Package config assembles runtime configuration from environment variables.
package config

import "os"

// Config carries the settings for the remote record store and the engine.
// Flags (port, store backend, db path) live in cmd/server; everything
// secret or deployment-specific comes from the environment.
type Config struct {
	// GitHub contents API settings for the remote store backend.
	GitHubOwner   string
	GitHubRepo    string
	GitHubBranch  string
	GitHubDataDir string
	GitHubToken   string

	// Optional YAML file overriding the built-in derivation formulas.
	DerivationsPath string
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	return Config{
		GitHubOwner:     getenv("BILLING_GITHUB_OWNER", ""),
		GitHubRepo:      getenv("BILLING_GITHUB_REPO", ""),
		GitHubBranch:    getenv("BILLING_GITHUB_BRANCH", "main"),
		GitHubDataDir:   getenv("BILLING_GITHUB_DATADIR", "data"),
		GitHubToken:     getenv("BILLING_GITHUB_TOKEN", ""),
		DerivationsPath: getenv("BILLING_DERIVATIONS", ""),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
