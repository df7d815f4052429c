// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// DefaultBaseURL is the public ClinicalTrials.gov v2 API root.
const DefaultBaseURL = "https://clinicaltrials.gov/api/v2"

// HTTPConfig holds shared HTTP settings used by every network call.
type HTTPConfig struct {
	// Timeout bounds a single request attempt, body read included.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "ctgov/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// APIConfig holds settings for the ClinicalTrials.gov client.
type APIConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the API root including the version segment
	// (e.g. "https://clinicaltrials.gov/api/v2"). Injected per deployment.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey is sent as X-Api-Key when set. The public service does not
	// require one; gateways in front of mirrors sometimes do.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxAttempts bounds the attempts for one logical request (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// RequestsPerSecond caps the client-side request rate. Zero disables
	// the limiter.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// CacheSize is the number of single-study and stats responses kept in
	// memory. Zero disables the response cache.
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// CacheTTL is how long a cached response stays valid.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`

	// PageSize is the default page size for paginated study searches.
	PageSize int `json:"page_size" yaml:"page_size"`
}

// DefaultAPIConfig returns the settings used when nothing is configured.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		HTTPConfig: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "ctgov/0.1",
		},
		BaseURL:           DefaultBaseURL,
		MaxAttempts:       3,
		RequestsPerSecond: 5,
		CacheSize:         256,
		CacheTTL:          10 * time.Minute,
		PageSize:          100,
	}
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`

	// Pretty switches to a human-readable console writer.
	Pretty bool `json:"pretty" yaml:"pretty"`
}

// StoreConfig holds settings for the local SQLite sink.
type StoreConfig struct {
	// Path is the SQLite database file (e.g. "data/ctgov.db").
	Path string `json:"path" yaml:"path"`

	// MaxResults is the default maximum number of search results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}
