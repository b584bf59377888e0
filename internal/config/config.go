// Package config loads picker settings from an optional YAML file and
// IMAGEPICKER_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/imagepicker/internal/images"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

const envPrefix = "IMAGEPICKER_"

// Config holds all service settings.
type Config struct {
	Port   string `yaml:"port"`
	Origin string `yaml:"origin"`

	// FetchRemote downloads accepted URLs and previews them as files.
	FetchRemote bool `yaml:"fetch_remote"`
	// EmbedImageData sends the resolved bytes along with the submission.
	EmbedImageData bool `yaml:"embed_image_data"`
	// FormAction is where submissions are forwarded; empty disables it.
	FormAction string `yaml:"form_action"`

	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	MaxImageBytes  int64         `yaml:"max_image_bytes"`
	MaxImagePixels int64         `yaml:"max_image_pixels"`
	PreviewMaxSide int           `yaml:"preview_max_side"`
	MaxSessions    int           `yaml:"max_sessions"`

	// AllowPrivateHosts lets URL sources reach loopback, private and
	// link-local addresses.
	AllowPrivateHosts bool `yaml:"allow_private_hosts"`

	// ForbiddenSchemes are rejected for URL sources in addition to blob.
	ForbiddenSchemes []string `yaml:"forbidden_schemes"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:             "8888",
		Origin:           "http://localhost:8888",
		FetchTimeout:     30 * time.Second,
		MaxImageBytes:    images.DefaultMaxBytes,
		MaxImagePixels:   images.DefaultMaxPixels,
		PreviewMaxSide:   images.DefaultPreviewMaxSide,
		ForbiddenSchemes: append([]string(nil), source.DefaultForbiddenSchemes...),
		MaxSessions:      1024,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("PORT", &c.Port)
	str("ORIGIN", &c.Origin)
	str("FORM_ACTION", &c.FormAction)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	boolean("FETCH_REMOTE", &c.FetchRemote)
	boolean("EMBED_IMAGE_DATA", &c.EmbedImageData)
	boolean("ALLOW_PRIVATE_HOSTS", &c.AllowPrivateHosts)
	integer("PREVIEW_MAX_SIDE", &c.PreviewMaxSide)
	integer("MAX_SESSIONS", &c.MaxSessions)

	if v, ok := lookup(envPrefix + "FETCH_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFETCH_TIMEOUT: %w", envPrefix, err))
		} else {
			c.FetchTimeout = d
		}
	}
	int64Value := func(name string, dst *int64) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	int64Value("MAX_IMAGE_BYTES", &c.MaxImageBytes)
	int64Value("MAX_IMAGE_PIXELS", &c.MaxImagePixels)
	if v, ok := lookup(envPrefix + "FORBIDDEN_SCHEMES"); ok {
		c.ForbiddenSchemes = splitList(v)
	}

	return errors.Join(errs...)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("fetch_timeout must be positive"))
	}
	if c.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("max_image_bytes must be positive"))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, errors.New("max_image_pixels must be positive"))
	}
	if c.PreviewMaxSide <= 0 {
		errs = append(errs, errors.New("preview_max_side must be positive"))
	}
	if c.MaxSessions <= 0 {
		errs = append(errs, errors.New("max_sessions must be positive"))
	}
	if c.FormAction != "" {
		if _, err := source.ParseAbsoluteURL(c.FormAction); err != nil {
			errs = append(errs, fmt.Errorf("form_action: %w", err))
		}
	}
	if _, err := url.Parse(c.Origin); err != nil || c.Origin == "" {
		errs = append(errs, fmt.Errorf("origin %q is not a valid URL", c.Origin))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
