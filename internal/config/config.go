// Package config loads luciprune settings from defaults, an optional YAML
// file, LUCIPRUNE_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/luci"
)

// EnvPrefix is the prefix of environment overrides, e.g. LUCIPRUNE_BACKEND_URL.
const EnvPrefix = "LUCIPRUNE"

// Config holds application configuration.
type Config struct {
	Backend   BackendConfig
	Endpoints EndpointsConfig
	Fetch     FetchConfig
	Remove    RemoveConfig
	Variant   VariantConfig
	Journal   JournalConfig

	// File is the config file that was read, empty when none was found.
	File string
}

// BackendConfig describes the device to talk to.
type BackendConfig struct {
	URL       string
	Token     string
	TokenFile string
	Locale    string
	Transport string
	Timeout   time.Duration
}

// EndpointsConfig holds paths relative to the backend URL.
type EndpointsConfig struct {
	List   string
	Remove string
}

// FetchConfig controls inventory retries.
type FetchConfig struct {
	RetryDelays []time.Duration
}

// RemoveConfig controls how removal requests are encoded.
type RemoveConfig struct {
	Encoding string
}

// VariantConfig captures the differences between deployed variants of the
// uninstall page.
type VariantConfig struct {
	NamePrefix              string
	RemoveDependents        bool
	DefaultPurge            bool
	DefaultRemoveDependents bool
	RecentThreshold         time.Duration
}

// JournalConfig locates the removal journal.
type JournalConfig struct {
	Path string
}

// Options select where Load reads from.
type Options struct {
	// ConfigFile overrides the default config location.
	ConfigFile string
	// Flags are bound over file and environment values when changed.
	Flags *pflag.FlagSet
	// FlagKeys maps config keys to flag names.
	FlagKeys map[string]string
}

// Dir returns the luciprune config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/luciprune if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "luciprune"), nil
}

// DefaultJournalPath returns ~/.luciprune/journal.db.
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".luciprune", "journal.db")
	}
	return filepath.Join(home, ".luciprune", "journal.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://192.168.1.1/cgi-bin/luci")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.token_file", "")
	v.SetDefault("backend.locale", "en")
	v.SetDefault("backend.transport", luci.TransportAuto)
	v.SetDefault("backend.timeout", "0s")
	v.SetDefault("endpoints.list", luci.DefaultListEndpoint)
	v.SetDefault("endpoints.remove", luci.DefaultRemoveEndpoint)
	v.SetDefault("fetch.retry_delays", durationStrings(inventory.DefaultRetryDelays))
	v.SetDefault("remove.encoding", luci.EncodingJSON)
	v.SetDefault("variant.name_prefix", "")
	v.SetDefault("variant.remove_dependents", false)
	v.SetDefault("variant.default_purge", false)
	v.SetDefault("variant.default_remove_dependents", false)
	v.SetDefault("variant.recent_threshold", inventory.DefaultRecentThreshold.String())
	v.SetDefault("journal.path", DefaultJournalPath())
}

// Load reads configuration. A missing default config file is not an error;
// a missing explicit one is.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if opts.Flags != nil {
		for key, name := range opts.FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var errs *multierror.Error

	duration := func(key string) time.Duration {
		d, err := cast.ToDurationE(v.Get(key))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		Backend: BackendConfig{
			URL:       v.GetString("backend.url"),
			Token:     v.GetString("backend.token"),
			TokenFile: v.GetString("backend.token_file"),
			Locale:    v.GetString("backend.locale"),
			Transport: v.GetString("backend.transport"),
			Timeout:   duration("backend.timeout"),
		},
		Endpoints: EndpointsConfig{
			List:   v.GetString("endpoints.list"),
			Remove: v.GetString("endpoints.remove"),
		},
		Remove: RemoveConfig{
			Encoding: v.GetString("remove.encoding"),
		},
		Variant: VariantConfig{
			NamePrefix:              v.GetString("variant.name_prefix"),
			RemoveDependents:        v.GetBool("variant.remove_dependents"),
			DefaultPurge:            v.GetBool("variant.default_purge"),
			DefaultRemoveDependents: v.GetBool("variant.default_remove_dependents"),
			RecentThreshold:         duration("variant.recent_threshold"),
		},
		Journal: JournalConfig{
			Path: expandHome(v.GetString("journal.path")),
		},
		File: v.ConfigFileUsed(),
	}

	// Environment values arrive as one space-separated string.
	delays := v.Get("fetch.retry_delays")
	if s, ok := delays.(string); ok {
		delays = strings.Fields(s)
	}
	retryDelays, err := cast.ToDurationSliceE(delays)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("fetch.retry_delays: %w", err))
	}
	cfg.Fetch.RetryDelays = append([]time.Duration{}, retryDelays...)
	cfg.Backend.TokenFile = expandHome(cfg.Backend.TokenFile)

	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("backend.url %q must be an absolute http(s) URL", c.Backend.URL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = multierror.Append(errs, fmt.Errorf("backend.url scheme %q must be http or https", u.Scheme))
	}

	switch c.Backend.Transport {
	case luci.TransportAuto, luci.TransportFetch, luci.TransportRequest:
	default:
		errs = multierror.Append(errs, fmt.Errorf("backend.transport %q must be one of: auto, fetch, request", c.Backend.Transport))
	}
	if c.Backend.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("backend.timeout must not be negative"))
	}

	switch c.Remove.Encoding {
	case luci.EncodingJSON, luci.EncodingForm:
	default:
		errs = multierror.Append(errs, fmt.Errorf("remove.encoding %q must be one of: json, form", c.Remove.Encoding))
	}

	if c.Endpoints.List == "" {
		errs = multierror.Append(errs, fmt.Errorf("endpoints.list cannot be empty"))
	}
	if c.Endpoints.Remove == "" {
		errs = multierror.Append(errs, fmt.Errorf("endpoints.remove cannot be empty"))
	}

	if len(c.Fetch.RetryDelays) != inventory.MaxRetries {
		errs = multierror.Append(errs, fmt.Errorf("fetch.retry_delays must list exactly %d delays, got %d", inventory.MaxRetries, len(c.Fetch.RetryDelays)))
	}
	for i, d := range c.Fetch.RetryDelays {
		if d <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("fetch.retry_delays[%d] must be positive, got %s", i, d))
		}
	}
	if c.Variant.RecentThreshold < 0 {
		errs = multierror.Append(errs, fmt.Errorf("variant.recent_threshold must not be negative"))
	}
	if c.Variant.DefaultRemoveDependents && !c.Variant.RemoveDependents {
		errs = multierror.Append(errs, fmt.Errorf("variant.default_remove_dependents requires variant.remove_dependents"))
	}

	return errs.ErrorOrNil()
}

// RequestContext builds the per-call request context with the given token.
func (c *Config) RequestContext(token string) luci.RequestContext {
	return luci.RequestContext{
		BaseURL: c.Backend.URL,
		Token:   token,
		Locale:  c.Backend.Locale,
	}
}

// ClientConfig returns the backend client settings.
func (c *Config) ClientConfig() luci.ClientConfig {
	return luci.ClientConfig{
		ListEndpoint:     c.Endpoints.List,
		RemoveEndpoint:   c.Endpoints.Remove,
		Encoding:         c.Remove.Encoding,
		RemoveDependents: c.Variant.RemoveDependents,
	}
}

func durationStrings(ds []time.Duration) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
