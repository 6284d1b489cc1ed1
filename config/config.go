package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"oracle-router/oracle/provider"
	"oracle-router/oracle/types"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	defaultListenAddr      = "0.0.0.0:7171"
	defaultSrvWriteTimeout = 15 * time.Second
	defaultSrvReadTimeout  = 15 * time.Second
	defaultRequestTimeout  = 30 * time.Second
	defaultHealthInterval  = 30 * time.Second
	defaultJournalDb       = "outcomes.db"
	defaultCacheTTL        = 5 * time.Minute
	defaultCacheSize       = 1000
	defaultLogLevel        = "info"
)

var (
	validate = validator.New()

	// ErrEmptyConfigPath defines a sentinel error for an empty config path.
	ErrEmptyConfigPath = errors.New("empty configuration file path")

	// SupportedCacheBackends defines a lookup table of the cache backends the
	// router can be configured with.
	SupportedCacheBackends = map[string]struct{}{
		"memory": {},
		"file":   {},
		"redis":  {},
	}

	// maxDeviationThreshold is the maximum allowed amount of standard
	// deviations a value may sit from the mean before validation rejects it.
	maxDeviationThreshold = decimal.RequireFromString("3.0")

	// chainEnvPrefixes maps chain names to the prefix of their RPC override
	// variable where it differs from the uppercase name.
	chainEnvPrefixes = map[string]string{
		"ethereum": "ETH",
		"flow-evm": "FLOW",
	}
)

type (
	// Config defines all necessary oracle-router configuration parameters.
	Config struct {
		Server             Server      `toml:"server"`
		APIKey             string      `toml:"api_key"`
		RequestTimeout     string      `toml:"request_timeout"`
		HealthInterval     string      `toml:"health_interval"`
		DeviationThreshold string      `toml:"deviation_threshold"`
		LogLevel           string      `toml:"log_level"`
		Providers          []Provider  `toml:"provider" validate:"required,gt=0,dive"`
		Chains             []Chain     `toml:"chain" validate:"dive"`
		Cache              Cache       `toml:"cache"`
		AI                 AI          `toml:"ai"`
		Journal            Journal     `toml:"journal"`
		Aggregation        Aggregation `toml:"aggregation"`
	}

	// Server defines the API server configuration.
	Server struct {
		ListenAddr     string   `toml:"listen_addr"`
		WriteTimeout   string   `toml:"write_timeout"`
		ReadTimeout    string   `toml:"read_timeout"`
		VerboseCORS    bool     `toml:"verbose_cors"`
		AllowedOrigins []string `toml:"allowed_origins"`
	}

	// Provider configures one oracle network adapter. A provider omitted
	// from the file runs with its published endpoint and default limits.
	Provider struct {
		Name     types.Provider `toml:"name" validate:"required"`
		Enabled  *bool          `toml:"enabled"`
		Endpoint string         `toml:"endpoint"`
		RpcURL   string         `toml:"rpc_url"`
		APIKey   string         `toml:"api_key"`
		Timeout  string         `toml:"timeout"`
		Retries  int            `toml:"retries" validate:"gte=0"`
	}

	// Chain configures one EVM network the on-chain adapters read through.
	Chain struct {
		Name    string `toml:"name" validate:"required"`
		ChainID int64  `toml:"chain_id" validate:"required"`
		RpcURL  string `toml:"rpc_url"`
	}

	// Cache defines the oracle response cache configuration.
	Cache struct {
		Backend  string `toml:"backend"`
		Enabled  *bool  `toml:"enabled"`
		TTL      string `toml:"ttl"`
		MaxSize  int    `toml:"max_size" validate:"gte=0"`
		Dir      string `toml:"dir"`
		RedisURL string `toml:"redis_url"`
	}

	// AI defines the LLM routing enhancement and resolution configuration.
	AI struct {
		Enabled         *bool  `toml:"enabled"`
		Preferred       string `toml:"preferred" validate:"omitempty,oneof=openai openrouter"`
		OpenAIKey       string `toml:"openai_api_key"`
		OpenAIModel     string `toml:"openai_model"`
		OpenRouterKey   string `toml:"openrouter_api_key"`
		OpenRouterModel string `toml:"openrouter_model"`
		// QualityThreshold is the minimum confidence for LLM data
		// validation verdicts. Zero keeps the resolver default.
		QualityThreshold float64 `toml:"quality_threshold" validate:"gte=0,lte=1"`
	}

	// Journal configures the sqlite request outcome journal.
	Journal struct {
		Enabled *bool  `toml:"enabled"`
		Db      string `toml:"db"`
	}

	// Aggregation tunes the multi-provider consensus.
	Aggregation struct {
		Method      string `toml:"method" validate:"omitempty,oneof=median weighted"`
		Concurrency int    `toml:"concurrency" validate:"gte=0"`
	}
)

// IsEnabled reports whether the provider should be wired. Providers default
// to enabled unless the file says otherwise.
func (p Provider) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// IsEnabled reports whether response caching is on. Defaults to enabled.
func (c Cache) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsEnabled reports whether LLM enhancement is on. Defaults to enabled;
// without API keys the client chain is empty and enhancement is a no-op.
func (a AI) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// IsEnabled reports whether outcome journaling is on. Defaults to enabled.
func (j Journal) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// providerValidation is custom validation for the Provider struct.
func providerValidation(sl validator.StructLevel) {
	p := sl.Current().Interface().(Provider)

	if _, ok := types.ParseProvider(string(p.Name)); !ok {
		sl.ReportError(p.Name, "name", "Name", "unsupportedProvider", "")
	}

	if p.Timeout != "" {
		if _, err := time.ParseDuration(p.Timeout); err != nil {
			sl.ReportError(p.Timeout, "timeout", "Timeout", "invalidDuration", "")
		}
	}
}

// chainValidation is custom validation for the Chain struct.
func chainValidation(sl validator.StructLevel) {
	chain := sl.Current().Interface().(Chain)

	if chain.RpcURL == "" {
		sl.ReportError(chain.RpcURL, "rpc_url", "RpcURL", "missingRpcUrl", "")
	}
	if chain.ChainID < 1 {
		sl.ReportError(chain.ChainID, "chain_id", "ChainID", "invalidChainId", "")
	}
}

// cacheValidation is custom validation for the Cache struct.
func cacheValidation(sl validator.StructLevel) {
	cache := sl.Current().Interface().(Cache)

	if cache.Backend != "" {
		if _, ok := SupportedCacheBackends[cache.Backend]; !ok {
			sl.ReportError(cache.Backend, "backend", "Backend", "unsupportedCacheBackend", "")
		}
	}
	if cache.Backend == "redis" && cache.RedisURL == "" {
		sl.ReportError(cache.RedisURL, "redis_url", "RedisURL", "missingRedisUrl", "")
	}
}

// Validate returns an error if the Config object is invalid.
func (c Config) Validate() error {
	validate.RegisterStructValidation(providerValidation, Provider{})
	validate.RegisterStructValidation(chainValidation, Chain{})
	validate.RegisterStructValidation(cacheValidation, Cache{})
	return validate.Struct(c)
}

// ToEndpoint converts the provider block into the endpoint settings the
// adapter constructors accept.
func (p Provider) ToEndpoint() (provider.Endpoint, error) {
	name, ok := types.ParseProvider(string(p.Name))
	if !ok {
		return provider.Endpoint{}, fmt.Errorf("unsupported provider: %s", p.Name)
	}

	var timeout time.Duration
	if p.Timeout != "" {
		parsed, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return provider.Endpoint{}, fmt.Errorf("failed to parse provider timeout: %v", err)
		}
		timeout = parsed
	}

	return provider.Endpoint{
		Name:    name,
		Rest:    p.Endpoint,
		Rpc:     p.RpcURL,
		APIKey:  p.APIKey,
		Timeout: timeout,
	}, nil
}

// EnabledProviders returns the provider blocks that should be wired.
func (c Config) EnabledProviders() []Provider {
	enabled := make([]Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.IsEnabled() {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// RPCURL returns the configured RPC endpoint for a chain, or empty when the
// chain is unknown.
func (c Config) RPCURL(chainName string) string {
	for _, chain := range c.Chains {
		if chain.Name == chainName {
			return chain.RpcURL
		}
	}
	return ""
}

// DefaultProviders returns every known oracle network with its published
// endpoint and limits.
func DefaultProviders() []Provider {
	return []Provider{
		{Name: types.ProviderChainlink, Timeout: "30s", Retries: 3},
		{Name: types.ProviderPyth, Endpoint: "https://hermes.pyth.network", Timeout: "10s", Retries: 3},
		{Name: types.ProviderBand, Endpoint: "https://laozi1.bandchain.org/api", Timeout: "30s", Retries: 3},
		{Name: types.ProviderUMA, Timeout: "60s", Retries: 2},
		{Name: types.ProviderAPI3, Timeout: "30s", Retries: 3},
	}
}

// DefaultChains returns the EVM networks served out of the box.
func DefaultChains() []Chain {
	return []Chain{
		{Name: "ethereum", ChainID: 1, RpcURL: "https://eth.llamarpc.com"},
		{Name: "polygon", ChainID: 137, RpcURL: "https://polygon.llamarpc.com"},
		{Name: "flow-evm", ChainID: 545, RpcURL: "https://mainnet.evm.nodes.onflow.org"},
		{Name: "arbitrum", ChainID: 42161, RpcURL: "https://arbitrum.llamarpc.com"},
		{Name: "base", ChainID: 8453, RpcURL: "https://mainnet.base.org"},
	}
}

// ParseConfig attempts to read and parse configuration from the given file path.
// An error is returned if reading or parsing the config fails.
func ParseConfig(configPath string) (Config, error) {
	var cfg Config

	if configPath == "" {
		return cfg, ErrEmptyConfigPath
	}

	configData, err := ioutil.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if _, err := toml.Decode(string(configData), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}
	if len(cfg.Server.WriteTimeout) == 0 {
		cfg.Server.WriteTimeout = defaultSrvWriteTimeout.String()
	}
	if len(cfg.Server.ReadTimeout) == 0 {
		cfg.Server.ReadTimeout = defaultSrvReadTimeout.String()
	}
	if cfg.RequestTimeout == "" {
		cfg.RequestTimeout = defaultRequestTimeout.String()
	}
	if cfg.HealthInterval == "" {
		cfg.HealthInterval = defaultHealthInterval.String()
	}
	if cfg.DeviationThreshold == "" {
		cfg.DeviationThreshold = "1.0"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Journal.Db == "" {
		cfg.Journal.Db = defaultJournalDb
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == "" {
		cfg.Cache.TTL = defaultCacheTTL.String()
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = defaultCacheSize
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultProviders()
	}
	if len(cfg.Chains) == 0 {
		cfg.Chains = DefaultChains()
	}

	seen := map[types.Provider]struct{}{}
	for i, p := range cfg.Providers {
		if _, ok := seen[p.Name]; ok {
			return cfg, fmt.Errorf("duplicate provider: %s", p.Name)
		}
		seen[p.Name] = struct{}{}

		if p.Timeout == "" {
			cfg.Providers[i].Timeout = defaultProviderTimeout(p.Name)
		}
		if p.Retries == 0 {
			cfg.Providers[i].Retries = defaultProviderRetries(p.Name)
		}
	}

	for _, field := range []string{
		cfg.Server.WriteTimeout,
		cfg.Server.ReadTimeout,
		cfg.RequestTimeout,
		cfg.HealthInterval,
		cfg.Cache.TTL,
	} {
		if _, err := time.ParseDuration(field); err != nil {
			return cfg, fmt.Errorf("invalid duration %q: %w", field, err)
		}
	}

	threshold, err := decimal.NewFromString(cfg.DeviationThreshold)
	if err != nil {
		return cfg, fmt.Errorf("deviation threshold must be numeric: %w", err)
	}
	if threshold.GreaterThan(maxDeviationThreshold) {
		return cfg, fmt.Errorf("deviation threshold must not exceed 3.0")
	}

	return cfg, cfg.Validate()
}

// ApplyEnvOverrides mutates the config with the recognized environment
// variables. Overrides run after file parsing so the environment wins.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		if u, err := url.Parse(v); err == nil && u.Host != "" {
			c.Server.ListenAddr = u.Host
		}
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("ORACLE_TIMEOUT"); v != "" {
		if d, ok := envDuration(v); ok {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("ORACLE_ENABLE_AI"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.AI.Enabled = &enabled
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.OpenAIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.AI.OpenRouterKey = v
	}
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Cache.Enabled = &enabled
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, ok := envDuration(v); ok {
			c.Cache.TTL = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	for i, p := range c.Providers {
		prefix := strings.ToUpper(p.Name.String())

		if v := os.Getenv(prefix + "_ENABLED"); v != "" {
			if enabled, err := strconv.ParseBool(v); err == nil {
				c.Providers[i].Enabled = &enabled
			}
		}
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			c.Providers[i].APIKey = v
		}
		if v := os.Getenv(prefix + "_ENDPOINT"); v != "" {
			c.Providers[i].Endpoint = v
		}
		if v := os.Getenv(prefix + "_TIMEOUT"); v != "" {
			if d, ok := envDuration(v); ok {
				c.Providers[i].Timeout = d
			}
		}
		if v := os.Getenv(prefix + "_RETRIES"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.Providers[i].Retries = n
			}
		}
	}

	for i, chain := range c.Chains {
		prefix, ok := chainEnvPrefixes[chain.Name]
		if !ok {
			prefix = strings.ToUpper(strings.ReplaceAll(chain.Name, "-", "_"))
		}
		if v := os.Getenv(prefix + "_RPC_URL"); v != "" {
			c.Chains[i].RpcURL = v
		}
	}
}

// envDuration parses an override value as either a bare number of seconds or
// a Go duration string, returning the canonical duration string.
func envDuration(v string) (string, bool) {
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return (time.Duration(secs) * time.Second).String(), true
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d.String(), true
	}
	return "", false
}

func defaultProviderTimeout(name types.Provider) string {
	switch name {
	case types.ProviderPyth:
		return "10s"
	case types.ProviderUMA:
		return "60s"
	default:
		return "30s"
	}
}

func defaultProviderRetries(name types.Provider) int {
	if name == types.ProviderUMA {
		return 2
	}
	return 3
}
