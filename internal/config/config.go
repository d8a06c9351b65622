package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/acme/dialplan-sync/internal/domain"
	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

// Config captures the full configuration surface for the pipeline.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Tokens    string           `mapstructure:"tokens"`
	Normalize NormalizeConfig  `mapstructure:"normalize"`
	UCM       UCMConfig        `mapstructure:"ucm"`
	Webex     WebexConfig      `mapstructure:"webex"`
	Retry     RetryConfig      `mapstructure:"retry"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
	DialPlans []DialPlanConfig `mapstructure:"dialplans"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type NormalizeConfig struct {
	DefaultRegion string `mapstructure:"default_region"`
}

type UCMConfig struct {
	Host               string        `mapstructure:"host"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

type WebexConfig struct {
	OrgID          string        `mapstructure:"org_id"`
	U2CURL         string        `mapstructure:"u2c_url"`
	APIURL         string        `mapstructure:"api_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BatchSize      int           `mapstructure:"batch_size"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      float64       `mapstructure:"jitter"`
}

type TelemetryConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
}

// DialPlanConfig is one declarative dial plan entry: the plan name, its
// routing target and the catalogs whose patterns it receives.
type DialPlanConfig struct {
	Name        string           `mapstructure:"name"`
	RouteType   domain.RouteType `mapstructure:"route_type"`
	RouteChoice string           `mapstructure:"route_choice"`
	Catalogs    []string         `mapstructure:"catalogs"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("DIALPLAN")
	v.SetEnvKeyReplacer(NewEnvReplacer())
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w: %w", pkgerrors.ErrConfig, err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w: %w", pkgerrors.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dialplan-sync")
	v.SetDefault("app.env", "development")
	v.SetDefault("tokens", ".tokens.yaml")
	v.SetDefault("normalize.default_region", "US")
	v.SetDefault("ucm.request_timeout", 60*time.Second)
	v.SetDefault("webex.u2c_url", "https://u2c.wbx2.com/u2c/api/v1")
	v.SetDefault("webex.api_url", "https://webexapis.com/v1")
	v.SetDefault("webex.request_timeout", 30*time.Second)
	v.SetDefault("webex.batch_size", 200)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", 500*time.Millisecond)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.jitter", 0.2)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

// Validate checks the dial plan entries and global settings. Violations
// abort the run before any remote call is made.
func (c *Config) Validate() error {
	if c.Tokens == "" {
		return configError("tokens file path must be set")
	}
	if c.Webex.BatchSize <= 0 {
		return configError("webex.batch_size must be positive")
	}
	if len(c.DialPlans) == 0 {
		return configError("at least one dial plan must be configured")
	}

	names := make(map[string]bool, len(c.DialPlans))
	catalogs := make(map[string]string)
	for _, dp := range c.DialPlans {
		if dp.Name == "" {
			return configError("dial plan with empty name")
		}
		if names[dp.Name] {
			return configError(fmt.Sprintf("duplicate dial plan name %q", dp.Name))
		}
		names[dp.Name] = true
		if !dp.RouteType.Valid() {
			return configError(fmt.Sprintf("dial plan %q: route_type must be %q or %q",
				dp.Name, domain.RouteTypeTrunk, domain.RouteTypeRouteGroup))
		}
		if dp.RouteChoice == "" {
			return configError(fmt.Sprintf("dial plan %q: route_choice must be set", dp.Name))
		}
		for _, catalog := range dp.Catalogs {
			if owner, ok := catalogs[catalog]; ok {
				return configError(fmt.Sprintf("catalog %q claimed by dial plans %q and %q",
					catalog, owner, dp.Name))
			}
			catalogs[catalog] = dp.Name
		}
	}
	return nil
}

// PlanByCatalog maps catalog route strings to the owning dial plan name.
func (c *Config) PlanByCatalog() map[string]string {
	m := make(map[string]string)
	for _, dp := range c.DialPlans {
		for _, catalog := range dp.Catalogs {
			m[catalog] = dp.Name
		}
	}
	return m
}

// PlanByName maps dial plan names to their config entries.
func (c *Config) PlanByName() map[string]DialPlanConfig {
	m := make(map[string]DialPlanConfig, len(c.DialPlans))
	for _, dp := range c.DialPlans {
		m[dp.Name] = dp
	}
	return m
}

func configError(msg string) error {
	return fmt.Errorf("config: %s: %w", msg, pkgerrors.ErrConfig)
}
