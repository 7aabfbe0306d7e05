package runtime

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Package-level validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	registerCustomValidators()
}

// Config is the process configuration read from ivrflow.yaml.
type Config struct {
	Log       LogConfig                 `yaml:"log"`
	Engine    EngineConfig              `yaml:"engine"`
	Flows     FlowsConfig               `yaml:"flows"`
	HTTP      HTTPConfig                `yaml:"http"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
	Plugins   map[string]map[string]any `yaml:"plugins"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

type EngineConfig struct {
	MaxSteps        int           `yaml:"max_steps" default:"2000" validate:"gte=1"`
	AnswerDelay     time.Duration `yaml:"answer_delay" default:"500ms" validate:"gte=0"`
	PromptTimeout   time.Duration `yaml:"prompt_timeout" default:"10s" validate:"gt=0"`
	UnitTimeout     time.Duration `yaml:"unit_timeout" default:"5s" validate:"gt=0"`
	DefaultLanguage string        `yaml:"default_language" default:"ar" validate:"required"`
	NotFoundPrompt  string        `yaml:"not_found_prompt" default:"invalid"`
}

type FlowsConfig struct {
	Dir         string        `yaml:"dir"`
	PlatformURL string        `yaml:"platform_url" validate:"omitempty,url_format"`
	CacheTTL    time.Duration `yaml:"cache_ttl" default:"1m" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" default:"5s" validate:"gt=0"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" default:"127.0.0.1:8089" validate:"omitempty,hostname_port"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`
	ServiceName  string `yaml:"service_name" default:"ivrflow"`
	Insecure     bool   `yaml:"insecure" default:"true"`
}

// LoadConfig reads a YAML config file, resolves ${VAR} and ${VAR:default}
// values from the environment, applies defaults and validates the result.
// An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("error unmarshalling config: %w", err)
		}
		resolved, err := resolveEnvVars(raw)
		if err != nil {
			return nil, err
		}
		raw = resolved.(map[string]any)
	}

	var cfg Config
	if err := InitializeConfig(&cfg, raw); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PluginConfig returns the raw values configured for a plugin.
func (c *Config) PluginConfig(name string) map[string]any {
	if c.Plugins == nil {
		return nil
	}
	return c.Plugins[name]
}

// InitializeConfig prepares a config struct: defaults, then raw values, then
// validation.
func InitializeConfig(config any, rawValues map[string]any) error {
	if err := ApplyDefaults(config); err != nil {
		slog.Error("Config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Config structs map fields with yaml tags
	if len(rawValues) > 0 {
		if err := mapToStructFromYAML(rawValues, config); err != nil {
			slog.Error("Config: failed to apply config values",
				"config_type", reflect.TypeOf(config).String(),
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}

	if err := validateConfig(configValue.Interface()); err != nil {
		slog.Error("Config validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// registerCustomValidators registers the custom validation functions used in config tags
func registerCustomValidators() {
	// hostname_port validates "host:port" format with numeric port
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		host, port, err := net.SplitHostPort(addr)
		if err != nil || host == "" || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})
}

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

// Validate runs struct-tag validation on v.
func Validate(v any) error {
	return validateConfig(v)
}

func validateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, fieldErr := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"field '%s' failed validation: %s (rule: %s)",
					fieldErr.Namespace(),
					fieldErr.Error(),
					fieldErr.Tag(),
				))
			}
			return fmt.Errorf("validation failed:\n  - %s", strings.Join(errMessages, "\n  - "))
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

func resolveEnvVars(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		for k, item := range v {
			resolved, err := resolveEnvVars(item)
			if err != nil {
				return nil, err
			}
			v[k] = resolved
		}
		return v, nil
	case []any:
		for i, item := range v {
			resolved, err := resolveEnvVars(item)
			if err != nil {
				return nil, err
			}
			v[i] = resolved
		}
		return v, nil
	case string:
		return resolveEnvVar(v)
	default:
		return value, nil
	}
}

// resolveEnvVar resolves an environment variable reference in a config value
func resolveEnvVar(value string) (any, error) {
	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return value, nil
	}

	varName := matches[1]
	defaultPart := matches[2]

	if envValue, exists := os.LookupEnv(varName); exists {
		return envValue, nil
	}

	if defaultPart != "" {
		return strings.TrimPrefix(defaultPart, ":"), nil
	}

	return nil, fmt.Errorf("required environment variable not set: %s", varName)
}
