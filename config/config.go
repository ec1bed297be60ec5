// Package config loads the gateway's YAML configuration: model registry
// entries, router policies, admission settings, and CLI defaults, with an
// environment-variable overlay and XDG-resolved file locations the same
// way the CLI-shaped sibling in the pack resolves its own config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/vllora/gateway/gwmodel"
)

// ProviderCredential is one provider's API key/endpoint. APIKeyEnv names
// the environment variable to read the key from; VLLORA_<PROVIDER>_API_KEY
// is read when neither APIKey nor APIKeyEnv is set.
type ProviderCredential struct {
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Region    string `yaml:"region,omitempty"` // bedrock/vertex
	Project   string `yaml:"project,omitempty"` // vertex
}

// ModelEntry is one registry.Resolve-able model or router alias.
type ModelEntry struct {
	Name               string                `yaml:"name"`
	Provider           string                `yaml:"provider"`
	InferenceModelName string                `yaml:"inference_model_name,omitempty"`
	IsCustom           bool                  `yaml:"is_custom,omitempty"`
	Endpoint           string                `yaml:"endpoint,omitempty"`
	ContextSize        int                   `yaml:"context_size,omitempty"`
	Capabilities       []string              `yaml:"capabilities,omitempty"`
	Owner              string                `yaml:"owner,omitempty"`
	DefaultTimeoutMS   int                   `yaml:"default_timeout_ms,omitempty"`
	Prices             gwmodel.PriceTable    `yaml:"prices,omitempty"`
	Router             *gwmodel.RouterConfig `yaml:"router,omitempty"`
}

// providerFamilies maps a config file's short provider name to the registry's
// gwmodel.ProviderFamily constant.
var providerFamilies = map[string]gwmodel.ProviderFamily{
	"openai":    gwmodel.ProviderOpenAICompatible,
	"anthropic": gwmodel.ProviderAnthropic,
	"gemini":    gwmodel.ProviderGemini,
	"bedrock":   gwmodel.ProviderBedrock,
	"vertex":    gwmodel.ProviderVertex,
}

// Metadata converts e into the gwmodel.ModelMetadata the registry needs,
// resolving e.Provider against the known provider families.
func (e ModelEntry) Metadata() (gwmodel.ModelMetadata, error) {
	family, ok := providerFamilies[e.Provider]
	if !ok {
		return gwmodel.ModelMetadata{}, fmt.Errorf("model %q: unknown provider %q", e.Name, e.Provider)
	}
	inferenceModelName := e.InferenceModelName
	if inferenceModelName == "" {
		inferenceModelName = e.Name
	}
	caps := make(map[gwmodel.Capability]bool, len(e.Capabilities))
	for _, c := range e.Capabilities {
		caps[gwmodel.Capability(c)] = true
	}
	return gwmodel.ModelMetadata{
		ID:                 e.Name,
		ProviderFamily:     family,
		InferenceModelName: inferenceModelName,
		Endpoint:           e.Endpoint,
		Prices:             e.Prices,
		ContextSize:        e.ContextSize,
		Capabilities:       caps,
		IsCustom:           e.IsCustom,
		Owner:              e.Owner,
		DefaultTimeoutMS:   e.DefaultTimeoutMS,
	}, nil
}

// TelemetryConfig configures OTLP export per spec §6.
type TelemetryConfig struct {
	OTLPEndpoint    string `yaml:"otlp_endpoint,omitempty"`
	OTLPMetricsPort int    `yaml:"otlp_metrics_port,omitempty"`
}

// AdmissionConfig configures the admission gate defaults.
type AdmissionConfig struct {
	RequireAuth   bool    `yaml:"require_auth,omitempty"`
	InitialTPM    float64 `yaml:"initial_tpm,omitempty"`
	MaxTPM        float64 `yaml:"max_tpm,omitempty"`
	ClusterRedis  string  `yaml:"cluster_redis,omitempty"`
}

// ServeConfig holds the `serve` subcommand's defaults, overridable by CLI
// flags per spec §6.
type ServeConfig struct {
	Port int `yaml:"port,omitempty"`
}

// MCPServerEntry is one registered MCP server, managed by the `mcp`
// subcommand.
type MCPServerEntry struct {
	Name       string `yaml:"name"`
	Endpoint   string `yaml:"endpoint"`
	AuthHeader string `yaml:"auth_header,omitempty"`
}

// Config is the gateway's top-level configuration document.
type Config struct {
	Serve       ServeConfig                   `yaml:"serve,omitempty"`
	Telemetry   TelemetryConfig               `yaml:"telemetry,omitempty"`
	Admission   AdmissionConfig               `yaml:"admission,omitempty"`
	LangDBUIURL string                        `yaml:"langdb_ui_url,omitempty"`
	Providers   map[string]ProviderCredential `yaml:"providers,omitempty"`
	Models      []ModelEntry                  `yaml:"models,omitempty"`
	MCPServers  []MCPServerEntry              `yaml:"mcp_servers,omitempty"`
}

// Default returns the configuration used when no file is found: a gateway
// listening on 8080 with no configured models, suitable for a quickstart
// with env-only credentials.
func Default() *Config {
	return &Config{
		Serve: ServeConfig{Port: 8080},
	}
}

// ConfigDir returns the XDG-resolved directory the CLI reads its config
// file from ("$XDG_CONFIG_HOME/vllora-gateway").
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "vllora-gateway")
}

// ConfigPath returns the default config file path under ConfigDir.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads and parses the YAML file at path, applying environment
// overrides afterward. A missing file is not an error: Load falls back to
// Default() so `gateway serve` with no config still starts.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through with defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides layers OTLP_*/LANGDB_UI_URL environment
// variables over a loaded config, per spec §6. Provider credentials are
// resolved lazily from ProviderCredential.APIKeyEnv rather than scanned
// here, since the set of providers isn't known until Models is read.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("OTLP_METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.OTLPMetricsPort = p
		}
	}
	if v := os.Getenv("LANGDB_UI_URL"); v != "" {
		cfg.LangDBUIURL = v
	}
}

// Save writes cfg to path as YAML, creating its parent directory if
// needed. Used by the `mcp add`/`mcp remove` subcommands to persist
// registry changes back to the config file.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// ResolveCredential returns provider's credential, resolving APIKey from
// the provider's ProviderCredential.APIKeyEnv variable, or from the
// VLLORA_<PROVIDER>_API_KEY convention when the provider's entry sets
// neither APIKey nor APIKeyEnv.
func (c *Config) ResolveCredential(provider string) ProviderCredential {
	cred := c.Providers[provider]
	if cred.APIKey != "" {
		return cred
	}
	if cred.APIKeyEnv != "" {
		cred.APIKey = os.Getenv(cred.APIKeyEnv)
		return cred
	}
	envVar := "VLLORA_" + strings.ToUpper(provider) + "_API_KEY"
	cred.APIKey = os.Getenv(envVar)
	return cred
}
