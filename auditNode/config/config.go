package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pushchain/push-audit-node/auditNode/constant"
)

//go:embed default_config.json
var defaultConfigJSON []byte

// maxConfirmationDepth bounds min_confirmations; deeper waits outlast the receipt timeout.
const maxConfirmationDepth = 64

func validateConfig(cfg *Config) error {
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	if cfg.NodeHome == "" {
		cfg.NodeHome = constant.DefaultNodeHome
	}
	if cfg.EthRPCURL == "" {
		return fmt.Errorf("eth_rpc_url is required")
	}
	if cfg.AuditContractAddress == "" {
		return fmt.Errorf("audit_contract_address is required")
	}
	if cfg.AccountKeystoreFile == "" && cfg.AccountPrivateKeyHex == "" {
		return fmt.Errorf("either account_keystore_file or account_private_key_hex is required")
	}

	// Transaction defaults
	if cfg.GasPriceStrategy == "" {
		cfg.GasPriceStrategy = GasPriceDynamic
	}
	if cfg.GasPriceStrategy != GasPriceStatic && cfg.GasPriceStrategy != GasPriceDynamic {
		return fmt.Errorf("gas price strategy must be 'static' or 'dynamic'")
	}
	if cfg.MaxGasPriceWei != 0 && cfg.DefaultGasPriceWei > cfg.MaxGasPriceWei {
		return fmt.Errorf("default_gas_price_wei exceeds max_gas_price_wei")
	}
	if cfg.GasPriceSampleBlocks == 0 {
		cfg.GasPriceSampleBlocks = 5
	}
	if cfg.TxAttempts == 0 {
		cfg.TxAttempts = 3
	}
	if cfg.TxTimeoutSeconds == 0 {
		cfg.TxTimeoutSeconds = 300
	}
	if cfg.MinConfirmations > maxConfirmationDepth {
		return fmt.Errorf("min_confirmations must not exceed %d", maxConfirmationDepth)
	}

	// Lifecycle defaults
	if cfg.SubmissionTimeoutLimitBlocks == 0 {
		cfg.SubmissionTimeoutLimitBlocks = 25
	}
	if cfg.MaxSubmissionAttempts == 0 {
		cfg.MaxSubmissionAttempts = 3
	}
	if cfg.MaxAssignedRequests == 0 {
		cfg.MaxAssignedRequests = 1
	}
	if cfg.MinPriceWei != "" {
		if _, ok := new(big.Int).SetString(cfg.MinPriceWei, 10); !ok {
			return fmt.Errorf("min_price_wei must be a decimal integer")
		}
	}

	// Worker interval defaults
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 10
	}
	if cfg.BlockPollIntervalSeconds == 0 {
		cfg.BlockPollIntervalSeconds = 5
	}
	if cfg.ClaimRewardsIntervalSeconds == 0 {
		cfg.ClaimRewardsIntervalSeconds = 86400
	}
	if cfg.MetricsIntervalSeconds == 0 {
		cfg.MetricsIntervalSeconds = 30
	}
	if cfg.HealthCheckIntervalSeconds == 0 {
		cfg.HealthCheckIntervalSeconds = 5
	}
	if cfg.CompileTimeoutSeconds == 0 {
		cfg.CompileTimeoutSeconds = 60
	}

	// Analyzers
	if len(cfg.Analyzers) == 0 {
		return fmt.Errorf("at least one analyzer must be configured")
	}
	for i, a := range cfg.Analyzers {
		if a.Name == "" || a.WrapperDir == "" {
			return fmt.Errorf("analyzer %d: name and wrapper_dir are required", i)
		}
		if a.TimeoutSeconds <= 0 {
			cfg.Analyzers[i].TimeoutSeconds = 300
		}
		if !contains(cfg.AnalyzerRegistry, a.Name) {
			return fmt.Errorf("analyzer %s is not in analyzer_registry", a.Name)
		}
	}

	// Registries
	if cfg.ReportVersion == "" {
		cfg.ReportVersion = constant.Version
	}
	if err := checkRegistry("analyzer_registry", cfg.AnalyzerRegistry, 1<<5); err != nil {
		return err
	}
	if err := checkRegistry("vulnerability_registry", cfg.VulnerabilityRegistry, 1<<8); err != nil {
		return err
	}

	// Upload
	if cfg.Upload.Provider == "" {
		cfg.Upload.Provider = "none"
	}
	if !contains([]string{"none", "local", "gcs"}, cfg.Upload.Provider) {
		return fmt.Errorf("upload provider must be 'gcs', 'local' or 'none'")
	}
	if cfg.Upload.Provider == "gcs" && cfg.Upload.Bucket == "" {
		return fmt.Errorf("upload bucket is required for the gcs provider")
	}

	return nil
}

func checkRegistry(name string, entries []string, capacity int) error {
	if len(entries) == 0 {
		return fmt.Errorf("%s must not be empty", name)
	}
	if len(entries) > capacity {
		return fmt.Errorf("%s holds %d entries, at most %d fit the report format", name, len(entries), capacity)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e]; dup {
			return fmt.Errorf("%s contains duplicate entry %q", name, e)
		}
		seen[e] = struct{}{}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Validate applies defaults and checks cfg.
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// Save writes the given config to <basePath>/config/pauditd_config.json.
func Save(cfg *Config, basePath string) error {
	configDir := filepath.Join(basePath, constant.ConfigSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, constant.ConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads <basePath>/config/pauditd_config.json on top of the embedded defaults,
// applies PAUDITD_* environment overrides and validates the result.
func Load(basePath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(defaultConfigJSON)); err != nil {
		return Config{}, fmt.Errorf("failed to read default config: %w", err)
	}

	configFile := filepath.Join(basePath, constant.ConfigSubdir, constant.ConfigFileName)
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	v.SetEnvPrefix(constant.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.NodeHome == "" {
		cfg.NodeHome = basePath
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}
