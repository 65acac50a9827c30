package config

import "time"

// GasPriceStrategy selects how the node prices its transactions.
type GasPriceStrategy string

const (
	// GasPriceStatic always uses DefaultGasPriceWei.
	GasPriceStatic GasPriceStrategy = "static"

	// GasPriceDynamic samples recent blocks and caps the result at MaxGasPriceWei.
	GasPriceDynamic GasPriceStrategy = "dynamic"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level" mapstructure:"log_level"`     // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format" mapstructure:"log_format"`   // "json" or "console"
	LogSampler bool   `json:"log_sampler" mapstructure:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home" mapstructure:"node_home"` // default: ~/.pauditd

	// Ledger configuration
	EthRPCURL            string  `json:"eth_rpc_url" mapstructure:"eth_rpc_url"`
	ChainID              int64   `json:"chain_id" mapstructure:"chain_id"`
	AuditContractAddress string  `json:"audit_contract_address" mapstructure:"audit_contract_address"`
	RPCRateLimit         float64 `json:"rpc_rate_limit" mapstructure:"rpc_rate_limit"` // max ledger calls per second, 0 = unlimited

	// Account: either a keystore file + passphrase or a raw hex key
	AccountKeystoreFile  string `json:"account_keystore_file" mapstructure:"account_keystore_file"`
	AccountPassphrase    string `json:"account_passphrase" mapstructure:"account_passphrase"`
	AccountPrivateKeyHex string `json:"account_private_key_hex" mapstructure:"account_private_key_hex"`

	// Transactions
	GasLimit             uint64           `json:"gas_limit" mapstructure:"gas_limit"` // 0 = estimate
	GasPriceStrategy     GasPriceStrategy `json:"gas_price_strategy" mapstructure:"gas_price_strategy"`
	DefaultGasPriceWei   uint64           `json:"default_gas_price_wei" mapstructure:"default_gas_price_wei"`
	MaxGasPriceWei       uint64           `json:"max_gas_price_wei" mapstructure:"max_gas_price_wei"`
	GasPriceSampleBlocks int              `json:"gas_price_sample_blocks" mapstructure:"gas_price_sample_blocks"`
	TxAttempts           int              `json:"tx_attempts" mapstructure:"tx_attempts"`
	TxTimeoutSeconds     int              `json:"tx_timeout_seconds" mapstructure:"tx_timeout_seconds"`
	MinConfirmations     uint64           `json:"min_confirmations" mapstructure:"min_confirmations"`

	// Audit lifecycle
	BlockDiscardOnRestart        uint64 `json:"block_discard_on_restart" mapstructure:"block_discard_on_restart"`
	SubmissionTimeoutLimitBlocks uint64 `json:"submission_timeout_limit_blocks" mapstructure:"submission_timeout_limit_blocks"`
	MaxSubmissionAttempts        int    `json:"max_submission_attempts" mapstructure:"max_submission_attempts"`
	MaxAssignedRequests          uint64 `json:"max_assigned_requests" mapstructure:"max_assigned_requests"`
	MinPriceWei                  string `json:"min_price_wei" mapstructure:"min_price_wei"` // decimal, "" = leave on-chain price untouched
	PoliceConfirmationBlocks     uint64 `json:"police_confirmation_blocks" mapstructure:"police_confirmation_blocks"`

	// Worker intervals
	PollIntervalSeconds         int `json:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
	BlockPollIntervalSeconds    int `json:"block_poll_interval_seconds" mapstructure:"block_poll_interval_seconds"`
	ClaimRewardsIntervalSeconds int `json:"claim_rewards_interval_seconds" mapstructure:"claim_rewards_interval_seconds"`
	MetricsIntervalSeconds      int `json:"metrics_interval_seconds" mapstructure:"metrics_interval_seconds"`
	HealthCheckIntervalSeconds  int `json:"health_check_interval_seconds" mapstructure:"health_check_interval_seconds"`

	// Telemetry and query server
	MetricsPushGatewayURL string `json:"metrics_push_gateway_url" mapstructure:"metrics_push_gateway_url"`
	QueryServerPort       int    `json:"query_server_port" mapstructure:"query_server_port"` // 0 disables

	// Analysis
	SolcPath              string           `json:"solc_path" mapstructure:"solc_path"` // "" skips compilation
	CompileTimeoutSeconds int              `json:"compile_timeout_seconds" mapstructure:"compile_timeout_seconds"`
	ContractFileRoot      string           `json:"contract_file_root" mapstructure:"contract_file_root"` // file:// contract URIs must resolve below it; "" rejects them
	Analyzers             []AnalyzerConfig `json:"analyzers" mapstructure:"analyzers"`

	// Compressed report registries. Order is part of the on-chain format.
	ReportVersion         string   `json:"report_version" mapstructure:"report_version"`
	AnalyzerRegistry      []string `json:"analyzer_registry" mapstructure:"analyzer_registry"`
	VulnerabilityRegistry []string `json:"vulnerability_registry" mapstructure:"vulnerability_registry"`

	// Report upload
	Upload UploadConfig `json:"upload" mapstructure:"upload"`
}

// AnalyzerConfig describes one analyzer wrapper.
type AnalyzerConfig struct {
	Name           string `json:"name" mapstructure:"name"`
	WrapperDir     string `json:"wrapper_dir" mapstructure:"wrapper_dir"` // holds the `metadata` and `once` executables
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Experimental   bool   `json:"experimental" mapstructure:"experimental"`
}

// UploadConfig selects where full reports and contracts are copied.
type UploadConfig struct {
	Provider        string `json:"provider" mapstructure:"provider"` // "gcs", "local" or "none"
	Bucket          string `json:"bucket" mapstructure:"bucket"`
	CredentialsFile string `json:"credentials_file" mapstructure:"credentials_file"`
	ReportPrefix    string `json:"report_prefix" mapstructure:"report_prefix"`
	ContractPrefix  string `json:"contract_prefix" mapstructure:"contract_prefix"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) PollInterval() time.Duration         { return seconds(c.PollIntervalSeconds) }
func (c *Config) BlockPollInterval() time.Duration    { return seconds(c.BlockPollIntervalSeconds) }
func (c *Config) ClaimRewardsInterval() time.Duration { return seconds(c.ClaimRewardsIntervalSeconds) }
func (c *Config) MetricsInterval() time.Duration      { return seconds(c.MetricsIntervalSeconds) }
func (c *Config) HealthCheckInterval() time.Duration  { return seconds(c.HealthCheckIntervalSeconds) }
func (c *Config) TxTimeout() time.Duration            { return seconds(c.TxTimeoutSeconds) }
func (c *Config) CompileTimeout() time.Duration       { return seconds(c.CompileTimeoutSeconds) }

// Timeout returns the analyzer's own time budget.
func (a AnalyzerConfig) Timeout() time.Duration { return seconds(a.TimeoutSeconds) }
