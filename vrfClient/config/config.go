package config

import (
	"crypto/ecdsa"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/pushchain/push-vrf-node/vrfClient/constant"
)

//go:embed default_config.toml
var defaultConfigTOML []byte

var clusters = map[string]rpc.Cluster{
	"mainnet-beta": rpc.MainNetBeta,
	"mainnet":      rpc.MainNetBeta,
	"testnet":      rpc.TestNet,
	"devnet":       rpc.DevNet,
	"localnet":     rpc.LocalNet,
}

var commitments = map[string]rpc.CommitmentType{
	"processed": rpc.CommitmentProcessed,
	"confirmed": rpc.CommitmentConfirmed,
	"finalized": rpc.CommitmentFinalized,
}

// ConfigPath returns <home>/config/pvrf_config.toml.
func ConfigPath(home string) string {
	return filepath.Join(home, constant.ConfigSubdir, constant.ConfigFileName)
}

// DefaultDatabaseURL returns the SQLite database under the node home.
func DefaultDatabaseURL(home string) string {
	return "sqlite://" + filepath.Join(home, constant.DatabasesSubdir, constant.DatabaseFile)
}

func newViper(home string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(constant.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Every key needs a default so that environment-only values unmarshal.
	v.SetDefault("log-level", 1)
	v.SetDefault("log-format", "console")
	v.SetDefault("log-sampler", false)
	v.SetDefault("owner", "")
	v.SetDefault("owner-keypair-file", "")
	v.SetDefault("secret", "")
	v.SetDefault("cluster", "devnet")
	v.SetDefault("ws-url", "")
	v.SetDefault("rpc-urls", []string{})
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("program-ids", []string{})
	v.SetDefault("num-confirmed-block", 1)
	v.SetDefault("retry-interval-seconds", 5)
	v.SetDefault("backfill-interval-seconds", 30)
	v.SetDefault("backfill-cache-size", 5000)
	v.SetDefault("backfill-page-size", 1000)
	v.SetDefault("backfill-rps", 10)
	v.SetDefault("max-concurrent-tasks", 64)
	v.SetDefault("new-blockhash-timeout-seconds", 10)
	v.SetDefault("stale-processing-seconds", 600)
	v.SetDefault("database-url", DefaultDatabaseURL(home))
	v.SetDefault("db-max-open-conns", 10)
	v.SetDefault("db-checkout-timeout-seconds", 5)
	v.SetDefault("query-server-port", 8080)
	return v
}

// Load reads <home>/config/pvrf_config.toml, falling back to vrf-config.toml
// in the working directory. A missing file is not an error: the node can be
// configured from the environment alone.
func Load(home string) (*Config, error) {
	path := ConfigPath(home)
	if _, err := os.Stat(path); err == nil {
		return LoadFile(home, path)
	}

	v := newViper(home)
	v.SetConfigName(constant.LegacyConfigName)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}
	return unmarshal(v)
}

// LoadFile reads the config from an explicit path.
func LoadFile(home, path string) (*Config, error) {
	v := newViper(home)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &cfg, nil
}

// WriteDefault writes the default config to <home>/config/pvrf_config.toml.
// An existing file is only replaced when overwrite is set.
func WriteDefault(home string, overwrite bool) (string, error) {
	path := ConfigPath(home)
	if _, err := os.Stat(path); err == nil && !overwrite {
		return path, fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return path, errors.Wrap(err, "failed to create config directory")
	}
	if err := os.WriteFile(path, defaultConfigTOML, 0o600); err != nil {
		return path, errors.Wrap(err, "failed to write config file")
	}
	return path, nil
}

// Validate checks cfg and converts it into a VrfConfig. Any error is a fatal
// startup error.
func Validate(cfg *Config) (*VrfConfig, error) {
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return nil, fmt.Errorf("log level must be between 0 and 5")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("log format must be 'json' or 'console'")
	}

	owner, err := parseOwner(cfg.Owner, cfg.OwnerKeypairFile)
	if err != nil {
		return nil, err
	}
	secret, err := parseSecret(cfg.Secret)
	if err != nil {
		return nil, err
	}

	rpcURL, wsURL, err := resolveCluster(cfg.Cluster)
	if err != nil {
		return nil, err
	}
	if cfg.WSURL != "" {
		wsURL = cfg.WSURL
	}
	rpcURLs := []string{rpcURL}
	for _, u := range cfg.RPCURLs {
		u = strings.TrimSpace(u)
		if u != "" && u != rpcURL {
			rpcURLs = append(rpcURLs, u)
		}
	}

	commitment, ok := commitments[strings.ToLower(cfg.Commitment)]
	if !ok {
		return nil, fmt.Errorf("commitment must be one of processed, confirmed, finalized: got %q", cfg.Commitment)
	}

	programIDs, err := parsePrograms(cfg.ProgramIDs)
	if err != nil {
		return nil, err
	}

	if cfg.NumConfirmedBlock < 1 {
		return nil, fmt.Errorf("num-confirmed-block must be at least 1")
	}
	if cfg.RetryIntervalSeconds <= 0 {
		return nil, fmt.Errorf("retry-interval-seconds must be positive")
	}
	if cfg.BackfillIntervalSeconds <= 0 {
		return nil, fmt.Errorf("backfill-interval-seconds must be positive")
	}
	if cfg.BackfillCacheSize <= 0 || cfg.BackfillPageSize <= 0 {
		return nil, fmt.Errorf("backfill cache and page sizes must be positive")
	}
	if cfg.BackfillRPS <= 0 {
		return nil, fmt.Errorf("backfill-rps must be positive")
	}
	if cfg.MaxConcurrentTasks < 0 {
		return nil, fmt.Errorf("max-concurrent-tasks must not be negative")
	}
	if cfg.NewBlockhashTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("new-blockhash-timeout-seconds must be positive")
	}
	if cfg.StaleProcessingSeconds <= 0 {
		return nil, fmt.Errorf("stale-processing-seconds must be positive")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("database-url is required")
	}
	if cfg.DBMaxOpenConns <= 0 {
		return nil, fmt.Errorf("db-max-open-conns must be positive")
	}
	if cfg.DBCheckoutTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("db-checkout-timeout-seconds must be positive")
	}
	if cfg.QueryServerPort < 0 || cfg.QueryServerPort > 65535 {
		return nil, fmt.Errorf("query-server-port must be between 0 and 65535")
	}

	return &VrfConfig{
		LogLevel:             cfg.LogLevel,
		LogFormat:            cfg.LogFormat,
		LogSampler:           cfg.LogSampler,
		Owner:                owner,
		Secret:               secret,
		Cluster:              cfg.Cluster,
		RPCURLs:              rpcURLs,
		WSURL:                wsURL,
		Commitment:           commitment,
		ProgramIDs:           programIDs,
		NumConfirmedBlock:    cfg.NumConfirmedBlock,
		RetryInterval:        time.Duration(cfg.RetryIntervalSeconds) * time.Second,
		BackfillInterval:     time.Duration(cfg.BackfillIntervalSeconds) * time.Second,
		BackfillCacheSize:    cfg.BackfillCacheSize,
		BackfillPageSize:     cfg.BackfillPageSize,
		BackfillRPS:          cfg.BackfillRPS,
		MaxConcurrentTasks:   cfg.MaxConcurrentTasks,
		NewBlockhashTimeout:  time.Duration(cfg.NewBlockhashTimeoutSeconds) * time.Second,
		StaleProcessingAfter: time.Duration(cfg.StaleProcessingSeconds) * time.Second,
		DatabaseURL:          cfg.DatabaseURL,
		DBMaxOpenConns:       cfg.DBMaxOpenConns,
		DBCheckoutTimeout:    time.Duration(cfg.DBCheckoutTimeoutSeconds) * time.Second,
		QueryServerPort:      cfg.QueryServerPort,
	}, nil
}

func parseOwner(owner, keypairFile string) (solana.PrivateKey, error) {
	if owner != "" {
		key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(owner))
		if err != nil {
			return nil, errors.Wrap(err, "invalid owner keypair")
		}
		if len(key) != 64 {
			return nil, fmt.Errorf("invalid owner keypair: expected 64 bytes, got %d", len(key))
		}
		return key, nil
	}
	if keypairFile != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load owner keypair file %s", keypairFile)
		}
		return key, nil
	}
	return nil, fmt.Errorf("owner or owner-keypair-file is required")
}

func parseSecret(secret string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(secret), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "secret must be hex encoded")
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret must be 32 bytes, got %d", len(raw))
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("secret is not a valid secp256k1 scalar")
	}
	return secp256k1.NewPrivateKey(&scalar).ToECDSA(), nil
}

// resolveCluster maps a named cluster or an RPC URL to RPC and websocket
// endpoints.
func resolveCluster(cluster string) (string, string, error) {
	cluster = strings.TrimSpace(cluster)
	if c, ok := clusters[strings.ToLower(cluster)]; ok {
		return c.RPC, c.WS, nil
	}

	u, err := url.Parse(cluster)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("cluster must be a known cluster name or an RPC URL: got %q", cluster)
	}
	ws := *u
	switch u.Scheme {
	case "http":
		ws.Scheme = "ws"
	case "https":
		ws.Scheme = "wss"
	default:
		return "", "", fmt.Errorf("cluster URL must use http or https: got %q", cluster)
	}
	// Solana validators serve pubsub on the RPC port + 1.
	if u.Port() == "8899" {
		ws.Host = u.Hostname() + ":8900"
	}
	return u.String(), ws.String(), nil
}

func parsePrograms(ids []string) ([]solana.PublicKey, error) {
	seen := make(map[solana.PublicKey]struct{}, len(ids))
	var out []solana.PublicKey
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		key, err := solana.PublicKeyFromBase58(id)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid program id %q", id)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one program id is required")
	}
	return out, nil
}
