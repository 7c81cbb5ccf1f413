package config

import (
	"crypto/ecdsa"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Config is the raw configuration as read from the config file and the
// environment. Keys are kebab-case; every key may be overridden by an
// environment variable such as VRF_RETRY_INTERVAL_SECONDS.
type Config struct {
	// Log Config
	LogLevel   int    `mapstructure:"log-level"`   // 0 = debug, 1 = info, etc.
	LogFormat  string `mapstructure:"log-format"`  // "json" or "console"
	LogSampler bool   `mapstructure:"log-sampler"` // if true, samples logs (1 in 5)

	// Keys
	Owner            string `mapstructure:"owner"`              // base58 64-byte Solana keypair
	OwnerKeypairFile string `mapstructure:"owner-keypair-file"` // solana-keygen JSON file, used when owner is empty
	Secret           string `mapstructure:"secret"`             // hex secp256k1 scalar used as VRF secret key

	// Chain
	Cluster           string   `mapstructure:"cluster"`     // mainnet-beta, testnet, devnet, localnet or an RPC URL
	WSURL             string   `mapstructure:"ws-url"`      // derived from cluster when empty
	RPCURLs           []string `mapstructure:"rpc-urls"`    // extra failover RPC endpoints
	Commitment        string   `mapstructure:"commitment"`  // processed, confirmed or finalized
	ProgramIDs        []string `mapstructure:"program-ids"` // programs emitting RequestVrf events
	NumConfirmedBlock int      `mapstructure:"num-confirmed-block"`

	// Processing
	RetryIntervalSeconds       int `mapstructure:"retry-interval-seconds"`
	BackfillIntervalSeconds    int `mapstructure:"backfill-interval-seconds"`
	BackfillCacheSize          int `mapstructure:"backfill-cache-size"`
	BackfillPageSize           int `mapstructure:"backfill-page-size"`
	BackfillRPS                int `mapstructure:"backfill-rps"`
	MaxConcurrentTasks         int `mapstructure:"max-concurrent-tasks"` // 0 = unbounded
	NewBlockhashTimeoutSeconds int `mapstructure:"new-blockhash-timeout-seconds"`
	StaleProcessingSeconds     int `mapstructure:"stale-processing-seconds"`

	// Database
	DatabaseURL              string `mapstructure:"database-url"`
	DBMaxOpenConns           int    `mapstructure:"db-max-open-conns"`
	DBCheckoutTimeoutSeconds int    `mapstructure:"db-checkout-timeout-seconds"`

	// Query Server Config
	QueryServerPort int `mapstructure:"query-server-port"` // 0 disables the server
}

// VrfConfig is the validated, typed form of Config used by the node.
type VrfConfig struct {
	LogLevel   int
	LogFormat  string
	LogSampler bool

	Owner  solana.PrivateKey
	Secret *ecdsa.PrivateKey

	Cluster           string
	RPCURLs           []string // primary endpoint first
	WSURL             string
	Commitment        rpc.CommitmentType
	ProgramIDs        []solana.PublicKey
	NumConfirmedBlock int

	RetryInterval        time.Duration
	BackfillInterval     time.Duration
	BackfillCacheSize    int
	BackfillPageSize     int
	BackfillRPS          int
	MaxConcurrentTasks   int
	NewBlockhashTimeout  time.Duration
	StaleProcessingAfter time.Duration

	DatabaseURL       string
	DBMaxOpenConns    int
	DBCheckoutTimeout time.Duration

	QueryServerPort int
}

// ProgramIDStrings returns the watched program ids in base58.
func (c *VrfConfig) ProgramIDStrings() []string {
	out := make([]string, len(c.ProgramIDs))
	for i, p := range c.ProgramIDs {
		out[i] = p.String()
	}
	return out
}
