package constant

import (
	"os"
	"time"
)

// <NodeDir>/                    (e.g., /home/oracle/.pvrf)
// └── config/
//	└── pvrf_config.toml
// └── databases/
//	└── vrf.db

const (
	NodeDir = ".pvrf"

	ConfigSubdir   = "config"
	ConfigFileName = "pvrf_config.toml"

	// LegacyConfigName is looked up in the working directory when no node
	// config exists ("vrf-config.toml").
	LegacyConfigName = "vrf-config"

	EnvPrefix = "VRF"

	DatabasesSubdir = "databases"
	DatabaseFile    = "vrf.db"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir

const (
	// ResubscribeDelay is how long live ingestion waits before reopening a
	// log subscription that ended.
	ResubscribeDelay = 2 * time.Second

	// RetryBatchSize caps the rows handled by one retry sweep.
	RetryBatchSize = 20

	// SubmitAttempts is the number of times a response transaction is sent
	// when the only rejection reason is a stale blockhash.
	SubmitAttempts = 2
)
