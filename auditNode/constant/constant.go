package constant

import "os"

// <NodeDir>/                    (e.g., /home/auditor/.pauditd)
// └── config/
//	└── pauditd_config.json
// └── databases/
//	└── audit_events.db
// └── workdir/
//	└── <request_id>/contract.sol

const (
	NodeDir = ".pauditd"

	ConfigSubdir   = "config"
	ConfigFileName = "pauditd_config.json"

	DatabasesSubdir = "databases"
	EventsDBName    = "audit_events.db"

	WorkSubdir = "workdir"

	// EnvPrefix is the prefix for environment overrides of config keys (PAUDITD_LOG_LEVEL, ...).
	EnvPrefix = "PAUDITD"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir

// Version of the node. The report codec header carries it.
const Version = "2.0.1"
