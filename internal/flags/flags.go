// Package flags defines the cmd/facet-node CLI surface: one urfave/cli/v2
// flag per recognized configuration key (spec §6), grouped into
// categories the way cmd/utils/flags_rollup.go groups its own rollup
// flags under flags.RollupCategory. internal/config.Load reads the
// process environment directly, so ApplyEnv overlays any flag the
// operator set on the command line into os.Environ before Load runs —
// the same overlay role cmd/utils/flags_rollup.go's
// ActivateL1RPCEndpoint plays for node.Config.
package flags

import (
	"os"

	"github.com/urfave/cli/v2"
)

const (
	L1Category       = "L1"
	EngineCategory   = "EXECUTION ENGINE"
	BeaconCategory   = "BEACON"
	PrefetchCategory = "PREFETCH"
	BatchCategory    = "BATCH LIMITS"
	PriorityCategory = "PRIORITY REGISTRY"
	StorageCategory  = "STORAGE"
	GenesisCategory  = "GENESIS"
)

var (
	L1RPCURLFlag = &cli.StringFlag{
		Name:     "l1.rpc_endpoint",
		Usage:    "L1 node JSON-RPC endpoint, e.g. http://localhost:8545",
		Category: L1Category,
		EnvVars:  []string{"L1_RPC_URL"},
	}
	L1NetworkFlag = &cli.StringFlag{
		Name:     "l1.network",
		Usage:    "L1 network this pipeline derives against (mainnet, sepolia, hoodi)",
		Category: L1Category,
		Value:    "mainnet",
		EnvVars:  []string{"L1_NETWORK"},
	}

	NonAuthGethRPCURLFlag = &cli.StringFlag{
		Name:     "engine.non_auth_rpc_endpoint",
		Usage:    "Non-authenticated execution-node JSON-RPC endpoint, used for required-system-tx receipt checks",
		Category: EngineCategory,
		EnvVars:  []string{"NON_AUTH_GETH_RPC_URL"},
	}
	GethRPCURLFlag = &cli.StringFlag{
		Name:     "engine.rpc_endpoint",
		Usage:    "Engine API endpoint",
		Category: EngineCategory,
		EnvVars:  []string{"GETH_RPC_URL"},
	}
	JWTSecretFlag = &cli.StringFlag{
		Name:     "engine.jwt_secret",
		Usage:    "Hex-encoded JWT secret shared with the execution engine",
		Category: EngineCategory,
		EnvVars:  []string{"JWT_SECRET"},
	}

	BeaconBaseURLFlag = &cli.StringFlag{
		Name:     "beacon.api_base_url",
		Usage:    "Beacon node API base URL",
		Category: BeaconCategory,
		EnvVars:  []string{"ETHEREUM_BEACON_NODE_API_BASE_URL"},
	}
	BeaconAPIKeyFlag = &cli.StringFlag{
		Name:     "beacon.api_key",
		Usage:    "Beacon node API key, if the provider requires one",
		Category: BeaconCategory,
		EnvVars:  []string{"ETHEREUM_BEACON_NODE_API_KEY"},
	}

	PrefetchForwardFlag = &cli.Uint64Flag{
		Name:     "prefetch.forward",
		Usage:    "Number of L1 blocks to speculatively fetch ahead of the derivation cursor",
		Category: PrefetchCategory,
		Value:    20,
		EnvVars:  []string{"L1_PREFETCH_FORWARD"},
	}
	PrefetchThreadsFlag = &cli.Uint64Flag{
		Name:     "prefetch.threads",
		Usage:    "Number of concurrent L1 block-fetch workers",
		Category: PrefetchCategory,
		Value:    2,
		EnvVars:  []string{"L1_PREFETCH_THREADS"},
	}
	PrefetchTimeoutFlag = &cli.Uint64Flag{
		Name:     "prefetch.timeout",
		Usage:    "Per-fetch timeout, in seconds",
		Category: PrefetchCategory,
		Value:    30,
		EnvVars:  []string{"L1_PREFETCH_TIMEOUT"},
	}

	MaxBatchBytesFlag = &cli.Uint64Flag{
		Name:     "batch.max_bytes",
		Category: BatchCategory,
		Value:    131072,
		EnvVars:  []string{"MAX_BATCH_BYTES"},
	}
	MaxTxsPerBatchFlag = &cli.Uint64Flag{
		Name:     "batch.max_txs",
		Category: BatchCategory,
		Value:    1000,
		EnvVars:  []string{"MAX_TXS_PER_BATCH"},
	}
	MaxBatchesPerPayloadFlag = &cli.Uint64Flag{
		Name:     "batch.max_per_payload",
		Category: BatchCategory,
		Value:    10,
		EnvVars:  []string{"MAX_BATCHES_PER_PAYLOAD"},
	}

	PriorityRegistryModeFlag = &cli.StringFlag{
		Name:     "priority.registry_mode",
		Usage:    "env, static, rotation, mapping, or disabled",
		Category: PriorityCategory,
		Value:    "disabled",
		EnvVars:  []string{"PRIORITY_REGISTRY_MODE"},
	}
	PrioritySignerAddressFlag = &cli.StringFlag{
		Name:     "priority.signer_address",
		Category: PriorityCategory,
		EnvVars:  []string{"PRIORITY_SIGNER_ADDRESS"},
	}
	PrioritySignerRotationFlag = &cli.StringFlag{
		Name:     "priority.signer_rotation",
		Usage:    "Comma-separated block:address pairs",
		Category: PriorityCategory,
		EnvVars:  []string{"PRIORITY_SIGNER_ROTATION"},
	}
	PrioritySignerMappingFlag = &cli.StringFlag{
		Name:     "priority.signer_mapping",
		Usage:    "Comma-separated block:address pairs",
		Category: PriorityCategory,
		EnvVars:  []string{"PRIORITY_SIGNER_MAPPING"},
	}
	EnableSigVerifyFlag = &cli.BoolFlag{
		Name:     "priority.verify_signatures",
		Category: PriorityCategory,
		EnvVars:  []string{"ENABLE_SIG_VERIFY"},
	}

	StoreDataDirFlag = &cli.StringFlag{
		Name:     "datadir",
		Usage:    "Directory for the L1Block/L2Block leveldb store",
		Category: StorageCategory,
		Value:    "facet-node-data",
		EnvVars:  []string{"FACET_NODE_DATA_DIR"},
	}
	MetricsAddrFlag = &cli.StringFlag{
		Name:     "metrics.addr",
		Usage:    "Listen address for the /metrics HTTP endpoint",
		Category: StorageCategory,
		Value:    ":9090",
		EnvVars:  []string{"METRICS_ADDR"},
	}

	GenesisParentHashFlag = &cli.StringFlag{
		Name:     "genesis.parent_hash",
		Usage:    "L2 parent block hash to derive on top of when the store is empty",
		Category: GenesisCategory,
		EnvVars:  []string{"GENESIS_PARENT_HASH"},
	}
	GenesisParentNumberFlag = &cli.Uint64Flag{
		Name:     "genesis.parent_number",
		Category: GenesisCategory,
		EnvVars:  []string{"GENESIS_PARENT_NUMBER"},
	}
	GenesisParentTimestampFlag = &cli.Uint64Flag{
		Name:     "genesis.parent_timestamp",
		Category: GenesisCategory,
		EnvVars:  []string{"GENESIS_PARENT_TIMESTAMP"},
	}
	GenesisParentL1NumberFlag = &cli.Uint64Flag{
		Name:     "genesis.parent_l1_number",
		Usage:    "L1 block number the genesis L2 parent was derived from",
		Category: GenesisCategory,
		EnvVars:  []string{"GENESIS_PARENT_L1_NUMBER"},
	}
	GenesisPrevRandaoFlag = &cli.StringFlag{
		Name:     "genesis.prev_randao",
		Category: GenesisCategory,
		EnvVars:  []string{"GENESIS_PREV_RANDAO"},
	}
	GenesisGasLimitFlag = &cli.Uint64Flag{
		Name:     "genesis.gas_limit",
		Category: GenesisCategory,
		Value:    30_000_000,
		EnvVars:  []string{"GENESIS_GAS_LIMIT"},
	}
	GenesisHistoricalTotalMintedFlag = &cli.StringFlag{
		Name:     "genesis.historical_total_minted",
		Usage:    "Pre-fork cumulative FCT minted, decimal",
		Category: GenesisCategory,
		EnvVars:  []string{"GENESIS_HISTORICAL_TOTAL_MINTED"},
	}
	GenesisPreForkRatePerGasFlag = &cli.StringFlag{
		Name:     "genesis.pre_fork_rate_per_gas",
		Usage:    "Pre-fork FCT-per-L1-gas-unit rate, decimal",
		Category: GenesisCategory,
		EnvVars:  []string{"GENESIS_PRE_FORK_RATE_PER_GAS"},
	}
	GenesisPreviousL1BaseFeeFlag = &cli.StringFlag{
		Name:     "genesis.previous_l1_base_fee",
		Category: GenesisCategory,
		EnvVars:  []string{"GENESIS_PREVIOUS_L1_BASE_FEE"},
	}
	GenesisRemainingPreForkPeriodsFlag = &cli.Uint64Flag{
		Name:     "genesis.remaining_pre_fork_periods",
		Category: GenesisCategory,
		Value:    1,
		EnvVars:  []string{"GENESIS_REMAINING_PRE_FORK_PERIODS"},
	}
)

// RunFlags is the full flag set for the "run" subcommand.
var RunFlags = []cli.Flag{
	L1RPCURLFlag, L1NetworkFlag,
	NonAuthGethRPCURLFlag, GethRPCURLFlag, JWTSecretFlag,
	BeaconBaseURLFlag, BeaconAPIKeyFlag,
	PrefetchForwardFlag, PrefetchThreadsFlag, PrefetchTimeoutFlag,
	MaxBatchBytesFlag, MaxTxsPerBatchFlag, MaxBatchesPerPayloadFlag,
	PriorityRegistryModeFlag, PrioritySignerAddressFlag, PrioritySignerRotationFlag,
	PrioritySignerMappingFlag, EnableSigVerifyFlag,
	StoreDataDirFlag,
	GenesisParentHashFlag, GenesisParentNumberFlag, GenesisParentTimestampFlag,
	GenesisParentL1NumberFlag, GenesisPrevRandaoFlag, GenesisGasLimitFlag,
	GenesisHistoricalTotalMintedFlag, GenesisPreForkRatePerGasFlag,
	GenesisPreviousL1BaseFeeFlag, GenesisRemainingPreForkPeriodsFlag,
	MetricsAddrFlag,
}

// ApplyEnv overlays every flag the operator set explicitly on the command
// line into the process environment, so internal/config.Load (which reads
// os.Getenv directly, independent of any CLI framework) observes the same
// value regardless of whether it arrived via --flag or the bare env var.
func ApplyEnv(ctx *cli.Context) {
	for _, f := range RunFlags {
		name := f.Names()[0]
		if !ctx.IsSet(name) {
			continue
		}
		envVars := envVarsOf(f)
		if len(envVars) == 0 {
			continue
		}
		os.Setenv(envVars[0], ctx.String(name))
	}
}

func envVarsOf(f cli.Flag) []string {
	switch v := f.(type) {
	case *cli.StringFlag:
		return v.EnvVars
	case *cli.Uint64Flag:
		return v.EnvVars
	case *cli.BoolFlag:
		return v.EnvVars
	default:
		return nil
	}
}
