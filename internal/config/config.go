// Package config loads the derivation pipeline's runtime configuration
// from the process environment (spec §6's enumerated keys), resolving the
// network-specific constants through internal/chainspec and applying the
// spec's numeric defaults the way cmd/utils/flags_rollup.go overlays CLI
// flags onto node.Config.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/facet-protocol/facet-node/core/builder"
	"github.com/facet-protocol/facet-node/internal/chainspec"
	"github.com/facet-protocol/facet-node/params"
)

const (
	defaultPrefetchForward = 20
	defaultPrefetchThreads = 2
	defaultPrefetchTimeout = 30 * time.Second

	defaultMaxBatchBytes       = 131072
	defaultMaxTxsPerBatch      = 1000
	defaultMaxBatchesPerPayload = 10

	defaultStorePath = "facet-node-data"
)

// PriorityRegistryConfig carries PRIORITY_REGISTRY_MODE and its associated
// keys, whichever subset the selected mode actually consumes.
type PriorityRegistryConfig struct {
	Mode           PriorityRegistryMode
	SignerAddress  string // env, static
	SignerRotation string // rotation: "block:address,block:address"
	SignerMapping  string // mapping: "block:address,block:address"
}

// GenesisConfig supplies the fork-block bootstrap inputs the pipeline
// consults only when storage holds no prior L2 block (first launch); every
// later run resumes from the store instead (see pipeline.Genesis).
type GenesisConfig struct {
	ParentHash      common.Hash
	ParentNumber    uint64
	ParentTimestamp uint64
	ParentL1Number  uint64
	PrevRandao      common.Hash
	GasLimit        uint64

	// Mint bootstrap inputs, fed to core/mint.Controller.Bootstrap (spec
	// §4.6, "Fork-block bootstrap").
	HistoricalTotalMinted   *big.Int
	PreForkRatePerGas       *big.Int
	PreviousL1BaseFee       *big.Int
	RemainingPreForkPeriods uint64
}

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	L1RPCURL          string
	NonAuthGethRPCURL string
	GethRPCURL        string
	JWTSecret         string

	BeaconBaseURL string
	BeaconAPIKey  string

	Network   params.Network
	ChainSpec params.ChainSpec

	PrefetchForward uint64
	PrefetchThreads int
	PrefetchTimeout time.Duration

	MaxBatchBytes        int
	MaxTxsPerBatch       int
	MaxBatchesPerPayload int

	PriorityRegistry PriorityRegistryConfig
	EnableSigVerify  bool

	StorePath string

	Genesis GenesisConfig
}

// Registry builds the AuthorizedSignerRegistry named by c's priority
// registry configuration.
func (c Config) Registry() (builder.AuthorizedSignerRegistry, error) {
	return buildRegistry(c.PriorityRegistry)
}

// Load reads every recognized environment variable (spec §6) and returns
// a validated Config. Required keys (the RPC endpoints, JWT secret) error
// out by name rather than leaving a zero-value URL to fail confusingly
// later at dial time.
func Load() (Config, error) {
	var errs []string
	require := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			errs = append(errs, key)
		}
		return v
	}

	c := Config{
		L1RPCURL:          require("L1_RPC_URL"),
		NonAuthGethRPCURL: require("NON_AUTH_GETH_RPC_URL"),
		GethRPCURL:        require("GETH_RPC_URL"),
		JWTSecret:         require("JWT_SECRET"),
		BeaconBaseURL:     require("ETHEREUM_BEACON_NODE_API_BASE_URL"),
		BeaconAPIKey:      os.Getenv("ETHEREUM_BEACON_NODE_API_KEY"),
		StorePath:         envOrDefault("FACET_NODE_DATA_DIR", defaultStorePath),
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: missing required environment variable(s): %s", strings.Join(errs, ", "))
	}

	network := params.Network(envOrDefault("L1_NETWORK", string(params.NetworkMainnet)))
	spec, err := chainspec.Load(network)
	if err != nil {
		return Config{}, fmt.Errorf("config: L1_NETWORK: %w", err)
	}
	c.Network = network
	c.ChainSpec = spec

	c.PrefetchForward, err = envUint64("L1_PREFETCH_FORWARD", defaultPrefetchForward)
	if err != nil {
		return Config{}, err
	}
	threads, err := envUint64("L1_PREFETCH_THREADS", defaultPrefetchThreads)
	if err != nil {
		return Config{}, err
	}
	c.PrefetchThreads = int(threads)
	c.PrefetchTimeout, err = envDuration("L1_PREFETCH_TIMEOUT", defaultPrefetchTimeout)
	if err != nil {
		return Config{}, err
	}

	maxBatchBytes, err := envUint64("MAX_BATCH_BYTES", defaultMaxBatchBytes)
	if err != nil {
		return Config{}, err
	}
	c.MaxBatchBytes = int(maxBatchBytes)
	maxTxsPerBatch, err := envUint64("MAX_TXS_PER_BATCH", defaultMaxTxsPerBatch)
	if err != nil {
		return Config{}, err
	}
	c.MaxTxsPerBatch = int(maxTxsPerBatch)
	maxBatchesPerPayload, err := envUint64("MAX_BATCHES_PER_PAYLOAD", defaultMaxBatchesPerPayload)
	if err != nil {
		return Config{}, err
	}
	c.MaxBatchesPerPayload = int(maxBatchesPerPayload)

	c.PriorityRegistry = PriorityRegistryConfig{
		Mode:           PriorityRegistryMode(envOrDefault("PRIORITY_REGISTRY_MODE", string(RegistryModeDisabled))),
		SignerAddress:  os.Getenv("PRIORITY_SIGNER_ADDRESS"),
		SignerRotation: os.Getenv("PRIORITY_SIGNER_ROTATION"),
		SignerMapping:  os.Getenv("PRIORITY_SIGNER_MAPPING"),
	}
	// Validate eagerly so a malformed registry config fails at startup, not
	// on the first priority batch the pipeline happens to encounter.
	if _, err := buildRegistry(c.PriorityRegistry); err != nil {
		return Config{}, err
	}

	c.EnableSigVerify, err = envBool("ENABLE_SIG_VERIFY", false)
	if err != nil {
		return Config{}, err
	}

	c.Genesis, err = loadGenesis()
	if err != nil {
		return Config{}, err
	}

	return c, nil
}

// loadGenesis reads the GENESIS_* keys, every one optional: they matter
// only on a store's first-ever run, and a deployment that never restarts
// from an empty store need not set them at all.
func loadGenesis() (GenesisConfig, error) {
	gasLimit, err := envUint64("GENESIS_GAS_LIMIT", 30_000_000)
	if err != nil {
		return GenesisConfig{}, err
	}
	parentNumber, err := envUint64("GENESIS_PARENT_NUMBER", 0)
	if err != nil {
		return GenesisConfig{}, err
	}
	parentTimestamp, err := envUint64("GENESIS_PARENT_TIMESTAMP", 0)
	if err != nil {
		return GenesisConfig{}, err
	}
	parentL1Number, err := envUint64("GENESIS_PARENT_L1_NUMBER", 0)
	if err != nil {
		return GenesisConfig{}, err
	}
	remainingPeriods, err := envUint64("GENESIS_REMAINING_PRE_FORK_PERIODS", 1)
	if err != nil {
		return GenesisConfig{}, err
	}

	return GenesisConfig{
		ParentHash:              common.HexToHash(os.Getenv("GENESIS_PARENT_HASH")),
		ParentNumber:            parentNumber,
		ParentTimestamp:         parentTimestamp,
		ParentL1Number:          parentL1Number,
		PrevRandao:              common.HexToHash(os.Getenv("GENESIS_PREV_RANDAO")),
		GasLimit:                gasLimit,
		HistoricalTotalMinted:   envBigInt("GENESIS_HISTORICAL_TOTAL_MINTED"),
		PreForkRatePerGas:       envBigInt("GENESIS_PRE_FORK_RATE_PER_GAS"),
		PreviousL1BaseFee:       envBigInt("GENESIS_PREVIOUS_L1_BASE_FEE"),
		RemainingPreForkPeriods: remainingPeriods,
	}, nil
}

// envBigInt returns 0 for an unset or unparseable key, matching the
// zero-valued fallback every other GENESIS_* key uses.
func envBigInt(key string) *big.Int {
	v := os.Getenv(key)
	if v == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint64(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	seconds, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return time.Duration(seconds) * time.Second, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
