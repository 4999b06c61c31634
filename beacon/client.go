// Package beacon implements the Beacon API client described in spec §6: it
// resolves an execution timestamp to a slot, fetches blob sidecars for that
// slot, and matches a blob to the versioned hash its carrier L1 transaction
// declared. It implements core/collector.BlobProvider.
package beacon

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"
)

const defaultSecondsPerSlot = 12

// defaultRequestsPerSecond bounds how fast this client issues requests
// against the beacon node, ahead of the retry/backoff layer below; a
// beacon node under blob_sidecars load degrades badly under request bursts.
const defaultRequestsPerSecond = 20

// Client talks to a beacon node's HTTP API. genesisTime and secondsPerSlot
// are memoized after the first call, per spec §5 ("memoization caches:
// process-wide, initialized lazily").
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter

	genesisTime    uint64
	secondsPerSlot uint64
	resolved       bool
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}

	err = backoff.Retry(func() error {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("beacon: %s returned %d", path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("beacon: %s returned %d", path, resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&envelope)
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 7))
	if err != nil {
		return err
	}

	return json.Unmarshal(envelope.Data, out)
}

// ensureSpec lazily loads genesis time and SECONDS_PER_SLOT, falling back to
// 12 when /eth/v1/config/spec omits it (spec §6).
func (c *Client) ensureSpec(ctx context.Context) error {
	if c.resolved {
		return nil
	}

	var genesis struct {
		GenesisTime string `json:"genesis_time"`
	}
	if err := c.get(ctx, "/eth/v1/beacon/genesis", &genesis); err != nil {
		return err
	}
	genesisTime, err := strconv.ParseUint(genesis.GenesisTime, 10, 64)
	if err != nil {
		return fmt.Errorf("beacon: malformed genesis_time %q: %w", genesis.GenesisTime, err)
	}

	var spec map[string]string
	secondsPerSlot := uint64(defaultSecondsPerSlot)
	if err := c.get(ctx, "/eth/v1/config/spec", &spec); err == nil {
		if raw, ok := spec["SECONDS_PER_SLOT"]; ok {
			if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
				secondsPerSlot = parsed
			}
		}
	} else {
		log.Warn("beacon config/spec unavailable, using default seconds-per-slot", "default", defaultSecondsPerSlot, "err", err)
	}

	c.genesisTime = genesisTime
	c.secondsPerSlot = secondsPerSlot
	c.resolved = true
	return nil
}

// SlotForTimestamp computes ⌊(ts - genesis_time) / seconds_per_slot⌋.
func (c *Client) SlotForTimestamp(ctx context.Context, ts uint64) (uint64, error) {
	if err := c.ensureSpec(ctx); err != nil {
		return 0, err
	}
	if ts < c.genesisTime {
		return 0, fmt.Errorf("beacon: timestamp %d precedes genesis %d", ts, c.genesisTime)
	}
	return (ts - c.genesisTime) / c.secondsPerSlot, nil
}

type blobSidecar struct {
	Index          string `json:"index"`
	Blob           string `json:"blob"`
	KZGCommitment  string `json:"kzg_commitment"`
}

// SlotProvider adapts a Client, bound to one already-resolved slot, to
// core/collector.BlobProvider. The collector only ever processes one L1
// block's transactions at a time and every blob in that block shares the
// block's timestamp, so the pipeline resolves the slot once per L1 block
// via ForBlock rather than passing a timestamp through every FetchBlob call.
type SlotProvider struct {
	client *Client
	slot   uint64
}

func (p SlotProvider) FetchBlob(ctx context.Context, versionedHash common.Hash) ([]byte, bool, error) {
	return p.client.fetchBlobForSlot(ctx, p.slot, versionedHash)
}

// ForBlock resolves the beacon slot for an L1 block's timestamp and returns
// a BlobProvider scoped to that slot.
func (c *Client) ForBlock(ctx context.Context, l1Timestamp uint64) (SlotProvider, error) {
	slot, err := c.SlotForTimestamp(ctx, l1Timestamp)
	return SlotProvider{client: c, slot: slot}, err
}

// RollingProvider adapts Client to core/collector.BlobProvider across an
// entire derivation run rather than one L1 block: core/collector.New takes
// its BlobProvider once at construction, but the slot a blob lives in
// changes every L1 block, so the pipeline calls SetL1Block before each
// Collect and every FetchBlob call in between resolves against that slot.
// The derivation loop is single-threaded (spec §5), so the mutex here
// guards against nothing but future misuse, not real contention.
type RollingProvider struct {
	client *Client

	mu        sync.Mutex
	current   SlotProvider
	timestamp uint64
	resolved  bool
}

func NewRollingProvider(client *Client) *RollingProvider {
	return &RollingProvider{client: client}
}

// SetL1Block resolves and caches the slot for timestamp, skipping the
// lookup if it already matches the cached one.
func (r *RollingProvider) SetL1Block(ctx context.Context, timestamp uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved && r.timestamp == timestamp {
		return nil
	}
	sp, err := r.client.ForBlock(ctx, timestamp)
	if err != nil {
		return err
	}
	r.current = sp
	r.timestamp = timestamp
	r.resolved = true
	return nil
}

func (r *RollingProvider) FetchBlob(ctx context.Context, versionedHash common.Hash) ([]byte, bool, error) {
	r.mu.Lock()
	sp := r.current
	resolved := r.resolved
	r.mu.Unlock()
	if !resolved {
		return nil, false, fmt.Errorf("beacon: FetchBlob called before SetL1Block")
	}
	return sp.FetchBlob(ctx, versionedHash)
}

// fetchBlobForSlot locates the sidecar among slot's blobs whose kzg
// commitment hashes to versionedHash and returns its decoded bytes.
func (c *Client) fetchBlobForSlot(ctx context.Context, slot uint64, versionedHash common.Hash) ([]byte, bool, error) {
	var sidecars []blobSidecar
	if err := c.get(ctx, fmt.Sprintf("/eth/v1/beacon/blob_sidecars/%d", slot), &sidecars); err != nil {
		return nil, false, err
	}

	for _, s := range sidecars {
		commitment, err := decodeHexOrBase64(s.KZGCommitment)
		if err != nil {
			continue
		}
		if versionedHashOf(commitment) != versionedHash {
			continue
		}
		blobBytes, err := decodeHexOrBase64(s.Blob)
		if err != nil {
			return nil, false, fmt.Errorf("beacon: malformed blob payload for slot %d: %w", slot, err)
		}
		return blobBytes, true, nil
	}

	return nil, false, nil
}

// versionedHashOf computes 0x01 ∥ sha256(commitment)[1:] (spec §6).
func versionedHashOf(kzgCommitment []byte) common.Hash {
	sum := sha256.Sum256(kzgCommitment)
	var out common.Hash
	out[0] = 0x01
	copy(out[1:], sum[1:])
	return out
}

// decodeHexOrBase64 accepts either a 0x-prefixed hex string or base64, per
// spec §6's "Blob payload may be hex or base64 — accept both."
func decodeHexOrBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") {
		return hex.DecodeString(strings.TrimPrefix(s, "0x"))
	}
	return base64.StdEncoding.DecodeString(s)
}
