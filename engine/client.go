// Package engine implements the execution engine API client described in
// spec §6: JWT-authenticated JSON-RPC driving the
// forkchoiceUpdated -> getPayload -> newPayload handshake. Built on
// github.com/ethereum/go-ethereum/rpc for transport and
// github.com/golang-jwt/jwt/v4 for the HS256 bearer token, the same pairing
// go-ethereum's own engine API client uses.
package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/golang-jwt/jwt/v4"
)

const jwtRefreshInterval = 60 * time.Second

// Client drives the execution engine's payload-building handshake over an
// authenticated JSON-RPC connection.
type Client struct {
	rpc *rpc.Client

	mu        sync.Mutex
	secret    []byte
	token     string
	tokenTime time.Time
}

// Dial connects to the engine API endpoint, authenticating every call with
// a JWT whose secret is the hex-decoded contents of jwtSecretHex.
func Dial(ctx context.Context, url, jwtSecretHex string) (*Client, error) {
	secret, err := hex.DecodeString(trimHexPrefix(jwtSecretHex))
	if err != nil {
		return nil, fmt.Errorf("engine: malformed JWT secret: %w", err)
	}

	c := &Client{secret: secret}
	rpcClient, err := rpc.DialOptions(ctx, url, rpc.WithHTTPAuth(c.authHeader))
	if err != nil {
		return nil, err
	}
	c.rpc = rpcClient
	return c, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// authHeader refreshes and attaches the bearer token, per spec §6 ("iat
// claim refreshed every <= 60s").
func (c *Client) authHeader(h http.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || time.Since(c.tokenTime) >= jwtRefreshInterval {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iat": time.Now().Unix()})
		signed, err := token.SignedString(c.secret)
		if err != nil {
			return err
		}
		c.token = signed
		c.tokenTime = time.Now()
	}

	h.Set("Authorization", "Bearer "+c.token)
	return nil
}

// PayloadAttributes is the subset of forkchoiceUpdated's payload attributes
// the proposer fills in for each L2 block it builds.
type PayloadAttributes struct {
	Timestamp             uint64
	PrevRandao            common.Hash
	SuggestedFeeRecipient common.Address
	Withdrawals           []interface{}
	ParentBeaconBlockRoot *common.Hash
	Transactions          []string // hex-encoded typed transaction bytes
	NoTxPool              bool
	GasLimit              *uint64
}

// ForkchoiceState mirrors the engine API's forkchoiceState object.
type ForkchoiceState struct {
	HeadBlockHash      common.Hash
	SafeBlockHash      common.Hash
	FinalizedBlockHash common.Hash
}

// ForkchoiceUpdatedResult is the engine's response to
// engine_forkchoiceUpdated.
type ForkchoiceUpdatedResult struct {
	PayloadStatus PayloadStatus `json:"payloadStatus"`
	PayloadID     *string       `json:"payloadId"`
}

// PayloadStatus mirrors the engine API's PayloadStatusV1.
type PayloadStatus struct {
	Status          string  `json:"status"`
	LatestValidHash *string `json:"latestValidHash"`
	ValidationError *string `json:"validationError"`
}

func (s PayloadStatus) Valid() bool { return s.Status == "VALID" }

// version picks engine_*V2 or engine_*V3 depending on whether a parent
// beacon block root is present (spec §6: "Version 3 iff a parent beacon
// block root is available").
func version(attrs PayloadAttributes) int {
	if attrs.ParentBeaconBlockRoot != nil {
		return 3
	}
	return 2
}

// ForkchoiceUpdated calls engine_forkchoiceUpdatedV{2,3}.
func (c *Client) ForkchoiceUpdated(ctx context.Context, state ForkchoiceState, attrs *PayloadAttributes) (ForkchoiceUpdatedResult, error) {
	method := "engine_forkchoiceUpdatedV2"
	var attrsArg interface{}
	if attrs != nil {
		if version(*attrs) == 3 {
			method = "engine_forkchoiceUpdatedV3"
		}
		attrsArg = attrs
	}

	var result ForkchoiceUpdatedResult
	err := c.rpc.CallContext(ctx, &result, method, state, attrsArg)
	if err != nil {
		log.Error("engine_forkchoiceUpdated failed", "err", err)
		return ForkchoiceUpdatedResult{}, err
	}
	return result, nil
}

// ExecutionPayloadEnvelope wraps whatever engine_getPayload returns; the
// proposer forwards its "executionPayload" field directly to newPayload.
type ExecutionPayloadEnvelope struct {
	ExecutionPayload json.RawMessage `json:"executionPayload"`
	BlockValue       string          `json:"blockValue"`
}

// GetPayload calls engine_getPayloadV{2,3}.
func (c *Client) GetPayload(ctx context.Context, payloadID string, version int) (ExecutionPayloadEnvelope, error) {
	method := fmt.Sprintf("engine_getPayloadV%d", version)
	var out ExecutionPayloadEnvelope
	err := c.rpc.CallContext(ctx, &out, method, payloadID)
	return out, err
}

// NewPayload calls engine_newPayloadV{2,3}.
func (c *Client) NewPayload(ctx context.Context, payload interface{}, version int, extra ...interface{}) (PayloadStatus, error) {
	method := fmt.Sprintf("engine_newPayloadV%d", version)
	args := append([]interface{}{payload}, extra...)

	var status PayloadStatus
	err := c.rpc.CallContext(ctx, &status, method, args...)
	if err != nil {
		return PayloadStatus{}, err
	}
	return status, nil
}
