package l1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string        `json:"method"`
	ID     json.RawMessage `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
}

func fakeServer(t *testing.T, handlers map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := handlers[req.Method]
		require.True(t, ok, "unexpected method %s", req.Method)

		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestBlockNumber(t *testing.T) {
	srv := fakeServer(t, map[string]interface{}{"eth_blockNumber": "0x64"})
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL, DefaultRetryPolicy())
	require.NoError(t, err)

	n, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(100), n)
}

func TestBlockByNumberConvertsTransactionsAndReceipts(t *testing.T) {
	block := map[string]interface{}{
		"hash":          "0x" + "11" + padHex(62),
		"parentHash":    "0x" + "22" + padHex(62),
		"timestamp":     "0x2a",
		"baseFeePerGas": "0x3b9aca00",
		"mixHash":       "0x" + "33" + padHex(62),
		"transactions": []map[string]interface{}{
			{
				"hash":             "0x" + "44" + padHex(62),
				"transactionIndex": "0x0",
				"from":             "0x0000000000000000000000000000000000001111",
				"to":               "0x0000000000000000000000000000000000002222",
				"input":            "0x7e01",
				"type":             "0x0",
			},
		},
	}
	receipts := []map[string]interface{}{
		{
			"transactionHash": "0x" + "44" + padHex(62),
			"status":          "0x1",
			"logs":            []interface{}{},
		},
	}

	srv := fakeServer(t, map[string]interface{}{
		"eth_getBlockByNumber":  block,
		"eth_getBlockReceipts":  receipts,
	})
	defer srv.Close()

	c, err := Dial(context.Background(), srv.URL, DefaultRetryPolicy())
	require.NoError(t, err)

	b, err := c.BlockByNumber(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, b.Transactions, 1)
	require.Len(t, b.Receipts, 1)
	require.True(t, b.Receipts[0].Success)
	require.Equal(t, uint64(42), b.Timestamp)
}

func padHex(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = '0'
	}
	return string(out)
}
