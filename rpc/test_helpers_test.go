package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"giftchain/core"
	"giftchain/core/events"
	"giftchain/core/types"
	"giftchain/crypto"
	"giftchain/storage"
	"giftchain/storage/eventlog"
)

const (
	testNetwork   = "giftchain-rpc-test"
	testJWTSecret = "rpc-test-secret"
	testJWTIssuer = "rpc-tests"
)

type rpcHarness struct {
	t       *testing.T
	node    *core.Node
	journal *eventlog.Store
	feed    *events.Feed
	server  *Server
	http    *httptest.Server
	now     int64
}

func newRPCHarness(t *testing.T, cfg Config) *rpcHarness {
	t.Helper()
	return newRPCHarnessWithNode(t, cfg, nil)
}

// newRPCHarnessWithNode lets a test adjust the node options before the node
// is opened.
func newRPCHarnessWithNode(t *testing.T, cfg Config, adjust func(*core.Options)) *rpcHarness {
	t.Helper()
	h := &rpcHarness{t: t, now: 1_700_000_000}

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	opts := core.Options{
		NetworkName: testNetwork,
		NativeAsset: "GIFT",
		Faucet: core.FaucetPolicy{
			Enabled:  true,
			Amounts:  map[string]uint64{"USDC": 2_500_000},
			Cooldown: time.Hour,
		},
		Now: func() int64 { return h.now },
	}
	if adjust != nil {
		adjust(&opts)
	}
	node, err := core.NewNode(db, opts)
	require.NoError(t, err)
	require.NoError(t, node.RegisterAssets([]core.AssetInfo{
		{Symbol: "GIFT", Name: "Gift", Decimals: 9},
		{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
	}))

	journal, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })
	feed := events.NewFeed()
	node.Subscribe(eventlog.NewRecorder(journal, nil))
	node.Subscribe(feed)

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testJWTSecret
		cfg.JWTIssuer = testJWTIssuer
	}
	h.node = node
	h.journal = journal
	h.feed = feed
	h.server = NewServer(node, journal, feed, cfg, nil)
	h.http = httptest.NewServer(h.server.Handler())
	t.Cleanup(h.http.Close)
	return h
}

type testResponse struct {
	status int
	header http.Header
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (h *rpcHarness) post(body []byte, headers map[string]string) *testResponse {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.http.URL+"/", bytes.NewReader(body))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.http.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	out := &testResponse{status: resp.StatusCode, header: resp.Header}
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	return out
}

func (h *rpcHarness) call(method string, params ...interface{}) *testResponse {
	h.t.Helper()
	return h.callWithHeaders(nil, method, params...)
}

func (h *rpcHarness) callWithHeaders(headers map[string]string, method string, params ...interface{}) *testResponse {
	h.t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		require.NoError(h.t, err)
		raw = append(raw, b)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	require.NoError(h.t, err)
	return h.post(body, headers)
}

func (h *rpcHarness) account() (*crypto.PrivateKey, [20]byte) {
	h.t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(h.t, err)
	addr := key.PubKey().Address().Array()
	require.NoError(h.t, h.node.Mint(addr, "USDC", 1_000_000))
	return key, addr
}

func (h *rpcHarness) signed(key *crypto.PrivateKey, kind types.ActionType, nonce uint64, payload interface{}) *types.Action {
	h.t.Helper()
	action, err := types.NewAction(kind, testNetwork, nonce, payload)
	require.NoError(h.t, err)
	require.NoError(h.t, action.Sign(key.Sign))
	return action
}

func operatorToken(t *testing.T, secret, issuer string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func decodeResult(t *testing.T, resp *testResponse, dst interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	require.NoError(t, json.Unmarshal(resp.Result, dst))
}
