package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"giftchain/core"
	"giftchain/core/events"
	giftstate "giftchain/core/state"
	"giftchain/core/types"
	"giftchain/crypto"
	"giftchain/native/bank"
	"giftchain/native/giftcard"
	"giftchain/storage/eventlog"
)

func TestGiftCardLifecycleOverRPC(t *testing.T) {
	h := newRPCHarness(t, Config{})
	key, owner := h.account()
	_, shop := h.account()

	resp := h.call("giftcard_create", h.signed(key, types.ActionCreateGiftCard, 0, types.CreateGiftCardPayload{
		CardID: 5, Amount: 1_500_000, UnlockTime: h.now, RefundTime: h.now + 600, Asset: "USDC",
	}))
	var created actionResultJSON
	decodeResult(t, resp, &created)
	require.Equal(t, "create", created.Operation)
	require.Equal(t, crypto.FormatAddress(owner), created.Caller)
	require.NotNil(t, created.Card)
	require.Equal(t, "1.5", created.Card.FormattedBalance)
	require.Equal(t, "redeemable", created.Card.Phase)

	resp = h.call("giftcard_setAllowList", h.signed(key, types.ActionSetAllowList, 1, types.SetAllowListPayload{
		CardID: 5, Recipients: []string{crypto.FormatAddress(shop)},
	}))
	require.Nil(t, resp.Error)

	resp = h.call("giftcard_redeem", h.signed(key, types.ActionRedeem, 2, types.RedeemPayload{
		CardID: 5, Amount: 500_000, Recipient: crypto.FormatAddress(shop),
	}))
	var redeemed actionResultJSON
	decodeResult(t, resp, &redeemed)
	require.Equal(t, uint64(1_000_000), redeemed.Card.Balance)

	var card giftCardJSON
	decodeResult(t, h.call("giftcard_get", giftCardKeyParams{Owner: crypto.FormatAddress(owner), CardID: 5}), &card)
	require.Equal(t, []string{crypto.FormatAddress(shop)}, card.AllowedRecipients)
	require.True(t, strings.HasPrefix(card.Escrow, "giftx"))

	var escrow balanceResult
	decodeResult(t, h.call("bank_getBalance", balanceParams{Address: card.Escrow, Asset: "USDC"}), &escrow)
	require.Equal(t, "1000000", escrow.Balance)
	require.Equal(t, card.Escrow, escrow.Address)

	var cards []giftCardJSON
	decodeResult(t, h.call("giftcard_listByOwner", ownerParams{Owner: crypto.FormatAddress(owner)}), &cards)
	require.Len(t, cards, 1)

	var balance balanceResult
	decodeResult(t, h.call("bank_getBalance", balanceParams{Address: crypto.FormatAddress(shop), Asset: "usdc"}), &balance)
	require.Equal(t, "1500000", balance.Balance)
	require.Equal(t, "1.5", balance.Formatted)

	var records []eventlog.Record
	one := uint64(5)
	decodeResult(t, h.call("giftcard_listEvents", eventQueryParams{Owner: crypto.FormatAddress(owner), CardID: &one}), &records)
	require.Len(t, records, 3)
	require.Equal(t, events.TypeGiftCardRedeemed, records[2].Type)

	var nonce nonceResultJSON
	decodeResult(t, h.call("giftcard_getNonce", addressParams{Address: crypto.FormatAddress(owner)}), &nonce)
	require.Equal(t, uint64(3), nonce.Nonce)
}

func TestGiftCardErrorsMapToCodes(t *testing.T) {
	h := newRPCHarness(t, Config{})
	key, owner := h.account()
	_, shop := h.account()

	resp := h.call("giftcard_create", h.signed(key, types.ActionCreateGiftCard, 0, types.CreateGiftCardPayload{
		CardID: 1, Amount: 10, UnlockTime: h.now + 100, RefundTime: h.now + 200, Asset: "USDC",
	}))
	require.Nil(t, resp.Error)

	resp = h.call("giftcard_redeem", h.signed(key, types.ActionRedeem, 1, types.RedeemPayload{
		CardID: 1, Amount: 1, Recipient: crypto.FormatAddress(shop),
	}))
	require.NotNil(t, resp.Error)
	require.Equal(t, http.StatusConflict, resp.status)
	require.Equal(t, codeGiftCardConflict, resp.Error.Code)
	require.Equal(t, "record_locked", resp.Error.Message)

	resp = h.call("giftcard_redeem", h.signed(key, types.ActionRedeem, 5, types.RedeemPayload{
		CardID: 1, Amount: 1, Recipient: crypto.FormatAddress(shop),
	}))
	require.Equal(t, codeGiftCardInvalidNonce, resp.Error.Code)

	resp = h.call("giftcard_get", giftCardKeyParams{Owner: crypto.FormatAddress(owner), CardID: 99})
	require.Equal(t, http.StatusNotFound, resp.status)
	require.Equal(t, codeGiftCardNotFound, resp.Error.Code)

	resp = h.call("giftcard_refund", h.signed(key, types.ActionRedeem, 1, types.RedeemPayload{CardID: 1}))
	require.Equal(t, codeGiftCardInvalidParams, resp.Error.Code)

	resp = h.call("giftcard_create", h.signed(key, types.ActionCreateGiftCard, 1, types.CreateGiftCardPayload{
		CardID: 2, Amount: 10, UnlockTime: h.now + 10, RefundTime: h.now + 10, Asset: "USDC",
	}))
	require.Equal(t, codeGiftCardInvalidParams, resp.Error.Code)
}

func TestLedgerFailuresMapToSpecificCodes(t *testing.T) {
	h := newRPCHarnessWithNode(t, Config{}, func(opts *core.Options) { opts.ProvisionDeposit = 1_000 })
	key, issuer := h.account()

	resp := h.call("giftcard_create", h.signed(key, types.ActionCreateGiftCard, 0, types.CreateGiftCardPayload{
		CardID: 1, Amount: 10, UnlockTime: h.now, RefundTime: h.now + 60, Asset: "USDC",
	}))
	require.NotNil(t, resp.Error)
	require.Equal(t, http.StatusConflict, resp.status)
	require.Equal(t, codeGiftCardConflict, resp.Error.Code)
	require.Equal(t, "insufficient_deposit", resp.Error.Message)

	require.NoError(t, h.node.Mint(issuer, "GIFT", 5_000))
	resp = h.call("giftcard_create", h.signed(key, types.ActionCreateGiftCard, 0, types.CreateGiftCardPayload{
		CardID: 1, Amount: 10, UnlockTime: h.now, RefundTime: h.now + 60, Asset: "USDC",
	}))
	require.Nil(t, resp.Error)

	record := giftcard.RecordAddress(issuer, 1)
	resp = h.call("giftcard_redeem", h.signed(key, types.ActionRedeem, 1, types.RedeemPayload{
		CardID: 1, Amount: 5, Recipient: crypto.FormatAddress(record),
	}))
	require.Equal(t, http.StatusBadRequest, resp.status)
	require.Equal(t, codeGiftCardInvalidParams, resp.Error.Code)

	cases := []struct {
		err     error
		status  int
		code    int
		message string
	}{
		{fmt.Errorf("giftcard: fund escrow: %w", bank.ErrCustodySealed), http.StatusConflict, codeGiftCardConflict, "escrow_sealed"},
		{fmt.Errorf("giftcard: fund escrow: %w", bank.ErrAssetMismatch), http.StatusBadRequest, codeGiftCardInvalidParams, "asset_mismatch"},
		{fmt.Errorf("giftcard: release escrow: %w", bank.ErrUnauthorized), http.StatusForbidden, codeGiftCardForbidden, "unauthorized"},
		{fmt.Errorf("giftcard: release escrow: %w", bank.ErrKeylessDestination), http.StatusBadRequest, codeGiftCardInvalidParams, "keyless_destination"},
		{giftstate.ErrInsufficientDeposit, http.StatusConflict, codeGiftCardConflict, "insufficient_deposit"},
		{errors.New("leveldb: closed"), http.StatusInternalServerError, codeGiftCardInternal, "internal_error"},
	}
	for _, tc := range cases {
		rpcErr := giftCardError(tc.err)
		require.Equal(t, tc.status, rpcErr.status, tc.err.Error())
		require.Equal(t, tc.code, rpcErr.Code, tc.err.Error())
		require.Equal(t, tc.message, rpcErr.Message, tc.err.Error())
	}

	params := balanceParams{Address: crypto.FormatAddress(record), Asset: "USDC"}
	auth := map[string]string{"Authorization": "Bearer " + operatorToken(t, testJWTSecret, testJWTIssuer, time.Now().Add(time.Hour))}
	resp = h.callWithHeaders(auth, "faucet_request", params)
	require.Equal(t, http.StatusBadRequest, resp.status)
	require.Equal(t, codeBankInvalidParams, resp.Error.Code)
	require.Equal(t, "keyless_destination", resp.Error.Message)
}

func TestJSONRPCEnvelopeErrors(t *testing.T) {
	h := newRPCHarness(t, Config{MaxBodyBytes: 256})

	resp := h.post([]byte("{not json"), nil)
	require.Equal(t, codeParseError, resp.Error.Code)

	resp = h.call("giftcard_unknown")
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	resp = h.post([]byte(`{"jsonrpc":"1.0","method":"net_info","id":3}`), nil)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	resp = h.post([]byte(`{"jsonrpc":"2.0","method":"net_info","id":4,"pad":"`+strings.Repeat("x", 512)+`"}`), nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.status)

	resp = h.call("giftcard_get", map[string]interface{}{"owner": "x", "cardId": 1, "extra": true})
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newRPCHarness(t, Config{})

	resp := h.call("net_info")
	_, err := uuid.Parse(resp.header.Get(requestIDHeader))
	require.NoError(t, err)

	supplied := uuid.NewString()
	resp = h.callWithHeaders(map[string]string{requestIDHeader: supplied}, "net_info")
	require.Equal(t, supplied, resp.header.Get(requestIDHeader))

	var info netInfoResult
	decodeResult(t, resp, &info)
	require.Equal(t, testNetwork, info.Network)
	require.Equal(t, "GIFT", info.NativeAsset)
}

func TestFaucetRequiresOperatorToken(t *testing.T) {
	h := newRPCHarness(t, Config{})
	_, addr := h.account()
	params := balanceParams{Address: crypto.FormatAddress(addr), Asset: "USDC"}

	resp := h.call("faucet_request", params)
	require.Equal(t, http.StatusUnauthorized, resp.status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	expired := operatorToken(t, testJWTSecret, testJWTIssuer, time.Now().Add(-time.Hour))
	resp = h.callWithHeaders(map[string]string{"Authorization": "Bearer " + expired}, "faucet_request", params)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	forged := operatorToken(t, "wrong-secret", testJWTIssuer, time.Now().Add(time.Hour))
	resp = h.callWithHeaders(map[string]string{"Authorization": "Bearer " + forged}, "faucet_request", params)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	valid := map[string]string{"Authorization": "Bearer " + operatorToken(t, testJWTSecret, testJWTIssuer, time.Now().Add(time.Hour))}
	var paid faucetResult
	decodeResult(t, h.callWithHeaders(valid, "faucet_request", params), &paid)
	require.Equal(t, uint64(2_500_000), paid.Amount)

	resp = h.callWithHeaders(valid, "faucet_request", params)
	require.Equal(t, codeFaucetRefused, resp.Error.Code)
	require.Equal(t, "faucet_cooldown", resp.Error.Message)
}

func TestRateLimitPerClient(t *testing.T) {
	h := newRPCHarness(t, Config{RateLimitPerSec: 0.001, RateLimitBurst: 2})

	require.Nil(t, h.call("net_info").Error)
	require.Nil(t, h.call("net_info").Error)
	resp := h.call("net_info")
	require.Equal(t, http.StatusTooManyRequests, resp.status)
	require.Equal(t, codeRateLimited, resp.Error.Code)

	health, err := h.http.Client().Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}

func TestClientIPHonoursTrustedProxiesOnly(t *testing.T) {
	limiter := newClientLimiter(1, 1, []string{"10.0.0.1"})

	req, err := http.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, err)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", limiter.clientIP(req))

	req.RemoteAddr = "192.0.2.9:5000"
	require.Equal(t, "192.0.2.9", limiter.clientIP(req))
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	h := newRPCHarness(t, Config{})
	key, owner := h.account()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws/events?owner=" + crypto.FormatAddress(owner)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return h.feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp := h.call("giftcard_create", h.signed(key, types.ActionCreateGiftCard, 0, types.CreateGiftCardPayload{
		CardID: 3, Amount: 42, UnlockTime: h.now, RefundTime: h.now + 60, Asset: "USDC",
	}))
	require.Nil(t, resp.Error)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg streamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, events.TypeGiftCardCreated, msg.Type)
	require.Equal(t, "3", msg.Attributes["cardId"])
}

func TestEventStreamReplaysJournal(t *testing.T) {
	h := newRPCHarness(t, Config{})
	key, _ := h.account()

	resp := h.call("giftcard_create", h.signed(key, types.ActionCreateGiftCard, 0, types.CreateGiftCardPayload{
		CardID: 8, Amount: 7, UnlockTime: h.now, RefundTime: h.now + 60, Asset: "USDC",
	}))
	require.Nil(t, resp.Error)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(h.http.URL, "http")+"/ws/events?after=0", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg streamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, int64(1), msg.Sequence)
	require.Equal(t, "8", msg.Attributes["cardId"])
}

func TestEventStreamReplaysBacklogBeyondOnePage(t *testing.T) {
	h := newRPCHarness(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var issuer [20]byte
	issuer[0] = 0x42
	const backlog = 2*wsReplayPageSize + 30
	for i := uint64(1); i <= backlog; i++ {
		evt := events.GiftCardCreated{CardID: i, Owner: issuer, Asset: "USDC", Balance: i}
		_, err := h.journal.Append(ctx, evt.Event(), time.Unix(h.now, 0))
		require.NoError(t, err)
	}

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(h.http.URL, "http")+"/ws/events?after=0", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for want := int64(1); want <= backlog; want++ {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg streamMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		require.Equal(t, want, msg.Sequence)
	}
}
