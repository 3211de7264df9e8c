package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"giftchain/core/types"
	"giftchain/crypto"
	"giftchain/native/bank"
)

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// parseTime accepts "now", "+duration", an RFC3339 timestamp or unix seconds.
func parseTime(raw string, now time.Time) (int64, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return 0, fmt.Errorf("time required")
	case raw == "now":
		return now.Unix(), nil
	case strings.HasPrefix(raw, "+"):
		d, err := time.ParseDuration(raw[1:])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return now.Add(d).Unix(), nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.Unix(), nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: use now, +duration, RFC3339 or unix seconds", raw)
	}
	return secs, nil
}

// submit signs payload as the wallet and sends it with the next nonce.
func (c *cli) submit(method string, kind types.ActionType, payload interface{}) int {
	key, err := c.loadKey()
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	network, err := c.networkName()
	if err != nil {
		return handleRPCCallError(c.stderr, err)
	}
	nonce, err := c.nextNonce(crypto.FormatAddress(key.PubKey().Address().Array()))
	if err != nil {
		return handleRPCCallError(c.stderr, err)
	}
	action, err := types.NewAction(kind, network, nonce, payload)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	if err := action.Sign(key.Sign); err != nil {
		return printError(c.stderr, fmt.Sprintf("sign action: %v", err))
	}
	return c.invoke(method, action, false)
}

func (c *cli) query(method string, params interface{}, dst interface{}) error {
	result, rpcErr, err := c.call(method, params, false)
	if err != nil {
		return err
	}
	if rpcErr != nil {
		return fmt.Errorf("%s: RPC error %d: %s", method, rpcErr.Code, rpcErr.Message)
	}
	return json.Unmarshal(result, dst)
}

func (c *cli) networkName() (string, error) {
	var info struct {
		Network string `json:"network"`
	}
	if err := c.query("net_info", nil, &info); err != nil {
		return "", err
	}
	return info.Network, nil
}

func (c *cli) nextNonce(addr string) (uint64, error) {
	var out struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.query("giftcard_getNonce", map[string]interface{}{"address": addr}, &out); err != nil {
		return 0, err
	}
	return out.Nonce, nil
}

func (c *cli) runCreate(args []string) int {
	fs := newFlagSet("create", c.stderr)
	var (
		id     uint64
		amount string
		asset  string
		unlock string
		refund string
	)
	fs.Uint64Var(&id, "id", 0, "gift card id, unique per issuer")
	fs.StringVar(&amount, "amount", "", "amount to lock, in whole units (e.g. 12.5)")
	fs.StringVar(&asset, "asset", "", "asset symbol")
	fs.StringVar(&unlock, "unlock", "now", "unlock time: now, +duration, RFC3339 or unix seconds")
	fs.StringVar(&refund, "refund", "", "refund time: +duration, RFC3339 or unix seconds")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	if id == 0 {
		return printError(c.stderr, "--id is required")
	}
	if strings.TrimSpace(asset) == "" {
		return printError(c.stderr, "--asset is required")
	}
	if strings.TrimSpace(amount) == "" {
		return printError(c.stderr, "--amount is required")
	}
	now := c.now()
	unlockAt, err := parseTime(unlock, now)
	if err != nil {
		return printError(c.stderr, "--unlock: "+err.Error())
	}
	refundAt, err := parseTime(refund, now)
	if err != nil {
		return printError(c.stderr, "--refund: "+err.Error())
	}
	if refundAt <= unlockAt {
		return printError(c.stderr, "--refund must be after --unlock")
	}
	decimals, err := c.assetDecimals(asset)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	baseUnits, err := bank.ParseAmount(amount, decimals)
	if err != nil {
		return printError(c.stderr, "--amount: "+err.Error())
	}
	return c.submit("giftcard_create", types.ActionCreateGiftCard, types.CreateGiftCardPayload{
		CardID:     id,
		Amount:     baseUnits,
		UnlockTime: unlockAt,
		RefundTime: refundAt,
		Asset:      asset,
	})
}

func (c *cli) runAllowList(args []string) int {
	fs := newFlagSet("allowlist", c.stderr)
	var (
		id         uint64
		owner      string
		recipients stringList
	)
	fs.Uint64Var(&id, "id", 0, "gift card id")
	fs.StringVar(&owner, "owner", "", "card owner (defaults to the wallet)")
	fs.Var(&recipients, "recipient", "allowed recipient address; repeat or comma-separate, omit to clear")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	if id == 0 {
		return printError(c.stderr, "--id is required")
	}
	for _, r := range recipients {
		if _, err := crypto.DecodeAddress(r); err != nil {
			return printError(c.stderr, fmt.Sprintf("invalid recipient %q: %v", r, err))
		}
	}
	if recipients == nil {
		recipients = stringList{}
	}
	return c.submit("giftcard_setAllowList", types.ActionSetAllowList, types.SetAllowListPayload{
		Owner:      owner,
		CardID:     id,
		Recipients: recipients,
	})
}

func (c *cli) runRedeem(args []string) int {
	fs := newFlagSet("redeem", c.stderr)
	var (
		id     uint64
		amount string
		to     string
	)
	fs.Uint64Var(&id, "id", 0, "gift card id")
	fs.StringVar(&amount, "amount", "", "amount to pay, in whole units")
	fs.StringVar(&to, "to", "", "recipient address")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	if id == 0 {
		return printError(c.stderr, "--id is required")
	}
	if _, err := crypto.DecodeAddress(strings.TrimSpace(to)); err != nil {
		return printError(c.stderr, "--to must be a valid address")
	}
	if strings.TrimSpace(amount) == "" {
		return printError(c.stderr, "--amount is required")
	}
	key, err := c.loadKey()
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	var card struct {
		Decimals uint8 `json:"decimals"`
	}
	self := crypto.FormatAddress(key.PubKey().Address().Array())
	if err := c.query("giftcard_get", map[string]interface{}{"owner": self, "cardId": id}, &card); err != nil {
		return handleRPCCallError(c.stderr, err)
	}
	baseUnits, err := bank.ParseAmount(amount, card.Decimals)
	if err != nil {
		return printError(c.stderr, "--amount: "+err.Error())
	}
	return c.submit("giftcard_redeem", types.ActionRedeem, types.RedeemPayload{
		CardID:    id,
		Amount:    baseUnits,
		Recipient: strings.TrimSpace(to),
	})
}

func (c *cli) runCardAction(op string, args []string) int {
	fs := newFlagSet(op, c.stderr)
	var (
		id    uint64
		owner string
	)
	fs.Uint64Var(&id, "id", 0, "gift card id")
	fs.StringVar(&owner, "owner", "", "card owner (defaults to the wallet)")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	if id == 0 {
		return printError(c.stderr, "--id is required")
	}
	payload := types.CardPayload{Owner: owner, CardID: id}
	if op == "refund" {
		return c.submit("giftcard_refund", types.ActionRefund, payload)
	}
	return c.submit("giftcard_delete", types.ActionDelete, payload)
}

func (c *cli) runGet(args []string) int {
	fs := newFlagSet("get", c.stderr)
	var (
		id    uint64
		owner string
	)
	fs.Uint64Var(&id, "id", 0, "gift card id")
	fs.StringVar(&owner, "owner", "", "card owner (defaults to the wallet)")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	if id == 0 {
		return printError(c.stderr, "--id is required")
	}
	addr, err := c.addressOrSelf(owner)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	return c.invoke("giftcard_get", map[string]interface{}{"owner": addr, "cardId": id}, false)
}

func (c *cli) runList(args []string) int {
	fs := newFlagSet("list", c.stderr)
	owner := fs.String("owner", "", "card owner (defaults to the wallet)")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	addr, err := c.addressOrSelf(*owner)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	return c.invoke("giftcard_listByOwner", map[string]interface{}{"owner": addr}, false)
}

func (c *cli) runEvents(args []string) int {
	fs := newFlagSet("events", c.stderr)
	var (
		owner     string
		id        uint64
		eventType string
		after     int64
		limit     int
	)
	fs.StringVar(&owner, "owner", "", "filter by card owner")
	fs.Uint64Var(&id, "id", 0, "filter by gift card id (requires --owner to be unambiguous)")
	fs.StringVar(&eventType, "type", "", "filter by event type, e.g. giftcard.redeemed")
	fs.Int64Var(&after, "after", 0, "only events with a higher sequence")
	fs.IntVar(&limit, "limit", 0, "maximum number of events")
	if !parseFlags(fs, args, c.stderr) {
		return 1
	}
	params := map[string]interface{}{}
	if owner = strings.TrimSpace(owner); owner != "" {
		params["owner"] = owner
	}
	if id != 0 {
		params["cardId"] = id
	}
	if eventType != "" {
		params["type"] = eventType
	}
	if after > 0 {
		params["after"] = after
	}
	if limit > 0 {
		params["limit"] = limit
	}
	return c.invoke("giftcard_listEvents", params, false)
}
