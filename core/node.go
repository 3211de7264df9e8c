package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"giftchain/core/events"
	giftstate "giftchain/core/state"
	"giftchain/core/types"
	"giftchain/crypto"
	"giftchain/native/bank"
	"giftchain/native/giftcard"
	"giftchain/observability"
	"giftchain/storage"
)

var tracer = otel.Tracer("giftchain/core")

var (
	ErrWrongNetwork   = errors.New("node: action signed for a different network")
	ErrInvalidNonce   = errors.New("node: invalid action nonce")
	ErrInvalidAction  = errors.New("node: invalid action")
	ErrInvalidAddress = errors.New("node: invalid address")
	ErrFaucetDisabled = errors.New("node: faucet disabled")
	ErrFaucetAsset    = errors.New("node: faucet does not dispense this asset")
	ErrFaucetCooldown = errors.New("node: faucet cooldown active")
)

// FaucetPolicy configures the devnet faucet.
type FaucetPolicy struct {
	Enabled  bool
	Amounts  map[string]uint64
	Cooldown time.Duration
}

// AssetInfo describes an asset to register at startup.
type AssetInfo struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// Options configures a Node.
type Options struct {
	NetworkName      string
	NativeAsset      string
	ProvisionDeposit uint64
	Faucet           FaucetPolicy
	Logger           *slog.Logger
	// Now overrides the clock, in unix seconds.
	Now func() int64
}

// Result describes the outcome of a successfully applied action.
type Result struct {
	Operation string
	Caller    [20]byte
	Nonce     uint64
	Card      *giftcard.GiftCard
	// Amount is the value moved by create, redeem and refund.
	Amount  uint64
	Deleted bool
}

// Node is the central controller: it serializes every operation, verifies the
// signed action envelope, runs the gift card engine against the state overlay
// and commits or discards the result as a unit. Events are published only
// after a successful commit.
type Node struct {
	mu sync.Mutex

	db      storage.Database
	state   *giftstate.Manager
	ledger  *bank.Ledger
	engine  *giftcard.Engine
	pending *events.Buffer
	sinks   events.Multi

	network     string
	nativeAsset string
	faucet      FaucetPolicy
	logger      *slog.Logger
	metrics     *observability.GiftCardMetrics
	nowFn       func() int64
}

// NewNode wires the state manager, ledger and engine over db.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	network := strings.TrimSpace(opts.NetworkName)
	if network == "" {
		return nil, fmt.Errorf("node: network name required")
	}
	native := types.NormalizeAsset(opts.NativeAsset)
	if native == "" {
		return nil, fmt.Errorf("node: native asset required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = func() int64 { return time.Now().Unix() }
	}

	state := giftstate.NewManager(db)
	state.SetProvisionDeposit(native, opts.ProvisionDeposit)
	ledger := bank.NewLedger(state)
	pending := &events.Buffer{}

	engine := giftcard.NewEngine()
	engine.SetState(state)
	engine.SetLedger(ledger)
	engine.SetEmitter(pending)
	engine.SetNowFunc(nowFn)

	faucet := opts.Faucet
	amounts := make(map[string]uint64, len(faucet.Amounts))
	for symbol, amount := range faucet.Amounts {
		amounts[types.NormalizeAsset(symbol)] = amount
	}
	faucet.Amounts = amounts

	return &Node{
		db:          db,
		state:       state,
		ledger:      ledger,
		engine:      engine,
		pending:     pending,
		network:     network,
		nativeAsset: native,
		faucet:      faucet,
		logger:      logger.With("component", "node"),
		metrics:     observability.GiftCards(),
		nowFn:       nowFn,
	}, nil
}

// Subscribe adds an emitter that receives every committed event. It must be
// called before the node starts serving requests.
func (n *Node) Subscribe(emitter events.Emitter) {
	if emitter == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, emitter)
}

// NetworkName returns the network actions must be signed for.
func (n *Node) NetworkName() string { return n.network }

// NativeAsset returns the asset used for provisioning deposits.
func (n *Node) NativeAsset() string { return n.nativeAsset }

// Now returns the node clock in unix seconds.
func (n *Node) Now() int64 { return n.nowFn() }

// RegisterAssets makes the given assets known to the ledger. Assets that are
// already registered with the same decimals are left untouched.
func (n *Node) RegisterAssets(assets []AssetInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range assets {
		if err := n.state.EnsureAsset(a.Symbol, a.Name, a.Decimals); err != nil {
			n.state.Discard()
			return err
		}
	}
	return n.state.Commit()
}

// Mint credits amount of asset to owner. It is used for genesis allocations
// and by the faucet.
func (n *Node) Mint(owner [20]byte, asset string, amount uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ledger.Mint(types.NewLocation(owner, asset), amount); err != nil {
		n.state.Discard()
		return err
	}
	return n.state.Commit()
}

// Submit verifies and applies a signed action.
func (n *Node) Submit(ctx context.Context, action *types.Action) (*Result, error) {
	if action == nil {
		return nil, fmt.Errorf("%w: nil action", ErrInvalidAction)
	}
	if !action.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidAction, action.Type)
	}
	caller, err := action.From()
	if err != nil {
		return nil, err
	}
	if action.Network != n.network {
		return nil, ErrWrongNetwork
	}

	op := action.Type.String()
	_, span := tracer.Start(ctx, "giftcard."+op, trace.WithAttributes(
		attribute.String("giftcard.caller", crypto.FormatAddress(caller)),
		attribute.Int64("giftcard.nonce", int64(action.Nonce)),
	))
	defer span.End()

	n.mu.Lock()
	defer n.mu.Unlock()

	start := time.Now()
	res, err := n.apply(caller, action)
	n.observe(op, caller, res, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeOf(err))
	} else if res.Card != nil {
		span.SetAttributes(attribute.Int64("giftcard.id", int64(res.Card.CardID)))
	}
	return res, err
}

func (n *Node) apply(caller [20]byte, action *types.Action) (*Result, error) {
	expected, err := n.state.ActionNonce(caller)
	if err != nil {
		return nil, err
	}
	if action.Nonce != expected {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, expected, action.Nonce)
	}

	res, err := n.dispatch(caller, action)
	if err != nil {
		n.state.Discard()
		n.pending.Reset()
		return nil, err
	}
	n.state.SetActionNonce(caller, expected+1)
	if err := n.state.Commit(); err != nil {
		n.state.Discard()
		n.pending.Reset()
		return nil, err
	}
	res.Caller = caller
	res.Nonce = action.Nonce
	n.publish()
	return res, nil
}

func (n *Node) dispatch(caller [20]byte, action *types.Action) (*Result, error) {
	res := &Result{Operation: action.Type.String()}
	switch action.Type {
	case types.ActionCreateGiftCard:
		var p types.CreateGiftCardPayload
		if err := decodePayload(action, &p); err != nil {
			return nil, err
		}
		card, err := n.engine.Create(caller, p.CardID, p.Amount, p.UnlockTime, p.RefundTime, p.Asset)
		if err != nil {
			return nil, err
		}
		res.Card = card
		res.Amount = p.Amount

	case types.ActionSetAllowList:
		var p types.SetAllowListPayload
		if err := decodePayload(action, &p); err != nil {
			return nil, err
		}
		owner, err := ownerOrCaller(p.Owner, caller)
		if err != nil {
			return nil, err
		}
		recipients := make([][20]byte, 0, len(p.Recipients))
		for _, raw := range p.Recipients {
			addr, err := n.recipientAddress(raw)
			if err != nil {
				return nil, err
			}
			recipients = append(recipients, addr)
		}
		card, err := n.engine.SetAllowList(caller, owner, p.CardID, recipients)
		if err != nil {
			return nil, err
		}
		res.Card = card

	case types.ActionRedeem:
		var p types.RedeemPayload
		if err := decodePayload(action, &p); err != nil {
			return nil, err
		}
		owner, err := ownerOrCaller(p.Owner, caller)
		if err != nil {
			return nil, err
		}
		recipient, err := n.recipientAddress(p.Recipient)
		if err != nil {
			return nil, err
		}
		card, err := n.engine.Redeem(caller, owner, p.CardID, p.Amount, recipient)
		if err != nil {
			return nil, err
		}
		res.Card = card
		res.Amount = p.Amount

	case types.ActionRefund:
		var p types.CardPayload
		if err := decodePayload(action, &p); err != nil {
			return nil, err
		}
		owner, err := ownerOrCaller(p.Owner, caller)
		if err != nil {
			return nil, err
		}
		card, refunded, err := n.engine.Refund(caller, owner, p.CardID)
		if err != nil {
			return nil, err
		}
		res.Card = card
		res.Amount = refunded

	case types.ActionDelete:
		var p types.CardPayload
		if err := decodePayload(action, &p); err != nil {
			return nil, err
		}
		owner, err := ownerOrCaller(p.Owner, caller)
		if err != nil {
			return nil, err
		}
		if err := n.engine.Delete(caller, owner, p.CardID); err != nil {
			return nil, err
		}
		res.Deleted = true
	}
	return res, nil
}

func decodePayload(action *types.Action, dst interface{}) error {
	if err := action.DecodePayload(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return nil
}

func ownerOrCaller(raw string, caller [20]byte) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return caller, nil
	}
	return ParseAddress(raw)
}

// ParseAddress decodes a key-holder bech32 address into its raw form.
func ParseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if addr.IsCustody() {
		return [20]byte{}, fmt.Errorf("%w: custody address %s cannot hold or receive funds", ErrInvalidAddress, raw)
	}
	return addr.Array(), nil
}

// recipientAddress parses a destination for value. Gift card record
// addresses are refused in either bech32 encoding since no key can ever spend
// from them.
func (n *Node) recipientAddress(raw string) ([20]byte, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return [20]byte{}, err
	}
	record, err := n.state.IsGiftCardAddress(addr)
	if err != nil {
		return [20]byte{}, err
	}
	if record {
		return [20]byte{}, fmt.Errorf("%w: %s is a gift card record address", ErrInvalidAddress, strings.TrimSpace(raw))
	}
	return addr, nil
}

func (n *Node) publish() {
	dst := make(events.Multi, 0, len(n.sinks)+1)
	dst = append(dst, emittedCounter{})
	dst = append(dst, n.sinks...)
	n.pending.Flush(dst)
}

type emittedCounter struct{}

func (emittedCounter) Emit(evt events.Event) {
	observability.Events().RecordEmitted(evt.EventType())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case giftcard.IsPrecondition(err), isLedgerRejection(err):
		return "rejected"
	case errors.Is(err, ErrInvalidNonce), errors.Is(err, ErrInvalidAction), errors.Is(err, ErrInvalidAddress):
		return "invalid"
	default:
		return "error"
	}
}

// isLedgerRejection reports failures of the value layer that the caller can
// correct, such as an unfunded deposit or a refused destination.
func isLedgerRejection(err error) bool {
	for _, target := range []error{
		giftstate.ErrInsufficientDeposit, bank.ErrInsufficientFunds, bank.ErrUnknownAsset,
		bank.ErrAssetMismatch, bank.ErrUnauthorized, bank.ErrSelfTransfer, bank.ErrCustodyExists,
		bank.ErrCustodySealed, bank.ErrKeylessDestination,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (n *Node) observe(op string, caller [20]byte, res *Result, err error, elapsed time.Duration) {
	outcome := outcomeOf(err)
	n.metrics.RecordOperation(op, outcome, elapsed)
	if err != nil {
		n.logger.Warn("gift card operation failed",
			"operation", op,
			"caller", crypto.FormatAddress(caller),
			"outcome", outcome,
			"error", err)
		return
	}
	attrs := []any{"operation", op, "caller", crypto.FormatAddress(caller), "nonce", res.Nonce}
	if res.Card != nil {
		attrs = append(attrs, "cardId", res.Card.CardID, "balance", res.Card.Balance, "asset", res.Card.Asset)
		if res.Amount > 0 {
			n.metrics.RecordValue(op, res.Card.Asset, res.Amount)
		}
	}
	n.logger.Info("gift card operation applied", attrs...)
}

// GiftCard returns the gift card keyed by (owner, cardID).
func (n *Node) GiftCard(owner [20]byte, cardID uint64) (*giftcard.GiftCard, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Get(owner, cardID)
}

// GiftCardsByOwner lists every live gift card of owner.
func (n *Node) GiftCardsByOwner(owner [20]byte) ([]*giftcard.GiftCard, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ListByOwner(owner)
}

// Balance returns the balance of asset held by owner.
func (n *Node) Balance(owner [20]byte, asset string) (*uint256.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Balance(types.NewLocation(owner, asset))
}

// Assets lists the registered assets.
func (n *Node) Assets() ([]*giftstate.AssetMetadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Assets()
}

// ActionNonce returns the next nonce expected from addr.
func (n *Node) ActionNonce(addr [20]byte) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.ActionNonce(addr)
}
