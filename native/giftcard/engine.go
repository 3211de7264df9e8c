package giftcard

import (
	"errors"
	"fmt"
	"time"

	"giftchain/core/events"
	"giftchain/core/types"
)

type engineState interface {
	Snapshot() int
	RevertToSnapshot(id int)
	GiftCardAllocate(card *GiftCard, payer [20]byte) error
	GiftCardGet(owner [20]byte, cardID uint64) (*GiftCard, bool, error)
	GiftCardPut(card *GiftCard) error
	GiftCardDestroy(owner [20]byte, cardID uint64, recipient [20]byte) error
	GiftCardsByOwner(owner [20]byte) ([]*GiftCard, error)
}

// Ledger moves value between custody locations. Transfer must be atomic and
// exact and must refuse unless authorizer owns the source location.
type Ledger interface {
	OpenCustody(loc types.Location, funding uint64) error
	Transfer(asset string, from, to types.Location, amount uint64, authorizer [20]byte) error
	CloseCustody(loc types.Location) error
	AssetDecimals(asset string) (uint8, error)
}

// Engine implements the gift card lifecycle on top of pluggable state, ledger
// and event emitters.
type Engine struct {
	state   engineState
	ledger  Ledger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the value transfer backend.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// atomically runs fn against a state snapshot and rolls back on failure.
func (e *Engine) atomically(fn func() error) error {
	snap := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	return nil
}

func (e *Engine) load(owner [20]byte, cardID uint64) (*GiftCard, error) {
	card, ok, err := e.state.GiftCardGet(owner, cardID)
	if err != nil {
		return nil, err
	}
	if !ok || card == nil {
		return nil, ErrNotFound
	}
	return card, nil
}

// Create provisions a gift card for issuer and moves amount of asset from the
// issuer into the card's escrow. Nothing persists unless every step succeeds.
func (e *Engine) Create(issuer [20]byte, cardID, amount uint64, unlockTime, refundTime int64, asset string) (*GiftCard, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	now := e.now()
	if unlockTime < now {
		return nil, ErrInvalidUnlockTime
	}
	if refundTime <= unlockTime {
		return nil, ErrInvalidRefundTime
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	asset = types.NormalizeAsset(asset)
	if asset == "" {
		return nil, ErrInvalidAsset
	}
	decimals, err := e.ledger.AssetDecimals(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}

	card := &GiftCard{
		CardID:     cardID,
		Owner:      issuer,
		Balance:    amount,
		UnlockTime: unlockTime,
		RefundTime: refundTime,
		Asset:      asset,
		Decimals:   decimals,
		Escrow:     EscrowLocation(issuer, cardID, asset),
		CreatedAt:  now,
	}
	err = e.atomically(func() error {
		if err := e.state.GiftCardAllocate(card, issuer); err != nil {
			return err
		}
		if err := e.ledger.OpenCustody(card.Escrow, amount); err != nil {
			return fmt.Errorf("giftcard: open escrow: %w", err)
		}
		source := types.NewLocation(issuer, asset)
		if err := e.ledger.Transfer(asset, source, card.Escrow, amount, issuer); err != nil {
			return fmt.Errorf("giftcard: fund escrow: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(events.GiftCardCreated{
		CardID:     card.CardID,
		Owner:      card.Owner,
		Record:     card.Address(),
		Asset:      card.Asset,
		Balance:    card.Balance,
		UnlockTime: card.UnlockTime,
		RefundTime: card.RefundTime,
	})
	return card.Clone(), nil
}

// SetAllowList replaces the recipient allow-list of the card wholesale. It is
// permitted at any point in the card's lifecycle.
func (e *Engine) SetAllowList(caller, owner [20]byte, cardID uint64, recipients [][20]byte) (*GiftCard, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	card, err := e.load(owner, cardID)
	if err != nil {
		return nil, err
	}
	if caller != card.Owner {
		return nil, ErrUnauthorized
	}
	list, err := NewAllowList(recipients)
	if err != nil {
		return nil, err
	}
	updated := card.Clone()
	updated.AllowedRecipients = list
	if err := e.state.GiftCardPut(updated); err != nil {
		return nil, err
	}

	e.emit(events.GiftCardAllowListUpdated{
		CardID:     updated.CardID,
		Owner:      updated.Owner,
		Record:     updated.Address(),
		Recipients: list.Recipients(),
	})
	return updated.Clone(), nil
}

// Redeem releases amount from the escrow to recipient. Only the owner may
// redeem, and only inside [UnlockTime, RefundTime).
func (e *Engine) Redeem(caller, owner [20]byte, cardID, amount uint64, recipient [20]byte) (*GiftCard, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	card, err := e.load(owner, cardID)
	if err != nil {
		return nil, err
	}
	if caller != card.Owner {
		return nil, ErrUnauthorized
	}
	now := e.now()
	if now < card.UnlockTime {
		return nil, ErrRecordLocked
	}
	if now >= card.RefundTime {
		return nil, ErrRecordExpired
	}
	if card.Balance < amount {
		return nil, ErrInsufficientBalance
	}
	if !card.AllowedRecipients.Permits(recipient) {
		return nil, ErrRecipientNotAllowed
	}

	updated := card.Clone()
	err = e.atomically(func() error {
		authority, err := authorityFor(updated)
		if err != nil {
			return err
		}
		if err := authority.release(e.ledger, types.NewLocation(recipient, updated.Asset), amount); err != nil {
			return err
		}
		updated.Balance -= amount
		return e.state.GiftCardPut(updated)
	})
	if err != nil {
		return nil, err
	}

	e.emit(events.GiftCardRedeemed{
		CardID:           updated.CardID,
		Owner:            updated.Owner,
		Record:           updated.Address(),
		Recipient:        recipient,
		Asset:            updated.Asset,
		Amount:           amount,
		RemainingBalance: updated.Balance,
	})
	return updated.Clone(), nil
}

// Refund drains the whole remaining balance back to the owner once the refund
// time has been reached. Partial refunds are not supported.
func (e *Engine) Refund(caller, owner [20]byte, cardID uint64) (*GiftCard, uint64, error) {
	if err := e.ready(); err != nil {
		return nil, 0, err
	}
	card, err := e.load(owner, cardID)
	if err != nil {
		return nil, 0, err
	}
	if caller != card.Owner {
		return nil, 0, ErrUnauthorized
	}
	if e.now() < card.RefundTime {
		return nil, 0, ErrRefundNotAvailable
	}
	if card.Balance == 0 {
		return nil, 0, ErrNoBalanceToRefund
	}

	updated := card.Clone()
	refunded := updated.Balance
	err = e.atomically(func() error {
		authority, err := authorityFor(updated)
		if err != nil {
			return err
		}
		if err := authority.release(e.ledger, types.NewLocation(updated.Owner, updated.Asset), refunded); err != nil {
			return err
		}
		updated.Balance = 0
		return e.state.GiftCardPut(updated)
	})
	if err != nil {
		return nil, 0, err
	}

	e.emit(events.GiftCardRefunded{
		CardID:           updated.CardID,
		Owner:            updated.Owner,
		Record:           updated.Address(),
		Asset:            updated.Asset,
		Amount:           refunded,
		RemainingBalance: updated.Balance,
	})
	return updated.Clone(), refunded, nil
}

// Delete destroys an empty gift card and returns the provisioning deposit to
// the caller.
func (e *Engine) Delete(caller, owner [20]byte, cardID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	card, err := e.load(owner, cardID)
	if err != nil {
		return err
	}
	if caller != card.Owner {
		return ErrUnauthorized
	}
	if card.Balance != 0 {
		return ErrHasBalance
	}

	err = e.atomically(func() error {
		if err := e.ledger.CloseCustody(card.Escrow); err != nil {
			return fmt.Errorf("giftcard: close escrow: %w", err)
		}
		return e.state.GiftCardDestroy(card.Owner, card.CardID, caller)
	})
	if err != nil {
		return err
	}

	e.emit(events.GiftCardDeleted{CardID: card.CardID, Owner: card.Owner})
	return nil
}

// Get returns a copy of the gift card keyed by (owner, cardID).
func (e *Engine) Get(owner [20]byte, cardID uint64) (*GiftCard, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	card, err := e.load(owner, cardID)
	if err != nil {
		return nil, err
	}
	return card.Clone(), nil
}

// ListByOwner returns every live gift card of owner ordered by card id.
func (e *Engine) ListByOwner(owner [20]byte) ([]*GiftCard, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cards, err := e.state.GiftCardsByOwner(owner)
	if err != nil {
		return nil, err
	}
	out := make([]*GiftCard, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.Clone())
	}
	return out, nil
}

// Now exposes the engine clock so callers can derive phases consistently.
func (e *Engine) Now() int64 { return e.now() }

// IsPrecondition reports whether err is a gift card validation failure as
// opposed to a storage or ledger fault.
func IsPrecondition(err error) bool {
	for _, target := range []error{
		ErrInvalidUnlockTime, ErrInvalidRefundTime, ErrRecordLocked, ErrRecordExpired,
		ErrRecipientNotAllowed, ErrInsufficientBalance, ErrUnauthorized, ErrTooManyRecipients,
		ErrRefundNotAvailable, ErrNoBalanceToRefund, ErrInvalidCardID, ErrHasBalance,
		ErrCardExists, ErrNotFound, ErrInvalidAmount, ErrInvalidAsset,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
