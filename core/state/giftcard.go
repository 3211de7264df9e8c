package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"giftchain/core/types"
	"giftchain/native/giftcard"
)

// ErrInsufficientDeposit is returned when the payer cannot cover the record
// provisioning deposit.
var ErrInsufficientDeposit = errors.New("state: insufficient balance for provisioning deposit")

type storedGiftCard struct {
	CardID     uint64
	Owner      [20]byte
	Balance    uint64
	UnlockTime *big.Int
	RefundTime *big.Int
	Asset      string
	Decimals   uint8
	Escrow     [20]byte
	Recipients [][20]byte
	CreatedAt  *big.Int
	Deposit    uint64
}

func newStoredGiftCard(card *giftcard.GiftCard, deposit uint64) *storedGiftCard {
	return &storedGiftCard{
		CardID:     card.CardID,
		Owner:      card.Owner,
		Balance:    card.Balance,
		UnlockTime: big.NewInt(card.UnlockTime),
		RefundTime: big.NewInt(card.RefundTime),
		Asset:      card.Asset,
		Decimals:   card.Decimals,
		Escrow:     card.Escrow.Owner,
		Recipients: card.AllowedRecipients.Recipients(),
		CreatedAt:  big.NewInt(card.CreatedAt),
		Deposit:    deposit,
	}
}

// giftCardRef points a record address back at the record that derived it.
type giftCardRef struct {
	Owner  [20]byte
	CardID uint64
}

// toGiftCard decodes the stored record requested as cardID. A stored id that
// differs from the key it was read under means the record is corrupt.
func (s *storedGiftCard) toGiftCard(cardID uint64) (*giftcard.GiftCard, error) {
	if s.CardID != cardID {
		return nil, fmt.Errorf("%w: stored %d, requested %d", giftcard.ErrInvalidCardID, s.CardID, cardID)
	}
	list, err := giftcard.NewAllowList(s.Recipients)
	if err != nil {
		return nil, fmt.Errorf("state: gift card %d: %w", s.CardID, err)
	}
	return &giftcard.GiftCard{
		CardID:            s.CardID,
		Owner:             s.Owner,
		Balance:           s.Balance,
		UnlockTime:        bigToInt64(s.UnlockTime),
		RefundTime:        bigToInt64(s.RefundTime),
		Asset:             s.Asset,
		Decimals:          s.Decimals,
		Escrow:            types.Location{Owner: s.Escrow, Asset: s.Asset},
		AllowedRecipients: list,
		CreatedAt:         bigToInt64(s.CreatedAt),
	}, nil
}

func bigToInt64(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	return v.Int64()
}

func validateGiftCardTimes(card *giftcard.GiftCard) error {
	if card.UnlockTime < 0 || card.RefundTime < 0 || card.CreatedAt < 0 {
		return fmt.Errorf("state: gift card %d: negative timestamp", card.CardID)
	}
	return nil
}

func (m *Manager) loadStoredGiftCard(owner [20]byte, cardID uint64) (*storedGiftCard, bool, error) {
	stored := new(storedGiftCard)
	ok, err := m.loadRLP(giftCardKey(owner, cardID), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored, true, nil
}

func (m *Manager) loadOwnerIndex(owner [20]byte) ([]uint64, error) {
	var ids []uint64
	if _, err := m.loadRLP(giftCardOwnerKey(owner), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *Manager) writeOwnerIndex(owner [20]byte, ids []uint64) error {
	if len(ids) == 0 {
		m.del(giftCardOwnerKey(owner))
		return nil
	}
	return m.writeRLP(giftCardOwnerKey(owner), ids)
}

func (m *Manager) nativeLocation(owner [20]byte) types.Location {
	return types.NewLocation(owner, m.provisionAsset)
}

// GiftCardAllocate provisions a new record keyed by (card.Owner, card.CardID),
// charging the configured deposit to payer.
func (m *Manager) GiftCardAllocate(card *giftcard.GiftCard, payer [20]byte) error {
	if card == nil {
		return fmt.Errorf("state: nil gift card")
	}
	if err := validateGiftCardTimes(card); err != nil {
		return err
	}
	if _, ok, err := m.loadStoredGiftCard(card.Owner, card.CardID); err != nil {
		return err
	} else if ok {
		return giftcard.ErrCardExists
	}

	deposit := m.provisionDeposit
	if deposit > 0 {
		loc := m.nativeLocation(payer)
		balance, err := m.LocationBalance(loc)
		if err != nil {
			return err
		}
		charge := uint256.NewInt(deposit)
		if balance.Lt(charge) {
			return ErrInsufficientDeposit
		}
		if err := m.SetLocationBalance(loc, new(uint256.Int).Sub(balance, charge)); err != nil {
			return err
		}
	}

	if err := m.writeRLP(giftCardKey(card.Owner, card.CardID), newStoredGiftCard(card, deposit)); err != nil {
		return err
	}
	if err := m.writeRLP(giftCardAddressKey(card.Address()), &giftCardRef{Owner: card.Owner, CardID: card.CardID}); err != nil {
		return err
	}
	ids, err := m.loadOwnerIndex(card.Owner)
	if err != nil {
		return err
	}
	ids = append(ids, card.CardID)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return m.writeOwnerIndex(card.Owner, ids)
}

// GiftCardGet returns the record keyed by (owner, cardID).
func (m *Manager) GiftCardGet(owner [20]byte, cardID uint64) (*giftcard.GiftCard, bool, error) {
	stored, ok, err := m.loadStoredGiftCard(owner, cardID)
	if err != nil || !ok {
		return nil, false, err
	}
	card, err := stored.toGiftCard(cardID)
	if err != nil {
		return nil, false, err
	}
	return card, true, nil
}

// GiftCardPut overwrites an existing record. The deposit is carried over.
func (m *Manager) GiftCardPut(card *giftcard.GiftCard) error {
	if card == nil {
		return fmt.Errorf("state: nil gift card")
	}
	if err := validateGiftCardTimes(card); err != nil {
		return err
	}
	existing, ok, err := m.loadStoredGiftCard(card.Owner, card.CardID)
	if err != nil {
		return err
	}
	if !ok {
		return giftcard.ErrNotFound
	}
	return m.writeRLP(giftCardKey(card.Owner, card.CardID), newStoredGiftCard(card, existing.Deposit))
}

// GiftCardDestroy removes the record and credits its provisioning deposit to
// recipient.
func (m *Manager) GiftCardDestroy(owner [20]byte, cardID uint64, recipient [20]byte) error {
	stored, ok, err := m.loadStoredGiftCard(owner, cardID)
	if err != nil {
		return err
	}
	if !ok {
		return giftcard.ErrNotFound
	}
	if stored.Deposit > 0 {
		loc := m.nativeLocation(recipient)
		balance, err := m.LocationBalance(loc)
		if err != nil {
			return err
		}
		sum, overflow := new(uint256.Int).AddOverflow(balance, uint256.NewInt(stored.Deposit))
		if overflow {
			return fmt.Errorf("state: deposit refund overflows balance")
		}
		if err := m.SetLocationBalance(loc, sum); err != nil {
			return err
		}
	}
	m.del(giftCardKey(owner, cardID))

	ids, err := m.loadOwnerIndex(owner)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != cardID {
			kept = append(kept, id)
		}
	}
	return m.writeOwnerIndex(owner, kept)
}

// GiftCardByAddress resolves a record address to the (owner, card id) that
// derived it. The mapping outlives the record: nobody holds a key for a record
// address, so it stays unusable as a destination after Delete.
func (m *Manager) GiftCardByAddress(record [20]byte) ([20]byte, uint64, bool, error) {
	ref := new(giftCardRef)
	ok, err := m.loadRLP(giftCardAddressKey(record), ref)
	if err != nil || !ok {
		return [20]byte{}, 0, false, err
	}
	return ref.Owner, ref.CardID, true, nil
}

// IsGiftCardAddress reports whether addr was ever allocated as a record
// address.
func (m *Manager) IsGiftCardAddress(addr [20]byte) (bool, error) {
	_, _, ok, err := m.GiftCardByAddress(addr)
	return ok, err
}

// GiftCardDeposit reports the provisioning deposit held by a record.
func (m *Manager) GiftCardDeposit(owner [20]byte, cardID uint64) (uint64, error) {
	stored, ok, err := m.loadStoredGiftCard(owner, cardID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, giftcard.ErrNotFound
	}
	return stored.Deposit, nil
}

// GiftCardsByOwner lists every live record of owner ordered by card id.
func (m *Manager) GiftCardsByOwner(owner [20]byte) ([]*giftcard.GiftCard, error) {
	ids, err := m.loadOwnerIndex(owner)
	if err != nil {
		return nil, err
	}
	out := make([]*giftcard.GiftCard, 0, len(ids))
	for _, id := range ids {
		card, ok, err := m.GiftCardGet(owner, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, card)
		}
	}
	return out, nil
}
