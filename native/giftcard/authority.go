package giftcard

import (
	"fmt"

	"giftchain/core/types"
)

// escrowAuthority is the record's custody right over its own escrow location.
// It is bound to exactly one record and only handed out inside engine
// operations.
type escrowAuthority struct {
	card    *GiftCard
	address [20]byte
}

func authorityFor(card *GiftCard) (escrowAuthority, error) {
	addr := card.Address()
	if card.Escrow.Owner != addr || card.Escrow.Asset != card.Asset {
		return escrowAuthority{}, fmt.Errorf("%w: escrow location not bound to card %d", ErrUnauthorized, card.CardID)
	}
	return escrowAuthority{card: card, address: addr}, nil
}

// release moves amount out of the escrow. It never moves more than the
// recorded balance and leaves the balance untouched; the caller debits it
// once the transfer has succeeded.
func (a escrowAuthority) release(ledger Ledger, to types.Location, amount uint64) error {
	if amount > a.card.Balance {
		return ErrInsufficientBalance
	}
	if err := ledger.Transfer(a.card.Asset, a.card.Escrow, to, amount, a.address); err != nil {
		return fmt.Errorf("giftcard: release escrow: %w", err)
	}
	return nil
}
