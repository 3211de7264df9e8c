package giftcard

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"giftchain/core/types"
)

var recordSeed = []byte("gift_card")

// Phase describes where a gift card sits in its lifecycle at a given instant.
// It is derived from the balance and the two instants and never stored.
type Phase string

const (
	PhaseLocked     Phase = "locked"
	PhaseRedeemable Phase = "redeemable"
	PhaseRefundable Phase = "refundable"
	PhaseDrained    Phase = "drained"
)

// GiftCard is the custody record for one escrowed deposit. CardID, Owner,
// Asset, UnlockTime and RefundTime are fixed at creation. Balance only ever
// decreases after creation.
type GiftCard struct {
	CardID            uint64
	Owner             [20]byte
	Balance           uint64
	UnlockTime        int64
	RefundTime        int64
	Asset             string
	Decimals          uint8
	Escrow            types.Location
	AllowedRecipients AllowList
	CreatedAt         int64
}

// Clone returns a copy that can be mutated without touching the original.
func (c *GiftCard) Clone() *GiftCard {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Address returns the derived address of the record, which is also the owner
// of its escrow location.
func (c *GiftCard) Address() [20]byte {
	return RecordAddress(c.Owner, c.CardID)
}

// Phase reports the lifecycle phase at now.
func (c *GiftCard) Phase(now int64) Phase {
	switch {
	case c.Balance == 0:
		return PhaseDrained
	case now < c.UnlockTime:
		return PhaseLocked
	case now < c.RefundTime:
		return PhaseRedeemable
	default:
		return PhaseRefundable
	}
}

// RecordAddress derives the address of the record keyed by (owner, cardID):
// the last 20 bytes of keccak256("gift_card" || owner || cardID little-endian).
// No private key exists for it.
func RecordAddress(owner [20]byte, cardID uint64) [20]byte {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], cardID)
	digest := ethcrypto.Keccak256(recordSeed, owner[:], id[:])
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}

// EscrowLocation returns the custody slot for the record's asset.
func EscrowLocation(owner [20]byte, cardID uint64, asset string) types.Location {
	return types.NewLocation(RecordAddress(owner, cardID), asset)
}
