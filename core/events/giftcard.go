package events

import (
	"strconv"
	"strings"

	"giftchain/core/types"
	"giftchain/crypto"
)

const (
	TypeGiftCardCreated          = "giftcard.created"
	TypeGiftCardAllowListUpdated = "giftcard.allowlist_updated"
	TypeGiftCardRedeemed         = "giftcard.redeemed"
	TypeGiftCardRefunded         = "giftcard.refunded"
	TypeGiftCardDeleted          = "giftcard.deleted"
)

// GiftCardCreated is emitted once the deposit has reached the escrow.
type GiftCardCreated struct {
	CardID     uint64
	Owner      [20]byte
	Record     [20]byte
	Asset      string
	Balance    uint64
	UnlockTime int64
	RefundTime int64
}

func (GiftCardCreated) EventType() string { return TypeGiftCardCreated }

func (e GiftCardCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeGiftCardCreated,
		Attributes: map[string]string{
			"cardId":     uintToString(e.CardID),
			"owner":      crypto.FormatAddress(e.Owner),
			"giftCard":   crypto.FormatCustody(e.Record),
			"asset":      e.Asset,
			"balance":    uintToString(e.Balance),
			"unlockTime": strconv.FormatInt(e.UnlockTime, 10),
			"refundTime": strconv.FormatInt(e.RefundTime, 10),
		},
	}
}

// GiftCardAllowListUpdated carries the full replacement list.
type GiftCardAllowListUpdated struct {
	CardID     uint64
	Owner      [20]byte
	Record     [20]byte
	Recipients [][20]byte
}

func (GiftCardAllowListUpdated) EventType() string { return TypeGiftCardAllowListUpdated }

func (e GiftCardAllowListUpdated) Event() *types.Event {
	rendered := make([]string, 0, len(e.Recipients))
	for _, r := range e.Recipients {
		rendered = append(rendered, crypto.FormatAddress(r))
	}
	return &types.Event{
		Type: TypeGiftCardAllowListUpdated,
		Attributes: map[string]string{
			"cardId":     uintToString(e.CardID),
			"owner":      crypto.FormatAddress(e.Owner),
			"giftCard":   crypto.FormatCustody(e.Record),
			"recipients": strings.Join(rendered, ","),
			"count":      strconv.Itoa(len(e.Recipients)),
		},
	}
}

type GiftCardRedeemed struct {
	CardID           uint64
	Owner            [20]byte
	Record           [20]byte
	Recipient        [20]byte
	Asset            string
	Amount           uint64
	RemainingBalance uint64
}

func (GiftCardRedeemed) EventType() string { return TypeGiftCardRedeemed }

func (e GiftCardRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeGiftCardRedeemed,
		Attributes: map[string]string{
			"cardId":           uintToString(e.CardID),
			"owner":            crypto.FormatAddress(e.Owner),
			"giftCard":         crypto.FormatCustody(e.Record),
			"recipient":        crypto.FormatAddress(e.Recipient),
			"asset":            e.Asset,
			"amount":           uintToString(e.Amount),
			"remainingBalance": uintToString(e.RemainingBalance),
		},
	}
}

type GiftCardRefunded struct {
	CardID           uint64
	Owner            [20]byte
	Record           [20]byte
	Asset            string
	Amount           uint64
	RemainingBalance uint64
}

func (GiftCardRefunded) EventType() string { return TypeGiftCardRefunded }

func (e GiftCardRefunded) Event() *types.Event {
	return &types.Event{
		Type: TypeGiftCardRefunded,
		Attributes: map[string]string{
			"cardId":           uintToString(e.CardID),
			"owner":            crypto.FormatAddress(e.Owner),
			"giftCard":         crypto.FormatCustody(e.Record),
			"asset":            e.Asset,
			"amount":           uintToString(e.Amount),
			"remainingBalance": uintToString(e.RemainingBalance),
		},
	}
}

type GiftCardDeleted struct {
	CardID uint64
	Owner  [20]byte
}

func (GiftCardDeleted) EventType() string { return TypeGiftCardDeleted }

func (e GiftCardDeleted) Event() *types.Event {
	return &types.Event{
		Type: TypeGiftCardDeleted,
		Attributes: map[string]string{
			"cardId": uintToString(e.CardID),
			"owner":  crypto.FormatAddress(e.Owner),
		},
	}
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
