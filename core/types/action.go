package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// ActionType defines the gift card operation an action requests.
type ActionType byte

const (
	ActionCreateGiftCard ActionType = 0x01
	ActionSetAllowList   ActionType = 0x02
	ActionRedeem         ActionType = 0x03
	ActionRefund         ActionType = 0x04
	ActionDelete         ActionType = 0x05
)

func (t ActionType) Valid() bool {
	return t >= ActionCreateGiftCard && t <= ActionDelete
}

func (t ActionType) String() string {
	switch t {
	case ActionCreateGiftCard:
		return "create"
	case ActionSetAllowList:
		return "set_allow_list"
	case ActionRedeem:
		return "redeem"
	case ActionRefund:
		return "refund"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

var ErrUnsigned = errors.New("action: missing signature")

// Action is a signed request to run one gift card operation. The signer is
// the authenticated caller of the operation.
type Action struct {
	Type      ActionType      `json:"type"`
	Network   string          `json:"network"`
	Nonce     uint64          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
	Signature []byte          `json:"signature,omitempty"`

	from *[20]byte
}

// Hash returns the digest covered by the signature.
func (a *Action) Hash() ([]byte, error) {
	body := struct {
		Type    ActionType
		Network string
		Nonce   uint64
		Payload json.RawMessage
	}{a.Type, a.Network, a.Nonce, a.Payload}
	if len(body.Payload) == 0 {
		body.Payload = json.RawMessage("null")
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(b), nil
}

// Sign signs the action with the caller's key.
func (a *Action) Sign(sign func(digest []byte) ([]byte, error)) error {
	hash, err := a.Hash()
	if err != nil {
		return err
	}
	sig, err := sign(hash)
	if err != nil {
		return err
	}
	a.Signature = sig
	a.from = nil
	return nil
}

// From recovers the signer address.
func (a *Action) From() ([20]byte, error) {
	var out [20]byte
	if a.from != nil {
		return *a.from, nil
	}
	if len(a.Signature) != 65 {
		return out, ErrUnsigned
	}
	hash, err := a.Hash()
	if err != nil {
		return out, err
	}
	sig := append([]byte(nil), a.Signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return out, fmt.Errorf("action: recover signer: %w", err)
	}
	copy(out[:], crypto.PubkeyToAddress(*pub).Bytes())
	a.from = &out
	return out, nil
}

// DecodePayload unmarshals the payload into dst.
func (a *Action) DecodePayload(dst interface{}) error {
	if len(a.Payload) == 0 {
		return fmt.Errorf("action: empty payload")
	}
	return json.Unmarshal(a.Payload, dst)
}

// NewAction builds an unsigned action carrying the JSON encoding of payload.
func NewAction(kind ActionType, network string, nonce uint64, payload interface{}) (*Action, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Action{Type: kind, Network: network, Nonce: nonce, Payload: raw}, nil
}

type CreateGiftCardPayload struct {
	CardID     uint64 `json:"cardId"`
	Amount     uint64 `json:"amount"`
	UnlockTime int64  `json:"unlockTime"`
	RefundTime int64  `json:"refundTime"`
	Asset      string `json:"asset"`
}

// The payloads below address an existing card by (owner, cardId). An empty
// owner means the signer's own card.

type SetAllowListPayload struct {
	Owner      string   `json:"owner,omitempty"`
	CardID     uint64   `json:"cardId"`
	Recipients []string `json:"recipients"`
}

type RedeemPayload struct {
	Owner     string `json:"owner,omitempty"`
	CardID    uint64 `json:"cardId"`
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
}

type CardPayload struct {
	Owner  string `json:"owner,omitempty"`
	CardID uint64 `json:"cardId"`
}
