package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"giftchain/core"
	giftstate "giftchain/core/state"
	"giftchain/core/types"
	"giftchain/crypto"
	"giftchain/native/bank"
	"giftchain/native/giftcard"
	"giftchain/storage/eventlog"
)

const (
	codeGiftCardInvalidParams = -32060
	codeGiftCardNotFound      = -32061
	codeGiftCardForbidden     = -32062
	codeGiftCardConflict      = -32063
	codeGiftCardInternal      = -32064
	codeGiftCardInvalidNonce  = -32065
)

type giftCardKeyParams struct {
	Owner  string `json:"owner"`
	CardID uint64 `json:"cardId"`
}

type ownerParams struct {
	Owner string `json:"owner"`
}

type addressParams struct {
	Address string `json:"address"`
}

type eventQueryParams struct {
	Owner  string  `json:"owner,omitempty"`
	CardID *uint64 `json:"cardId,omitempty"`
	Type   string  `json:"type,omitempty"`
	After  int64   `json:"after,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

type giftCardJSON struct {
	CardID            uint64   `json:"cardId"`
	Owner             string   `json:"owner"`
	Escrow            string   `json:"escrow"`
	Asset             string   `json:"asset"`
	Decimals          uint8    `json:"decimals"`
	Balance           uint64   `json:"balance"`
	FormattedBalance  string   `json:"formattedBalance"`
	UnlockTime        int64    `json:"unlockTime"`
	RefundTime        int64    `json:"refundTime"`
	CreatedAt         int64    `json:"createdAt"`
	AllowedRecipients []string `json:"allowedRecipients"`
	Phase             string   `json:"phase"`
}

type actionResultJSON struct {
	Operation string        `json:"operation"`
	Caller    string        `json:"caller"`
	Nonce     uint64        `json:"nonce"`
	Card      *giftCardJSON `json:"card,omitempty"`
	Amount    uint64        `json:"amount,omitempty"`
	Deleted   bool          `json:"deleted,omitempty"`
}

type nonceResultJSON struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

func formatGiftCard(card *giftcard.GiftCard, now int64) *giftCardJSON {
	if card == nil {
		return nil
	}
	recipients := make([]string, 0, card.AllowedRecipients.Len())
	for _, addr := range card.AllowedRecipients.Recipients() {
		recipients = append(recipients, crypto.FormatAddress(addr))
	}
	return &giftCardJSON{
		CardID:            card.CardID,
		Owner:             crypto.FormatAddress(card.Owner),
		Escrow:            crypto.FormatCustody(card.Escrow.Owner),
		Asset:             card.Asset,
		Decimals:          card.Decimals,
		Balance:           card.Balance,
		FormattedBalance:  bank.FormatAmount(card.Balance, card.Decimals),
		UnlockTime:        card.UnlockTime,
		RefundTime:        card.RefundTime,
		CreatedAt:         card.CreatedAt,
		AllowedRecipients: recipients,
		Phase:             string(card.Phase(now)),
	}
}

// giftCardError maps engine and node failures onto JSON-RPC errors.
func giftCardError(err error) *RPCError {
	data := err.Error()
	switch {
	case errors.Is(err, giftcard.ErrNotFound):
		return newError(http.StatusNotFound, codeGiftCardNotFound, "not_found", data)
	case errors.Is(err, giftcard.ErrUnauthorized),
		errors.Is(err, bank.ErrUnauthorized):
		return newError(http.StatusForbidden, codeGiftCardForbidden, "unauthorized", data)
	case errors.Is(err, giftcard.ErrRecipientNotAllowed):
		return newError(http.StatusForbidden, codeGiftCardForbidden, "recipient_not_allowed", data)
	case errors.Is(err, giftcard.ErrRecordLocked):
		return newError(http.StatusConflict, codeGiftCardConflict, "record_locked", data)
	case errors.Is(err, giftcard.ErrRecordExpired):
		return newError(http.StatusConflict, codeGiftCardConflict, "record_expired", data)
	case errors.Is(err, giftcard.ErrInsufficientBalance):
		return newError(http.StatusConflict, codeGiftCardConflict, "insufficient_balance", data)
	case errors.Is(err, giftcard.ErrRefundNotAvailable):
		return newError(http.StatusConflict, codeGiftCardConflict, "refund_not_available", data)
	case errors.Is(err, giftcard.ErrNoBalanceToRefund):
		return newError(http.StatusConflict, codeGiftCardConflict, "no_balance_to_refund", data)
	case errors.Is(err, giftcard.ErrHasBalance):
		return newError(http.StatusConflict, codeGiftCardConflict, "has_balance", data)
	case errors.Is(err, giftcard.ErrCardExists):
		return newError(http.StatusConflict, codeGiftCardConflict, "card_exists", data)
	case errors.Is(err, bank.ErrInsufficientFunds):
		return newError(http.StatusConflict, codeGiftCardConflict, "insufficient_funds", data)
	case errors.Is(err, giftstate.ErrInsufficientDeposit):
		return newError(http.StatusConflict, codeGiftCardConflict, "insufficient_deposit", data)
	case errors.Is(err, bank.ErrCustodyExists):
		return newError(http.StatusConflict, codeGiftCardConflict, "escrow_occupied", data)
	case errors.Is(err, bank.ErrCustodySealed):
		return newError(http.StatusConflict, codeGiftCardConflict, "escrow_sealed", data)
	case errors.Is(err, bank.ErrAssetMismatch):
		return newError(http.StatusBadRequest, codeGiftCardInvalidParams, "asset_mismatch", data)
	case errors.Is(err, bank.ErrKeylessDestination):
		return newError(http.StatusBadRequest, codeGiftCardInvalidParams, "keyless_destination", data)
	case errors.Is(err, core.ErrInvalidNonce):
		return newError(http.StatusConflict, codeGiftCardInvalidNonce, "invalid_nonce", data)
	case errors.Is(err, core.ErrWrongNetwork),
		errors.Is(err, types.ErrUnsigned):
		return newError(http.StatusUnauthorized, codeUnauthorized, "invalid_signature", data)
	case errors.Is(err, giftcard.ErrInvalidUnlockTime),
		errors.Is(err, giftcard.ErrInvalidRefundTime),
		errors.Is(err, giftcard.ErrTooManyRecipients),
		errors.Is(err, giftcard.ErrInvalidCardID),
		errors.Is(err, giftcard.ErrInvalidAmount),
		errors.Is(err, giftcard.ErrInvalidAsset),
		errors.Is(err, bank.ErrUnknownAsset),
		errors.Is(err, bank.ErrSelfTransfer),
		errors.Is(err, core.ErrInvalidAction),
		errors.Is(err, core.ErrInvalidAddress):
		return newError(http.StatusBadRequest, codeGiftCardInvalidParams, "invalid_params", data)
	default:
		return newError(http.StatusInternalServerError, codeGiftCardInternal, "internal_error", data)
	}
}

func parseAddressParam(field, raw string) ([20]byte, *RPCError) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, newError(http.StatusBadRequest, codeGiftCardInvalidParams, "invalid_params", field+" required")
	}
	addr, err := core.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, newError(http.StatusBadRequest, codeGiftCardInvalidParams, "invalid_params", err.Error())
	}
	return addr, nil
}

// submitAction decodes a signed action, checks that it requests the operation
// the method names, and applies it.
func (s *Server) submitAction(r *http.Request, req *RPCRequest, want types.ActionType) (interface{}, *RPCError) {
	if len(req.Params) != 1 {
		return nil, newError(http.StatusBadRequest, codeGiftCardInvalidParams, "invalid_params", "exactly one signed action expected")
	}
	var action types.Action
	if err := json.Unmarshal(req.Params[0], &action); err != nil {
		return nil, newError(http.StatusBadRequest, codeGiftCardInvalidParams, "invalid_params", err.Error())
	}
	if action.Type != want {
		return nil, newError(http.StatusBadRequest, codeGiftCardInvalidParams, "invalid_params",
			"action type "+action.Type.String()+" does not match method")
	}
	res, err := s.node.Submit(r.Context(), &action)
	if err != nil {
		return nil, giftCardError(err)
	}
	return actionResultJSON{
		Operation: res.Operation,
		Caller:    crypto.FormatAddress(res.Caller),
		Nonce:     res.Nonce,
		Card:      formatGiftCard(res.Card, s.node.Now()),
		Amount:    res.Amount,
		Deleted:   res.Deleted,
	}, nil
}

func (s *Server) handleGiftCardCreate(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	return s.submitAction(r, req, types.ActionCreateGiftCard)
}

func (s *Server) handleGiftCardSetAllowList(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	return s.submitAction(r, req, types.ActionSetAllowList)
}

func (s *Server) handleGiftCardRedeem(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	return s.submitAction(r, req, types.ActionRedeem)
}

func (s *Server) handleGiftCardRefund(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	return s.submitAction(r, req, types.ActionRefund)
}

func (s *Server) handleGiftCardDelete(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	return s.submitAction(r, req, types.ActionDelete)
}

func (s *Server) handleGiftCardGet(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params giftCardKeyParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddressParam("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	card, err := s.node.GiftCard(owner, params.CardID)
	if err != nil {
		return nil, giftCardError(err)
	}
	return formatGiftCard(card, s.node.Now()), nil
}

func (s *Server) handleGiftCardListByOwner(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params ownerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddressParam("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	cards, err := s.node.GiftCardsByOwner(owner)
	if err != nil {
		return nil, giftCardError(err)
	}
	now := s.node.Now()
	out := make([]*giftCardJSON, 0, len(cards))
	for _, card := range cards {
		out = append(out, formatGiftCard(card, now))
	}
	return out, nil
}

func (s *Server) handleGiftCardListEvents(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if s.journal == nil {
		return nil, newError(http.StatusServiceUnavailable, codeServerError, "unavailable", "event journal not configured")
	}
	var params eventQueryParams
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(req, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}
	filter := eventlog.Filter{
		Type:   strings.TrimSpace(params.Type),
		CardID: params.CardID,
		After:  params.After,
		Limit:  params.Limit,
	}
	if strings.TrimSpace(params.Owner) != "" {
		owner, rpcErr := parseAddressParam("owner", params.Owner)
		if rpcErr != nil {
			return nil, rpcErr
		}
		filter.Owner = crypto.FormatAddress(owner)
	}
	records, err := s.journal.List(r.Context(), filter)
	if err != nil {
		return nil, newError(http.StatusInternalServerError, codeGiftCardInternal, "internal_error", err.Error())
	}
	if records == nil {
		records = []eventlog.Record{}
	}
	return records, nil
}

func (s *Server) handleGiftCardGetNonce(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params addressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.node.ActionNonce(addr)
	if err != nil {
		return nil, giftCardError(err)
	}
	return nonceResultJSON{Address: crypto.FormatAddress(addr), Nonce: nonce}, nil
}
