package giftcard

import "errors"

var (
	ErrInvalidUnlockTime   = errors.New("giftcard: unlock time must not be in the past")
	ErrInvalidRefundTime   = errors.New("giftcard: refund time must be after unlock time")
	ErrRecordLocked        = errors.New("giftcard: gift card is still locked")
	ErrRecordExpired       = errors.New("giftcard: gift card has expired")
	ErrRecipientNotAllowed = errors.New("giftcard: recipient not on allow-list")
	ErrInsufficientBalance = errors.New("giftcard: insufficient balance")
	ErrUnauthorized        = errors.New("giftcard: unauthorized")
	ErrTooManyRecipients   = errors.New("giftcard: too many recipients in allow-list")
	ErrRefundNotAvailable  = errors.New("giftcard: refund not yet available")
	ErrNoBalanceToRefund   = errors.New("giftcard: no balance to refund")
	ErrInvalidCardID       = errors.New("giftcard: card id does not match record")
	ErrHasBalance          = errors.New("giftcard: gift card still holds a balance")

	ErrCardExists    = errors.New("giftcard: card already exists")
	ErrNotFound      = errors.New("giftcard: not found")
	ErrInvalidAmount = errors.New("giftcard: amount must be positive")
	ErrInvalidAsset  = errors.New("giftcard: invalid asset")

	// ErrMerchantNotAllowed is kept for callers that use the retail name.
	ErrMerchantNotAllowed = ErrRecipientNotAllowed
)

var (
	errNilState  = errors.New("giftcard engine: state not configured")
	errNilLedger = errors.New("giftcard engine: ledger not configured")
)
