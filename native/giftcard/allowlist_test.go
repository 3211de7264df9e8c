package giftcard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"giftchain/core/types"
)

func recipient(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestAllowListBounds(t *testing.T) {
	eleven := make([][20]byte, MaxAllowedRecipients+1)
	for i := range eleven {
		eleven[i] = recipient(byte(i + 1))
	}
	_, err := NewAllowList(eleven)
	require.ErrorIs(t, err, ErrTooManyRecipients)

	list, err := NewAllowList(eleven[:MaxAllowedRecipients])
	require.NoError(t, err)
	require.Equal(t, MaxAllowedRecipients, list.Len())
	require.True(t, list.Contains(eleven[9]))
	require.False(t, list.Contains(eleven[10]))
}

func TestAllowListDedupesInOrder(t *testing.T) {
	a, b, c := recipient(1), recipient(2), recipient(3)
	list, err := NewAllowList([][20]byte{b, a, b, c, a})
	require.NoError(t, err)
	require.Equal(t, [][20]byte{b, a, c}, list.Recipients())
}

func TestEmptyAllowListPermitsAnyone(t *testing.T) {
	var list AllowList
	require.True(t, list.IsEmpty())
	require.True(t, list.Permits(recipient(42)))

	list, err := NewAllowList([][20]byte{recipient(1)})
	require.NoError(t, err)
	require.True(t, list.Permits(recipient(1)))
	require.False(t, list.Permits(recipient(2)))
}

func TestRecordAddressIsDeterministic(t *testing.T) {
	owner := recipient(7)
	require.Equal(t, RecordAddress(owner, 1), RecordAddress(owner, 1))
	require.NotEqual(t, RecordAddress(owner, 1), RecordAddress(owner, 2))
	require.NotEqual(t, RecordAddress(owner, 1), RecordAddress(recipient(8), 1))
}

type transferCall struct {
	from, to   types.Location
	amount     uint64
	authorizer [20]byte
}

type recordingLedger struct {
	calls []transferCall
	fail  error
}

func (l *recordingLedger) OpenCustody(types.Location, uint64) error { return nil }

func (l *recordingLedger) CloseCustody(types.Location) error { return nil }

func (l *recordingLedger) AssetDecimals(string) (uint8, error) { return 6, nil }

func (l *recordingLedger) Transfer(_ string, from, to types.Location, amount uint64, authorizer [20]byte) error {
	if l.fail != nil {
		return l.fail
	}
	l.calls = append(l.calls, transferCall{from: from, to: to, amount: amount, authorizer: authorizer})
	return nil
}

func TestEscrowAuthorityScope(t *testing.T) {
	owner := recipient(1)
	card := &GiftCard{CardID: 5, Owner: owner, Balance: 100, Asset: "USDC", Escrow: EscrowLocation(owner, 5, "USDC")}
	ledger := &recordingLedger{}

	authority, err := authorityFor(card)
	require.NoError(t, err)
	require.ErrorIs(t, authority.release(ledger, types.NewLocation(recipient(2), "USDC"), 101), ErrInsufficientBalance)
	require.Empty(t, ledger.calls)

	require.NoError(t, authority.release(ledger, types.NewLocation(recipient(2), "USDC"), 100))
	require.Len(t, ledger.calls, 1)
	require.Equal(t, card.Address(), ledger.calls[0].authorizer)
	require.Equal(t, card.Escrow, ledger.calls[0].from)
	require.Equal(t, uint64(100), card.Balance, "release leaves the balance to the caller")

	ledger.fail = errors.New("boom")
	require.Error(t, authority.release(ledger, types.NewLocation(recipient(2), "USDC"), 1))

	foreign := card.Clone()
	foreign.Escrow = EscrowLocation(recipient(9), 5, "USDC")
	_, err = authorityFor(foreign)
	require.ErrorIs(t, err, ErrUnauthorized)
}
