package bank

import (
	"testing"

	"github.com/stretchr/testify/require"

	giftstate "giftchain/core/state"
	"giftchain/core/types"
	"giftchain/native/giftcard"
	"giftchain/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[0] = b
	return a
}

func newLedger(t *testing.T) (*Ledger, *giftstate.Manager) {
	t.Helper()
	state := giftstate.NewManager(storage.NewMemDB())
	require.NoError(t, state.RegisterAsset("USDC", "USD Coin", 6))
	require.NoError(t, state.RegisterAsset("BONK", "Bonk", 5))
	return NewLedger(state), state
}

func balanceOf(t *testing.T, l *Ledger, loc types.Location) uint64 {
	t.Helper()
	bal, err := l.Balance(loc)
	require.NoError(t, err)
	return bal.Uint64()
}

func TestTransferMovesExactAmount(t *testing.T) {
	l, _ := newLedger(t)
	alice := types.NewLocation(addr(1), "USDC")
	bob := types.NewLocation(addr(2), "USDC")
	require.NoError(t, l.Mint(alice, 100))

	require.NoError(t, l.Transfer("usdc", alice, bob, 40, alice.Owner))
	require.Equal(t, uint64(60), balanceOf(t, l, alice))
	require.Equal(t, uint64(40), balanceOf(t, l, bob))
}

func TestTransferFailsClosed(t *testing.T) {
	l, _ := newLedger(t)
	alice := types.NewLocation(addr(1), "USDC")
	bob := types.NewLocation(addr(2), "USDC")
	require.NoError(t, l.Mint(alice, 10))

	cases := []struct {
		name  string
		asset string
		from  types.Location
		to    types.Location
		amt   uint64
		auth  [20]byte
		want  error
	}{
		{"insufficient", "USDC", alice, bob, 11, alice.Owner, ErrInsufficientFunds},
		{"unauthorized", "USDC", alice, bob, 1, bob.Owner, ErrUnauthorized},
		{"wrong asset", "BONK", alice, bob, 1, alice.Owner, ErrAssetMismatch},
		{"unknown asset", "SOL", alice, bob, 1, alice.Owner, ErrUnknownAsset},
		{"zero", "USDC", alice, bob, 0, alice.Owner, ErrInvalidAmount},
		{"self", "USDC", alice, alice, 1, alice.Owner, ErrSelfTransfer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.Transfer(tc.asset, tc.from, tc.to, tc.amt, tc.auth)
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, uint64(10), balanceOf(t, l, alice))
			require.Zero(t, balanceOf(t, l, bob))
		})
	}
}

func TestCustodyAcceptsOnlyItsFunding(t *testing.T) {
	l, _ := newLedger(t)
	issuer := types.NewLocation(addr(1), "USDC")
	stranger := types.NewLocation(addr(3), "USDC")
	escrow := types.NewLocation(addr(9), "USDC")
	require.NoError(t, l.Mint(issuer, 500))
	require.NoError(t, l.Mint(stranger, 500))

	require.NoError(t, l.OpenCustody(escrow, 200))
	require.ErrorIs(t, l.OpenCustody(escrow, 200), ErrCustodyExists)
	require.ErrorIs(t, l.Transfer("USDC", issuer, escrow, 199, issuer.Owner), ErrCustodySealed)
	require.NoError(t, l.Transfer("USDC", issuer, escrow, 200, issuer.Owner))
	require.ErrorIs(t, l.Transfer("USDC", stranger, escrow, 200, stranger.Owner), ErrCustodySealed)
	require.ErrorIs(t, l.Mint(escrow, 1), ErrMintIntoCustody)
	require.Equal(t, uint64(200), balanceOf(t, l, escrow))

	require.ErrorIs(t, l.CloseCustody(escrow), ErrCustodyNotEmpty)
	require.NoError(t, l.Transfer("USDC", escrow, issuer, 200, escrow.Owner))
	require.NoError(t, l.CloseCustody(escrow))
	require.ErrorIs(t, l.CloseCustody(escrow), ErrCustodyNotFound)
}

func TestRecordAddressesOnlyAcceptTheirEscrowFunding(t *testing.T) {
	l, state := newLedger(t)
	issuer := types.NewLocation(addr(1), "USDC")
	require.NoError(t, l.Mint(issuer, 500))
	require.NoError(t, l.Mint(types.NewLocation(addr(1), "BONK"), 500))

	card := &giftcard.GiftCard{
		CardID:     3,
		Owner:      issuer.Owner,
		Balance:    100,
		UnlockTime: 10,
		RefundTime: 20,
		Asset:      "BONK",
		Escrow:     giftcard.EscrowLocation(issuer.Owner, 3, "BONK"),
	}
	require.NoError(t, state.GiftCardAllocate(card, issuer.Owner))
	require.NoError(t, l.OpenCustody(card.Escrow, 100))
	require.NoError(t, l.Transfer("BONK", types.NewLocation(addr(1), "BONK"), card.Escrow, 100, issuer.Owner))

	sideways := types.NewLocation(card.Address(), "USDC")
	require.ErrorIs(t, l.Transfer("USDC", issuer, sideways, 50, issuer.Owner), ErrKeylessDestination)
	require.ErrorIs(t, l.Mint(sideways, 50), ErrKeylessDestination)
	require.Equal(t, uint64(500), balanceOf(t, l, issuer))
	require.Zero(t, balanceOf(t, l, sideways))
}

func TestOpenCustodyRejectsOccupiedLocation(t *testing.T) {
	l, _ := newLedger(t)
	loc := types.NewLocation(addr(4), "USDC")
	require.NoError(t, l.Mint(loc, 1))
	require.ErrorIs(t, l.OpenCustody(loc, 5), ErrCustodyExists)
}

func TestAssetDecimals(t *testing.T) {
	l, _ := newLedger(t)
	dec, err := l.AssetDecimals("bonk")
	require.NoError(t, err)
	require.Equal(t, uint8(5), dec)
	_, err = l.AssetDecimals("nope")
	require.ErrorIs(t, err, ErrUnknownAsset)
}

func TestParseAndFormatAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     uint64
	}{
		{"1", 6, 1_000_000},
		{"12.5", 6, 12_500_000},
		{"0.000001", 6, 1},
		{".25", 2, 25},
		{"42", 0, 42},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in, tc.decimals)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
	for _, bad := range []string{"", "-1", "1.", "1.0000001", "abc", "99999999999999999999999"} {
		_, err := ParseAmount(bad, 6)
		require.Error(t, err, bad)
	}

	require.Equal(t, "12.5", FormatAmount(12_500_000, 6))
	require.Equal(t, "0.000001", FormatAmount(1, 6))
	require.Equal(t, "3", FormatAmount(3_000_000, 6))
	require.Equal(t, "0", FormatAmount(0, 6))
	require.Equal(t, "42", FormatAmount(42, 0))
}
