package state

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"giftchain/core/types"
	"giftchain/native/giftcard"
	"giftchain/storage"
)

func testAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestSnapshotRevertRestoresOverlay(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	loc := types.NewLocation(testAddr(1), "usdc")

	require.NoError(t, m.SetLocationBalance(loc, uint256.NewInt(10)))
	snap := m.Snapshot()
	require.NoError(t, m.SetLocationBalance(loc, uint256.NewInt(99)))
	m.KVPut([]byte("scratch"), []byte("x"))

	m.RevertToSnapshot(snap)

	bal, err := m.LocationBalance(loc)
	require.NoError(t, err)
	require.Equal(t, uint64(10), bal.Uint64())
	_, ok, err := m.KVGet([]byte("scratch"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitPersistsAndDiscardDrops(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	loc := types.NewLocation(testAddr(1), "USDC")

	require.NoError(t, m.SetLocationBalance(loc, uint256.NewInt(7)))
	require.NoError(t, m.Commit())
	require.Zero(t, m.Dirty())

	fresh := NewManager(db)
	bal, err := fresh.LocationBalance(loc)
	require.NoError(t, err)
	require.Equal(t, uint64(7), bal.Uint64())

	require.NoError(t, fresh.SetLocationBalance(loc, uint256.NewInt(1)))
	fresh.Discard()
	bal, err = fresh.LocationBalance(loc)
	require.NoError(t, err)
	require.Equal(t, uint64(7), bal.Uint64())
}

func TestZeroBalanceIsPruned(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	loc := types.NewLocation(testAddr(2), "USDC")
	require.NoError(t, m.SetLocationBalance(loc, uint256.NewInt(5)))
	require.NoError(t, m.Commit())
	require.NoError(t, m.SetLocationBalance(loc, new(uint256.Int)))
	require.NoError(t, m.Commit())

	ok, err := db.Has(balanceKey(loc.Owner, loc.Asset))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAssetRegistry(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.RegisterAsset("usdc", "USD Coin", 6))
	require.NoError(t, m.RegisterAsset("BONK", "Bonk", 5))
	require.Error(t, m.RegisterAsset("USDC", "dup", 6))
	require.NoError(t, m.EnsureAsset("USDC", "USD Coin", 6))
	require.Error(t, m.EnsureAsset("USDC", "USD Coin", 9))

	assets, err := m.Assets()
	require.NoError(t, err)
	require.Len(t, assets, 2)
	require.Equal(t, "BONK", assets[0].Symbol)
	require.Equal(t, "USDC", assets[1].Symbol)
	require.Equal(t, uint8(6), assets[1].Decimals)

	missing, err := m.Asset("SOL")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func newCard(owner [20]byte, id uint64) *giftcard.GiftCard {
	return &giftcard.GiftCard{
		CardID:     id,
		Owner:      owner,
		Balance:    100,
		UnlockTime: 1_000,
		RefundTime: 2_000,
		Asset:      "USDC",
		Decimals:   6,
		Escrow:     giftcard.EscrowLocation(owner, id, "USDC"),
		CreatedAt:  900,
	}
}

func TestGiftCardAllocateGetPut(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	owner := testAddr(3)
	card := newCard(owner, 7)
	list, err := giftcard.NewAllowList([][20]byte{testAddr(8), testAddr(9)})
	require.NoError(t, err)
	card.AllowedRecipients = list

	require.NoError(t, m.GiftCardAllocate(card, owner))
	require.ErrorIs(t, m.GiftCardAllocate(card, owner), giftcard.ErrCardExists)

	got, ok, err := m.GiftCardGet(owner, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, card, got)

	got.Balance = 40
	require.NoError(t, m.GiftCardPut(got))
	again, _, err := m.GiftCardGet(owner, 7)
	require.NoError(t, err)
	require.Equal(t, uint64(40), again.Balance)

	require.ErrorIs(t, m.GiftCardPut(newCard(owner, 8)), giftcard.ErrNotFound)
}

func TestGiftCardOwnerIndex(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	owner := testAddr(4)
	for _, id := range []uint64{5, 1, 3} {
		require.NoError(t, m.GiftCardAllocate(newCard(owner, id), owner))
	}
	require.NoError(t, m.GiftCardAllocate(newCard(testAddr(5), 2), testAddr(5)))

	cards, err := m.GiftCardsByOwner(owner)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	require.Equal(t, []uint64{1, 3, 5}, []uint64{cards[0].CardID, cards[1].CardID, cards[2].CardID})

	require.NoError(t, m.GiftCardDestroy(owner, 3, owner))
	cards, err = m.GiftCardsByOwner(owner)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	_, ok, err := m.GiftCardGet(owner, 3)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, m.GiftCardDestroy(owner, 3, owner), giftcard.ErrNotFound)
}

func TestGiftCardDepositReturnedOnDestroy(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	m.SetProvisionDeposit("GIFT", 25)
	owner := testAddr(6)
	native := types.NewLocation(owner, "GIFT")

	require.ErrorIs(t, m.GiftCardAllocate(newCard(owner, 1), owner), ErrInsufficientDeposit)

	require.NoError(t, m.SetLocationBalance(native, uint256.NewInt(30)))
	require.NoError(t, m.GiftCardAllocate(newCard(owner, 1), owner))
	bal, err := m.LocationBalance(native)
	require.NoError(t, err)
	require.Equal(t, uint64(5), bal.Uint64())

	deposit, err := m.GiftCardDeposit(owner, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(25), deposit)

	require.NoError(t, m.GiftCardDestroy(owner, 1, owner))
	bal, err = m.LocationBalance(native)
	require.NoError(t, err)
	require.Equal(t, uint64(30), bal.Uint64())
}

func TestNoncesAndFaucetClaims(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddr(7)

	nonce, err := m.ActionNonce(addr)
	require.NoError(t, err)
	require.Zero(t, nonce)
	m.SetActionNonce(addr, 3)
	nonce, err = m.ActionNonce(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(3), nonce)

	last, err := m.FaucetLastClaim(addr, "USDC")
	require.NoError(t, err)
	require.Zero(t, last)
	m.SetFaucetLastClaim(addr, "USDC", 1_700_000_000)
	last, err = m.FaucetLastClaim(addr, "USDC")
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000), last)
}

func TestCustodyMarkers(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	loc := giftcard.EscrowLocation(testAddr(1), 1, "USDC")

	_, ok, err := m.CustodyGet(loc)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.CustodyPut(loc, &Custody{Funding: 10}))
	got, ok, err := m.CustodyGet(loc)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(10), got.Funding)
	require.False(t, got.Funded)

	m.CustodyDelete(loc)
	_, ok, err = m.CustodyGet(loc)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGiftCardGetRejectsMismatchedRecord(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	owner := testAddr(7)
	require.NoError(t, m.writeRLP(giftCardKey(owner, 2), newStoredGiftCard(newCard(owner, 1), 0)))

	_, _, err := m.GiftCardGet(owner, 2)
	require.ErrorIs(t, err, giftcard.ErrInvalidCardID)
}

func TestGiftCardAddressOutlivesRecord(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	owner := testAddr(8)
	record := giftcard.RecordAddress(owner, 4)

	known, err := m.IsGiftCardAddress(record)
	require.NoError(t, err)
	require.False(t, known)

	require.NoError(t, m.GiftCardAllocate(newCard(owner, 4), owner))
	gotOwner, gotID, ok, err := m.GiftCardByAddress(record)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, owner, gotOwner)
	require.Equal(t, uint64(4), gotID)

	require.NoError(t, m.GiftCardDestroy(owner, 4, owner))
	known, err = m.IsGiftCardAddress(record)
	require.NoError(t, err)
	require.True(t, known)

	known, err = m.IsGiftCardAddress(owner)
	require.NoError(t, err)
	require.False(t, known)
}
