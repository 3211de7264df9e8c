package bank

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	giftstate "giftchain/core/state"
	"giftchain/core/types"
)

var (
	ErrInvalidAmount      = errors.New("bank: amount must be positive")
	ErrUnknownAsset       = errors.New("bank: unknown asset")
	ErrAssetMismatch      = errors.New("bank: asset mismatch")
	ErrUnauthorized       = errors.New("bank: authorizer does not own source location")
	ErrInsufficientFunds  = errors.New("bank: insufficient funds")
	ErrBalanceOverflow    = errors.New("bank: balance overflow")
	ErrSelfTransfer       = errors.New("bank: source and destination are the same location")
	ErrCustodyExists      = errors.New("bank: custody location already in use")
	ErrCustodySealed      = errors.New("bank: custody location does not accept this transfer")
	ErrCustodyNotFound    = errors.New("bank: custody location not found")
	ErrCustodyNotEmpty    = errors.New("bank: custody location still holds funds")
	ErrMintIntoCustody    = errors.New("bank: cannot mint into a custody location")
	ErrKeylessDestination = errors.New("bank: destination is a gift card record address with no key")
	errNilLedgerState     = errors.New("bank: state not configured")
)

type ledgerState interface {
	LocationBalance(loc types.Location) (*uint256.Int, error)
	SetLocationBalance(loc types.Location, amount *uint256.Int) error
	CustodyGet(loc types.Location) (*giftstate.Custody, bool, error)
	CustodyPut(loc types.Location, custody *giftstate.Custody) error
	CustodyDelete(loc types.Location)
	Asset(symbol string) (*giftstate.AssetMetadata, error)
	IsGiftCardAddress(addr [20]byte) (bool, error)
}

// Ledger moves registered fungible assets between locations. Every mutation
// goes through the state overlay so a failed caller can revert it.
type Ledger struct {
	state ledgerState
}

// NewLedger returns a ledger operating on the provided state.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

func (l *Ledger) asset(symbol string) (*giftstate.AssetMetadata, error) {
	if l == nil || l.state == nil {
		return nil, errNilLedgerState
	}
	normalized := types.NormalizeAsset(symbol)
	if normalized == "" {
		return nil, ErrUnknownAsset
	}
	meta, err := l.state.Asset(normalized)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, normalized)
	}
	return meta, nil
}

// AssetDecimals returns the number of decimals of a registered asset.
func (l *Ledger) AssetDecimals(symbol string) (uint8, error) {
	meta, err := l.asset(symbol)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// Balance returns the amount held at loc.
func (l *Ledger) Balance(loc types.Location) (*uint256.Int, error) {
	if _, err := l.asset(loc.Asset); err != nil {
		return nil, err
	}
	return l.state.LocationBalance(types.NewLocation(loc.Owner, loc.Asset))
}

// Transfer moves amount of asset from one location to another. The authorizer
// must own the source location. Custody locations only accept the single
// funding transfer they were opened for.
func (l *Ledger) Transfer(asset string, from, to types.Location, amount uint64, authorizer [20]byte) error {
	meta, err := l.asset(asset)
	if err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	from = types.NewLocation(from.Owner, from.Asset)
	to = types.NewLocation(to.Owner, to.Asset)
	if from.Asset != meta.Symbol || to.Asset != meta.Symbol {
		return fmt.Errorf("%w: transfer of %s between %s and %s", ErrAssetMismatch, meta.Symbol, from.Asset, to.Asset)
	}
	if authorizer != from.Owner {
		return ErrUnauthorized
	}
	if from == to {
		return ErrSelfTransfer
	}

	custody, sealed, err := l.state.CustodyGet(to)
	if err != nil {
		return err
	}
	if sealed && (custody.Funded || custody.Funding != amount) {
		return ErrCustodySealed
	}
	if !sealed {
		if err := l.requireKeyHolder(to.Owner); err != nil {
			return err
		}
	}

	value := uint256.NewInt(amount)
	fromBal, err := l.state.LocationBalance(from)
	if err != nil {
		return err
	}
	if fromBal.Lt(value) {
		return ErrInsufficientFunds
	}
	toBal, err := l.state.LocationBalance(to)
	if err != nil {
		return err
	}
	newTo, overflow := new(uint256.Int).AddOverflow(toBal, value)
	if overflow {
		return ErrBalanceOverflow
	}
	if err := l.state.SetLocationBalance(from, new(uint256.Int).Sub(fromBal, value)); err != nil {
		return err
	}
	if err := l.state.SetLocationBalance(to, newTo); err != nil {
		return err
	}
	if sealed {
		custody.Funded = true
		if err := l.state.CustodyPut(to, custody); err != nil {
			return err
		}
	}
	return nil
}

// OpenCustody reserves an empty location for a single funding transfer of
// exactly funding units.
func (l *Ledger) OpenCustody(loc types.Location, funding uint64) error {
	if _, err := l.asset(loc.Asset); err != nil {
		return err
	}
	if funding == 0 {
		return ErrInvalidAmount
	}
	loc = types.NewLocation(loc.Owner, loc.Asset)
	if _, exists, err := l.state.CustodyGet(loc); err != nil {
		return err
	} else if exists {
		return ErrCustodyExists
	}
	balance, err := l.state.LocationBalance(loc)
	if err != nil {
		return err
	}
	if !balance.IsZero() {
		return ErrCustodyExists
	}
	return l.state.CustodyPut(loc, &giftstate.Custody{Funding: funding})
}

// CloseCustody releases an empty custody location.
func (l *Ledger) CloseCustody(loc types.Location) error {
	if l == nil || l.state == nil {
		return errNilLedgerState
	}
	loc = types.NewLocation(loc.Owner, loc.Asset)
	if _, exists, err := l.state.CustodyGet(loc); err != nil {
		return err
	} else if !exists {
		return ErrCustodyNotFound
	}
	balance, err := l.state.LocationBalance(loc)
	if err != nil {
		return err
	}
	if !balance.IsZero() {
		return ErrCustodyNotEmpty
	}
	l.state.CustodyDelete(loc)
	return nil
}

// Mint credits newly issued units to a non-custody location. It backs the
// devnet faucet and genesis allocations.
func (l *Ledger) Mint(loc types.Location, amount uint64) error {
	if _, err := l.asset(loc.Asset); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	loc = types.NewLocation(loc.Owner, loc.Asset)
	if err := l.requireKeyHolder(loc.Owner); err != nil {
		return err
	}
	if _, custody, err := l.state.CustodyGet(loc); err != nil {
		return err
	} else if custody {
		return ErrMintIntoCustody
	}
	balance, err := l.state.LocationBalance(loc)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(balance, uint256.NewInt(amount))
	if overflow {
		return ErrBalanceOverflow
	}
	return l.state.SetLocationBalance(loc, sum)
}

// requireKeyHolder refuses owners that are gift card record addresses. Value
// credited to one outside its own escrow custody could never be moved again.
func (l *Ledger) requireKeyHolder(owner [20]byte) error {
	record, err := l.state.IsGiftCardAddress(owner)
	if err != nil {
		return err
	}
	if record {
		return ErrKeylessDestination
	}
	return nil
}
