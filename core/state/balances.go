package state

import (
	"fmt"

	"github.com/holiman/uint256"

	"giftchain/core/types"
)

// Custody marks a location that was opened for a single gift card escrow.
// Funded flips once the expected funding transfer has landed.
type Custody struct {
	Funding uint64
	Funded  bool
}

// LocationBalance returns the balance held at loc. Missing balances are zero.
func (m *Manager) LocationBalance(loc types.Location) (*uint256.Int, error) {
	data, err := m.get(balanceKey(loc.Owner, loc.Asset))
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(data), nil
}

// SetLocationBalance stores the balance held at loc. Zero balances are pruned.
func (m *Manager) SetLocationBalance(loc types.Location, amount *uint256.Int) error {
	if loc.Asset == "" {
		return fmt.Errorf("state: location asset must not be empty")
	}
	key := balanceKey(loc.Owner, loc.Asset)
	if amount == nil || amount.IsZero() {
		m.del(key)
		return nil
	}
	m.put(key, amount.Bytes())
	return nil
}

// CustodyGet returns the custody marker for loc, if any.
func (m *Manager) CustodyGet(loc types.Location) (*Custody, bool, error) {
	custody := new(Custody)
	ok, err := m.loadRLP(custodyKey(loc.Owner, loc.Asset), custody)
	if err != nil || !ok {
		return nil, false, err
	}
	return custody, true, nil
}

// CustodyPut stores the custody marker for loc.
func (m *Manager) CustodyPut(loc types.Location, custody *Custody) error {
	if custody == nil {
		return fmt.Errorf("state: nil custody")
	}
	return m.writeRLP(custodyKey(loc.Owner, loc.Asset), custody)
}

// CustodyDelete removes the custody marker for loc.
func (m *Manager) CustodyDelete(loc types.Location) {
	m.del(custodyKey(loc.Owner, loc.Asset))
}
