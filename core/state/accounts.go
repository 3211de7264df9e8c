package state

import (
	"encoding/binary"
	"fmt"
)

// ActionNonce returns the next expected action nonce for addr.
func (m *Manager) ActionNonce(addr [20]byte) (uint64, error) {
	data, err := m.get(actionNonceKey(addr))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("state: corrupt nonce for %x", addr)
	}
	return binary.BigEndian.Uint64(data), nil
}

// SetActionNonce stores the next expected action nonce for addr.
func (m *Manager) SetActionNonce(addr [20]byte, nonce uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	m.put(actionNonceKey(addr), buf[:])
}

// FaucetLastClaim returns the unix time of the last faucet payout of asset to
// addr, or zero when none was made.
func (m *Manager) FaucetLastClaim(addr [20]byte, asset string) (int64, error) {
	data, err := m.get(faucetClaimKey(addr, asset))
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// SetFaucetLastClaim records a faucet payout.
func (m *Manager) SetFaucetLastClaim(addr [20]byte, asset string, ts int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	m.put(faucetClaimKey(addr, asset), buf[:])
}
