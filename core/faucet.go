package core

import (
	"fmt"

	"giftchain/core/types"
	"giftchain/crypto"
)

// FaucetDrip mints the configured faucet amount of asset to addr, subject to
// the per-address cooldown. It returns the amount paid out.
func (n *Node) FaucetDrip(addr [20]byte, asset string) (uint64, error) {
	asset = types.NormalizeAsset(asset)
	n.mu.Lock()
	defer n.mu.Unlock()

	amount, outcome, err := n.faucetDrip(addr, asset)
	n.metrics.RecordFaucet(asset, outcome)
	if err != nil {
		n.logger.Warn("faucet request refused", "recipient", crypto.FormatAddress(addr), "asset", asset, "error", err)
		return 0, err
	}
	n.logger.Info("faucet payout", "recipient", crypto.FormatAddress(addr), "asset", asset, "amount", amount)
	return amount, nil
}

func (n *Node) faucetDrip(addr [20]byte, asset string) (uint64, string, error) {
	if !n.faucet.Enabled {
		return 0, "disabled", ErrFaucetDisabled
	}
	amount, ok := n.faucet.Amounts[asset]
	if !ok || amount == 0 {
		return 0, "unknown_asset", ErrFaucetAsset
	}
	now := n.nowFn()
	last, err := n.state.FaucetLastClaim(addr, asset)
	if err != nil {
		return 0, "error", err
	}
	if cooldown := int64(n.faucet.Cooldown.Seconds()); last != 0 && now < last+cooldown {
		return 0, "cooldown", fmt.Errorf("%w: retry after %d", ErrFaucetCooldown, last+cooldown)
	}
	if err := n.ledger.Mint(types.NewLocation(addr, asset), amount); err != nil {
		n.state.Discard()
		return 0, outcomeOf(err), err
	}
	n.state.SetFaucetLastClaim(addr, asset, now)
	if err := n.state.Commit(); err != nil {
		n.state.Discard()
		return 0, "error", err
	}
	return amount, "success", nil
}
