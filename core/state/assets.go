package state

import (
	"fmt"
	"sort"
	"strings"

	"giftchain/core/types"
)

// AssetMetadata describes a fungible asset known to the ledger.
type AssetMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

func (m *Manager) loadAssetList() ([]string, error) {
	var list []string
	ok, err := m.loadRLP(assetListKey, &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	return list, nil
}

// RegisterAsset stores metadata for an asset and records it in the asset
// index. Registering a known symbol fails.
func (m *Manager) RegisterAsset(symbol, name string, decimals uint8) error {
	normalized := types.NormalizeAsset(symbol)
	if normalized == "" {
		return fmt.Errorf("asset symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("asset %s: name must not be empty", normalized)
	}
	if existing, err := m.Asset(normalized); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("asset %s already registered", normalized)
	}

	list, err := m.loadAssetList()
	if err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	if err := m.writeRLP(assetListKey, list); err != nil {
		return err
	}
	meta := &AssetMetadata{Symbol: normalized, Name: strings.TrimSpace(name), Decimals: decimals}
	return m.writeRLP(assetMetadataKey(normalized), meta)
}

// EnsureAsset registers the asset unless it is already known with the same
// decimals. A decimals mismatch is an error since it would rescale balances.
func (m *Manager) EnsureAsset(symbol, name string, decimals uint8) error {
	existing, err := m.Asset(symbol)
	if err != nil {
		return err
	}
	if existing == nil {
		return m.RegisterAsset(symbol, name, decimals)
	}
	if existing.Decimals != decimals {
		return fmt.Errorf("asset %s registered with %d decimals, not %d", existing.Symbol, existing.Decimals, decimals)
	}
	return nil
}

// Asset retrieves metadata for a registered asset or nil when unknown.
func (m *Manager) Asset(symbol string) (*AssetMetadata, error) {
	meta := new(AssetMetadata)
	ok, err := m.loadRLP(assetMetadataKey(types.NormalizeAsset(symbol)), meta)
	if err != nil || !ok {
		return nil, err
	}
	return meta, nil
}

// Assets returns every registered asset ordered by symbol.
func (m *Manager) Assets() ([]*AssetMetadata, error) {
	list, err := m.loadAssetList()
	if err != nil {
		return nil, err
	}
	out := make([]*AssetMetadata, 0, len(list))
	for _, symbol := range list {
		meta, err := m.Asset(symbol)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			out = append(out, meta)
		}
	}
	return out, nil
}
