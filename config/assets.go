package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AssetSpec describes one entry of the asset registry file.
type AssetSpec struct {
	Symbol      string `yaml:"symbol"`
	Name        string `yaml:"name"`
	Decimals    uint8  `yaml:"decimals"`
	Description string `yaml:"description,omitempty"`
}

type assetRegistryFile struct {
	Assets []AssetSpec `yaml:"assets"`
}

// DefaultAssets is the registry used when no file is configured: the native
// asset plus the wrapped and stablecoin assets gift cards are usually funded
// with.
func DefaultAssets(native string) []AssetSpec {
	native = strings.ToUpper(strings.TrimSpace(native))
	if native == "" {
		native = "GIFT"
	}
	return []AssetSpec{
		{Symbol: native, Name: "Giftchain native", Decimals: 9, Description: "Pays record provisioning deposits"},
		{Symbol: "WSOL", Name: "Wrapped SOL", Decimals: 9},
		{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		{Symbol: "USDT", Name: "Tether USD", Decimals: 6},
	}
}

// LoadAssets reads the YAML asset registry at path. An empty path yields
// DefaultAssets. The native asset must be present in the result.
func LoadAssets(path, native string) ([]AssetSpec, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultAssets(native), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset registry: %w", err)
	}
	defer file.Close()

	var reg assetRegistryFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&reg); err != nil {
		return nil, fmt.Errorf("decode asset registry: %w", err)
	}
	return normalizeAssets(reg.Assets, native)
}

func normalizeAssets(in []AssetSpec, native string) ([]AssetSpec, error) {
	native = strings.ToUpper(strings.TrimSpace(native))
	seen := make(map[string]struct{}, len(in))
	out := make([]AssetSpec, 0, len(in))
	hasNative := native == ""
	for i, entry := range in {
		entry.Symbol = strings.ToUpper(strings.TrimSpace(entry.Symbol))
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.Symbol == "" {
			return nil, fmt.Errorf("asset registry: entry %d: symbol required", i)
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("asset registry: %s: name required", entry.Symbol)
		}
		if entry.Decimals > 18 {
			return nil, fmt.Errorf("asset registry: %s: decimals must be <= 18", entry.Symbol)
		}
		if _, dup := seen[entry.Symbol]; dup {
			return nil, fmt.Errorf("asset registry: duplicate symbol %s", entry.Symbol)
		}
		seen[entry.Symbol] = struct{}{}
		if entry.Symbol == native {
			hasNative = true
		}
		out = append(out, entry)
	}
	if !hasNative {
		return nil, fmt.Errorf("asset registry: native asset %s missing", native)
	}
	return out, nil
}
