package types

import "strings"

// Location identifies a custody slot on the ledger: the balance of one asset
// held by one owner address. Only the owner may authorize transfers out of it.
type Location struct {
	Owner [20]byte
	Asset string
}

// NewLocation returns a location with a canonical asset symbol.
func NewLocation(owner [20]byte, asset string) Location {
	return Location{Owner: owner, Asset: NormalizeAsset(asset)}
}

// NormalizeAsset trims and upper-cases an asset symbol.
func NormalizeAsset(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
