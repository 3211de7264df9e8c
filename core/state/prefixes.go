package state

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	assetPrefix           = []byte("asset:")
	assetListKey          = ethcrypto.Keccak256([]byte("asset-list"))
	balancePrefix         = []byte("balance:")
	custodyPrefix         = []byte("custody:")
	giftCardPrefix        = []byte("giftcard/record/")
	giftCardOwnerPrefix   = []byte("giftcard/owner/")
	giftCardAddressPrefix = []byte("giftcard/address/")
	actionNoncePrefix     = []byte("nonce/action/")
	faucetClaimPrefix     = []byte("faucet/claim/")
	custodyKeySeparator   = byte(':')
	giftCardKeySeparator  = byte('/')
)

func joinKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return ethcrypto.Keccak256(buf)
}

func assetMetadataKey(symbol string) []byte {
	return joinKey(assetPrefix, []byte(symbol))
}

func balanceKey(owner [20]byte, symbol string) []byte {
	return joinKey(balancePrefix, []byte(symbol), []byte{custodyKeySeparator}, owner[:])
}

func custodyKey(owner [20]byte, symbol string) []byte {
	return joinKey(custodyPrefix, []byte(symbol), []byte{custodyKeySeparator}, owner[:])
}

func giftCardKey(owner [20]byte, cardID uint64) []byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], cardID)
	return joinKey(giftCardPrefix, owner[:], []byte{giftCardKeySeparator}, id[:])
}

func giftCardOwnerKey(owner [20]byte) []byte {
	return joinKey(giftCardOwnerPrefix, owner[:])
}

func giftCardAddressKey(record [20]byte) []byte {
	return joinKey(giftCardAddressPrefix, record[:])
}

func actionNonceKey(addr [20]byte) []byte {
	return joinKey(actionNoncePrefix, addr[:])
}

func faucetClaimKey(addr [20]byte, symbol string) []byte {
	return joinKey(faucetClaimPrefix, []byte(symbol), []byte{custodyKeySeparator}, addr[:])
}
