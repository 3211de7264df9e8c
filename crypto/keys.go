package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part of an address.
type AddressPrefix string

const (
	// GiftPrefix marks addresses controlled by a private key.
	GiftPrefix AddressPrefix = "gift"
	// CustodyPrefix marks program-derived addresses (gift card records and
	// their escrow locations). No private key exists for them.
	CustodyPrefix AddressPrefix = "giftx"
)

// Address is a 20-byte account identifier tagged with its prefix.
type Address struct {
	prefix AddressPrefix
	raw    [20]byte
}

func NewAddress(prefix AddressPrefix, raw [20]byte) Address {
	return Address{prefix: prefix, raw: raw}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		return ""
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		return ""
	}
	return encoded
}

func (a Address) Array() [20]byte { return a.raw }

func (a Address) Prefix() AddressPrefix { return a.prefix }

// IsCustody reports whether the address is program-derived.
func (a Address) IsCustody() bool { return a.prefix == CustodyPrefix }

// DecodeAddress parses a bech32 address carrying either known prefix.
func DecodeAddress(encoded string) (Address, error) {
	hrp, data, err := bech32.Decode(encoded)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	switch AddressPrefix(hrp) {
	case GiftPrefix, CustodyPrefix:
	default:
		return Address{}, fmt.Errorf("unsupported address prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes, got %d", len(conv))
	}
	var raw [20]byte
	copy(raw[:], conv)
	return NewAddress(AddressPrefix(hrp), raw), nil
}

// FormatAddress renders a raw account address with the key-holder prefix.
func FormatAddress(addr [20]byte) string {
	return NewAddress(GiftPrefix, addr).String()
}

// FormatCustody renders a program-derived address.
func FormatCustody(addr [20]byte) string {
	return NewAddress(CustodyPrefix, addr).String()
}

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the key-holder address of the public key.
func (k *PublicKey) Address() Address {
	var raw [20]byte
	copy(raw[:], crypto.PubkeyToAddress(*k.PublicKey).Bytes())
	return NewAddress(GiftPrefix, raw)
}
