package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part of an address.
type AddressPrefix string

// MDOTPrefix is the prefix of every ledger account.
const MDOTPrefix AddressPrefix = "mdot"

// AddressLength is the raw byte length of an account address.
const AddressLength = 20

// ErrInvalidAddress is returned for strings that are not a bech32 account.
var ErrInvalidAddress = errors.New("crypto: invalid address")

// Address is a 20-byte account paired with its bech32 prefix. The zero value
// renders as the empty string.
type Address struct {
	prefix AddressPrefix
	raw    [AddressLength]byte
	set    bool
}

// NewAddress copies b into an address with the given prefix.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidAddress, len(b), AddressLength)
	}
	addr := Address{prefix: prefix, set: true}
	copy(addr.raw[:], b)
	return addr, nil
}

// MustNewAddress is NewAddress that panics on a wrong length.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// AccountAddress renders a raw ledger account.
func AccountAddress(raw [AddressLength]byte) Address {
	return Address{prefix: MDOTPrefix, raw: raw, set: true}
}

func (a Address) String() string {
	if !a.set {
		return ""
	}
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

// Bytes returns a copy of the raw address.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a.raw[:]...)
}

// Raw returns the address as a map-key friendly array.
func (a Address) Raw() [AddressLength]byte {
	return a.raw
}

// Prefix returns the human-readable part.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// MarshalText encodes the address in bech32.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a bech32 address of any prefix. An empty input yields
// the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*a = Address{}
		return nil
	}
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 address without restricting its prefix.
func DecodeAddress(s string) (Address, error) {
	prefix, data, err := bech32.Decode(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ParseAccount decodes a bech32 string and requires the ledger prefix.
func ParseAccount(s string) ([AddressLength]byte, error) {
	decoded, err := DecodeAddress(s)
	if err != nil {
		return [AddressLength]byte{}, err
	}
	if decoded.Prefix() != MDOTPrefix {
		return [AddressLength]byte{}, fmt.Errorf("%w: prefix %q, want %q", ErrInvalidAddress, decoded.Prefix(), MDOTPrefix)
	}
	return decoded.Raw(), nil
}

// PrivateKey is a secp256k1 key whose public half derives a ledger address.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey is the public half of a PrivateKey.
type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the 32-byte scalar.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

// Hex returns the scalar hex encoded without a 0x prefix.
func (k *PrivateKey) Hex() string {
	return hex.EncodeToString(k.Bytes())
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the ledger account from the key, the same 20 bytes an
// Ethereum address would use.
func (k *PublicKey) Address() Address {
	return AccountAddress(ethcrypto.PubkeyToAddress(*k.PublicKey))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// ParsePrivateKeyHex decodes a hex scalar, with or without a 0x prefix.
func ParsePrivateKeyHex(s string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return PrivateKeyFromBytes(raw)
}
