package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 identity.
type AddressPrefix string

const (
	// AccountPrefix marks externally owned accounts (owners, charities,
	// recipients).
	AccountPrefix AddressPrefix = "drop"
	// ContractPrefix marks contract instances: wallets and tokens.
	ContractPrefix AddressPrefix = "dropc"
)

// AddressLength is the byte length of every identity.
const AddressLength = 20

// Address is a 20-byte identity paired with its display prefix.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
}

// NewAddress builds an address from raw bytes.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", AddressLength, len(b))
	}
	var addr Address
	addr.prefix = prefix
	copy(addr.bytes[:], b)
	return addr, nil
}

// MustNewAddress is NewAddress for inputs known to be well formed.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.bytes[:])
	return out
}

// Raw returns the fixed-size identity used by the engines.
func (a Address) Raw() [AddressLength]byte { return a.bytes }

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// DecodeAddress parses a bech32 identity.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	switch AddressPrefix(prefix) {
	case AccountPrefix, ContractPrefix:
	default:
		return Address{}, fmt.Errorf("unknown address prefix %q", prefix)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// FormatIdentity renders a raw identity with the account prefix.
func FormatIdentity(id [AddressLength]byte) string {
	return Address{prefix: AccountPrefix, bytes: id}.String()
}

// FormatContract renders a raw identity with the contract prefix.
func FormatContract(id [AddressLength]byte) string {
	return Address{prefix: ContractPrefix, bytes: id}.String()
}

// ContractAddress derives the identity of a contract instance from its
// deployer and a caller-chosen salt.
func ContractAddress(deployer [AddressLength]byte, salt []byte) [AddressLength]byte {
	digest := crypto.Keccak256([]byte("droplet/contract"), deployer[:], salt)
	var out [AddressLength]byte
	copy(out[:], digest[12:])
	return out
}

// --- Key Management ---

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

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Identity returns the raw 20-byte account identity controlled by the key.
func (k *PrivateKey) Identity() [AddressLength]byte {
	return k.PubKey().Address().Raw()
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return MustNewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// SignDigest produces a 65-byte recoverable signature over a 32-byte digest.
func (k *PrivateKey) SignDigest(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.PrivateKey)
}

// RecoverIdentity returns the identity that produced sig over digest.
func RecoverIdentity(digest, sig []byte) ([AddressLength]byte, error) {
	var out [AddressLength]byte
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return out, err
	}
	copy(out[:], crypto.PubkeyToAddress(*pub).Bytes())
	return out, nil
}
