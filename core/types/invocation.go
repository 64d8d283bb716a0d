package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"

	"droplet/crypto"
)

// Method names a contract entrypoint.
type Method string

const (
	MethodInit         Method = "init"
	MethodFund         Method = "fund"
	MethodWithdraw     Method = "withdraw"
	MethodTransfer     Method = "transfer"
	MethodSetupCharity Method = "setup_charity"
	// MethodMint is served by token contracts, not wallets.
	MethodMint Method = "mint"
)

var errNoSignatures = errors.New("invocation: no signatures")

// InitArgs carries the owner identity for init.
type InitArgs struct {
	Owner string `json:"owner"`
}

// AmountArgs carries the token and amount for fund and withdraw.
type AmountArgs struct {
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

// TransferArgs carries the arguments of a fee-split transfer.
type TransferArgs struct {
	Token  string   `json:"token"`
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

// CharityArgs carries the arguments of setup_charity. FeeBps is a big
// integer so out-of-range values reach the contract intact.
type CharityArgs struct {
	Charity string   `json:"charity"`
	FeeBps  *big.Int `json:"feeBps"`
}

// MintArgs carries a token issuance request.
type MintArgs struct {
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

// Signature authorizes an invocation on behalf of Signer. Nonce must be one
// greater than the signer's last committed nonce.
type Signature struct {
	Signer [20]byte `json:"signer"`
	Nonce  uint64   `json:"nonce"`
	Sig    []byte   `json:"sig"`
}

// Invocation is a single signed call into a contract entrypoint.
type Invocation struct {
	Contract   [20]byte        `json:"contract"`
	Method     Method          `json:"method"`
	Args       json.RawMessage `json:"args"`
	Signatures []Signature     `json:"signatures,omitempty"`
}

// NewInvocation encodes args and returns an unsigned invocation.
func NewInvocation(contract [20]byte, method Method, args interface{}) (*Invocation, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("invocation: encode args: %w", err)
	}
	return &Invocation{Contract: contract, Method: method, Args: encoded}, nil
}

// DecodeArgs unmarshals the invocation arguments into out.
func (inv *Invocation) DecodeArgs(out interface{}) error {
	if len(inv.Args) == 0 {
		return fmt.Errorf("invocation: %s: missing args", inv.Method)
	}
	if err := json.Unmarshal(inv.Args, out); err != nil {
		return fmt.Errorf("invocation: %s: decode args: %w", inv.Method, err)
	}
	return nil
}

// SigningDigest returns the keccak256 digest a signer with the given nonce
// must sign.
func (inv *Invocation) SigningDigest(signer [20]byte, nonce uint64) ([]byte, error) {
	payload := struct {
		Contract [20]byte
		Method   Method
		Args     json.RawMessage
		Signer   [20]byte
		Nonce    uint64
	}{inv.Contract, inv.Method, inv.Args, signer, nonce}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(b), nil
}

// Sign appends a signature by key using the supplied nonce.
func (inv *Invocation) Sign(key *crypto.PrivateKey, nonce uint64) error {
	signer := key.Identity()
	digest, err := inv.SigningDigest(signer, nonce)
	if err != nil {
		return err
	}
	sig, err := key.SignDigest(digest)
	if err != nil {
		return err
	}
	inv.Signatures = append(inv.Signatures, Signature{Signer: signer, Nonce: nonce, Sig: sig})
	return nil
}

// Signers verifies every signature and returns the proven identities in
// signature order. A signature whose recovered identity differs from its
// declared signer fails the whole invocation.
func (inv *Invocation) Signers() ([]Signature, error) {
	out := make([]Signature, 0, len(inv.Signatures))
	for i, sig := range inv.Signatures {
		digest, err := inv.SigningDigest(sig.Signer, sig.Nonce)
		if err != nil {
			return nil, err
		}
		recovered, err := crypto.RecoverIdentity(digest, sig.Sig)
		if err != nil {
			return nil, fmt.Errorf("invocation: signature %d: %w", i, err)
		}
		if recovered != sig.Signer {
			return nil, fmt.Errorf("invocation: signature %d does not match signer %s", i, crypto.FormatIdentity(sig.Signer))
		}
		out = append(out, sig)
	}
	return out, nil
}

// ID returns the blake3 digest of the full invocation, signatures included.
func (inv *Invocation) ID() ([32]byte, error) {
	b, err := json.Marshal(inv)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(b), nil
}

// PrimarySigner returns the first signer, used as the caller identity for
// logging.
func (inv *Invocation) PrimarySigner() ([20]byte, error) {
	if len(inv.Signatures) == 0 {
		return [20]byte{}, errNoSignatures
	}
	return inv.Signatures[0].Signer, nil
}
