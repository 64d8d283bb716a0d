package events

import (
	"math/big"

	"droplet/core/types"
	"droplet/crypto"
)

const (
	// TypeTokenTransfer is emitted by the token ledger for every non-zero
	// balance movement.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenMint is emitted when a token admin issues new supply.
	TypeTokenMint = "token.mint"
)

// TokenTransfer records a balance movement between two holders.
type TokenTransfer struct {
	Token  [20]byte
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{Type: TypeTokenTransfer, Attributes: map[string]string{
		"token":  crypto.FormatContract(e.Token),
		"from":   crypto.FormatIdentity(e.From),
		"to":     crypto.FormatIdentity(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

// TokenMint records newly issued supply.
type TokenMint struct {
	Token  [20]byte
	To     [20]byte
	Amount *big.Int
}

func (TokenMint) EventType() string { return TypeTokenMint }

func (e TokenMint) Event() *types.Event {
	return &types.Event{Type: TypeTokenMint, Attributes: map[string]string{
		"token":  crypto.FormatContract(e.Token),
		"to":     crypto.FormatIdentity(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
