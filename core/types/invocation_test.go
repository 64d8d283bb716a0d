package types

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"droplet/crypto"
)

func signedInvocation(t *testing.T) (*Invocation, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	inv, err := NewInvocation([20]byte{7}, MethodFund, AmountArgs{Token: "tok", Amount: big.NewInt(10)})
	if err != nil {
		t.Fatalf("new invocation: %v", err)
	}
	if err := inv.Sign(key, 1); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return inv, key
}

func TestSignersRecoversDeclaredIdentity(t *testing.T) {
	inv, key := signedInvocation(t)
	sigs, err := inv.Signers()
	if err != nil {
		t.Fatalf("signers: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Signer != key.Identity() || sigs[0].Nonce != 1 {
		t.Fatalf("unexpected signers %+v", sigs)
	}
	caller, err := inv.PrimarySigner()
	if err != nil || caller != key.Identity() {
		t.Fatalf("primary signer = %x, %v", caller, err)
	}
}

func TestSignersRejectsMismatch(t *testing.T) {
	for _, tc := range []struct {
		name   string
		tamper func(*Invocation)
	}{
		{"declared signer", func(inv *Invocation) { inv.Signatures[0].Signer = [20]byte{9} }},
		{"nonce", func(inv *Invocation) { inv.Signatures[0].Nonce = 2 }},
		{"args", func(inv *Invocation) { inv.Args = []byte(`{"token":"tok","amount":11}`) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			inv, _ := signedInvocation(t)
			tc.tamper(inv)
			if _, err := inv.Signers(); err == nil {
				t.Fatalf("expected signature mismatch")
			}
		})
	}

	inv, _ := signedInvocation(t)
	inv.Signatures[0].Sig = []byte{1, 2, 3}
	if _, err := inv.Signers(); err == nil || !strings.Contains(err.Error(), "signature 0") {
		t.Fatalf("expected malformed signature error, got %v", err)
	}
}

func TestInvocationIDCoversSignatures(t *testing.T) {
	inv, err := NewInvocation([20]byte{7}, MethodInit, InitArgs{Owner: "owner"})
	if err != nil {
		t.Fatalf("new invocation: %v", err)
	}
	unsigned, err := inv.ID()
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	if _, err := inv.PrimarySigner(); !errors.Is(err, errNoSignatures) {
		t.Fatalf("expected no signatures, got %v", err)
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := inv.Sign(key, 1); err != nil {
		t.Fatalf("sign: %v", err)
	}
	signed, err := inv.ID()
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	if signed == unsigned {
		t.Fatalf("signing did not change the invocation id")
	}
}

func TestDecodeArgs(t *testing.T) {
	inv := &Invocation{Method: MethodTransfer}
	var args TransferArgs
	if err := inv.DecodeArgs(&args); err == nil || !strings.Contains(err.Error(), "missing args") {
		t.Fatalf("expected missing args, got %v", err)
	}
	inv.Args = []byte(`{"token":"t","to":"r","amount":42}`)
	if err := inv.DecodeArgs(&args); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if args.Amount.Int64() != 42 || args.To != "r" {
		t.Fatalf("unexpected args %+v", args)
	}
	inv.Args = []byte(`{"amount":"x"}`)
	if err := inv.DecodeArgs(&args); err == nil {
		t.Fatalf("expected decode error")
	}
}
