// Package auth answers "did this identity authorize the current
// invocation?" for contracts executing under the host.
package auth

import (
	"errors"
	"fmt"

	"droplet/crypto"
)

// ErrMissingProof is returned when no signature of the invocation proves the
// requested identity.
var ErrMissingProof = errors.New("auth: missing authorization proof")

// Authorizer is the narrow interface contracts consume.
type Authorizer interface {
	RequireProof(identity [20]byte) error
}

// Context is the authorization scope of a single invocation: the identities
// that signed it plus the contract currently executing, which may always
// move its own funds.
type Context struct {
	signers map[[20]byte]struct{}
	self    [20]byte
}

// NewContext builds a scope from verified signer identities.
func NewContext(self [20]byte, signers ...[20]byte) *Context {
	set := make(map[[20]byte]struct{}, len(signers))
	for _, s := range signers {
		set[s] = struct{}{}
	}
	return &Context{signers: set, self: self}
}

// RequireProof implements Authorizer.
func (c *Context) RequireProof(identity [20]byte) error {
	if c != nil && identity == c.self {
		return nil
	}
	return c.requireSignature(identity)
}

func (c *Context) requireSignature(identity [20]byte) error {
	if c == nil {
		return ErrMissingProof
	}
	if _, ok := c.signers[identity]; ok {
		return nil
	}
	return fmt.Errorf("%w for %s", ErrMissingProof, crypto.FormatIdentity(identity))
}

// Signed returns an Authorizer satisfied only by invocation signatures. The
// executing contract gets no implicit proof for its own identity, so an owner
// check against the contract's address can never pass.
func (c *Context) Signed() Authorizer { return signedOnly{c} }

type signedOnly struct{ c *Context }

func (s signedOnly) RequireProof(identity [20]byte) error {
	return s.c.requireSignature(identity)
}

// AllowAll authorizes every identity. It stands in for a signed invocation
// in unit tests of contract logic.
type AllowAll struct{}

// RequireProof implements Authorizer.
func (AllowAll) RequireProof([20]byte) error { return nil }

// Recorder wraps an Authorizer and remembers every identity it was asked
// about, in order.
type Recorder struct {
	Inner     Authorizer
	Requested [][20]byte
}

// RequireProof implements Authorizer.
func (r *Recorder) RequireProof(identity [20]byte) error {
	r.Requested = append(r.Requested, identity)
	if r.Inner == nil {
		return nil
	}
	return r.Inner.RequireProof(identity)
}
