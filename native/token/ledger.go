package token

import (
	"errors"
	"fmt"
	"math/big"

	"droplet/core/auth"
	"droplet/core/events"
	"droplet/crypto"
)

var (
	errNilState = errors.New("token ledger: state not configured")
	errNilAuth  = errors.New("token ledger: authorizer not configured")

	ErrUnknownToken        = errors.New("token: unknown token")
	ErrTokenExists         = errors.New("token: already registered")
	ErrNegativeAmount      = errors.New("token: negative amount is not allowed")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
)

var (
	adminPrefix   = []byte("token/admin/")
	balancePrefix = []byte("token/balance/")
)

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

func adminKey(token [20]byte) []byte {
	buf := make([]byte, 0, len(adminPrefix)+len(token))
	buf = append(buf, adminPrefix...)
	return append(buf, token[:]...)
}

func balanceKey(token, holder [20]byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(token)+1+len(holder))
	buf = append(buf, balancePrefix...)
	buf = append(buf, token[:]...)
	buf = append(buf, ':')
	return append(buf, holder[:]...)
}

// Ledger is the fungible token service: it owns every balance and moves value
// between holders on behalf of authorized senders.
type Ledger struct {
	state   ledgerState
	auth    auth.Authorizer
	emitter events.Emitter
}

// NewLedger creates a ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetAuthorizer configures the authorization scope of the current invocation.
func (l *Ledger) SetAuthorizer(a auth.Authorizer) { l.auth = a }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(evt)
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if l.auth == nil {
		return errNilAuth
	}
	return nil
}

// Register creates a token whose supply is controlled by admin.
func (l *Ledger) Register(token, admin [20]byte) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if _, ok, err := l.Admin(token); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, crypto.FormatContract(token))
	}
	return l.state.KVPut(adminKey(token), admin)
}

// Admin returns the minting authority of token.
func (l *Ledger) Admin(token [20]byte) ([20]byte, bool, error) {
	var admin [20]byte
	if l == nil || l.state == nil {
		return admin, false, errNilState
	}
	ok, err := l.state.KVGet(adminKey(token), &admin)
	return admin, ok, err
}

func (l *Ledger) requireToken(token [20]byte) ([20]byte, error) {
	admin, ok, err := l.Admin(token)
	if err != nil {
		return admin, err
	}
	if !ok {
		return admin, fmt.Errorf("%w: %s", ErrUnknownToken, crypto.FormatContract(token))
	}
	return admin, nil
}

// Balance returns the holdings of holder in token. Unknown holders hold zero.
func (l *Ledger) Balance(token, holder [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	bal := new(big.Int)
	if _, err := l.state.KVGet(balanceKey(token, holder), bal); err != nil {
		return nil, err
	}
	return bal, nil
}

func (l *Ledger) setBalance(token, holder [20]byte, amount *big.Int) error {
	return l.state.KVPut(balanceKey(token, holder), amount)
}

// Mint issues amount of token to the recipient. Only the token admin may
// mint.
func (l *Ledger) Mint(token, to [20]byte, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := checkNonNegative(amount); err != nil {
		return err
	}
	admin, err := l.requireToken(token)
	if err != nil {
		return err
	}
	if err := l.auth.RequireProof(admin); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := l.Balance(token, to)
	if err != nil {
		return err
	}
	if err := l.setBalance(token, to, bal.Add(bal, amount)); err != nil {
		return err
	}
	l.emit(events.TokenMint{Token: token, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount of token from one holder to another. The sender must
// have authorized the invocation. Zero amounts succeed without touching
// state.
func (l *Ledger) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := checkNonNegative(amount); err != nil {
		return err
	}
	if err := l.auth.RequireProof(from); err != nil {
		return err
	}
	if _, err := l.requireToken(token); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := l.Balance(token, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, crypto.FormatIdentity(from), fromBal, amount)
	}
	if err := l.setBalance(token, from, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal, err := l.Balance(token, to)
	if err != nil {
		return err
	}
	if err := l.setBalance(token, to, toBal.Add(toBal, amount)); err != nil {
		return err
	}
	l.emit(events.TokenTransfer{Token: token, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

func checkNonNegative(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: nil", ErrNegativeAmount)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	return nil
}
