package wallet

import (
	"fmt"
	"math/big"

	"droplet/core/auth"
	"droplet/core/events"
	"droplet/core/types"
)

// Instance storage keys.
const (
	keyOwner          = "OWNER"
	keyCharityAddress = "CHAR_ADDR"
	keyCharityFee     = "CHAR_PERC"
)

type instanceStore interface {
	Get(key string, out interface{}) (bool, error)
	Set(key string, value interface{}) error
	Has(key string) (bool, error)
	ExtendTTL(threshold, extendTo uint32) error
	MaxTTL() uint32
}

type tokenService interface {
	Transfer(token, from, to [20]byte, amount *big.Int) error
}

// CharityConfig is the destination and rate of the micro-donation taken
// from outbound transfers.
type CharityConfig struct {
	Address [20]byte
	FeeBps  uint32
}

type walletEvent struct {
	evt *types.Event
}

func (e walletEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e walletEvent) Event() *types.Event { return e.evt }

// Engine is a single custodial wallet instance. The wallet's own identity is
// its custody account; every privileged call proves the stored owner
// authorized the invocation before value moves.
type Engine struct {
	self    [20]byte
	store   instanceStore
	auth    auth.Authorizer
	tokens  tokenService
	emitter events.Emitter
}

// NewEngine creates the engine for the wallet instance identified by self.
func NewEngine(self [20]byte) *Engine {
	return &Engine{self: self, emitter: events.NoopEmitter{}}
}

// Address returns the custody account of the wallet.
func (e *Engine) Address() [20]byte { return e.self }

// SetStore configures the instance storage backend.
func (e *Engine) SetStore(store instanceStore) { e.store = store }

// SetAuthorizer configures the authorization scope of the invocation.
func (e *Engine) SetAuthorizer(a auth.Authorizer) { e.auth = a }

// SetTokens configures the token transfer service.
func (e *Engine) SetTokens(tokens tokenService) { e.tokens = tokens }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(walletEvent{evt: event})
}

func (e *Engine) bumpTTL() error {
	maxTTL := e.store.MaxTTL()
	return e.store.ExtendTTL(maxTTL, maxTTL)
}

// Init binds the wallet to its owner. It can succeed only once.
func (e *Engine) Init(owner [20]byte) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	exists, err := e.store.Has(keyOwner)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyInitialized
	}
	if err := e.store.Set(keyOwner, owner); err != nil {
		return err
	}
	if err := e.bumpTTL(); err != nil {
		return err
	}
	e.emit(NewInitializedEvent(e.self, owner))
	return nil
}

// authorize loads the owner, keeps the instance alive, and requires the
// owner's proof on the current invocation.
func (e *Engine) authorize() ([20]byte, error) {
	var owner [20]byte
	if e == nil || e.store == nil {
		return owner, errNilState
	}
	if e.auth == nil {
		return owner, errNilAuth
	}
	ok, err := e.store.Get(keyOwner, &owner)
	if err != nil {
		return owner, err
	}
	if !ok {
		return owner, ErrNotInitialized
	}
	if err := e.bumpTTL(); err != nil {
		return owner, err
	}
	if err := e.auth.RequireProof(owner); err != nil {
		return owner, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return owner, nil
}

func (e *Engine) transfer(token, from, to [20]byte, amount *big.Int) error {
	if e.tokens == nil {
		return errNilTokens
	}
	return e.tokens.Transfer(token, from, to, amount)
}

// Fund moves amount of token from the owner's account into custody.
func (e *Engine) Fund(token [20]byte, amount *big.Int) error {
	owner, err := e.authorize()
	if err != nil {
		return err
	}
	if err := CheckInt128(amount); err != nil {
		return err
	}
	if err := e.transfer(token, owner, e.self, amount); err != nil {
		return err
	}
	e.emit(NewFundedEvent(e.self, token, owner, amount))
	return nil
}

// Withdraw moves amount of token from custody back to the owner.
func (e *Engine) Withdraw(token [20]byte, amount *big.Int) error {
	owner, err := e.authorize()
	if err != nil {
		return err
	}
	if err := CheckInt128(amount); err != nil {
		return err
	}
	if err := e.transfer(token, e.self, owner, amount); err != nil {
		return err
	}
	e.emit(NewWithdrawnEvent(e.self, token, owner, amount))
	return nil
}

// Transfer pays amount of token from custody to the recipient. When a
// charity with a positive rate is configured, the fee goes to the charity
// first and the remainder to the recipient.
func (e *Engine) Transfer(token, to [20]byte, amount *big.Int) error {
	if _, err := e.authorize(); err != nil {
		return err
	}
	if err := CheckInt128(amount); err != nil {
		return err
	}
	cfg, err := e.Charity()
	if err != nil {
		return err
	}
	if cfg == nil || cfg.FeeBps == 0 {
		if err := e.transfer(token, e.self, to, amount); err != nil {
			return err
		}
		e.emit(NewTransferredEvent(e.self, token, to, amount, amount))
		return nil
	}

	fee, net, err := SplitFee(amount, cfg.FeeBps)
	if err != nil {
		return err
	}
	if fee.Cmp(amount) > 0 {
		return fmt.Errorf("%w: fee %s, amount %s", ErrFeeExceedsAmount, fee, amount)
	}
	if err := e.transfer(token, e.self, cfg.Address, fee); err != nil {
		return err
	}
	if err := e.transfer(token, e.self, to, net); err != nil {
		return err
	}
	e.emit(NewDonatedEvent(e.self, token, cfg.Address, fee, cfg.FeeBps))
	e.emit(NewTransferredEvent(e.self, token, to, amount, net))
	return nil
}

// SetupCharity replaces the charity address and fee rate. feeBps must lie in
// [0, 10000].
func (e *Engine) SetupCharity(charity [20]byte, feeBps *big.Int) error {
	if _, err := e.authorize(); err != nil {
		return err
	}
	if err := CheckFeeBps(feeBps); err != nil {
		return err
	}
	cfg := CharityConfig{Address: charity, FeeBps: uint32(feeBps.Uint64())}
	if err := e.store.Set(keyCharityAddress, cfg.Address); err != nil {
		return err
	}
	if err := e.store.Set(keyCharityFee, uint64(cfg.FeeBps)); err != nil {
		return err
	}
	e.emit(NewCharityConfiguredEvent(e.self, cfg))
	return nil
}

// Owner returns the stored owner without requiring authorization.
func (e *Engine) Owner() ([20]byte, bool, error) {
	var owner [20]byte
	if e == nil || e.store == nil {
		return owner, false, errNilState
	}
	ok, err := e.store.Get(keyOwner, &owner)
	return owner, ok, err
}

// Charity returns the configured charity, or nil when either half of the
// configuration is missing.
func (e *Engine) Charity() (*CharityConfig, error) {
	if e == nil || e.store == nil {
		return nil, errNilState
	}
	var fee uint64
	hasFee, err := e.store.Get(keyCharityFee, &fee)
	if err != nil {
		return nil, err
	}
	var addr [20]byte
	hasAddr, err := e.store.Get(keyCharityAddress, &addr)
	if err != nil {
		return nil, err
	}
	if !hasFee || !hasAddr {
		return nil, nil
	}
	if fee > MaxFeeBps {
		return nil, fmt.Errorf("wallet: stored fee %d out of range", fee)
	}
	return &CharityConfig{Address: addr, FeeBps: uint32(fee)}, nil
}
