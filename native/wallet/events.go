package wallet

import (
	"math/big"
	"strconv"

	"droplet/core/types"
	"droplet/crypto"
)

const (
	EventTypeInitialized       = "wallet.initialized"
	EventTypeFunded            = "wallet.funded"
	EventTypeWithdrawn         = "wallet.withdrawn"
	EventTypeTransferred       = "wallet.transferred"
	EventTypeDonated           = "wallet.donated"
	EventTypeCharityConfigured = "wallet.charity_configured"
)

func newWalletEvent(eventType string, wallet [20]byte, attrs map[string]string) *types.Event {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["wallet"] = crypto.FormatContract(wallet)
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewInitializedEvent records the owner bound at init.
func NewInitializedEvent(wallet, owner [20]byte) *types.Event {
	return newWalletEvent(EventTypeInitialized, wallet, map[string]string{
		"owner": crypto.FormatIdentity(owner),
	})
}

// NewFundedEvent records a deposit from the owner into custody.
func NewFundedEvent(wallet, token, owner [20]byte, amount *big.Int) *types.Event {
	return newWalletEvent(EventTypeFunded, wallet, map[string]string{
		"token":  crypto.FormatContract(token),
		"owner":  crypto.FormatIdentity(owner),
		"amount": amount.String(),
	})
}

// NewWithdrawnEvent records a withdrawal from custody back to the owner.
func NewWithdrawnEvent(wallet, token, owner [20]byte, amount *big.Int) *types.Event {
	return newWalletEvent(EventTypeWithdrawn, wallet, map[string]string{
		"token":  crypto.FormatContract(token),
		"owner":  crypto.FormatIdentity(owner),
		"amount": amount.String(),
	})
}

// NewTransferredEvent records the recipient leg of a transfer. Gross is the
// amount requested by the owner, net what the recipient received.
func NewTransferredEvent(wallet, token, to [20]byte, gross, net *big.Int) *types.Event {
	return newWalletEvent(EventTypeTransferred, wallet, map[string]string{
		"token": crypto.FormatContract(token),
		"to":    crypto.FormatIdentity(to),
		"gross": gross.String(),
		"net":   net.String(),
	})
}

// NewDonatedEvent records the charity leg of a fee-split transfer.
func NewDonatedEvent(wallet, token, charity [20]byte, fee *big.Int, bps uint32) *types.Event {
	return newWalletEvent(EventTypeDonated, wallet, map[string]string{
		"token":   crypto.FormatContract(token),
		"charity": crypto.FormatIdentity(charity),
		"fee":     fee.String(),
		"feeBps":  strconv.FormatUint(uint64(bps), 10),
	})
}

// NewCharityConfiguredEvent records a charity reconfiguration.
func NewCharityConfiguredEvent(wallet [20]byte, cfg CharityConfig) *types.Event {
	return newWalletEvent(EventTypeCharityConfigured, wallet, map[string]string{
		"charity": crypto.FormatIdentity(cfg.Address),
		"feeBps":  strconv.FormatUint(uint64(cfg.FeeBps), 10),
	})
}
