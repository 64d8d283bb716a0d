package wallet

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// MaxFeeBps is 100%.
	MaxFeeBps = 10_000
	bpsDenom  = 10_000
)

var (
	// MaxInt128 and MinInt128 bound every amount the wallet accepts.
	MaxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	MinInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))

	// 2^127 is the largest magnitude a signed 128-bit value can carry.
	int128Magnitude = new(uint256.Int).Lsh(uint256.NewInt(1), 127)
)

// CheckInt128 rejects nil values and values outside the signed 128-bit range.
func CheckInt128(v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: nil", ErrAmountOutOfRange)
	}
	if v.Cmp(MinInt128) < 0 || v.Cmp(MaxInt128) > 0 {
		return fmt.Errorf("%w: %s", ErrAmountOutOfRange, v)
	}
	return nil
}

// CheckFeeBps validates a basis-point rate against [0, MaxFeeBps].
func CheckFeeBps(bps *big.Int) error {
	if bps == nil {
		return errNilFee
	}
	if bps.Cmp(big.NewInt(MaxFeeBps)) > 0 {
		return fmt.Errorf("%w: %s", ErrFeeTooHigh, bps)
	}
	if bps.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrFeeNegative, bps)
	}
	return nil
}

// SplitFee divides amount into the charity fee and the recipient's share.
// fee = amount * bps / 10000, truncated toward zero; net = amount - fee.
// The product is computed on 256-bit magnitudes and must fit in a signed
// 128-bit integer.
func SplitFee(amount *big.Int, bps uint32) (fee, net *big.Int, err error) {
	if err := CheckInt128(amount); err != nil {
		return nil, nil, err
	}
	if bps > MaxFeeBps {
		return nil, nil, fmt.Errorf("%w: %d", ErrFeeTooHigh, bps)
	}
	magnitude, overflow := uint256.FromBig(new(big.Int).Abs(amount))
	if overflow {
		return nil, nil, fmt.Errorf("%w: %s", ErrAmountOutOfRange, amount)
	}
	product, overflow := new(uint256.Int).MulOverflow(magnitude, uint256.NewInt(uint64(bps)))
	if overflow || product.Gt(int128Magnitude) || (amount.Sign() > 0 && product.Eq(int128Magnitude)) {
		return nil, nil, fmt.Errorf("%w: %s * %d", ErrArithmeticOverflow, amount, bps)
	}
	quotient := new(uint256.Int).Div(product, uint256.NewInt(bpsDenom))
	fee = quotient.ToBig()
	if amount.Sign() < 0 {
		fee.Neg(fee)
	}
	net = new(big.Int).Sub(amount, fee)
	return fee, net, nil
}
