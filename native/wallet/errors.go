package wallet

import "errors"

var (
	errNilState  = errors.New("wallet engine: storage not configured")
	errNilAuth   = errors.New("wallet engine: authorizer not configured")
	errNilTokens = errors.New("wallet engine: token service not configured")
	errNilFee    = errors.New("wallet: fee rate missing")

	ErrAlreadyInitialized = errors.New("wallet: already initialized")
	ErrNotInitialized     = errors.New("wallet: not initialized")
	ErrUnauthorized       = errors.New("wallet: unauthorized")
	ErrFeeTooHigh         = errors.New("wallet: fee cannot be more than 10000 bips (100%)")
	ErrFeeNegative        = errors.New("wallet: fee cannot be lower than 0")
	ErrFeeExceedsAmount   = errors.New("wallet: amount is less than the calculated fee")
	ErrAmountOutOfRange   = errors.New("wallet: amount outside the signed 128-bit range")
	ErrArithmeticOverflow = errors.New("wallet: fee computation overflows 128 bits")
)
