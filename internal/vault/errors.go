package vault

import "errors"

// Error definitions for zero-tolerance error handling. Every violation is a
// synchronous abort of the whole operation; nothing is retried internally.
var (
	ErrVersionMismatch        = errors.New("vault version mismatch")
	ErrDuplicateReserve       = errors.New("reserve already exists for asset")
	ErrReserveNotFound        = errors.New("reserve not found")
	ErrWrongAssetType         = errors.New("wrong asset type for reserve")
	ErrInvalidConfig          = errors.New("vault config is invalid")
	ErrPriceStale             = errors.New("reserve price is stale")
	ErrFeedMismatch           = errors.New("oracle feed identifier mismatch")
	ErrInvalidPrice           = errors.New("oracle reported no valid price")
	ErrAmountTooSmall         = errors.New("amount too small")
	ErrMissingCapability      = errors.New("required capability not presented")
	ErrElasticMintCapExceeded = errors.New("elastic mint exceeds configured cap")
)
