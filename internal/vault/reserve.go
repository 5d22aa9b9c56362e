/*
A Reserve is the per-collateral-asset accounting unit: the collateral the
vault holds for one asset, the fees accrued on it, and the latest oracle
quote pair with its staleness clock.

Valuation is two-sided on purpose. The lower of the spot and smoothed quotes
is used whenever the protocol credits a user, the upper whenever it values
assets a user could exploit if overstated, so a single noisy tick can never
be favorable to an attacker in both directions.
*/

package vault

import (
	"fmt"
	"time"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/decimal"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/oracle"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/token"
)

// PriceBound selects which side of the quote pair a conversion uses.
type PriceBound int

const (
	// BoundSpot uses the raw spot quote. Informational reads only.
	BoundSpot PriceBound = iota
	// BoundLower uses min(price, smoothed): worst case for a payout.
	BoundLower
	// BoundUpper uses max(price, smoothed): worst case for a valuation.
	BoundUpper
)

// Reserve holds one collateral asset's accounting. Created once per asset by
// an admin action and never removed; it lives as long as the vault.
type Reserve struct {
	arrayIndex   int
	assetType    string
	mintDecimals uint8

	// availableAmount mirrors availableBalance for O(1) reads; no code path
	// changes one without the other.
	availableAmount uint64

	price            decimal.Decimal
	smoothedPrice    decimal.Decimal
	priceLastUpdateS int64
	priceFeedID      string

	availableBalance token.Balance
	feeBalance       token.Balance
}

// newReserve initializes a reserve from the oracle's current observation.
// Fails with ErrInvalidPrice when the oracle reports no valid spot price.
func newReserve(index int, assetType string, mintDecimals uint8, update oracle.PriceUpdate, now time.Time) (*Reserve, error) {
	if !update.HasPrice() {
		return nil, fmt.Errorf("%w: feed %s", ErrInvalidPrice, update.FeedID)
	}

	return &Reserve{
		arrayIndex:       index,
		assetType:        assetType,
		mintDecimals:     mintDecimals,
		price:            *update.Price,
		smoothedPrice:    update.SmoothedPrice,
		priceLastUpdateS: now.Unix(),
		priceFeedID:      update.FeedID,
		availableBalance: token.Zero(assetType),
		feeBalance:       token.Zero(assetType),
	}, nil
}

// AssetType returns the immutable collateral asset identifier.
func (r *Reserve) AssetType() string {
	return r.assetType
}

// AvailableAmount returns the collateral currently held, excluding fees.
func (r *Reserve) AvailableAmount() uint64 {
	return r.availableAmount
}

// FeeAmount returns the accrued, unclaimed fee balance.
func (r *Reserve) FeeAmount() uint64 {
	return r.feeBalance.Amount()
}

// updatePrice overwrites the quote pair from a fresh oracle observation.
// Fails with ErrFeedMismatch when the observation comes from a different
// feed than the one this reserve is bound to.
func (r *Reserve) updatePrice(update oracle.PriceUpdate, now time.Time) error {
	if update.FeedID != r.priceFeedID {
		return fmt.Errorf("%w: reserve bound to %s, update from %s", ErrFeedMismatch, r.priceFeedID, update.FeedID)
	}
	if !update.HasPrice() {
		return fmt.Errorf("%w: feed %s", ErrInvalidPrice, update.FeedID)
	}

	r.price = *update.Price
	r.smoothedPrice = update.SmoothedPrice
	r.priceLastUpdateS = now.Unix()
	return nil
}

// changePriceFeed rebinds the reserve to a new feed identifier. Price values
// are untouched until the next updatePrice against the new feed.
func (r *Reserve) changePriceFeed(update oracle.PriceUpdate) {
	r.priceFeedID = update.FeedID
}

// assertPriceFresh fails with ErrPriceStale when the last refresh is older
// than maxAgeS seconds. A max age of 0 requires a refresh within the same
// second as the read.
func (r *Reserve) assertPriceFresh(now time.Time, maxAgeS int64) error {
	age := now.Unix() - r.priceLastUpdateS
	if age > maxAgeS {
		return fmt.Errorf("%w: %s price is %ds old (max %ds)", ErrPriceStale, r.assetType, age, maxAgeS)
	}
	return nil
}

// priceLowerBound is min(spot, smoothed).
func (r *Reserve) priceLowerBound() decimal.Decimal {
	return r.price.Min(r.smoothedPrice)
}

// priceUpperBound is max(spot, smoothed).
func (r *Reserve) priceUpperBound() decimal.Decimal {
	return r.price.Max(r.smoothedPrice)
}

// boundPrice returns the quote the given bound selects.
func (r *Reserve) boundPrice(bound PriceBound) decimal.Decimal {
	switch bound {
	case BoundLower:
		return r.priceLowerBound()
	case BoundUpper:
		return r.priceUpperBound()
	default:
		return r.price
	}
}

// tokenToUSD converts an amount of the reserve's asset, in native minor
// units, to USD at the selected bound.
func (r *Reserve) tokenToUSD(amount uint64, bound PriceBound) (decimal.Decimal, error) {
	usd := r.boundPrice(bound).Mul(decimal.FromUint64(amount))
	return usd.Quo(decimal.Pow10(r.mintDecimals))
}

// usdToToken converts a USD value to native minor units of the reserve's
// asset at the selected bound. Rounding is left to the caller.
func (r *Reserve) usdToToken(usd decimal.Decimal, bound PriceBound) (decimal.Decimal, error) {
	return usd.Mul(decimal.Pow10(r.mintDecimals)).Quo(r.boundPrice(bound))
}

// receiveToken credits collateral to the reserve, keeping counter and
// custody ledger in lockstep.
func (r *Reserve) receiveToken(b token.Balance) error {
	amount := b.Amount()
	if err := r.availableBalance.Join(b); err != nil {
		return err
	}
	r.availableAmount += amount
	return nil
}

// backToken debits collateral from the reserve. Checked: fails when amount
// exceeds the available holding.
func (r *Reserve) backToken(amount uint64) (token.Balance, error) {
	out, err := r.availableBalance.Split(amount)
	if err != nil {
		return token.Zero(r.assetType), err
	}
	r.availableAmount -= amount
	return out, nil
}

// receiveFee accrues a fee, independent of the available holding.
func (r *Reserve) receiveFee(b token.Balance) error {
	return r.feeBalance.Join(b)
}

// claimFees withdraws the whole accrued fee balance.
func (r *Reserve) claimFees() token.Balance {
	return r.feeBalance.SplitAll()
}

// ReserveInfo is a read-only snapshot of a reserve for callers outside the
// package (dashboard, logs).
type ReserveInfo struct {
	Index            int    `json:"index"`
	AssetType        string `json:"asset_type"`
	MintDecimals     uint8  `json:"mint_decimals"`
	AvailableAmount  uint64 `json:"available_amount"`
	FeeAmount        uint64 `json:"fee_amount"`
	Price            string `json:"price"`
	SmoothedPrice    string `json:"smoothed_price"`
	PriceFeedID      string `json:"price_feed_id"`
	PriceLastUpdateS int64  `json:"price_last_update_s"`
}

func (r *Reserve) info() ReserveInfo {
	return ReserveInfo{
		Index:            r.arrayIndex,
		AssetType:        r.assetType,
		MintDecimals:     r.mintDecimals,
		AvailableAmount:  r.availableAmount,
		FeeAmount:        r.feeBalance.Amount(),
		Price:            r.price.String(),
		SmoothedPrice:    r.smoothedPrice.String(),
		PriceFeedID:      r.priceFeedID,
		PriceLastUpdateS: r.priceLastUpdateS,
	}
}
