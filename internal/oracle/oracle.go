/*
This package is the boundary to the external price oracle.

The core only ever consumes the PriceUpdate tuple; how the quotes are
produced (aggregation, smoothing, confidence filtering) belongs to the feed
operator and is out of scope here.
*/

package oracle

import (
	"context"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/decimal"
)

// PriceUpdate is one oracle observation for a single feed. Price is the spot
// quote and may be absent (nil) when the feed reports no valid price;
// SmoothedPrice is the feed's EMA-style quote and is always present.
type PriceUpdate struct {
	Price         *decimal.Decimal
	SmoothedPrice decimal.Decimal
	FeedID        string
}

// HasPrice reports whether the feed produced a valid spot quote.
func (u PriceUpdate) HasPrice() bool {
	return u.Price != nil
}

// Source produces the latest observation for a feed.
type Source interface {
	Latest(ctx context.Context, feedID string) (PriceUpdate, error)
}
