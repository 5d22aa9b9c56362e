package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/auth"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/decimal"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/events"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/oracle"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/token"
)

const testMaxPriceAge int64 = 3600

func testUpdate(t *testing.T, feedID, spot, smoothed string) oracle.PriceUpdate {
	t.Helper()
	sm, err := decimal.FromString(smoothed)
	require.NoError(t, err)
	u := oracle.PriceUpdate{SmoothedPrice: sm, FeedID: feedID}
	if spot != "" {
		p, err := decimal.FromString(spot)
		require.NoError(t, err)
		u.Price = &p
	}
	return u
}

func newTestVault(t *testing.T, feeBps uint64) (*Vault, auth.CapabilitySet) {
	t.Helper()
	caps := auth.Issue()
	v, err := New(Config{LiquidityFeeBps: feeBps}, testMaxPriceAge, events.Discard{})
	require.NoError(t, err)
	return v, caps
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{LiquidityFeeBps: MaxFeeBps + 1}, 0, events.Discard{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{}, -1, events.Discard{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAddReserve(t *testing.T) {
	v, caps := newTestVault(t, 30)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)
	assert.Equal(t, 0, index)

	index, err = v.AddReserve(caps.Admin, "uatom", 6, testUpdate(t, "feed-atom", "9.5", "9.4"), now)
	require.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Equal(t, 2, v.ReserveCount())

	// Duplicates refused, indices stable.
	_, err = v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	assert.ErrorIs(t, err, ErrDuplicateReserve)

	// No capability, no reserve.
	_, err = v.AddReserve(nil, "uosmo", 6, testUpdate(t, "feed-osmo", "0.5", "0.5"), now)
	assert.ErrorIs(t, err, ErrMissingCapability)

	// An observation with no valid spot price cannot seed a reserve.
	_, err = v.AddReserve(caps.Admin, "uosmo", 6, testUpdate(t, "feed-osmo", "", "0.5"), now)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	got, ok := v.ReserveIndexByAsset("uatom")
	require.True(t, ok)
	assert.Equal(t, 1, got)
	_, ok = v.ReserveIndexByAsset("uosmo")
	assert.False(t, ok)
}

func TestBuySynthetic(t *testing.T) {
	v, caps := newTestVault(t, 30)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)

	// 100 USDC at $1.00 with a 30 bps fee: 0.3 USDC fee, 99.7 USD of
	// synthetic units.
	minted, err := v.BuySynthetic(index, token.NewBalance("uusdc", 100_000_000), now)
	require.NoError(t, err)
	assert.Equal(t, SyntheticDenom, minted.Denom())
	assert.Equal(t, uint64(99_700_000), minted.Amount())
	assert.Equal(t, uint64(99_700_000), v.SyntheticSupply())

	info, err := v.ReserveInfoAt(index)
	require.NoError(t, err)
	assert.Equal(t, uint64(99_700_000), info.AvailableAmount)
	assert.Equal(t, uint64(300_000), info.FeeAmount)
}

func TestBuySyntheticUsesLowerBound(t *testing.T) {
	v, caps := newTestVault(t, 0)
	now := time.Now()

	// Spot above smoothed: crediting must use the smoothed (lower) quote.
	index, err := v.AddReserve(caps.Admin, "uatom", 6, testUpdate(t, "feed-atom", "10.0", "9.0"), now)
	require.NoError(t, err)

	minted, err := v.BuySynthetic(index, token.NewBalance("uatom", 1_000_000), now)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_000_000), minted.Amount())
}

func TestBuySyntheticRejections(t *testing.T) {
	v, caps := newTestVault(t, 30)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)

	_, err = v.BuySynthetic(index+1, token.NewBalance("uusdc", 1_000_000), now)
	assert.ErrorIs(t, err, ErrReserveNotFound)

	_, err = v.BuySynthetic(index, token.NewBalance("uatom", 1_000_000), now)
	assert.ErrorIs(t, err, ErrWrongAssetType)

	stale := now.Add(time.Duration(testMaxPriceAge+1) * time.Second)
	_, err = v.BuySynthetic(index, token.NewBalance("uusdc", 1_000_000), stale)
	assert.ErrorIs(t, err, ErrPriceStale)

	// A deposit so small it mints nothing is refused outright and leaves no
	// trace: no supply change, no fee accrual, no custody change.
	_, err = v.BuySynthetic(index, token.NewBalance("uusdc", 1), now)
	assert.ErrorIs(t, err, ErrAmountTooSmall)
	assert.Equal(t, uint64(0), v.SyntheticSupply())

	info, err := v.ReserveInfoAt(index)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.AvailableAmount)
	assert.Equal(t, uint64(0), info.FeeAmount)
}

func TestSellSyntheticRoundTrip(t *testing.T) {
	v, caps := newTestVault(t, 30)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)

	minted, err := v.BuySynthetic(index, token.NewBalance("uusdc", 100_000_000), now)
	require.NoError(t, err)

	// Redeem everything: 99.7 USD buys back 99,700,000 uusdc, the 30 bps
	// exit fee of 299,100 stays with the reserve.
	out, err := v.SellSynthetic(index, minted, now)
	require.NoError(t, err)
	assert.Equal(t, "uusdc", out.Denom())
	assert.Equal(t, uint64(99_400_900), out.Amount())
	assert.Equal(t, uint64(0), v.SyntheticSupply())

	info, err := v.ReserveInfoAt(index)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.AvailableAmount)
	assert.Equal(t, uint64(300_000+299_100), info.FeeAmount)
}

func TestSellSyntheticRejections(t *testing.T) {
	v, caps := newTestVault(t, 30)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)

	_, err = v.SellSynthetic(index, token.NewBalance("jlp", 1_000_000), now)
	assert.ErrorIs(t, err, ErrWrongAssetType)

	// Nothing in the reserve yet: the redemption cannot be covered.
	supply, err := v.IncreaseSynthetic(1_000_000)
	require.NoError(t, err)
	_, err = v.SellSynthetic(index, supply, now)
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
	assert.Equal(t, uint64(1_000_000), v.SyntheticSupply())
}

func TestQuoteSellSynthetic(t *testing.T) {
	v, caps := newTestVault(t, 30)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)
	_, err = v.BuySynthetic(index, token.NewBalance("uusdc", 100_000_000), now)
	require.NoError(t, err)

	payout, fee, err := v.QuoteSellSynthetic(index, 10_000_000, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(30_000), fee)
	assert.Equal(t, uint64(9_970_000), payout)

	// Quoting never mutates.
	assert.Equal(t, uint64(99_700_000), v.SyntheticSupply())

	_, _, err = v.QuoteSellSynthetic(index, 0, now)
	assert.ErrorIs(t, err, ErrAmountTooSmall)

	_, _, err = v.QuoteSellSynthetic(index, 200_000_000, now)
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
}

func TestIncreaseSyntheticCap(t *testing.T) {
	caps := auth.Issue()
	v, err := New(Config{LiquidityFeeBps: 30, ElasticMintCap: 500}, testMaxPriceAge, events.Discard{})
	require.NoError(t, err)

	minted, err := v.IncreaseSynthetic(500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), minted.Amount())

	_, err = v.IncreaseSynthetic(501)
	assert.ErrorIs(t, err, ErrElasticMintCapExceeded)
	assert.Equal(t, uint64(500), v.SyntheticSupply())

	// Lifting the cap lifts the refusal.
	require.NoError(t, v.UpdateConfig(caps.Admin, Config{LiquidityFeeBps: 30}))
	_, err = v.IncreaseSynthetic(501)
	assert.NoError(t, err)
}

func TestAUMBounds(t *testing.T) {
	v, caps := newTestVault(t, 0)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uatom", 6, testUpdate(t, "feed-atom", "1.0", "0.9"), now)
	require.NoError(t, err)
	_, err = v.BuySynthetic(index, token.NewBalance("uatom", 1_000_000), now)
	require.NoError(t, err)

	// The buy credited at the lower bound: 0.9 USD of synthetic against
	// 1,000,000 uatom held.
	lower, err := v.AUM(false, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(900_000), lower)

	upper, err := v.AUM(true, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), upper)
}

func TestAUMFailsOnAnyStaleReserve(t *testing.T) {
	v, caps := newTestVault(t, 0)
	now := time.Now()

	_, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)
	atomIndex, err := v.AddReserve(caps.Admin, "uatom", 6, testUpdate(t, "feed-atom", "9.0", "9.0"), now)
	require.NoError(t, err)

	later := now.Add(time.Duration(testMaxPriceAge+1) * time.Second)
	_, err = v.AUM(false, later)
	assert.ErrorIs(t, err, ErrPriceStale)

	// Refreshing only one reserve is not enough.
	require.NoError(t, v.RefreshReservePrice(atomIndex, testUpdate(t, "feed-atom", "9.1", "9.0"), later))
	_, err = v.AUM(false, later)
	assert.ErrorIs(t, err, ErrPriceStale)
}

func TestZeroMaxPriceAgeRequiresSameSecondRefresh(t *testing.T) {
	caps := auth.Issue()
	v, err := New(Config{LiquidityFeeBps: 30}, 0, events.Discard{})
	require.NoError(t, err)

	now := time.Now()
	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)

	// Reads within the same second as the refresh pass.
	_, err = v.BuySynthetic(index, token.NewBalance("uusdc", 100_000_000), now)
	require.NoError(t, err)
	_, err = v.AUM(true, now)
	assert.NoError(t, err)

	// One second later every price-dependent read is refused.
	next := now.Add(time.Second)
	_, err = v.BuySynthetic(index, token.NewBalance("uusdc", 1_000_000), next)
	assert.ErrorIs(t, err, ErrPriceStale)
	_, _, err = v.QuoteSellSynthetic(index, 1_000_000, next)
	assert.ErrorIs(t, err, ErrPriceStale)
	_, err = v.AUM(false, next)
	assert.ErrorIs(t, err, ErrPriceStale)

	// A fresh observation re-opens the gate for that second.
	require.NoError(t, v.RefreshReservePrice(index, testUpdate(t, "feed-usdc", "1.0", "1.0"), next))
	_, err = v.AUM(false, next)
	assert.NoError(t, err)
}

func TestRefreshReservePrice(t *testing.T) {
	v, caps := newTestVault(t, 0)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uatom", 6, testUpdate(t, "feed-atom", "9.0", "9.0"), now)
	require.NoError(t, err)

	err = v.RefreshReservePrice(index, testUpdate(t, "feed-other", "9.0", "9.0"), now)
	assert.ErrorIs(t, err, ErrFeedMismatch)

	err = v.RefreshReservePrice(index, testUpdate(t, "feed-atom", "", "9.0"), now)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	later := now.Add(time.Duration(testMaxPriceAge+1) * time.Second)
	require.NoError(t, v.RefreshReservePrice(index, testUpdate(t, "feed-atom", "9.2", "9.1"), later))

	// The refresh restarted the staleness clock.
	_, err = v.AUM(true, later)
	assert.NoError(t, err)
}

func TestChangeReservePriceFeed(t *testing.T) {
	v, caps := newTestVault(t, 0)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uatom", 6, testUpdate(t, "feed-atom", "9.0", "9.0"), now)
	require.NoError(t, err)

	err = v.ChangeReservePriceFeed(nil, index, testUpdate(t, "feed-atom-v2", "9.0", "9.0"))
	assert.ErrorIs(t, err, ErrMissingCapability)

	require.NoError(t, v.ChangeReservePriceFeed(caps.Admin, index, testUpdate(t, "feed-atom-v2", "9.0", "9.0")))

	// Old feed no longer accepted, new one is.
	err = v.RefreshReservePrice(index, testUpdate(t, "feed-atom", "9.0", "9.0"), now)
	assert.ErrorIs(t, err, ErrFeedMismatch)
	assert.NoError(t, v.RefreshReservePrice(index, testUpdate(t, "feed-atom-v2", "9.0", "9.0"), now))
}

func TestClaimFees(t *testing.T) {
	v, caps := newTestVault(t, 30)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)
	_, err = v.BuySynthetic(index, token.NewBalance("uusdc", 100_000_000), now)
	require.NoError(t, err)

	_, err = v.ClaimFees(nil, index, "uusdc")
	assert.ErrorIs(t, err, ErrMissingCapability)

	_, err = v.ClaimFees(caps.Admin, index, "uatom")
	assert.ErrorIs(t, err, ErrWrongAssetType)

	claimed, err := v.ClaimFees(caps.Admin, index, "uusdc")
	require.NoError(t, err)
	assert.Equal(t, uint64(300_000), claimed.Amount())

	// Second claim finds nothing.
	claimed, err = v.ClaimFees(caps.Admin, index, "uusdc")
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())
}

func TestAdminSettle(t *testing.T) {
	v, caps := newTestVault(t, 0)
	now := time.Now()

	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)
	_, err = v.BuySynthetic(index, token.NewBalance("uusdc", 50_000_000), now)
	require.NoError(t, err)

	escrow := NewSettlementEscrow("uusdc", events.Discard{})
	require.NoError(t, escrow.Deposit(token.NewBalance("uusdc", 10_000_000), "custodian", false))

	err = v.AdminSettle(nil, index, escrow, 1, true)
	assert.ErrorIs(t, err, ErrMissingCapability)

	wrongEscrow := NewSettlementEscrow("uatom", events.Discard{})
	err = v.AdminSettle(caps.Handler, index, wrongEscrow, 1, true)
	assert.ErrorIs(t, err, ErrWrongAssetType)

	// Inflow: escrow to reserve. Supply untouched either way.
	require.NoError(t, v.AdminSettle(caps.Handler, index, escrow, 10_000_000, true))
	info, err := v.ReserveInfoAt(index)
	require.NoError(t, err)
	assert.Equal(t, uint64(60_000_000), info.AvailableAmount)
	assert.Equal(t, uint64(0), escrow.Amount())

	// Outflow: reserve back to escrow.
	require.NoError(t, v.AdminSettle(caps.Handler, index, escrow, 25_000_000, false))
	info, err = v.ReserveInfoAt(index)
	require.NoError(t, err)
	assert.Equal(t, uint64(35_000_000), info.AvailableAmount)
	assert.Equal(t, uint64(25_000_000), escrow.Amount())

	// Outflow larger than the holding is refused.
	err = v.AdminSettle(caps.Handler, index, escrow, 100_000_000, false)
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)

	assert.Equal(t, uint64(50_000_000), v.SyntheticSupply())
}

func TestUpdateConfig(t *testing.T) {
	v, caps := newTestVault(t, 30)

	err := v.UpdateConfig(caps.Admin, Config{LiquidityFeeBps: MaxFeeBps + 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, uint64(30), v.Config().LiquidityFeeBps)

	require.NoError(t, v.UpdateConfig(caps.Admin, Config{LiquidityFeeBps: 50, ElasticMintCap: 1_000}))
	assert.Equal(t, uint64(50), v.Config().LiquidityFeeBps)
	assert.Equal(t, uint64(1_000), v.Config().ElasticMintCap)
}

func TestMigrateVersion(t *testing.T) {
	v, caps := newTestVault(t, 30)

	// Already current: nothing to migrate.
	err := v.MigrateVersion(caps.Admin)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	v.version = CurrentVersion - 1
	_, err = v.IncreaseSynthetic(1)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	require.NoError(t, v.MigrateVersion(caps.Admin))
	assert.Equal(t, CurrentVersion, v.Version())
	_, err = v.IncreaseSynthetic(1)
	assert.NoError(t, err)
}
