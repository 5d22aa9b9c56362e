package pool

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
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/vault"
)

const testMaxPriceAge int64 = 3600

func testUpdate(t *testing.T, feedID, spot, smoothed string) oracle.PriceUpdate {
	t.Helper()
	sm, err := decimal.FromString(smoothed)
	require.NoError(t, err)
	p, err := decimal.FromString(spot)
	require.NoError(t, err)
	return oracle.PriceUpdate{Price: &p, SmoothedPrice: sm, FeedID: feedID}
}

// newTestPool builds a pool over a vault with one uusdc reserve priced at
// $1.00 and a 30 bps liquidity fee.
func newTestPool(t *testing.T, now time.Time) (*Pool, *vault.Vault, auth.CapabilitySet, int) {
	t.Helper()
	caps := auth.Issue()
	v, err := vault.New(vault.Config{LiquidityFeeBps: 30}, testMaxPriceAge, events.Discard{})
	require.NoError(t, err)
	index, err := v.AddReserve(caps.Admin, "uusdc", 6, testUpdate(t, "feed-usdc", "1.0", "1.0"), now)
	require.NoError(t, err)
	return New(v, events.Discard{}), v, caps, index
}

func TestAddLiquidityBootstrap(t *testing.T) {
	now := time.Now()
	p, v, _, index := newTestPool(t, now)
	position := NewPosition()

	// First deposit: shares are minted 1:1 against the synthetic units the
	// 100 USDC buys after the 30 bps fee.
	shares, err := p.AddLiquidity(position, token.NewBalance("uusdc", 100_000_000), index, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(99_700_000), shares)
	assert.Equal(t, uint64(99_700_000), position.ShareAmount())
	assert.Equal(t, uint64(99_700_000), p.ShareSupply())
	assert.Equal(t, uint64(99_700_000), p.SyntheticHoldings())
	assert.Equal(t, uint64(99_700_000), v.SyntheticSupply())
	assert.Equal(t, now.Unix(), position.LastAddTimestamp())
}

func TestAddLiquidityProRata(t *testing.T) {
	now := time.Now()
	p, v, _, index := newTestPool(t, now)
	first := NewPosition()

	_, err := p.AddLiquidity(first, token.NewBalance("uusdc", 100_000_000), index, now)
	require.NoError(t, err)

	// The collateral doubles in value before the second deposit arrives, so
	// the same synthetic amount buys half as many shares.
	require.NoError(t, v.RefreshReservePrice(index, testUpdate(t, "feed-usdc", "2.0", "2.0"), now))

	second := NewPosition()
	shares, err := p.AddLiquidity(second, token.NewBalance("uusdc", 50_000_000), index, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(49_850_000), shares)
	assert.Equal(t, uint64(99_700_000+49_850_000), p.ShareSupply())
}

func TestAddLiquidityRejections(t *testing.T) {
	now := time.Now()
	p, _, caps, index := newTestPool(t, now)
	position := NewPosition()

	// A dust deposit mints no synthetic units.
	_, err := p.AddLiquidity(position, token.NewBalance("uusdc", 1), index, now)
	assert.ErrorIs(t, err, ErrAmountTooSmall)
	assert.Equal(t, uint64(0), p.ShareSupply())

	require.NoError(t, p.SetPause(caps.Handler, true))
	_, err = p.AddLiquidity(position, token.NewBalance("uusdc", 100_000_000), index, now)
	assert.ErrorIs(t, err, ErrPoolPaused)
}

func TestRemoveLiquidityCooldown(t *testing.T) {
	now := time.Now()
	p, _, _, index := newTestPool(t, now)
	position := NewPosition()

	_, err := p.AddLiquidity(position, token.NewBalance("uusdc", 100_000_000), index, now)
	require.NoError(t, err)

	// Exactly at the boundary is still inside the cooldown.
	atBoundary := now.Add(time.Duration(CooldownSeconds) * time.Second)
	_, err = p.RemoveLiquidity(position, index, position.ShareAmount(), atBoundary)
	assert.ErrorIs(t, err, ErrCooldownActive)

	afterBoundary := now.Add(time.Duration(CooldownSeconds+1) * time.Second)
	_, err = p.RemoveLiquidity(position, index, position.ShareAmount(), afterBoundary)
	assert.NoError(t, err)
}

func TestRemoveLiquidityFull(t *testing.T) {
	now := time.Now()
	p, v, _, index := newTestPool(t, now)
	position := NewPosition()

	_, err := p.AddLiquidity(position, token.NewBalance("uusdc", 100_000_000), index, now)
	require.NoError(t, err)

	later := now.Add(time.Duration(CooldownSeconds+1) * time.Second)
	out, err := p.RemoveLiquidity(position, index, 99_700_000, later)
	require.NoError(t, err)

	// 99.7 USD of shares redeems 99,700,000 uusdc minus the 30 bps exit fee.
	assert.Equal(t, "uusdc", out.Denom())
	assert.Equal(t, uint64(99_400_900), out.Amount())
	assert.Equal(t, uint64(0), position.ShareAmount())
	assert.Equal(t, uint64(0), p.ShareSupply())
	assert.Equal(t, uint64(0), p.SyntheticHoldings())
	assert.Equal(t, uint64(0), v.SyntheticSupply())
}

func TestRemoveLiquidityElasticTopUp(t *testing.T) {
	now := time.Now()
	p, v, _, index := newTestPool(t, now)
	position := NewPosition()

	_, err := p.AddLiquidity(position, token.NewBalance("uusdc", 100_000_000), index, now)
	require.NoError(t, err)

	// The collateral doubles: AUM now exceeds the pool's synthetic buffer,
	// so the redemption needs an elastic top-up for the shortfall.
	later := now.Add(time.Duration(CooldownSeconds+1) * time.Second)
	require.NoError(t, v.RefreshReservePrice(index, testUpdate(t, "feed-usdc", "2.0", "2.0"), later))

	out, err := p.RemoveLiquidity(position, index, 99_700_000, later)
	require.NoError(t, err)
	assert.Equal(t, uint64(99_400_900), out.Amount())

	// The top-up was burned along with the buffer: nothing outstanding.
	assert.Equal(t, uint64(0), v.SyntheticSupply())
	assert.Equal(t, uint64(0), p.SyntheticHoldings())
	assert.Equal(t, uint64(0), p.ShareSupply())
}

// A price refresh can land between the pool's quote and the vault-side sell,
// making the sell fail after the pool already split its buffer. The failed
// call must restore the buffer: no synthetic units may go missing and the
// position's shares must stay intact.
func TestRemoveLiquidityFailureRestoresBuffer(t *testing.T) {
	now := time.Now()
	p, v, _, index := newTestPool(t, now)
	position := NewPosition()

	_, err := p.AddLiquidity(position, token.NewBalance("uusdc", 100_000_000), index, now)
	require.NoError(t, err)

	later := now.Add(time.Duration(CooldownSeconds+1) * time.Second)
	flips := []oracle.PriceUpdate{
		testUpdate(t, "feed-usdc", "1.0", "1.0"),
		testUpdate(t, "feed-usdc", "0.5", "0.5"),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20_000; i++ {
			_ = v.RefreshReservePrice(index, flips[i%2], later)
		}
	}()

	shares := position.ShareAmount()
	var out token.Balance
	for {
		out, err = p.RemoveLiquidity(position, index, shares, later)
		if err == nil {
			break
		}

		// A failed redemption must leave no trace on any ledger.
		require.Equal(t, shares, position.ShareAmount())
		require.Equal(t, shares, p.ShareSupply())
		require.Equal(t, v.SyntheticSupply(), p.SyntheticHoldings())
	}
	<-done

	assert.True(t, out.Amount() > 0)
	assert.Equal(t, uint64(0), position.ShareAmount())
	assert.Equal(t, uint64(0), p.ShareSupply())
	assert.Equal(t, v.SyntheticSupply(), p.SyntheticHoldings())
}

func TestRemoveLiquidityRejections(t *testing.T) {
	now := time.Now()
	p, _, caps, index := newTestPool(t, now)
	position := NewPosition()

	// Nothing deposited yet.
	_, err := p.RemoveLiquidity(position, index, 1, now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = p.AddLiquidity(position, token.NewBalance("uusdc", 100_000_000), index, now)
	require.NoError(t, err)

	later := now.Add(time.Duration(CooldownSeconds+1) * time.Second)

	// A stranger's empty position cannot redeem against the pool.
	stranger := NewPosition()
	_, err = p.RemoveLiquidity(stranger, index, 1_000_000, later)
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)

	require.NoError(t, p.SetPause(caps.Handler, true))
	_, err = p.RemoveLiquidity(position, index, 1_000_000, later)
	assert.ErrorIs(t, err, ErrPoolPaused)
}

func TestSharePrice(t *testing.T) {
	now := time.Now()
	p, v, _, index := newTestPool(t, now)

	_, err := p.SharePrice(false, now)
	assert.ErrorIs(t, err, ErrEmptyPool)

	position := NewPosition()
	_, err = p.AddLiquidity(position, token.NewBalance("uusdc", 100_000_000), index, now)
	require.NoError(t, err)

	// Right after bootstrap one share is worth exactly one synthetic unit.
	price, err := p.SharePrice(false, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), price)

	// Collateral doubles, so does the share price.
	require.NoError(t, v.RefreshReservePrice(index, testUpdate(t, "feed-usdc", "2.0", "2.0"), now))
	price, err = p.SharePrice(false, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), price)
}

func TestSetPause(t *testing.T) {
	now := time.Now()
	p, _, caps, _ := newTestPool(t, now)

	err := p.SetPause(nil, true)
	assert.ErrorIs(t, err, vault.ErrMissingCapability)
	assert.False(t, p.Paused())

	require.NoError(t, p.SetPause(caps.Handler, true))
	assert.True(t, p.Paused())
	require.NoError(t, p.SetPause(caps.Handler, false))
	assert.False(t, p.Paused())
}

func TestPoolMigrateVersion(t *testing.T) {
	now := time.Now()
	p, _, caps, _ := newTestPool(t, now)

	err := p.MigrateVersion(caps.Admin)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	p.version = CurrentVersion - 1
	_, err = p.AddLiquidity(NewPosition(), token.NewBalance("uusdc", 1_000_000), 0, now)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	require.NoError(t, p.MigrateVersion(caps.Admin))
	_, err = p.AddLiquidity(NewPosition(), token.NewBalance("uusdc", 1_000_000), 0, now)
	assert.NoError(t, err)
}
