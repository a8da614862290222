package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/engine"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/treasury"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	oracle  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	creator = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000002")
	carol   = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	eng    *engine.Engine
	ledger *treasury.Ledger
	now    time.Time
	mu     sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ledger: treasury.NewLedger(), now: t0}
	f.eng = engine.New(engine.Config{InitialLiquidity: 1000, Owner: owner}, f.ledger, testLogger())
	f.eng.SetClock(f.clock)
	for _, acct := range []common.Address{alice, bob, carol} {
		f.ledger.Mint(acct, 1_000_000)
	}
	return f
}

func (f *fixture) openMarket(t *testing.T, feeBps uint64) domain.Market {
	t.Helper()
	m, err := f.eng.CreateMarket(context.Background(), engine.CreateParams{
		Question:   "is the submitted contract vulnerable?",
		Creator:    creator,
		Oracle:     oracle,
		EndTime:    t0.Add(24 * time.Hour),
		FeeRateBps: feeBps,
	})
	require.NoError(t, err)
	return m
}

func TestTradeAndClaimWorkedExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 300)

	quote, err := f.eng.Quote(ctx, m.ID, domain.SideYes, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(91), quote.BaseCost)
	assert.Equal(t, uint64(2), quote.Fee)
	assert.Equal(t, uint64(93), quote.Cost)

	receipt, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), receipt.Shares)
	assert.Equal(t, uint64(93), receipt.Cost)
	assert.Equal(t, uint64(107), receipt.Refund)

	got, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), got.YesPool)
	assert.Equal(t, uint64(909), got.NoPool)
	assert.Equal(t, uint64(93), got.CollateralPool)
	assert.Equal(t, uint64(100), got.OutstandingYes)

	shares, err := f.eng.Position(m.ID, alice, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), shares)

	// Only the realized cost left alice's balance.
	assert.Equal(t, uint64(1_000_000-93), f.ledger.Balance(alice))
	assert.Equal(t, uint64(93), f.ledger.Escrowed())

	_, err = f.eng.Report(ctx, m.ID, oracle, domain.SideYes)
	require.NoError(t, err)

	payout, err := f.eng.Claim(ctx, m.ID, alice, domain.SideYes, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(93), payout.Amount)

	got, err = f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.CollateralPool)
	assert.Equal(t, uint64(0), got.OutstandingYes)
	assert.Equal(t, uint64(1_000_000), f.ledger.Balance(alice))
	assert.Equal(t, uint64(0), f.ledger.Escrowed())
}

func TestAlternatingSingleShareTrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 300)

	// Floor rounding lets the combined reserves dip below the seeded total
	// by a unit of dust; neither tiny trade may be rejected for it.
	receipt, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Cost)

	receipt, err = f.eng.Trade(ctx, m.ID, bob, domain.SideNo, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), receipt.Cost)

	got, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(999), got.YesPool)
	assert.Equal(t, uint64(1000), got.NoPool)
	assert.Equal(t, uint64(1), got.OutstandingYes)
	assert.Equal(t, uint64(1), got.OutstandingNo)
	assert.Equal(t, uint64(3), got.CollateralPool)
}

func TestQuoteIsPure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 300)

	before, err := f.eng.Market(m.ID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.eng.Quote(ctx, m.ID, domain.SideNo, 250)
		require.NoError(t, err)
	}

	after, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTradeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 300)

	t.Run("zero amount", func(t *testing.T) {
		_, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 0, 1000)
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("unknown side", func(t *testing.T) {
		_, err := f.eng.Trade(ctx, m.ID, alice, domain.Side("maybe"), 10, 1000)
		require.ErrorIs(t, err, domain.ErrInvalidOutcome)
	})

	t.Run("insufficient payment", func(t *testing.T) {
		_, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 100, 92)
		require.ErrorIs(t, err, domain.ErrInsufficientPayment)
	})

	t.Run("unknown market", func(t *testing.T) {
		_, err := f.eng.Trade(ctx, "no-such-market", alice, domain.SideYes, 10, 1000)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("expired market", func(t *testing.T) {
		f.advance(25 * time.Hour)
		defer f.advance(-25 * time.Hour)
		_, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 10, 1000)
		require.ErrorIs(t, err, domain.ErrMarketExpired)
	})

	t.Run("resolved market", func(t *testing.T) {
		m2 := f.openMarket(t, 300)
		_, err := f.eng.Report(ctx, m2.ID, oracle, domain.SideNo)
		require.NoError(t, err)
		_, err = f.eng.Trade(ctx, m2.ID, alice, domain.SideYes, 10, 1000)
		require.ErrorIs(t, err, domain.ErrMarketNotOpen)
	})
}

func TestTradeRollsBackOnTransferFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 300)

	// Pauper authorizes a payment its balance cannot cover: the ledger
	// mutation must be fully reverted when the withdrawal bounces.
	pauper := common.HexToAddress("0x0000000000000000000000000000000000000009")
	before, err := f.eng.Market(m.ID)
	require.NoError(t, err)

	_, err = f.eng.Trade(ctx, m.ID, pauper, domain.SideYes, 100, 500)
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	after, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	shares, err := f.eng.Position(m.ID, pauper, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), shares)
}

// brokenDeposit wraps the real ledger but refuses payouts, to exercise the
// claim rollback path.
type brokenDeposit struct {
	*treasury.Ledger
}

func (b brokenDeposit) Deposit(context.Context, common.Address, uint64) error {
	return errors.New("payout rail down")
}

func TestClaimRollsBackOnTransferFailure(t *testing.T) {
	ledger := treasury.NewLedger()
	ledger.Mint(alice, 10_000)

	eng := engine.New(engine.Config{InitialLiquidity: 1000, Owner: owner}, brokenDeposit{ledger}, testLogger())
	eng.SetClock(func() time.Time { return t0 })
	ctx := context.Background()

	m, err := eng.CreateMarket(ctx, engine.CreateParams{
		Question: "q", Creator: creator, Oracle: oracle,
		EndTime: t0.Add(time.Hour), FeeRateBps: 300,
	})
	require.NoError(t, err)

	_, err = eng.Trade(ctx, m.ID, alice, domain.SideYes, 100, 500)
	require.NoError(t, err)
	_, err = eng.Report(ctx, m.ID, oracle, domain.SideYes)
	require.NoError(t, err)

	before, err := eng.Market(m.ID)
	require.NoError(t, err)

	_, err = eng.Claim(ctx, m.ID, alice, domain.SideYes, 100)
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	after, err := eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	shares, err := eng.Position(m.ID, alice, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), shares)
}

func TestClaimValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 300)

	_, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 100, 500)
	require.NoError(t, err)
	_, err = f.eng.Trade(ctx, m.ID, bob, domain.SideNo, 50, 500)
	require.NoError(t, err)

	t.Run("market still open", func(t *testing.T) {
		_, err := f.eng.Claim(ctx, m.ID, alice, domain.SideYes, 100)
		require.ErrorIs(t, err, domain.ErrMarketNotOpen)
	})

	_, err = f.eng.Report(ctx, m.ID, oracle, domain.SideYes)
	require.NoError(t, err)

	t.Run("zero burn", func(t *testing.T) {
		_, err := f.eng.Claim(ctx, m.ID, alice, domain.SideYes, 0)
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("losing side", func(t *testing.T) {
		_, err := f.eng.Claim(ctx, m.ID, bob, domain.SideNo, 50)
		require.ErrorIs(t, err, domain.ErrNoWinningShares)
	})

	t.Run("burn above balance", func(t *testing.T) {
		_, err := f.eng.Claim(ctx, m.ID, alice, domain.SideYes, 101)
		require.ErrorIs(t, err, domain.ErrNoWinningShares)
	})

	t.Run("no balance at all", func(t *testing.T) {
		_, err := f.eng.Claim(ctx, m.ID, carol, domain.SideYes, 1)
		require.ErrorIs(t, err, domain.ErrNoWinningShares)
	})
}

func TestSequentialClaimsStayFair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 0)

	_, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 300, 100_000)
	require.NoError(t, err)
	_, err = f.eng.Trade(ctx, m.ID, bob, domain.SideYes, 300, 100_000)
	require.NoError(t, err)
	_, err = f.eng.Trade(ctx, m.ID, carol, domain.SideNo, 200, 100_000)
	require.NoError(t, err)

	_, err = f.eng.Report(ctx, m.ID, oracle, domain.SideYes)
	require.NoError(t, err)

	pool, err := f.eng.Market(m.ID)
	require.NoError(t, err)

	// Alice and bob hold identical winning positions; claiming in sequence
	// must pay them within a rounding unit of each other and drain the pool
	// to at most the rounding dust.
	pa, err := f.eng.Claim(ctx, m.ID, alice, domain.SideYes, 300)
	require.NoError(t, err)
	pb, err := f.eng.Claim(ctx, m.ID, bob, domain.SideYes, 300)
	require.NoError(t, err)

	assert.InDelta(t, float64(pa.Amount), float64(pb.Amount), 1)
	assert.Equal(t, pool.CollateralPool, pa.Amount+pb.Amount)

	got, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.CollateralPool)
}

func TestInvalidMarketRefundsBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 300)

	_, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 400, 100_000)
	require.NoError(t, err)
	_, err = f.eng.Trade(ctx, m.ID, bob, domain.SideNo, 100, 100_000)
	require.NoError(t, err)

	_, err = f.eng.EmergencyResolveInvalid(ctx, m.ID, owner)
	require.NoError(t, err)

	pool, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStateInvalid, pool.State)

	// Every holder redeems pro rata over the combined 500 outstanding shares.
	pa, err := f.eng.Claim(ctx, m.ID, alice, domain.SideYes, 400)
	require.NoError(t, err)
	assert.Equal(t, pool.CollateralPool*400/500, pa.Amount)

	pb, err := f.eng.Claim(ctx, m.ID, bob, domain.SideNo, 100)
	require.NoError(t, err)
	assert.Equal(t, pool.CollateralPool-pa.Amount, pb.Amount)

	got, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.CollateralPool)
}

func TestMonotonicPricing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 0)

	prevYes := uint64(0)
	prevNo := uint64(10_000)
	for i := 0; i < 5; i++ {
		receipt, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 200, 100_000)
		require.NoError(t, err)

		got, err := f.eng.Market(m.ID)
		require.NoError(t, err)
		yesPrice := receipt.NewSidePrice
		noPrice := uint64(10_000) - yesPrice

		assert.Greater(t, yesPrice, prevYes, "yes price must rise with demand")
		assert.Less(t, noPrice, prevNo, "no price must fall")
		assert.Equal(t, got.YesPool*10_000/(got.YesPool+got.NoPool), yesPrice)

		prevYes, prevNo = yesPrice, noPrice
	}
}

func TestShareMirroringOneSidedFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 300)

	total := uint64(0)
	for _, amount := range []uint64{50, 125, 300, 75} {
		_, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, amount, 100_000)
		require.NoError(t, err)
		total += amount

		got, err := f.eng.Market(m.ID)
		require.NoError(t, err)
		assert.Equal(t, total, got.OutstandingYes)
		assert.Equal(t, got.InitialLiquidity+total, got.YesPool,
			"side pool grows exactly by minted shares")
	}
}

func TestConservationAcrossRandomActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 250)

	rng := rand.New(rand.NewSource(42))
	accounts := []common.Address{alice, bob, carol}

	for i := 0; i < 60; i++ {
		acct := accounts[rng.Intn(len(accounts))]
		side := domain.SideYes
		if rng.Intn(2) == 1 {
			side = domain.SideNo
		}
		amount := uint64(rng.Intn(200) + 1)

		_, err := f.eng.Trade(ctx, m.ID, acct, side, amount, 1_000_000)
		require.NoError(t, err)

		got, err := f.eng.Market(m.ID)
		require.NoError(t, err)
		assert.Equal(t, got.PaidIn-got.PaidOut, got.CollateralPool)
		assert.Equal(t, got.CollateralPool, f.ledger.Escrowed(),
			"escrow must track the collateral pool exactly")
		assert.LessOrEqual(t, got.YesPool, got.InitialLiquidity+got.OutstandingYes,
			"yes pool bounded by seed plus minted shares")
		assert.LessOrEqual(t, got.NoPool, got.InitialLiquidity+got.OutstandingNo,
			"no pool bounded by seed plus minted shares")
	}

	_, err := f.eng.Report(ctx, m.ID, oracle, domain.SideYes)
	require.NoError(t, err)

	// Everyone claims their full winning balance; the pool must never go
	// negative and the running conservation identity must hold throughout.
	for _, acct := range accounts {
		held, err := f.eng.Position(m.ID, acct, domain.SideYes)
		require.NoError(t, err)
		if held == 0 {
			continue
		}
		_, err = f.eng.Claim(ctx, m.ID, acct, domain.SideYes, held)
		require.NoError(t, err)

		got, err := f.eng.Market(m.ID)
		require.NoError(t, err)
		assert.Equal(t, got.PaidIn-got.PaidOut, got.CollateralPool)
		assert.Equal(t, got.CollateralPool, f.ledger.Escrowed())
	}

	got, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.OutstandingYes, "all winning shares burned")
}

func TestConcurrentTradesLinearize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 100)

	const workers = 8
	const tradesEach = 25

	var wg sync.WaitGroup
	costs := make([]uint64, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			acct := accounts()[w%3]
			side := domain.SideYes
			if w%2 == 1 {
				side = domain.SideNo
			}
			for i := 0; i < tradesEach; i++ {
				receipt, err := f.eng.Trade(ctx, m.ID, acct, side, 10, 1_000_000)
				if err != nil {
					// Concurrent buys may legitimately hit the reserve
					// floor; anything else is a bug.
					assert.ErrorIs(t, err, domain.ErrPoolExhausted)
					continue
				}
				costs[w] += receipt.Cost
			}
		}(w)
	}
	wg.Wait()

	var totalCost uint64
	for _, c := range costs {
		totalCost += c
	}

	got, err := f.eng.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, totalCost, got.CollateralPool)
	assert.Equal(t, totalCost, f.ledger.Escrowed())
	assert.Equal(t, got.PaidIn-got.PaidOut, got.CollateralPool)

	// Restoring the final snapshot into a fresh engine re-runs the full
	// invariant check over the ledger.
	snapshot, positions, err := f.eng.Snapshot(m.ID)
	require.NoError(t, err)
	fresh := engine.New(engine.Config{InitialLiquidity: 1000, Owner: owner}, f.ledger, testLogger())
	require.NoError(t, fresh.Restore(snapshot, positions))
}

func TestIndependentMarketsTradeConcurrently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids := make([]string, 4)
	for i := range ids {
		ids[i] = f.openMarket(t, 200).ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := f.eng.Trade(ctx, id, alice, domain.SideYes, 5, 1_000_000)
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		got, err := f.eng.Market(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(250), got.OutstandingYes)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t, 300)

	_, err := f.eng.Trade(ctx, m.ID, alice, domain.SideYes, 100, 500)
	require.NoError(t, err)

	snapshot, positions, err := f.eng.Snapshot(m.ID)
	require.NoError(t, err)

	fresh := engine.New(engine.Config{InitialLiquidity: 1000, Owner: owner}, f.ledger, testLogger())
	fresh.SetClock(f.clock)
	require.NoError(t, fresh.Restore(snapshot, positions))

	// The restored market behaves identically: same quote, same claims.
	q1, err := f.eng.Quote(ctx, m.ID, domain.SideYes, 50)
	require.NoError(t, err)
	q2, err := fresh.Quote(ctx, m.ID, domain.SideYes, 50)
	require.NoError(t, err)
	assert.Equal(t, q1, q2)

	// Restoring a corrupted snapshot must be rejected.
	corrupt := snapshot
	corrupt.CollateralPool++
	bad := engine.New(engine.Config{InitialLiquidity: 1000, Owner: owner}, f.ledger, testLogger())
	require.Error(t, bad.Restore(corrupt, positions))
}

func TestCreateMarketAppliesDefaultFeeRate(t *testing.T) {
	ledger := treasury.NewLedger()
	eng := engine.New(engine.Config{
		InitialLiquidity:  1000,
		DefaultFeeRateBps: 250,
		Owner:             owner,
	}, ledger, testLogger())

	m, err := eng.CreateMarket(context.Background(), engine.CreateParams{
		Question: "is the submitted contract vulnerable?",
		Creator:  creator,
		Oracle:   oracle,
		EndTime:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(250), m.FeeRateBps)

	m, err = eng.CreateMarket(context.Background(), engine.CreateParams{
		Question:   "is the submitted contract vulnerable?",
		Creator:    creator,
		Oracle:     oracle,
		EndTime:    time.Now().Add(time.Hour),
		FeeRateBps: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), m.FeeRateBps)
}

func accounts() []common.Address {
	return []common.Address{alice, bob, carol}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
