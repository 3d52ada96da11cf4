package coupon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/clock"
	"github.com/ariefcatur/go-order-core.git/internal/locker"
)

type fakeRepo struct {
	mu          sync.Mutex
	coupons     map[string]*Coupon
	userCoupons map[string]*UserCoupon
}

func newFakeRepo(coupons ...Coupon) *fakeRepo {
	r := &fakeRepo{
		coupons:     make(map[string]*Coupon),
		userCoupons: make(map[string]*UserCoupon),
	}
	for i := range coupons {
		c := coupons[i]
		r.coupons[c.ID] = &c
	}
	return r
}

func (r *fakeRepo) GetCoupon(_ context.Context, couponID string) (Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[couponID]
	if !ok {
		return Coupon{}, ErrCouponNotFound
	}
	return *c, nil
}

func (r *fakeRepo) IncrementIssued(_ context.Context, couponID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[couponID]
	if !ok || c.IssuedCount >= c.MaxIssueCount {
		return false, nil
	}
	c.IssuedCount++
	return true, nil
}

func (r *fakeRepo) DecrementIssued(_ context.Context, couponID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coupons[couponID]; ok && c.IssuedCount > 0 {
		c.IssuedCount--
	}
	return nil
}

func (r *fakeRepo) FindUserCoupon(_ context.Context, userID, couponID string) (*UserCoupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, uc := range r.userCoupons {
		if uc.UserID == userID && uc.CouponID == couponID {
			cp := *uc
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) GetUserCoupon(_ context.Context, id string) (UserCoupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uc, ok := r.userCoupons[id]
	if !ok {
		return UserCoupon{}, ErrUserCouponNotFound
	}
	return *uc, nil
}

func (r *fakeRepo) InsertUserCoupon(_ context.Context, uc UserCoupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.userCoupons {
		if existing.UserID == uc.UserID && existing.CouponID == uc.CouponID {
			return ErrAlreadyIssued
		}
	}
	r.userCoupons[uc.ID] = &uc
	return nil
}

func (r *fakeRepo) MarkUsed(_ context.Context, id, orderID string, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uc, ok := r.userCoupons[id]
	if !ok || uc.Status != UserCouponActive {
		return false, nil
	}
	uc.Status = UserCouponUsed
	uc.UsedAt = &usedAt
	uc.OrderID = &orderID
	return true, nil
}

func (r *fakeRepo) MarkActive(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uc, ok := r.userCoupons[id]
	if !ok || uc.Status != UserCouponUsed {
		return false, nil
	}
	uc.Status = UserCouponActive
	uc.UsedAt = nil
	uc.OrderID = nil
	return true, nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testCoupon(id string, max int) Coupon {
	return Coupon{
		ID:             id,
		Name:           "launch coupon",
		DiscountType:   DiscountFixed,
		DiscountValue:  decimal.NewFromInt(1000),
		MinOrderAmount: decimal.Zero,
		MaxIssueCount:  max,
		ValidFrom:      testNow.Add(-time.Hour),
		ValidTo:        testNow.Add(time.Hour),
	}
}

func newLedger(repo *fakeRepo, cfg Config) *Ledger {
	return NewLedger(repo, clock.NewFixed(testNow), cfg, zap.NewNop())
}

func TestLedger_Issue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("issues an active user coupon and bumps the counter", func(t *testing.T) {
		repo := newFakeRepo(testCoupon("c-1", 10))
		l := newLedger(repo, Config{})

		uc, err := l.Issue(ctx, "c-1", "user-1")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if uc.Status != UserCouponActive {
			t.Fatalf("status = %s, want ACTIVE", uc.Status)
		}
		if got, _ := repo.GetCoupon(ctx, "c-1"); got.IssuedCount != 1 {
			t.Fatalf("issued_count = %d, want 1", got.IssuedCount)
		}
	})

	t.Run("rejects a second issue to the same user", func(t *testing.T) {
		repo := newFakeRepo(testCoupon("c-1", 10))
		l := newLedger(repo, Config{})

		if _, err := l.Issue(ctx, "c-1", "user-1"); err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, err := l.Issue(ctx, "c-1", "user-1"); !errors.Is(err, ErrAlreadyIssued) {
			t.Fatalf("expected ErrAlreadyIssued, got %v", err)
		}
		if got, _ := repo.GetCoupon(ctx, "c-1"); got.IssuedCount != 1 {
			t.Fatalf("issued_count = %d after rejected issue, want 1", got.IssuedCount)
		}
	})

	t.Run("rejects when quota is exhausted", func(t *testing.T) {
		repo := newFakeRepo(testCoupon("c-1", 1))
		l := newLedger(repo, Config{})

		if _, err := l.Issue(ctx, "c-1", "user-1"); err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, err := l.Issue(ctx, "c-1", "user-2"); !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
	})

	t.Run("rejects outside the validity window", func(t *testing.T) {
		c := testCoupon("c-1", 10)
		c.ValidFrom = testNow.Add(time.Hour)
		c.ValidTo = testNow.Add(2 * time.Hour)
		l := newLedger(newFakeRepo(c), Config{})

		if _, err := l.Issue(ctx, "c-1", "user-1"); !errors.Is(err, ErrNotInValidityWindow) {
			t.Fatalf("expected ErrNotInValidityWindow, got %v", err)
		}
	})
}

// Two users race for a quota of one: exactly one wins.
func TestLedger_ConcurrentIssueHonorsQuota(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(testCoupon("c-1", 1))
	l := newLedger(repo, Config{})
	locks := locker.NewMemory()
	ctx := context.Background()

	var mu sync.Mutex
	issued := 0
	quotaHits := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := locker.WithKeys(ctx, locks, []string{"lock:coupon:c-1"}, 5*time.Second, time.Second, func(ctx context.Context) error {
				_, err := l.Issue(ctx, "c-1", fmt.Sprintf("user-%d", n))
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case errors.Is(err, ErrQuotaExceeded):
				quotaHits++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if issued != 1 {
		t.Fatalf("issued %d coupons, want 1", issued)
	}
	if got, _ := repo.GetCoupon(ctx, "c-1"); got.IssuedCount != 1 {
		t.Fatalf("issued_count = %d, want 1", got.IssuedCount)
	}
}

func TestLedger_RedeemAndRevoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("redeem flips to used, second redeem fails", func(t *testing.T) {
		repo := newFakeRepo(testCoupon("c-1", 10))
		l := newLedger(repo, Config{})

		uc, _ := l.Issue(ctx, "c-1", "user-1")
		if err := l.Redeem(ctx, uc.ID, "order-1"); err != nil {
			t.Fatalf("redeem: %v", err)
		}
		got, _ := repo.GetUserCoupon(ctx, uc.ID)
		if got.Status != UserCouponUsed || got.OrderID == nil || *got.OrderID != "order-1" {
			t.Fatalf("unexpected user coupon after redeem: %+v", got)
		}
		if err := l.Redeem(ctx, uc.ID, "order-2"); !errors.Is(err, ErrAlreadyUsed) {
			t.Fatalf("expected ErrAlreadyUsed, got %v", err)
		}
	})

	t.Run("revoke undoes usage but keeps the quota slot", func(t *testing.T) {
		repo := newFakeRepo(testCoupon("c-1", 10))
		l := newLedger(repo, Config{})

		uc, _ := l.Issue(ctx, "c-1", "user-1")
		_ = l.Redeem(ctx, uc.ID, "order-1")

		if err := l.Revoke(ctx, uc.ID); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		got, _ := repo.GetUserCoupon(ctx, uc.ID)
		if got.Status != UserCouponActive || got.UsedAt != nil || got.OrderID != nil {
			t.Fatalf("unexpected user coupon after revoke: %+v", got)
		}
		if c, _ := repo.GetCoupon(ctx, "c-1"); c.IssuedCount != 1 {
			t.Fatalf("issued_count = %d, slot must stay consumed", c.IssuedCount)
		}
	})

	t.Run("revoke restores quota when the policy flag is set", func(t *testing.T) {
		repo := newFakeRepo(testCoupon("c-1", 10))
		l := newLedger(repo, Config{RestoreQuotaOnRevoke: true})

		uc, _ := l.Issue(ctx, "c-1", "user-1")
		_ = l.Redeem(ctx, uc.ID, "order-1")
		if err := l.Revoke(ctx, uc.ID); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		if c, _ := repo.GetCoupon(ctx, "c-1"); c.IssuedCount != 0 {
			t.Fatalf("issued_count = %d, want 0 with RestoreQuotaOnRevoke", c.IssuedCount)
		}
	})

	t.Run("revoke of an unredeemed coupon is a no-op", func(t *testing.T) {
		repo := newFakeRepo(testCoupon("c-1", 10))
		l := newLedger(repo, Config{})

		uc, _ := l.Issue(ctx, "c-1", "user-1")
		if err := l.Revoke(ctx, uc.ID); err != nil {
			t.Fatalf("revoke on active coupon: %v", err)
		}
		got, _ := repo.GetUserCoupon(ctx, uc.ID)
		if got.Status != UserCouponActive {
			t.Fatalf("status = %s, want ACTIVE", got.Status)
		}
	})
}

func TestCoupon_Discount(t *testing.T) {
	t.Parallel()

	t.Run("fixed discount is capped at the total", func(t *testing.T) {
		c := testCoupon("c-1", 1)
		c.DiscountValue = decimal.NewFromInt(5000)

		d, err := c.Discount(decimal.NewFromInt(3000))
		if err != nil {
			t.Fatalf("discount: %v", err)
		}
		if !d.Equal(decimal.NewFromInt(3000)) {
			t.Fatalf("discount = %s, want 3000", d)
		}
	})

	t.Run("percentage discount floors the result", func(t *testing.T) {
		c := testCoupon("c-1", 1)
		c.DiscountType = DiscountPercentage
		c.DiscountValue = decimal.NewFromInt(15)

		d, err := c.Discount(decimal.NewFromInt(999))
		if err != nil {
			t.Fatalf("discount: %v", err)
		}
		if !d.Equal(decimal.NewFromInt(149)) {
			t.Fatalf("discount = %s, want 149", d)
		}
	})

	t.Run("rejects totals below the minimum order amount", func(t *testing.T) {
		c := testCoupon("c-1", 1)
		c.MinOrderAmount = decimal.NewFromInt(10000)

		if _, err := c.Discount(decimal.NewFromInt(9999)); !errors.Is(err, ErrMinOrderNotMet) {
			t.Fatalf("expected ErrMinOrderNotMet, got %v", err)
		}
	})
}
