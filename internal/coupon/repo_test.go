package coupon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-core.git/internal/coupon"
	"github.com/ariefcatur/go-order-core.git/internal/testutil"
)

func TestRepo_QuotaGuard(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := &coupon.Repo{DB: pool}
	now := time.Now().UTC()
	testutil.InsertCoupon(t, ctx, pool, "coupon-1", decimal.NewFromInt(50), 2, now.Add(-time.Hour), now.Add(time.Hour))

	for i := 0; i < 2; i++ {
		bumped, err := repo.IncrementIssued(ctx, "coupon-1")
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if !bumped {
			t.Fatalf("increment %d refused below quota", i)
		}
	}

	bumped, err := repo.IncrementIssued(ctx, "coupon-1")
	if err != nil {
		t.Fatalf("increment over quota: %v", err)
	}
	if bumped {
		t.Fatal("increment succeeded past max_issue_count")
	}

	c, err := repo.GetCoupon(ctx, "coupon-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.IssuedCount != 2 {
		t.Fatalf("issued_count = %d, want 2", c.IssuedCount)
	}
}

func TestRepo_UserCouponUniqueness(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := &coupon.Repo{DB: pool}
	now := time.Now().UTC()
	testutil.InsertCoupon(t, ctx, pool, "coupon-1", decimal.NewFromInt(50), 10, now.Add(-time.Hour), now.Add(time.Hour))

	uc := coupon.UserCoupon{
		ID:       uuid.NewString(),
		UserID:   "user-1",
		CouponID: "coupon-1",
		Status:   coupon.UserCouponActive,
		IssuedAt: now,
	}
	if err := repo.InsertUserCoupon(ctx, uc); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := uc
	dup.ID = uuid.NewString()
	if err := repo.InsertUserCoupon(ctx, dup); !errors.Is(err, coupon.ErrAlreadyIssued) {
		t.Fatalf("duplicate err = %v, want ErrAlreadyIssued", err)
	}
}

func TestRepo_RedemptionRoundTrip(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := &coupon.Repo{DB: pool}
	now := time.Now().UTC().Truncate(time.Microsecond)
	testutil.InsertCoupon(t, ctx, pool, "coupon-1", decimal.NewFromInt(50), 10, now.Add(-time.Hour), now.Add(time.Hour))

	uc := coupon.UserCoupon{
		ID:       uuid.NewString(),
		UserID:   "user-1",
		CouponID: "coupon-1",
		Status:   coupon.UserCouponActive,
		IssuedAt: now,
	}
	if err := repo.InsertUserCoupon(ctx, uc); err != nil {
		t.Fatalf("insert: %v", err)
	}

	used, err := repo.MarkUsed(ctx, uc.ID, "order-1", now)
	if err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if !used {
		t.Fatal("mark used changed nothing")
	}

	if again, _ := repo.MarkUsed(ctx, uc.ID, "order-2", now); again {
		t.Fatal("second mark used succeeded")
	}

	got, err := repo.GetUserCoupon(ctx, uc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != coupon.UserCouponUsed || got.OrderID == nil || *got.OrderID != "order-1" {
		t.Fatalf("user coupon = %+v, want USED by order-1", got)
	}

	reverted, err := repo.MarkActive(ctx, uc.ID)
	if err != nil {
		t.Fatalf("mark active: %v", err)
	}
	if !reverted {
		t.Fatal("mark active changed nothing")
	}
	got, _ = repo.GetUserCoupon(ctx, uc.ID)
	if got.Status != coupon.UserCouponActive || got.UsedAt != nil || got.OrderID != nil {
		t.Fatalf("user coupon = %+v, want ACTIVE with cleared usage", got)
	}
}
