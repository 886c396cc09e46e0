package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vipcontent/vipcheckout/internal/models"
)

func snapshot(id string) *models.CheckoutSnapshot {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	return &models.CheckoutSnapshot{
		ID:    id,
		State: models.StateCodeDisplayed,
		Buyer: models.Buyer{Name: "Ana", Email: "ana@example.com", Amount: 1990},
		Charge: &models.ChargeResult{
			TransactionID:     "tx_1",
			ExternalReference: "vip_1",
			PaymentCodeText:   "000201...",
			Amount:            1990,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// exerciseStore runs the common contract against a store.
func exerciseStore(t *testing.T, store models.SessionStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Save(ctx, snapshot("s1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State != models.StateCodeDisplayed || got.Charge == nil || got.Charge.TransactionID != "tx_1" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.Buyer.Email != "ana@example.com" || got.Buyer.Amount != 1990 {
		t.Fatalf("unexpected buyer: %+v", got.Buyer)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(30*time.Minute))
}

func TestMemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore(30 * time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	if err := store.Save(context.Background(), snapshot("s1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(context.Background(), snapshot("s2")); err != nil {
		t.Fatalf("save: %v", err)
	}

	now = now.Add(31 * time.Minute)
	if _, err := store.Load(context.Background(), "s1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
	if removed, _ := store.Purge(); removed != 1 {
		t.Fatalf("expected purge to remove the remaining expired entry, got %d", removed)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test", 30*time.Minute)
	defer store.Close()

	exerciseStore(t, store)
}

func TestRedisStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test", 30*time.Minute)
	defer store.Close()

	if err := store.Save(context.Background(), snapshot("s1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("test:session:s1"); ttl != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %s", ttl)
	}
	mr.FastForward(31 * time.Minute)
	if _, err := store.Load(context.Background(), "s1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}
