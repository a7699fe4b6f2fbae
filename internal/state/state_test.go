package state

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// runStoreTests общий набор проверок для любой реализации Store
func runStoreTests(t *testing.T, s Store) {
	ctx := context.Background()
	userID := time.Now().UnixNano()

	t.Run("state set get clear", func(t *testing.T) {
		got, err := s.Get(ctx, userID)
		if err != nil || got != "" {
			t.Fatalf("initial Get = %q, %v", got, err)
		}

		if err := s.Set(ctx, userID, AwaitingRedeemCode, time.Minute); err != nil {
			t.Fatal(err)
		}
		if got, _ := s.Get(ctx, userID); got != AwaitingRedeemCode {
			t.Errorf("Get = %q, want %q", got, AwaitingRedeemCode)
		}

		if err := s.Clear(ctx, userID); err != nil {
			t.Fatal(err)
		}
		if got, _ := s.Get(ctx, userID); got != "" {
			t.Errorf("Get after Clear = %q", got)
		}
	})

	t.Run("history bounded", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			ex := Exchange{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i), At: time.Now().UTC()}
			if err := s.AppendHistory(ctx, userID, ex, 3); err != nil {
				t.Fatal(err)
			}
		}

		items, err := s.History(ctx, userID, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 3 {
			t.Fatalf("len(History) = %d, want 3", len(items))
		}
		if items[0].Question != "q2" || items[2].Question != "q4" {
			t.Errorf("unexpected order: %+v", items)
		}

		last, _ := s.History(ctx, userID, 1)
		if len(last) != 1 || last[0].Answer != "a4" {
			t.Errorf("History(limit=1) = %+v", last)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore())
}

func TestMemoryStore_Expiry(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, 1, AwaitingStaffAdd, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendHistory(ctx, 1, Exchange{Question: "q"}, 0); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Minute)
	if got, _ := m.Get(ctx, 1); got != "" {
		t.Errorf("expired state returned %q", got)
	}
	if items, _ := m.History(ctx, 1, 0); len(items) != 1 {
		t.Errorf("history expired too early: %d", len(items))
	}

	now = now.Add(historyTTL)
	if items, _ := m.History(ctx, 1, 0); len(items) != 0 {
		t.Errorf("history should expire, got %d items", len(items))
	}
}

func TestMemoryStore_SweepEvictsIdleUsers(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, 1, AwaitingStaffAdd, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(ctx, 2, AwaitingStaffAdd, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendHistory(ctx, 1, Exchange{Question: "q"}, 0); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Minute)
	m.sweep()
	if states, histories := m.size(); states != 1 || histories != 1 {
		t.Errorf("after state expiry: states=%d histories=%d", states, histories)
	}

	now = now.Add(historyTTL + time.Hour)
	m.sweep()
	if states, histories := m.size(); states != 0 || histories != 0 {
		t.Errorf("after full expiry: states=%d histories=%d", states, histories)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	runStoreTests(t, s)
}
