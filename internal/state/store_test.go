package state

import (
	"sync"
	"testing"
	"time"

	"futures-advisor/internal/signal"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSaveOverwrites(t *testing.T) {
	s := NewMemoryStore()

	if _, ok := s.LastTime("BTCUSDT", signal.ShortTerm); ok {
		t.Error("fresh store must report absence")
	}
	if _, ok := s.LastDirection("BTCUSDT", signal.ShortTerm); ok {
		t.Error("fresh store must report absence")
	}

	s.Save("BTCUSDT", signal.ShortTerm, t0, signal.Long)
	s.Save("BTCUSDT", signal.ShortTerm, t0.Add(time.Hour), signal.Short)

	at, ok := s.LastTime("BTCUSDT", signal.ShortTerm)
	if !ok || !at.Equal(t0.Add(time.Hour)) {
		t.Errorf("expected overwritten time, got %v (present=%v)", at, ok)
	}
	dir, ok := s.LastDirection("BTCUSDT", signal.ShortTerm)
	if !ok || dir != signal.Short {
		t.Errorf("expected overwritten direction short, got %s", dir)
	}
}

func TestTimeframesAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	s.Save("BTCUSDT", signal.ShortTerm, t0, signal.Long)

	if _, ok := s.LastTime("BTCUSDT", signal.MediumTerm); ok {
		t.Error("medium timeframe must not see short-term state")
	}

	s.Save("BTCUSDT", signal.MediumTerm, t0.Add(time.Minute), signal.Short)
	dir, _ := s.LastDirection("BTCUSDT", signal.ShortTerm)
	if dir != signal.Long {
		t.Errorf("short-term entry must be untouched, got %s", dir)
	}
}

func TestClearScopes(t *testing.T) {
	s := NewMemoryStore()
	s.Save("BTCUSDT", signal.ShortTerm, t0, signal.Long)
	s.Save("BTCUSDT", signal.MediumTerm, t0, signal.Long)
	s.Save("ETHUSDT", signal.ShortTerm, t0, signal.Short)

	s.Clear("BTCUSDT")
	if _, ok := s.LastTime("BTCUSDT", signal.ShortTerm); ok {
		t.Error("clear must remove the symbol's short-term entry")
	}
	if _, ok := s.LastTime("BTCUSDT", signal.MediumTerm); ok {
		t.Error("clear must remove the symbol's medium-term entry")
	}
	if _, ok := s.LastTime("ETHUSDT", signal.ShortTerm); !ok {
		t.Error("clear of one symbol must not touch others")
	}

	s.Clear("")
	if len(s.Snapshot()) != 0 {
		t.Error("clear with empty symbol must wipe everything")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	for _, sym := range symbols {
		wg.Add(2)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Save(sym, signal.ShortTerm, t0.Add(time.Duration(i)*time.Second), signal.Long)
			}
		}(sym)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.LastTime(sym, signal.ShortTerm)
				s.LastDirection(sym, signal.MediumTerm)
			}
		}(sym)
	}
	wg.Wait()

	for _, sym := range symbols {
		if _, ok := s.LastTime(sym, signal.ShortTerm); !ok {
			t.Errorf("symbol %s lost its entry", sym)
		}
	}
}

func TestRedisStoreWithoutClient(t *testing.T) {
	s := NewRedisStore(nil)
	if s.Available() {
		t.Error("nil client must report unavailable")
	}

	// All operations must behave exactly like the memory store.
	s.Save("BTCUSDT", signal.ShortTerm, t0, signal.Long)
	dir, ok := s.LastDirection("BTCUSDT", signal.ShortTerm)
	if !ok || dir != signal.Long {
		t.Errorf("memory-only redis store must serve reads, got %s (present=%v)", dir, ok)
	}

	s.Clear("BTCUSDT")
	if _, ok := s.LastTime("BTCUSDT", signal.ShortTerm); ok {
		t.Error("clear must work in memory-only mode")
	}
}
