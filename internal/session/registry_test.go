package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

// gaugeRecorder はSetActiveClientsの最後の値を記録するメトリクス。
type gaugeRecorder struct {
	mu   sync.Mutex
	last int
}

func (g *gaugeRecorder) RecordAuthEvent(string)                    {}
func (g *gaugeRecorder) RecordGuardDecision(string, string)        {}
func (g *gaugeRecorder) RecordSurveySubmitted(bool, time.Duration) {}
func (g *gaugeRecorder) SetActiveClients(n int) {
	g.mu.Lock()
	g.last = n
	g.mu.Unlock()
}

func (g *gaugeRecorder) value() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

type factoryRecorder struct {
	mu        sync.Mutex
	calls     map[string]int
	seeds     map[string]string
	providers map[string]*fakeProvider
}

func newFactoryRecorder() *factoryRecorder {
	return &factoryRecorder{
		calls:     make(map[string]int),
		seeds:     make(map[string]string),
		providers: make(map[string]*fakeProvider),
	}
}

func (f *factoryRecorder) factory(clientID, seedToken string) *Store {
	provider := newFakeProvider()
	f.mu.Lock()
	f.calls[clientID]++
	f.seeds[clientID] = seedToken
	f.providers[clientID] = provider
	f.mu.Unlock()
	return New(provider, newFakeRoles(), newTestLogger(nil))
}

func testRegistryConfig() RegistryConfig {
	return RegistryConfig{IdleTTL: time.Minute, CleanupInterval: time.Hour}
}

func TestRegistry_GetReturnsSameStorePerClient(t *testing.T) {
	rec := newFactoryRecorder()
	r := NewRegistry(rec.factory, testRegistryConfig(), nil)
	defer r.Stop()

	a1 := r.Get("client-a", "token-a")
	a2 := r.Get("client-a", "ignored")
	b := r.Get("client-b", "")

	if a1 != a2 {
		t.Error("同じクライアントに別のStoreが返された")
	}
	if a1 == b {
		t.Error("別のクライアントに同じStoreが返された")
	}
	if rec.calls["client-a"] != 1 {
		t.Errorf("factory calls for client-a = %d, want 1", rec.calls["client-a"])
	}
	if rec.seeds["client-a"] != "token-a" {
		t.Errorf("seed token = %q, want token-a", rec.seeds["client-a"])
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistry_ConcurrentGetCreatesOnce(t *testing.T) {
	rec := newFactoryRecorder()
	r := NewRegistry(rec.factory, testRegistryConfig(), nil)
	defer r.Stop()

	var wg sync.WaitGroup
	stores := make([]*Store, 50)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stores[i] = r.Get("shared", "")
		}(i)
	}
	wg.Wait()

	for i, s := range stores {
		if s != stores[0] {
			t.Fatalf("stores[%d] が別インスタンス", i)
		}
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.calls["shared"] != 1 {
		t.Errorf("factory calls = %d, want 1", rec.calls["shared"])
	}
}

func TestRegistry_EvictIdleClosesStores(t *testing.T) {
	rec := newFactoryRecorder()
	gauge := &gaugeRecorder{}
	r := NewRegistry(rec.factory, testRegistryConfig(), gauge)
	defer r.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	idle := r.Get("idle", "")
	idle.Initialize(context.Background())
	r.Get("active", "")
	if gauge.value() != 2 {
		t.Errorf("active clients gauge = %d, want 2", gauge.value())
	}

	now = now.Add(45 * time.Second)
	r.Get("active", "")
	now = now.Add(30 * time.Second)

	if evicted := r.evictIdle(); evicted != 1 {
		t.Fatalf("evictIdle() = %d, want 1", evicted)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if gauge.value() != 1 {
		t.Errorf("active clients gauge = %d, want 1", gauge.value())
	}
	if rec.providers["idle"].subscriberCount() != 0 {
		t.Error("破棄されたStoreの購読が解除されていない")
	}

	// 破棄後のGetは新しいStoreを生成する
	if again := r.Get("idle", ""); again == idle {
		t.Error("破棄されたStoreが再利用された")
	}
}

func TestRegistry_MaxClientsEvictsLeastRecentlyUsed(t *testing.T) {
	rec := newFactoryRecorder()
	gauge := &gaugeRecorder{}
	cfg := testRegistryConfig()
	cfg.MaxClients = 2
	r := NewRegistry(rec.factory, cfg, gauge)
	defer r.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	a := r.Get("a", "")
	now = now.Add(time.Second)
	b := r.Get("b", "token-b")
	b.Initialize(context.Background())
	now = now.Add(time.Second)
	r.Get("a", "")
	now = now.Add(time.Second)

	r.Get("c", "")

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if gauge.value() != 2 {
		t.Errorf("active clients gauge = %d, want 2", gauge.value())
	}
	if rec.providers["b"].subscriberCount() != 0 {
		t.Error("上限で破棄されたStoreの購読が解除されていない")
	}
	if got := r.Get("a", ""); got != a {
		t.Error("最近アクセスしたクライアントのStoreが破棄された")
	}

	// 破棄されたクライアントはCookieのトークンから作り直される
	if again := r.Get("b", "token-b"); again == b {
		t.Error("破棄されたStoreが再利用された")
	}
	if rec.calls["b"] != 2 || rec.seeds["b"] != "token-b" {
		t.Errorf("factory calls for b = %d, seed = %q, want 2 / token-b", rec.calls["b"], rec.seeds["b"])
	}
}

func TestRegistry_RemoveClosesStore(t *testing.T) {
	rec := newFactoryRecorder()
	r := NewRegistry(rec.factory, testRegistryConfig(), nil)
	defer r.Stop()

	s := r.Get("client", "")
	s.Initialize(context.Background())

	r.Remove("client")
	r.Remove("client")

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if rec.providers["client"].subscriberCount() != 0 {
		t.Error("Remove後も購読が残っている")
	}
}

func TestRegistry_StopClosesAllAndIsIdempotent(t *testing.T) {
	rec := newFactoryRecorder()
	gauge := &gaugeRecorder{}
	r := NewRegistry(rec.factory, RegistryConfig{IdleTTL: time.Minute, CleanupInterval: time.Millisecond}, gauge)

	for _, id := range []string{"a", "b", "c"} {
		r.Get(id, "").Initialize(context.Background())
	}

	r.Stop()
	r.Stop()

	if r.Len() != 0 {
		t.Errorf("Len() after Stop = %d, want 0", r.Len())
	}
	for id, p := range rec.providers {
		if p.subscriberCount() != 0 {
			t.Errorf("client %s: Stop後も購読が残っている", id)
		}
	}
	if gauge.value() != 0 {
		t.Errorf("active clients gauge = %d, want 0", gauge.value())
	}
}

func TestDefaultRegistryConfig(t *testing.T) {
	cfg := DefaultRegistryConfig()
	if cfg.IdleTTL != 30*time.Minute {
		t.Errorf("IdleTTL = %v, want 30m", cfg.IdleTTL)
	}
	if cfg.CleanupInterval <= 0 {
		t.Errorf("CleanupInterval = %v, want > 0", cfg.CleanupInterval)
	}
	if cfg.MaxClients <= 0 {
		t.Errorf("MaxClients = %d, want > 0", cfg.MaxClients)
	}
}
