package session

import (
	"sync"
	"time"

	"github.com/hitoshi/mindme/internal/metrics"
)

// Factory はクライアントIDと永続化されたセッショントークンから新しいStoreを生成する。
type Factory func(clientID, seedToken string) *Store

// RegistryConfig はRegistryの設定を保持する。
type RegistryConfig struct {
	IdleTTL         time.Duration // 最終アクセスからこの時間を超えたStoreを破棄する
	CleanupInterval time.Duration // アイドルStoreのクリーンアップ間隔
	// MaxClients を超えると最終アクセスが最も古いStoreを破棄する。0は無制限。
	// 破棄されたクライアントは次のリクエストでsession_id Cookieから復元される。
	MaxClients int
}

// DefaultRegistryConfig はデフォルトのRegistry設定を返す。
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		IdleTTL:         30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxClients:      10000,
	}
}

// clientEntry はクライアントごとのStoreと最終アクセス時刻を保持する。
type clientEntry struct {
	store      *Store
	lastAccess time.Time
}

// Registry はブラウザクライアントごとのStoreを管理する。
type Registry struct {
	config  RegistryConfig
	factory Factory
	metrics metrics.MetricsCollector
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*clientEntry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry は新しいRegistryを生成する。
// バックグラウンドでアイドルStoreのクリーンアップを開始する。
func NewRegistry(factory Factory, config RegistryConfig, m metrics.MetricsCollector) *Registry {
	if m == nil {
		m = metrics.Nop{}
	}
	r := &Registry{
		config:  config,
		factory: factory,
		metrics: m,
		now:     time.Now,
		entries: make(map[string]*clientEntry),
		stopCh:  make(chan struct{}),
	}

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

// Get はクライアントのStoreを返す。存在しない場合は seedToken で初期化したStoreを生成する。
func (r *Registry) Get(clientID, seedToken string) *Store {
	r.mu.RLock()
	e, exists := r.entries[clientID]
	r.mu.RUnlock()

	if exists {
		r.mu.Lock()
		e.lastAccess = r.now()
		r.mu.Unlock()
		return e.store
	}

	r.mu.Lock()
	// ダブルチェック
	if e, exists := r.entries[clientID]; exists {
		e.lastAccess = r.now()
		r.mu.Unlock()
		return e.store
	}

	var evicted *Store
	if r.config.MaxClients > 0 && len(r.entries) >= r.config.MaxClients {
		evicted = r.evictOldestLocked()
	}

	store := r.factory(clientID, seedToken)
	r.entries[clientID] = &clientEntry{
		store:      store,
		lastAccess: r.now(),
	}
	count := len(r.entries)
	r.mu.Unlock()

	if evicted != nil {
		evicted.Close()
	}
	r.metrics.SetActiveClients(count)
	return store
}

// evictOldestLocked は最終アクセスが最も古いエントリを削除し、そのStoreを返す。
func (r *Registry) evictOldestLocked() *Store {
	var (
		oldestID string
		oldest   *clientEntry
	)
	for clientID, e := range r.entries {
		if oldest == nil || e.lastAccess.Before(oldest.lastAccess) {
			oldestID, oldest = clientID, e
		}
	}
	if oldest == nil {
		return nil
	}
	delete(r.entries, oldestID)
	return oldest.store
}

// Remove はクライアントのStoreを破棄する。
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	e, exists := r.entries[clientID]
	delete(r.entries, clientID)
	count := len(r.entries)
	r.mu.Unlock()

	if exists {
		e.store.Close()
		r.metrics.SetActiveClients(count)
	}
}

// Len は現在管理しているStoreの数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Stop はクリーンアップを停止し、全てのStoreを閉じる。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()

		r.mu.Lock()
		entries := r.entries
		r.entries = make(map[string]*clientEntry)
		r.mu.Unlock()

		for _, e := range entries {
			e.store.Close()
		}
		r.metrics.SetActiveClients(0)
	})
}

// cleanupLoop はバックグラウンドでアイドルStoreを定期的に破棄する。
func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCh:
			return
		}
	}
}

// evictIdle は最終アクセスからIdleTTLを超えたStoreを閉じて削除する。
func (r *Registry) evictIdle() int {
	now := r.now()

	var idle []*Store
	r.mu.Lock()
	for clientID, e := range r.entries {
		if now.Sub(e.lastAccess) > r.config.IdleTTL {
			idle = append(idle, e.store)
			delete(r.entries, clientID)
		}
	}
	count := len(r.entries)
	r.mu.Unlock()

	// Closeはゴルーチンの終了を待つためロックの外で行う
	for _, store := range idle {
		store.Close()
	}
	if len(idle) > 0 {
		r.metrics.SetActiveClients(count)
	}
	return len(idle)
}
