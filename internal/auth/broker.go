package auth

import (
	"sync"

	"github.com/hitoshi/mindme/internal/session"
)

// Broker はブラウザクライアントごとにセッション変更イベントを配信する。
// OAuthコールバックのように、Client 以外の経路で成立したログインを
// そのクライアントのセッションストアへ通知するために使う。
type Broker struct {
	mu     sync.Mutex
	nextID uint64
	sinks  map[string]map[uint64]func(session.Event)
}

// NewBroker は空のBrokerを生成する。
func NewBroker() *Broker {
	return &Broker{sinks: make(map[string]map[uint64]func(session.Event))}
}

// Subscribe はクライアントのイベントを受け取る sink を登録し、登録解除関数を返す。
// 登録解除関数は複数回呼び出しても安全。
func (b *Broker) Subscribe(clientID string, sink func(session.Event)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.sinks[clientID] == nil {
		b.sinks[clientID] = make(map[uint64]func(session.Event))
	}
	b.sinks[clientID][id] = sink
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.sinks[clientID], id)
			if len(b.sinks[clientID]) == 0 {
				delete(b.sinks, clientID)
			}
		})
	}
}

// Publish はクライアントの全ての sink にイベントを同期的に配信する。
func (b *Broker) Publish(clientID string, ev session.Event) {
	b.mu.Lock()
	sinks := make([]func(session.Event), 0, len(b.sinks[clientID]))
	for _, sink := range b.sinks[clientID] {
		sinks = append(sinks, sink)
	}
	b.mu.Unlock()

	// sinkはストアの受信チャネルに書き込むためロックの外で呼ぶ
	for _, sink := range sinks {
		sink(ev)
	}
}

// Subscribers はクライアントの登録中の sink 数を返す。
func (b *Broker) Subscribers(clientID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sinks[clientID])
}
