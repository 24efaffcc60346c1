package survey

import (
	"sync"
	"time"

	"github.com/rif/cache2go"
)

const (
	// DefaultDraftTTL は入力中のフォームを保持する既定の期間。
	DefaultDraftTTL = 2 * time.Hour

	// DefaultDraftCapacity は同時に保持する下書きの既定の上限。
	// 上限を超えると最も長く使われていない下書きから破棄する。
	DefaultDraftCapacity = 10000
)

// draft はクライアントごとの入力中のフォーム。
type draft struct {
	form   *Form
	userID string
}

// Drafts はブラウザクライアントごとの入力中のフォームを保持する。
// 最後の更新から ttl を超えた下書きは破棄され、次のアクセスで新しいフォームになる。
type Drafts struct {
	fields []Field

	// Get と Mount の置き換えを1つの操作にする
	mu    sync.Mutex
	cache *cache2go.Cache
}

// NewDrafts は最大 capacity 件の下書きを ttl の間保持するDraftsを生成する。
func NewDrafts(capacity int, ttl time.Duration) *Drafts {
	return &Drafts{
		fields: Fields,
		cache:  cache2go.New(capacity, ttl),
	}
}

// Mount は画面表示時に呼び出し、クライアントの下書きを新しいフォームに置き換える。
func (d *Drafts) Mount(clientID, userID string) *Form {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mountLocked(clientID, userID)
}

// Get はクライアントの下書きを返す。
// 下書きがない場合や別のユーザーの下書きの場合は新しいフォームを作る。
func (d *Drafts) Get(clientID, userID string) *Form {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.cache.Get(clientID); ok {
		if dr, ok := v.(*draft); ok && dr.userID == userID {
			// 有効期限を延ばす
			d.cache.Set(clientID, dr)
			return dr.form
		}
	}
	return d.mountLocked(clientID, userID)
}

// Remove はクライアントの下書きを破棄する。
func (d *Drafts) Remove(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Delete(clientID)
}

// Len は保持している下書きの数を返す。
func (d *Drafts) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.Len()
}

func (d *Drafts) mountLocked(clientID, userID string) *Form {
	form := NewFormWithFields(userID, d.fields)
	d.cache.Set(clientID, &draft{form: form, userID: userID})
	return form
}
