package survey

import (
	"testing"
	"time"
)

func TestDrafts_MountReplacesDraft(t *testing.T) {
	d := NewDrafts(10, time.Hour)

	first := d.Mount("c1", "u1")
	if err := first.SetScale("anxiety_level", 9); err != nil {
		t.Fatalf("SetScale() error = %v", err)
	}
	if d.Get("c1", "u1") != first {
		t.Fatal("Get は既存の下書きを返すべき")
	}

	second := d.Mount("c1", "u1")
	if second == first {
		t.Fatal("Mount は新しいフォームを作るべき")
	}
	if got := second.Answers().Scale("anxiety_level"); got != DefaultScale {
		t.Errorf("anxiety_level = %d, want %d", got, DefaultScale)
	}
}

func TestDrafts_GetForOtherUserStartsFresh(t *testing.T) {
	d := NewDrafts(10, time.Hour)
	form := d.Mount("c1", "u1")

	if d.Get("c1", "u2") == form {
		t.Error("別ユーザーに下書きを引き継いではならない")
	}
}

func TestDrafts_ExpireAfterTTL(t *testing.T) {
	d := NewDrafts(10, 20*time.Millisecond)

	form := d.Mount("c1", "u1")
	time.Sleep(50 * time.Millisecond)

	if d.Get("c1", "u1") == form {
		t.Error("期限切れの下書きを返した")
	}
}

func TestDrafts_EvictsLeastRecentlyUsedBeyondCapacity(t *testing.T) {
	d := NewDrafts(2, time.Hour)

	first := d.Mount("c1", "u1")
	second := d.Mount("c2", "u2")
	// c1 を使ったので最も古いのは c2
	if d.Get("c1", "u1") != first {
		t.Fatal("Get は既存の下書きを返すべき")
	}
	d.Mount("c3", "u3")

	if d.Len() != 2 {
		t.Errorf("Len = %d, want 2", d.Len())
	}
	if d.Get("c1", "u1") != first {
		t.Error("最近使った下書きが破棄された")
	}
	if d.Get("c2", "u2") == second {
		t.Error("上限を超えたのに最も古い下書きが残っている")
	}
}

func TestDrafts_Remove(t *testing.T) {
	d := NewDrafts(10, time.Hour)
	form := d.Mount("c1", "u1")
	d.Mount("c2", "u2")

	d.Remove("c1")
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
	if d.Get("c1", "u1") == form {
		t.Error("Remove した下書きが返された")
	}
}
