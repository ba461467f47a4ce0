package store

import (
	"sync"
	"testing"
)

func TestPutInsertThenModify(t *testing.T) {
	tbl := New[string, int]("t")
	var events []Event
	tbl.Subscribe(func(ev Event, key string, row Row[int]) {
		events = append(events, ev)
	})

	tbl.Put("a", 1, "node1")
	tbl.Put("a", 2, "node1")

	if len(events) != 2 || events[0] != EventInsert || events[1] != EventModify {
		t.Fatalf("expected [insert modify], got %v", events)
	}
	v, ok := tbl.Get("a")
	if !ok || v != 2 {
		t.Fatalf("got (%v, %v), want (2, true)", v, ok)
	}
}

func TestGenerationStrictlyIncreasing(t *testing.T) {
	tbl := New[string, int]("t")
	g1 := tbl.Put("a", 1, "n")
	g2 := tbl.Put("b", 2, "n")
	g3 := tbl.Put("a", 3, "n")
	if !(g1 < g2 && g2 < g3) {
		t.Fatalf("generations not strictly increasing: %d %d %d", g1, g2, g3)
	}
}

func TestEraseNotifiesAndRemoves(t *testing.T) {
	tbl := New[string, int]("t")
	tbl.Put("a", 1, "n")
	if !tbl.Erase("a") {
		t.Fatal("expected erase to report removal")
	}
	if tbl.Erase("a") {
		t.Fatal("second erase of same key should report no removal")
	}
	if _, ok := tbl.Get("a"); ok {
		t.Fatal("row should be gone after erase")
	}
}

func TestEraseOriginSweepsOnlyMatchingRows(t *testing.T) {
	tbl := New[string, int]("t")
	tbl.Put("a", 1, "node1")
	tbl.Put("b", 2, "node2")
	tbl.Put("c", 3, "node1")

	removed := tbl.EraseOrigin("node1")
	if len(removed) != 2 {
		t.Fatalf("expected 2 rows removed, got %d", len(removed))
	}
	if _, ok := tbl.Get("b"); !ok {
		t.Fatal("node2's row must survive the sweep")
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 row left, got %d", tbl.Len())
	}
}

func TestClearNotifiesOnce(t *testing.T) {
	tbl := New[string, int]("t")
	tbl.Put("a", 1, "n")
	tbl.Put("b", 2, "n")
	count := 0
	tbl.Subscribe(func(ev Event, key string, row Row[int]) {
		if ev == EventClear {
			count++
		}
	})
	tbl.Clear()
	if count != 1 {
		t.Fatalf("expected exactly one clear event, got %d", count)
	}
	if tbl.Len() != 0 {
		t.Fatal("table should be empty after clear")
	}
}

func TestAccessLocksInNameOrderAcrossGoroutines(t *testing.T) {
	a := New[string, int]("alpha")
	b := New[string, int]("beta")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			Access(func() {
				a.rows["x"] = Row[int]{Value: a.rows["x"].Value + 1}
				b.rows["x"] = Row[int]{Value: b.rows["x"].Value + 1}
			}, a, b)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			// Pass in reverse argument order; Access must still lock by
			// Name so this can never deadlock against the other goroutine.
			Access(func() {
				b.rows["x"] = Row[int]{Value: b.rows["x"].Value + 1}
				a.rows["x"] = Row[int]{Value: a.rows["x"].Value + 1}
			}, b, a)
		}
	}()
	wg.Wait()

	if a.rows["x"].Value != 200 || b.rows["x"].Value != 200 {
		t.Fatalf("expected both tables at 200, got a=%d b=%d", a.rows["x"].Value, b.rows["x"].Value)
	}
}
