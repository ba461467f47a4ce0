package store

import "testing"

func TestIDGenProducesIncreasingIDs(t *testing.T) {
	g, err := NewIDGen(1)
	if err != nil {
		t.Fatalf("new id gen: %v", err)
	}
	prev := uint64(0)
	for i := 0; i < 10; i++ {
		id, err := g.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if id <= prev {
			t.Fatalf("ids must strictly increase, got %d after %d", id, prev)
		}
		prev = id
	}
}
