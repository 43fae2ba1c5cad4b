package core

import (
	"sync"
	"testing"
	"time"
)

// TestRing_AppendAndWrap verifies wrapping behavior when the buffer fills
func TestRing_AppendAndWrap(t *testing.T) {
	ring := NewRing(3)

	if ring.Size() != 0 || ring.Capacity() != 3 || ring.CurrentSeq() != 0 {
		t.Fatalf("unexpected initial state: size=%d cap=%d seq=%d", ring.Size(), ring.Capacity(), ring.CurrentSeq())
	}

	for _, text := range []string{"one", "two", "three"} {
		l := LogLine{Text: text, Time: time.Now()}
		stored := ring.Append(l)
		if stored.Seq == 0 {
			t.Error("Expected non-zero sequence number")
		}
		if l.Seq != 0 {
			t.Error("Original line should not be modified")
		}
	}

	ring.Append(LogLine{Text: "four"})

	if ring.Size() != 3 {
		t.Errorf("Expected size 3 after wrap, got %d", ring.Size())
	}
	if ring.CurrentSeq() != 4 {
		t.Errorf("Expected seq 4, got %d", ring.CurrentSeq())
	}

	snap := ring.Snapshot()
	want := []string{"two", "three", "four"}
	if len(snap) != len(want) {
		t.Fatalf("Expected %d lines, got %d", len(want), len(snap))
	}
	for i, l := range snap {
		if l.Text != want[i] {
			t.Errorf("snapshot[%d] = %q, want %q", i, l.Text, want[i])
		}
		if l.Seq != uint64(i+2) {
			t.Errorf("snapshot[%d].Seq = %d, want %d", i, l.Seq, i+2)
		}
	}
}

func TestRing_Since(t *testing.T) {
	ring := NewRing(4)
	for i := 0; i < 6; i++ {
		ring.Append(LogLine{Text: "x"})
	}

	testCases := []struct {
		since uint64
		want  []uint64
	}{
		{0, []uint64{3, 4, 5, 6}}, // overwritten lines are skipped
		{2, []uint64{3, 4, 5, 6}},
		{4, []uint64{5, 6}},
		{6, nil},
		{99, nil},
	}
	for _, tc := range testCases {
		got := ring.Since(tc.since)
		if len(got) != len(tc.want) {
			t.Errorf("Since(%d) returned %d lines, want %d", tc.since, len(got), len(tc.want))
			continue
		}
		for i, l := range got {
			if l.Seq != tc.want[i] {
				t.Errorf("Since(%d)[%d].Seq = %d, want %d", tc.since, i, l.Seq, tc.want[i])
			}
		}
	}
}

func TestRing_Last(t *testing.T) {
	ring := NewRing(2)
	if _, ok := ring.Last(); ok {
		t.Fatal("Last on empty ring reported a line")
	}
	for _, text := range []string{"a", "b", "c"} {
		ring.Append(LogLine{Text: text})
	}
	if l, ok := ring.Last(); !ok || l.Text != "c" || l.Seq != 3 {
		t.Fatalf("Last = %+v, %v", l, ok)
	}
}

func TestRing_SnapshotIsACopy(t *testing.T) {
	ring := NewRing(2)
	ring.Append(LogLine{Text: "a"})
	snap := ring.Snapshot()
	snap[0].Text = "mutated"
	if got := ring.Snapshot()[0].Text; got != "a" {
		t.Fatalf("snapshot aliases ring storage: %q", got)
	}
}

func TestRing_ConcurrentReaders(t *testing.T) {
	ring := NewRing(100)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			ring.Append(LogLine{Text: "line"})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				lines := ring.Snapshot()
				for j := 1; j < len(lines); j++ {
					if lines[j].Seq != lines[j-1].Seq+1 {
						t.Errorf("non-contiguous snapshot: %d after %d", lines[j].Seq, lines[j-1].Seq)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	if ring.CurrentSeq() != 1000 || ring.Size() != 100 {
		t.Fatalf("seq=%d size=%d", ring.CurrentSeq(), ring.Size())
	}
}

func TestRing_EdgeCases(t *testing.T) {
	if got := NewRing(0).Capacity(); got != DefaultRingCapacity {
		t.Errorf("NewRing(0) capacity = %d, want %d", got, DefaultRingCapacity)
	}
	if got := NewRing(-5).Capacity(); got != DefaultRingCapacity {
		t.Errorf("NewRing(-5) capacity = %d", got)
	}
	if got := NewRing(3).Snapshot(); got != nil {
		t.Errorf("empty snapshot = %v", got)
	}

	one := NewRing(1)
	one.Append(LogLine{Text: "a"})
	one.Append(LogLine{Text: "b"})
	if snap := one.Snapshot(); len(snap) != 1 || snap[0].Text != "b" || snap[0].Seq != 2 {
		t.Errorf("capacity-1 ring = %+v", snap)
	}
}

func BenchmarkRing_Append(b *testing.B) {
	ring := NewRing(10000)
	l := LogLine{Text: "benchmark line", Container: "web"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ring.Append(l)
	}
}

func BenchmarkRing_Since(b *testing.B) {
	ring := NewRing(10000)
	for i := 0; i < 10000; i++ {
		ring.Append(LogLine{Text: "line"})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ring.Since(9900)
	}
}
