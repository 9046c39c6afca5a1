package main

import "testing"

func TestBranchPredictorUnknownPredictsNotTaken(t *testing.T) {
	bp := NewBranchPredictor()
	if bp.Predict(0x1000) {
		t.Fatal("unknown branch predicted taken")
	}
	if _, ok := bp.Counter(0x1000); ok {
		t.Fatal("Predict must not create an entry")
	}
}

func TestBranchPredictorCounterTransitions(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bool
		counter  uint8
		predict  bool
	}{
		{"one taken", []bool{true}, 2, true},
		{"one not taken", []bool{false}, 0, false},
		{"saturates high", []bool{true, true, true, true, true}, 3, true},
		{"saturates low", []bool{false, false, false, false}, 0, false},
		{"strong taken survives one miss", []bool{true, true, false}, 2, true},
		{"strong taken flips after two misses", []bool{true, true, false, false}, 1, false},
		{"weak taken flips after one miss", []bool{true, false}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := NewBranchPredictor()
			for _, taken := range tt.outcomes {
				bp.Update(0x2000, taken)
			}
			counter, ok := bp.Counter(0x2000)
			if !ok {
				t.Fatal("entry missing after update")
			}
			if counter != tt.counter {
				t.Fatalf("counter = %d, want %d", counter, tt.counter)
			}
			if got := bp.Predict(0x2000); got != tt.predict {
				t.Fatalf("Predict = %v, want %v", got, tt.predict)
			}
		})
	}
}

func TestBranchPredictorEntriesAreIndependent(t *testing.T) {
	bp := NewBranchPredictor()
	bp.Update(0x1000, true)
	bp.Update(0x1004, false)
	if !bp.Predict(0x1000) || bp.Predict(0x1004) {
		t.Fatal("entries interfered with each other")
	}

	stats := bp.Stats()
	if stats.Entries != 2 || stats.TakenBias != 1 || stats.Updates != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}
