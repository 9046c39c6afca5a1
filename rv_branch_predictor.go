// rv_branch_predictor.go - 2-bit saturating branch predictor

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
Buy me a coffee: https://ko-fi.com/intuition/tip

License: GPLv3 or later
*/

package main

// ------------------------------------------------------------------------------
// 2-bit Saturating Counter Branch Predictor
// ------------------------------------------------------------------------------
//
//	0 strongly not taken   1 weakly not taken
//	2 weakly taken         3 strongly taken
//
// Two consecutive mispredictions are needed to flip a settled prediction.
// Entries are created on first update at 1 and never evicted: the set of
// branch addresses is bounded by the program size.

const (
	BP_COUNTER_MAX     = 3
	BP_COUNTER_INITIAL = 1
	BP_TAKEN_THRESHOLD = 2
)

// BranchPredictor maps branch addresses to 2-bit counters.
type BranchPredictor struct {
	table   map[uint32]uint8
	updates uint64
}

// BranchPredictorStats summarises predictor state.
type BranchPredictorStats struct {
	Entries   int    // addresses tracked
	TakenBias int    // entries currently predicting taken
	Updates   uint64 // outcomes reported
}

func NewBranchPredictor() *BranchPredictor {
	return &BranchPredictor{table: make(map[uint32]uint8)}
}

// Predict reports whether the branch at pc is expected to be taken.
// Unknown addresses predict not taken.
func (bp *BranchPredictor) Predict(pc uint32) bool {
	return bp.table[pc] >= BP_TAKEN_THRESHOLD
}

// Update trains the counter for pc with the resolved outcome.
func (bp *BranchPredictor) Update(pc uint32, taken bool) {
	state, ok := bp.table[pc]
	if !ok {
		state = BP_COUNTER_INITIAL
	}
	if taken {
		if state < BP_COUNTER_MAX {
			state++
		}
	} else if state > 0 {
		state--
	}
	bp.table[pc] = state
	bp.updates++
}

// Counter returns the raw counter for pc and whether it has been trained.
func (bp *BranchPredictor) Counter(pc uint32) (uint8, bool) {
	state, ok := bp.table[pc]
	return state, ok
}

func (bp *BranchPredictor) Stats() BranchPredictorStats {
	stats := BranchPredictorStats{Entries: len(bp.table), Updates: bp.updates}
	for _, state := range bp.table {
		if state >= BP_TAKEN_THRESHOLD {
			stats.TakenBias++
		}
	}
	return stats
}
