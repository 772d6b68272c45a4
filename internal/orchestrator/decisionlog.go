package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tuanphm93/coinfactor/internal/regime"
	"github.com/tuanphm93/coinfactor/internal/risk"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Decision is the full record of one cycle, appended to the decision log so
// every rebalance is replayable and auditable after the fact.
type Decision struct {
	Timestamp    time.Time           `json:"timestamp"`
	Regime       regime.Result       `json:"regime"`
	Risk         risk.Report         `json:"risk"`
	TopRanking   []RankedEntry       `json:"top_ranking"`
	Weights      map[string]float64  `json:"weights"`
	Reserve      float64             `json:"reserve"`
	Instructions []types.Instruction `json:"instructions"`
	Rebalanced   bool                `json:"rebalanced"`
	Excluded     map[string]string   `json:"excluded,omitempty"`
}

// RankedEntry is the slim per-symbol ranking line kept in the log.
type RankedEntry struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

// DecisionLog is the append-only JSONL decision journal. One writer, one
// line per cycle.
type DecisionLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenDecisionLog opens (creating if needed) the journal at path.
func OpenDecisionLog(path string) (*DecisionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create decision log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open decision log: %w", err)
	}
	return &DecisionLog{file: f}, nil
}

// Append writes one decision record and syncs it.
func (l *DecisionLog) Append(d Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync decision log: %w", err)
	}
	return nil
}

// Close releases the journal file.
func (l *DecisionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
