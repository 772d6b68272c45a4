// Package equity persists the portfolio equity curve as an append-only
// JSONL file. A single writer appends one point per cycle; risk metrics
// replay the file on startup so drawdown and daily-loss state survive
// restarts.
package equity

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuanphm93/coinfactor/pkg/types"
)

// History is the append-only equity curve store.
type History struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	points []types.EquityPoint
	log    zerolog.Logger
}

// Open loads an existing history file (creating it if absent) and replays
// its points into memory. Corrupt trailing lines are skipped with a warning
// rather than failing the load: a crash mid-append must not brick the store.
func Open(path string, log zerolog.Logger) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create equity history dir: %w", err)
	}

	h := &History{
		path: path,
		log:  log.With().Str("component", "equity").Logger(),
	}

	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			var pt types.EquityPoint
			if err := json.Unmarshal(scanner.Bytes(), &pt); err != nil {
				h.log.Warn().Int("line", line).Err(err).Msg("skipping corrupt equity record")
				continue
			}
			h.points = append(h.points, pt)
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read equity history: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to open equity history: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open equity history for append: %w", err)
	}
	h.file = f
	h.log.Info().Int("points", len(h.points)).Str("path", path).Msg("equity history loaded")
	return h, nil
}

// Append records one equity observation and syncs it to disk.
func (h *History) Append(ts time.Time, value float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pt := types.EquityPoint{Timestamp: ts.UTC(), Equity: value}
	data, err := json.Marshal(pt)
	if err != nil {
		return fmt.Errorf("failed to marshal equity point: %w", err)
	}
	if _, err := h.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append equity point: %w", err)
	}
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync equity history: %w", err)
	}
	h.points = append(h.points, pt)
	return nil
}

// Points returns a copy of the in-memory curve, oldest first.
func (h *History) Points() []types.EquityPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.EquityPoint, len(h.points))
	copy(out, h.points)
	return out
}

// Latest returns the most recent point, or false when the curve is empty.
func (h *History) Latest() (types.EquityPoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.points) == 0 {
		return types.EquityPoint{}, false
	}
	return h.points[len(h.points)-1], true
}

// Len returns the number of recorded points.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.points)
}

// Close releases the underlying file.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}
