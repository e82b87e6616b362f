package usage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	verrors "github.com/daemonvigil/vigil/errors"
)

// Request types recorded in the ledger.
const (
	RequestHeartbeat    = "heartbeat"
	RequestUserResponse = "user_response"
)

// modelPricing is cost per million tokens.
type modelPricing struct {
	Input  float64
	Output float64
}

// pricing holds per-model rates. Unknown models fall back to the default
// model's rates so records are never dropped for lack of a price.
var pricing = map[string]modelPricing{
	"claude-sonnet-4-20250514":   {Input: 3.00, Output: 15.00},
	"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	"claude-opus-4-5-20251101":   {Input: 15.00, Output: 75.00},
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.00},
	"claude-3-haiku-20240307":    {Input: 0.25, Output: 1.25},
	"gpt-4o":                     {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
	"gemini-1.5-pro":             {Input: 1.25, Output: 5.00},
	"gemini-1.5-flash":           {Input: 0.075, Output: 0.30},
}

const fallbackModel = "claude-sonnet-4-20250514"

// Record is one ledger entry.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"user_id"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	InputCost    float64   `json:"input_cost"`
	OutputCost   float64   `json:"output_cost"`
	TotalCost    float64   `json:"total_cost"`
	RequestType  string    `json:"request_type"`
}

// NewRecord computes costs for one request and stamps it with a fresh id.
func NewRecord(userID, model, requestType string, inputTokens, outputTokens int) Record {
	rates, ok := pricing[model]
	if !ok {
		rates = pricing[fallbackModel]
	}

	inputCost := float64(inputTokens) / 1_000_000 * rates.Input
	outputCost := float64(outputTokens) / 1_000_000 * rates.Output

	return Record{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    round6(inputCost),
		OutputCost:   round6(outputCost),
		TotalCost:    round6(inputCost + outputCost),
		RequestType:  requestType,
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Stats aggregates ledger entries over a time window.
type Stats struct {
	TotalCost    float64
	TotalTokens  int
	InputTokens  int
	OutputTokens int
	RequestCount int
}

// Tracker appends to and reads the usage ledger file.
type Tracker struct {
	mu   sync.Mutex
	path string
}

// NewTracker creates a tracker for the given ledger path. The file is
// created lazily on first append.
func NewTracker(path string) (*Tracker, error) {
	if path == "" {
		return nil, verrors.InvalidInput("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, verrors.StorageIO("create ledger directory", verrors.WithCause(err))
	}
	return &Tracker{path: path}, nil
}

// Append writes one record as a single JSONL line.
func (t *Tracker) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return verrors.StorageIO("encode usage record", verrors.WithCause(err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return verrors.StorageIO("open usage ledger", verrors.WithCause(err))
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return verrors.StorageIO("append usage record", verrors.WithCause(err))
	}
	return nil
}

// Stats aggregates all records in the last N days. userID filters to one
// user; empty aggregates everyone.
func (t *Tracker) Stats(userID string, days int) (Stats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, verrors.StorageIO("open usage ledger", verrors.WithCause(err))
	}
	defer f.Close()

	var stats Stats
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // skip malformed lines
		}
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		if userID != "" && rec.UserID != userID {
			continue
		}
		stats.InputTokens += rec.InputTokens
		stats.OutputTokens += rec.OutputTokens
		stats.TotalTokens += rec.InputTokens + rec.OutputTokens
		stats.TotalCost += rec.TotalCost
		stats.RequestCount++
	}
	if err := scanner.Err(); err != nil {
		return Stats{}, verrors.StorageIO("scan usage ledger", verrors.WithCause(err))
	}
	return stats, nil
}

// Report formats a spend summary for one user, suitable for a chat reply.
func (t *Tracker) Report(userID, model string) (string, error) {
	today, err := t.Stats(userID, 1)
	if err != nil {
		return "", err
	}
	week, err := t.Stats(userID, 7)
	if err != nil {
		return "", err
	}
	month, err := t.Stats(userID, 30)
	if err != nil {
		return "", err
	}

	report := "Status Report\n\n"
	report += fmt.Sprintf("Model: %s\n\n", model)
	report += "API Costs:\n"

	if today.RequestCount == 0 && month.RequestCount == 0 {
		report += "No API usage recorded yet\n"
		return report, nil
	}

	report += fmt.Sprintf("Today:      $%.4f (%d requests)\n", today.TotalCost, today.RequestCount)
	report += fmt.Sprintf("This Week:  $%.4f (%d requests)\n", week.TotalCost, week.RequestCount)
	report += fmt.Sprintf("This Month: $%.4f (%d requests)\n", month.TotalCost, month.RequestCount)
	report += fmt.Sprintf("\nUsage Today:\nTotal tokens: %d (%d in, %d out)",
		today.TotalTokens, today.InputTokens, today.OutputTokens)
	return report, nil
}
