// Package batch imports dose records in bulk from a JSON file.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
	"github.com/gmsas95/medtrack/internal/medication"
	"github.com/gmsas95/medtrack/internal/security"
)

// Recorder is the part of the medication store the importer writes to
type Recorder interface {
	RecordDose(ctx context.Context, userID, medicationID string, in medication.DoseInput) (bool, error)
}

type Processor struct {
	recorder Recorder
	config   Config
	inputs   *security.InputValidator
	logger   *zap.Logger
}

type Config struct {
	MaxConcurrency int
	SkipInvalid    bool
}

// InputItem is one dose record of an import file
type InputItem struct {
	UserID       string `json:"user_id"`
	MedicationID string `json:"medication_id"`
	Status       string `json:"status"`
	At           string `json:"date,omitempty"`
	SlotID       string `json:"slot_id,omitempty"`
}

type OutputItem struct {
	Index        int    `json:"index"`
	UserID       string `json:"user_id"`
	MedicationID string `json:"medication_id"`
	Success      bool   `json:"success"`
	Skipped      bool   `json:"skipped,omitempty"`
	Error        string `json:"error,omitempty"`
}

type Result struct {
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	Items     []OutputItem  `json:"items"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		SkipInvalid:    true,
	}
}

func NewProcessor(recorder Recorder, cfg Config, logger *zap.Logger) *Processor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Processor{
		recorder: recorder,
		config:   cfg,
		inputs:   security.NewInputValidator(),
		logger:   logger,
	}
}

// ProcessFile reads a JSON array or JSON lines file and records every item
func (p *Processor) ProcessFile(ctx context.Context, inputPath string) (*Result, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	items, err := LoadItems(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load input file: %w", err)
	}
	return p.Process(ctx, items), nil
}

// Process records items with up to MaxConcurrency workers. Items of one user
// go to the same worker in file order, so each history keeps that order.
func (p *Processor) Process(ctx context.Context, items []InputItem) *Result {
	result := &Result{
		Total:     len(items),
		StartTime: time.Now(),
		Items:     make([]OutputItem, len(items)),
	}

	var order []string
	groups := make(map[string][]int)
	for i, item := range items {
		if _, ok := groups[item.UserID]; !ok {
			order = append(order, item.UserID)
		}
		groups[item.UserID] = append(groups[item.UserID], i)
	}

	work := make(chan []int, len(order))
	for _, uid := range order {
		work <- groups[uid]
	}
	close(work)

	var wg sync.WaitGroup
	for i := 0; i < p.config.MaxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for indexes := range work {
				for _, idx := range indexes {
					// each index is written by exactly one worker
					result.Items[idx] = p.processItem(ctx, idx, items[idx])
				}
			}
		}()
	}
	wg.Wait()

	for _, output := range result.Items {
		switch {
		case output.Success:
			result.Success++
		case output.Skipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	p.logger.Info("Dose import finished",
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func (p *Processor) processItem(ctx context.Context, idx int, item InputItem) OutputItem {
	output := OutputItem{
		Index:        idx,
		UserID:       item.UserID,
		MedicationID: item.MedicationID,
	}

	in, err := p.toInput(item)
	if err != nil {
		output.Error = err.Error()
		output.Skipped = p.config.SkipInvalid
		return output
	}

	if err := ctx.Err(); err != nil {
		output.Error = err.Error()
		return output
	}

	ok, err := p.recorder.RecordDose(ctx, item.UserID, item.MedicationID, in)
	if err != nil {
		output.Error = err.Error()
		p.logger.Warn("Dose import item failed",
			zap.Int("index", idx),
			zap.String("user_id", item.UserID),
			zap.Error(err),
		)
		return output
	}
	if !ok {
		output.Error = apperrors.ErrMedicationNotFound.Message
		return output
	}

	output.Success = true
	return output
}

func (p *Processor) toInput(item InputItem) (medication.DoseInput, error) {
	var in medication.DoseInput

	if item.UserID == "" || item.MedicationID == "" {
		return in, apperrors.Malformed("user_id and medication_id are required")
	}
	if err := p.inputs.ValidateUserID(item.UserID); err != nil {
		return in, err
	}

	status, err := medication.ParseDoseStatus(item.Status)
	if err != nil {
		return in, err
	}
	in.Status = status
	in.SlotID = item.SlotID

	if item.At != "" {
		at, err := medication.ParseTime(item.At)
		if err != nil {
			return in, err
		}
		in.At = at
	}
	return in, nil
}

// LoadItems accepts either a JSON array of items or one JSON object per line.
// Blank lines and lines starting with # are ignored in the line format.
func LoadItems(r io.Reader) ([]InputItem, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if first == '[' {
		var items []InputItem
		if err := json.NewDecoder(br).Decode(&items); err != nil {
			return nil, apperrors.Malformed("invalid JSON array: %v", err)
		}
		return items, nil
	}

	var items []InputItem
	scanner := bufio.NewScanner(br)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || strings.HasPrefix(string(line), "#") {
			continue
		}
		var item InputItem
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, apperrors.Malformed("line %d: %v", lineNum, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return items, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
			return b, br.UnreadByte()
		}
	}
}

func (r *Result) Summary() string {
	var sb strings.Builder
	sb.WriteString("=== Dose Import Summary ===\n")
	sb.WriteString(fmt.Sprintf("Total:     %d\n", r.Total))
	sb.WriteString(fmt.Sprintf("Success:   %d\n", r.Success))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Skipped:   %d\n", r.Skipped))
	sb.WriteString(fmt.Sprintf("Duration:  %v\n", r.Duration))
	return sb.String()
}

func (r *Result) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
