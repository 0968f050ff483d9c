// Package batch de-identifies record files offline with the same analyzer
// and operators the API uses.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/engine"
	"github.com/raaihank/deidentifier/internal/enrichment"
	"github.com/raaihank/deidentifier/internal/logger"
	"github.com/raaihank/deidentifier/internal/pseudonym"
)

// Pipeline reads records in batches, rewrites their text and writes one JSONL
// line per record.
type Pipeline struct {
	analyzer   engine.Analyzer
	enrichment *enrichment.Manager
	config     config.BatchConfig
	logger     *logger.Logger

	mu        sync.RWMutex
	startTime time.Time
	processed int64
}

// NewPipeline creates a pipeline. manager may be nil to disable enrichment.
func NewPipeline(analyzer engine.Analyzer, manager *enrichment.Manager, cfg config.BatchConfig, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.ProgressReport <= 0 {
		cfg.ProgressReport = 1000
	}
	return &Pipeline{
		analyzer:   analyzer,
		enrichment: manager,
		config:     cfg,
		logger:     log.WithComponent("batch"),
		startTime:  time.Now(),
	}
}

// ProcessFile de-identifies every record of filePath (CSV, Parquet or JSONL)
// into out. A single operator, and so a single pseudonymization method
// instance, serves the whole file.
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string, out io.Writer, opts Options) (*ProcessingResult, error) {
	op, err := p.buildOperator(opts)
	if err != nil {
		return nil, err
	}

	format := DetectFileFormat(filePath)
	p.logger.Info("Starting batch run",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.String("mode", string(opts.Mode)),
		zap.Int("batch_size", p.config.BatchSize))

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	var next func() (*Record, error)
	switch format {
	case FormatCSV:
		next, err = csvRecords(file)
	case FormatParquet:
		reader := parquet.NewReader(file)
		defer reader.Close()
		next = func() (*Record, error) {
			var rec Record
			if err := reader.Read(&rec); err != nil {
				return nil, err
			}
			return &rec, nil
		}
	case FormatJSONL:
		next = jsonlRecords(file)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	p.resetStats()
	start := time.Now()
	result := &ProcessingResult{EntityStats: domain.Stats{}}
	w := bufio.NewWriter(out)

	if err := p.processBatches(ctx, next, op, opts, w, result); err != nil {
		return result, err
	}
	if err := w.Flush(); err != nil {
		return result, fmt.Errorf("failed to flush output: %w", err)
	}
	result.Duration = time.Since(start)

	p.logger.Info("Batch run completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("skipped", result.Skipped),
		zap.Int("entities", result.EntityStats.Total()),
		zap.Duration("total_duration", result.Duration))
	return result, nil
}

func (p *Pipeline) buildOperator(opts Options) (engine.Operator, error) {
	switch opts.Mode {
	case ModeAnonymize:
		name, err := domain.ParseOperator(opts.Operator)
		if err != nil {
			return nil, err
		}
		return engine.NewOperator(name, opts.Params)

	case ModePseudonymize:
		id, err := domain.ParseMethod(opts.Method)
		if err != nil {
			return nil, err
		}
		method, err := pseudonym.New(id, opts.Params)
		if err != nil {
			return nil, err
		}
		opCtx := engine.NewOperatorContext(method, nil, nil)
		if p.enrichment != nil && p.enrichment.Enabled() {
			opCtx = engine.NewOperatorContext(method, p.enrichment, p.enrichment.EnrichableTypes())
		}
		return engine.NewPseudonymizeOperator(opCtx, p.logger), nil

	default:
		return nil, domain.NewConfigurationError(fmt.Sprintf("unsupported batch mode: %s", opts.Mode), nil)
	}
}

// csvRecords reads a CSV with a header row; a "text" column is required and
// an "id" column is optional.
func csvRecords(r io.Reader) (func() (*Record, error), error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	textCol, idCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "text":
			textCol = i
		case "id":
			idCol = i
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}

	return func() (*Record, error) {
		row, err := reader.Read()
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &malformedError{err: err}
		}
		if err != nil {
			return nil, err
		}
		rec := &Record{}
		if textCol < len(row) {
			rec.Text = row[textCol]
		}
		if idCol >= 0 && idCol < len(row) {
			rec.ID = strings.TrimSpace(row[idCol])
		}
		return rec, nil
	}, nil
}

// jsonlRecords reads one JSON object per line; blank lines are ignored.
func jsonlRecords(r io.Reader) func() (*Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return func() (*Record, error) {
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var rec Record
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, &malformedError{err: err}
			}
			return &rec, nil
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
}

const maxLineBytes = 16 << 20

// malformedError marks a row that could not be decoded; the run skips it.
type malformedError struct {
	err error
}

func (e *malformedError) Error() string { return "malformed record: " + e.err.Error() }

func (e *malformedError) Unwrap() error { return e.err }

// processBatches drains next in batches of BatchSize.
func (p *Pipeline) processBatches(ctx context.Context, next func() (*Record, error), op engine.Operator, opts Options, w *bufio.Writer, result *ProcessingResult) error {
	var row int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch := make([]*Record, 0, p.config.BatchSize)
		eof := false
		for len(batch) < p.config.BatchSize {
			rec, err := next()
			if errors.Is(err, io.EOF) {
				eof = true
				break
			}
			row++
			var malformed *malformedError
			if errors.As(err, &malformed) {
				p.logger.Warn("Failed to read record", zap.Int64("row", row), zap.Error(err))
				result.TotalRecords++
				result.ProcessedFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row, err))
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read record %d: %w", row, err)
			}
			if rec.ID == "" {
				rec.ID = strconv.FormatInt(row, 10)
			}
			batch = append(batch, rec)
		}

		if err := p.processBatch(ctx, batch, op, opts, w, result); err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}

func (p *Pipeline) processBatch(ctx context.Context, batch []*Record, op engine.Operator, opts Options, w *bufio.Writer, result *ProcessingResult) error {
	if len(batch) == 0 {
		return nil
	}
	p.logger.Debug("Processing batch", zap.Int("batch_size", len(batch)))

	analysisOpts := domain.AnalysisOptions{
		Language:    opts.Language,
		MinScore:    opts.MinScore,
		EntityTypes: opts.EntityTypes,
	}

	for _, rec := range batch {
		result.TotalRecords++
		out := OutputRecord{ID: rec.ID, Text: rec.Text, Stats: domain.Stats{}}

		if strings.TrimSpace(rec.Text) == "" {
			result.Skipped++
		} else {
			analysisStart := time.Now()
			entities, err := p.analyzer.Analyze(ctx, rec.Text, analysisOpts)
			result.AnalysisTime += time.Since(analysisStart)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("Record analysis failed", zap.String("id", rec.ID), zap.Error(err))
				result.ProcessedFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("record %s: %v", rec.ID, err))
				continue
			}

			rewritten, err := engine.RewriteText(ctx, rec.Text, entities, op)
			if err != nil {
				// operator misconfiguration fails every record alike
				if domain.KindOf(err) == domain.KindConfiguration {
					return err
				}
				p.logger.Warn("Record rewrite failed", zap.String("id", rec.ID), zap.Error(err))
				result.ProcessedFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("record %s: %v", rec.ID, err))
				continue
			}

			out.Text = rewritten
			out.Entities = len(entities)
			out.Stats = domain.CountEntities(entities)
			for entityType, n := range out.Stats {
				result.EntityStats[entityType] += n
			}
			result.ProcessedOK++
		}

		line, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("failed to encode output record: %w", err)
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("failed to write output record: %w", err)
		}
		p.recordProgress(result)
	}
	return nil
}

func (p *Pipeline) recordProgress(result *ProcessingResult) {
	p.mu.Lock()
	p.processed++
	report := p.processed%int64(p.config.ProgressReport) == 0
	p.mu.Unlock()

	if report {
		p.reportProgress(result)
	}
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	elapsed := time.Since(p.startTime)
	rate := float64(result.TotalRecords) / elapsed.Seconds()

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}

func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = time.Now()
	p.processed = 0
}

// Processed returns the number of records written by the current run.
func (p *Pipeline) Processed() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processed
}
