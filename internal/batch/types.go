package batch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/deidentifier/internal/domain"
)

// Record is a single input row. ID is optional; rows without one are
// numbered from 1 in file order.
type Record struct {
	ID   string `csv:"id" parquet:"id,optional" json:"id,omitempty"`
	Text string `csv:"text" parquet:"text" json:"text"`
}

// OutputRecord is one line of the JSONL output.
type OutputRecord struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Entities int          `json:"entities"`
	Stats    domain.Stats `json:"stats"`
}

// Mode selects the rewrite applied to every record.
type Mode string

const (
	ModeAnonymize    Mode = "anonymize"
	ModePseudonymize Mode = "pseudonymize"
)

// Options describes one file run.
type Options struct {
	Mode        Mode
	Operator    string
	Method      string
	Params      map[string]any
	Language    string
	MinScore    float64
	EntityTypes []string
}

// ProcessingResult summarizes a file run.
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Skipped         int64         `json:"skipped"`
	Duration        time.Duration `json:"duration"`
	AnalysisTime    time.Duration `json:"analysis_time"`
	EntityStats     domain.Stats  `json:"entity_stats"`
	Errors          []string      `json:"errors,omitempty"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension; unknown extensions
// are read as CSV.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	default:
		return FormatCSV
	}
}
