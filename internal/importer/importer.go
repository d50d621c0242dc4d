package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/domain"
	"github.com/soenlit/health-buddy/internal/ingest"
)

const defaultUnit = "count"

var importedPayload = json.RawMessage(`{"imported":true}`)

// SnapshotRow 快照文件的一行
type SnapshotRow struct {
	Timestamp  string `csv:"timestamp"`
	MetricType string `csv:"metric_type"`
	Value      string `csv:"value"`
	Unit       string `csv:"unit"`
	Source     string `csv:"source"`
}

// Importer loads a CSV / XLSX snapshot into the metric store in one transaction
type Importer struct {
	store    ingest.BatchWriter
	location *time.Location
	source   string
	logger   *zap.Logger
}

func NewImporter(store ingest.BatchWriter, loc *time.Location, source string, logger *zap.Logger) *Importer {
	if loc == nil {
		loc = time.Local
	}
	if source == "" {
		source = domain.DefaultSource
	}
	return &Importer{store: store, location: loc, source: source, logger: logger}
}

// ImportFile picks the parser from the extension (.csv or .xlsx).
func (i *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	i.logger.Info("Reading snapshot", zap.String("file", path))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return i.ImportCSV(ctx, f)
	case ".xlsx":
		return i.ImportXLSX(ctx, f)
	default:
		return 0, fmt.Errorf("unsupported snapshot format %q", filepath.Ext(path))
	}
}

// ImportCSV imports a CSV with header timestamp,metric_type,value[,unit][,source].
func (i *Importer) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	var rows []SnapshotRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return 0, fmt.Errorf("failed to parse csv: %w", err)
	}
	return i.importRows(ctx, rows)
}

// ImportXLSX imports the first sheet of a workbook with the same header as the CSV.
func (i *Importer) ImportXLSX(ctx context.Context, r io.Reader) (int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to parse Excel file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return 0, fmt.Errorf("Excel file has no sheets")
	}
	sheet, err := f.GetRows(sheetName)
	if err != nil {
		return 0, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(sheet) < 2 {
		return 0, nil
	}

	headerMap := make(map[string]int)
	for idx, h := range sheet[0] {
		headerMap[strings.ToLower(strings.TrimSpace(h))] = idx
	}
	for _, required := range []string{"timestamp", "metric_type", "value"} {
		if _, ok := headerMap[required]; !ok {
			return 0, fmt.Errorf("missing column %q", required)
		}
	}

	cell := func(row []string, name string) string {
		idx, ok := headerMap[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	rows := make([]SnapshotRow, 0, len(sheet)-1)
	for _, row := range sheet[1:] {
		if len(row) == 0 {
			continue
		}
		rows = append(rows, SnapshotRow{
			Timestamp:  cell(row, "timestamp"),
			MetricType: cell(row, "metric_type"),
			Value:      cell(row, "value"),
			Unit:       cell(row, "unit"),
			Source:     cell(row, "source"),
		})
	}
	return i.importRows(ctx, rows)
}

// importRows converts every row first; one bad row aborts the whole import.
func (i *Importer) importRows(ctx context.Context, rows []SnapshotRow) (int, error) {
	samples := make([]domain.MetricSample, 0, len(rows))
	for idx, row := range rows {
		sample, err := i.toSample(row)
		if err != nil {
			// +2: header line and 1-based numbering
			return 0, fmt.Errorf("row %d: %w", idx+2, err)
		}
		samples = append(samples, sample)
		if (idx+1)%100 == 0 {
			i.logger.Info("Processed rows", zap.Int("rows", idx+1))
		}
	}

	n, err := i.store.UpsertBatch(ctx, samples)
	if err != nil {
		return 0, fmt.Errorf("failed to import snapshot: %w", err)
	}
	i.logger.Info("Imported snapshot", zap.Int("rows", n))
	return n, nil
}

func (i *Importer) toSample(row SnapshotRow) (domain.MetricSample, error) {
	ts, err := ingest.ParseTimestamp(row.Timestamp, i.location)
	if err != nil {
		return domain.MetricSample{}, err
	}
	if strings.TrimSpace(row.MetricType) == "" {
		return domain.MetricSample{}, fmt.Errorf("empty metric_type")
	}
	value, err := cast.ToFloat64E(strings.TrimSpace(row.Value))
	if err != nil {
		return domain.MetricSample{}, fmt.Errorf("invalid value %q: %w", row.Value, err)
	}

	unit := row.Unit
	if unit == "" {
		unit = defaultUnit
	}
	source := row.Source
	if source == "" {
		source = i.source
	}
	return domain.MetricSample{
		Timestamp:  ts,
		MetricType: strings.TrimSpace(row.MetricType),
		Value:      value,
		Unit:       unit,
		Source:     source,
		RawPayload: importedPayload,
	}, nil
}
