package campaignstore

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tunex-app/tunex/internal/domain"
	"github.com/tunex-app/tunex/internal/history"
)

// Run CSV layout: fixed audit columns, then one column per parameter, then
// one per objective (empty until results are recorded), then ingested_at.
var fixedColumns = []string{"batch_id", "row_index", "status", "provenance", "generated_at"}

// WriteBatch atomically writes (or rewrites, after results land) one batch's
// CSV file.
func (s *Store) WriteBatch(c *domain.Campaign, b *domain.RunBatch, results []domain.RunResult) error {
	byRow := make(map[int]domain.RunResult, len(results))
	for _, r := range results {
		byRow[r.RowIndex] = r
	}

	paramNames := c.Space.Names()
	objNames := objectiveNames(c)

	header := append(append([]string{}, fixedColumns...), paramNames...)
	header = append(header, objNames...)
	header = append(header, "ingested_at")

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing batch header: %w", err)
	}
	for i, row := range b.Rows {
		record := []string{
			b.BatchID,
			strconv.Itoa(i),
			string(b.Status),
			string(b.Provenance),
			b.GeneratedAt.UTC().Format(time.RFC3339Nano),
		}
		for _, name := range paramNames {
			record = append(record, formatValue(row[name]))
		}
		res, measured := byRow[i]
		for _, name := range objNames {
			if measured {
				record = append(record, strconv.FormatFloat(res.Measurements[name], 'g', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		if measured {
			record = append(record, res.IngestedAt.UTC().Format(time.RFC3339Nano))
		} else {
			record = append(record, "")
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing batch row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing batch CSV: %w", err)
	}
	return writeFileAtomic(s.batchPath(c.ID, b.BatchID), buf.Bytes())
}

// LoadHistory rebuilds the run ledger from every CSV under the campaign's
// runs directory, in generation order.
func (s *Store) LoadHistory(c *domain.Campaign) (*history.History, error) {
	h := history.New()
	entries, err := os.ReadDir(s.runsDir(c.ID))
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	type loaded struct {
		batch   *domain.RunBatch
		results []domain.RunResult
	}
	var all []loaded
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		b, results, err := s.readBatchFile(c, filepath.Join(s.runsDir(c.ID), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		all = append(all, loaded{b, results})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].batch.GeneratedAt.Before(all[j].batch.GeneratedAt)
	})

	for _, l := range all {
		// Batches are appended pending and completed through the ledger so
		// the status flip stays the ledger's only mutation path.
		status := l.batch.Status
		l.batch.Status = domain.BatchPending
		if err := h.AppendBatch(l.batch); err != nil {
			return nil, err
		}
		if status == domain.BatchCompleted {
			measurements := make([]map[string]float64, len(l.batch.Rows))
			var ingested time.Time
			for _, r := range l.results {
				measurements[r.RowIndex] = r.Measurements
				ingested = r.IngestedAt
			}
			if _, err := h.RecordResults(l.batch.BatchID, measurements, ingested); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

func (s *Store) readBatchFile(c *domain.Campaign, path string) (*domain.RunBatch, []domain.RunResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("batch file has no rows")
	}
	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, required := range fixedColumns {
		if _, ok := col[required]; !ok {
			return nil, nil, fmt.Errorf("batch file missing column %q", required)
		}
	}

	first := records[1]
	generatedAt, err := time.Parse(time.RFC3339Nano, first[col["generated_at"]])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing generated_at: %w", err)
	}
	b := &domain.RunBatch{
		BatchID:     first[col["batch_id"]],
		CampaignID:  c.ID,
		GeneratedAt: generatedAt,
		Provenance:  domain.Provenance(first[col["provenance"]]),
		Status:      domain.BatchStatus(first[col["status"]]),
	}

	var results []domain.RunResult
	for rowIdx, record := range records[1:] {
		row := make(domain.Row, len(c.Space.Parameters))
		for _, p := range c.Space.Parameters {
			// Batch files written before a structural edit may lack a
			// parameter column or hold cells of the old kind. The ledger
			// keeps those rows; they just carry no value for the changed
			// parameter, and the space check keeps them out of engine
			// training.
			ci, ok := col[p.Name]
			if !ok || record[ci] == "" {
				continue
			}
			v, err := parseValue(p, record[ci])
			if err != nil {
				continue
			}
			row[p.Name] = v
		}
		b.Rows = append(b.Rows, row)

		if b.Status != domain.BatchCompleted {
			continue
		}
		measurements := make(map[string]float64, len(c.Objectives))
		for _, name := range objectiveNames(c) {
			ci, ok := col[name]
			if !ok || record[ci] == "" {
				continue
			}
			v, err := strconv.ParseFloat(record[ci], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d objective %q: %w", rowIdx, name, err)
			}
			measurements[name] = v
		}
		ingestedAt := generatedAt
		if ci, ok := col["ingested_at"]; ok && record[ci] != "" {
			if ingestedAt, err = time.Parse(time.RFC3339Nano, record[ci]); err != nil {
				return nil, nil, fmt.Errorf("row %d ingested_at: %w", rowIdx, err)
			}
		}
		results = append(results, domain.RunResult{
			BatchID:      b.BatchID,
			RowIndex:     rowIdx,
			Measurements: measurements,
			IngestedAt:   ingestedAt,
		})
	}
	return b, results, nil
}

func objectiveNames(c *domain.Campaign) []string {
	names := make([]string, len(c.Objectives))
	for i, o := range c.Objectives {
		names[i] = o.Name
	}
	return names
}

// formatValue renders a row value for CSV. Numeric values use the shortest
// representation that round-trips.
func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// parseValue parses a CSV cell back into the value type its parameter kind
// carries in memory.
func parseValue(p domain.Parameter, cell string) (any, error) {
	if p.IsNumeric() {
		return strconv.ParseFloat(cell, 64)
	}
	return cell, nil
}
