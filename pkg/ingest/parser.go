package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/txgraph"
)

// requiredColumns are the normalized header names a transaction CSV must carry.
var requiredColumns = []string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"}

// timestampLayouts are tried in order when parsing the timestamp column.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
}

// Metadata describes the ingested batch. It is handed downstream together
// with the graph and echoed in the final report.
type Metadata struct {
	TotalTransactions int       `json:"total_transactions"`
	TotalAccounts     int       `json:"total_accounts"`
	TotalEdges        int       `json:"total_edges"`
	DateRange         DateRange `json:"date_range"`
}

// DateRange is the observed timestamp span of the batch.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseCSV reads a transaction CSV and builds the directed transaction graph.
// Header names are normalized (trimmed, lowercased, spaces to underscores).
// Rows with an unparsable amount or timestamp, or a blank party, are skipped;
// only fully valid rows count toward the metadata totals.
func ParseCSV(r io.Reader) (*txgraph.Graph, *Metadata, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[normalizeColumn(name)] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	builder := txgraph.NewBuilder()
	meta := &Metadata{}
	skipped := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		txID := field(record, cols["transaction_id"])
		sender := field(record, cols["sender_id"])
		receiver := field(record, cols["receiver_id"])
		if sender == "" || receiver == "" {
			skipped++
			continue
		}

		amount, err := strconv.ParseFloat(field(record, cols["amount"]), 64)
		if err != nil {
			skipped++
			continue
		}

		ts, ok := parseTimestamp(field(record, cols["timestamp"]))
		if !ok {
			skipped++
			continue
		}

		builder.Add(txID, sender, receiver, amount, ts)
		meta.TotalTransactions++

		if meta.DateRange.Start.IsZero() || ts.Before(meta.DateRange.Start) {
			meta.DateRange.Start = ts
		}
		if ts.After(meta.DateRange.End) {
			meta.DateRange.End = ts
		}
	}

	graph, err := builder.Build()
	if err != nil {
		return nil, nil, err
	}

	meta.TotalAccounts = graph.NodeCount()
	meta.TotalEdges = graph.EdgeCount()

	if skipped > 0 {
		logging.Warn("skipped invalid CSV rows",
			logging.Component("ingest"),
			logging.Int("skipped", skipped),
			logging.Int("accepted", meta.TotalTransactions))
	}

	return graph, meta, nil
}

func normalizeColumn(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func field(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
