// Package export serializes the currently filtered event set to a flat
// tabular format for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/netsentry/netsentry/internal/models"
)

// Header is the fixed column order of the CSV report.
var Header = []string{"Timestamp", "Threat Type", "Source IP", "Destination IP", "Ports"}

// WriteCSV streams events as CSV rows, header first. The set is written in
// the order given; callers pass the filtered set straight from the query
// layer.
func WriteCSV(w io.Writer, events []models.ThreatEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, ev := range events {
		row := []string{
			ev.Timestamp,
			ev.ThreatType,
			ev.SourceIP,
			ev.DestinationIP,
			ev.Ports.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename returns the dated report name used for downloads.
func Filename(now time.Time) string {
	return fmt.Sprintf("threat-report-%s.csv", now.Format("2006-01-02"))
}
