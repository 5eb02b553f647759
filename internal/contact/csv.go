package contact

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Header is the column order of exported CSV files.
var Header = []string{
	"status",
	"total_calls",
	"first_name",
	"last_name",
	"phone_number",
	"email",
	"source_file",
}

// WriteCSV writes records as comma-separated UTF-8 with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Status,
			strconv.Itoa(r.TotalCalls),
			r.FirstName,
			r.LastName,
			r.PhoneNumber,
			r.Email,
			r.SourceFile,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %s: %w", r.PhoneNumber, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
