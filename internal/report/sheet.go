package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// loadTable reads a CSV file or the first sheet of a workbook into rows of
// cells, selected by filename extension.
func loadTable(name string, data []byte) ([][]string, error) {
	if strings.HasSuffix(strings.ToLower(name), ".csv") {
		return loadCSV(data)
	}
	return loadWorkbook(data)
}

func loadCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	// Operator exports are ragged; tolerate short and long rows.
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return rows, nil
}

func loadWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
