// Package export renders check-in listings as CSV and XLSX downloads for the
// results desk.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/brinsoko/LoRa-CP/internal/domain"
)

const (
	sheetName  = "Check-ins"
	timeFormat = "2006-01-02 15:04:05"
)

var header = []string{
	"Timestamp (UTC)",
	"Team ID",
	"Team Name",
	"Team Number",
	"Checkpoint ID",
	"Checkpoint Name",
	"Source",
	"Device ID",
}

var columnWidths = []float64{20, 10, 25, 12, 14, 25, 10, 10}

func row(rec domain.CheckInRecord) []string {
	deviceID := ""
	if rec.DeviceID != nil {
		deviceID = strconv.FormatInt(*rec.DeviceID, 10)
	}
	return []string{
		rec.RecordedAt.UTC().Format(timeFormat),
		strconv.FormatInt(rec.TeamID, 10),
		rec.TeamName,
		strconv.Itoa(rec.TeamNumber),
		strconv.FormatInt(rec.CheckpointID, 10),
		rec.CheckpointName,
		rec.Source,
		deviceID,
	}
}

// CSV renders the records with a header row.
func CSV(records []domain.CheckInRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(row(rec)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSX renders the records as a single-sheet workbook with a styled, frozen
// header row.
func XLSX(records []domain.CheckInRecord) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open, so Close only happens on the error paths
	// and at the end.

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("style header cell %s: %w", cell, err)
		}
	}

	for i := range header {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, columnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, rec := range records {
		for col, value := range row(rec) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}
