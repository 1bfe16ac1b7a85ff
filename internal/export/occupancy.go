// Package export renders occupancy reports as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cabinres/internal/report"

	"github.com/xuri/excelize/v2"
)

const (
	sheetCabins     = "Cabins"
	sheetActivities = "Activities"
	sheetResorts    = "Resorts"

	dayFormat = "02.01.2006"
)

// occupancy bands used to color cabin rows
const (
	busyPercent  = 75.0
	quietPercent = 25.0
)

// WriteOccupancy streams the report as a workbook.
func WriteOccupancy(w io.Writer, r *report.Report) error {
	f, err := buildWorkbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveOccupancy writes the workbook under dir and returns the file path.
func SaveOccupancy(dir string, r *report.Report) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := buildWorkbook(r)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(r))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

// FileName is the suggested name of the workbook for r.
func FileName(r *report.Report) string {
	return fmt.Sprintf("occupancy_%s_to_%s.xlsx", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

func buildWorkbook(r *report.Report) (*excelize.File, error) {
	f := excelize.NewFile()

	st, err := newStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	period := fmt.Sprintf("Period: %s - %s (%d days)", r.Start.Format(dayFormat), r.End.Format(dayFormat), r.WindowDays)

	if err := writeCabins(f, period, st, r); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeActivities(f, period, st, r); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeResorts(f, period, st, r); err != nil {
		f.Close()
		return nil, err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(sheetCabins); err == nil {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

type styles struct {
	title, header, percent, busy, quiet int
}

func newStyles(f *excelize.File) (*styles, error) {
	var (
		st  styles
		err error
	)
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&st.title, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 14},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		}},
		{&st.header, &excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		}},
		{&st.percent, &excelize.Style{NumFmt: 2}},
		{&st.busy, &excelize.Style{
			Fill:   excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
			NumFmt: 2,
		}},
		{&st.quiet, &excelize.Style{
			Fill:   excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
			NumFmt: 2,
		}},
	}
	for _, d := range defs {
		if *d.dst, err = f.NewStyle(d.style); err != nil {
			return nil, fmt.Errorf("error creating style: %w", err)
		}
	}
	return &st, nil
}

func newSheet(f *excelize.File, name, period string, st *styles, headers []string) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("error creating sheet %s: %w", name, err)
	}

	_ = f.SetCellValue(name, "A1", period)
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.MergeCell(name, "A1", last)
	_ = f.SetCellStyle(name, "A1", "A1", st.title)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(name, cell, h)
		_ = f.SetCellStyle(name, cell, cell, st.header)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(name, "A", lastCol, 18)
	_ = f.SetColWidth(name, "B", "B", 28)
	return nil
}

func writeCabins(f *excelize.File, period string, st *styles, r *report.Report) error {
	if err := newSheet(f, sheetCabins, period, st, []string{"Cabin ID", "Cabin", "Resort ID", "Occupied days", "Occupancy %"}); err != nil {
		return err
	}
	for i, c := range r.Cabins {
		row := i + 3
		if err := f.SetSheetRow(sheetCabins, cellName(1, row), &[]interface{}{c.CabinID, c.CabinName, c.ResortID, c.OccupiedDays, c.Percent}); err != nil {
			return fmt.Errorf("error writing cabin row: %w", err)
		}
		pct := cellName(5, row)
		_ = f.SetCellStyle(sheetCabins, pct, pct, percentStyle(st, c.Percent))
	}
	return nil
}

func writeActivities(f *excelize.File, period string, st *styles, r *report.Report) error {
	if err := newSheet(f, sheetActivities, period, st, []string{"Activity ID", "Activity", "Resort ID", "Reservations"}); err != nil {
		return err
	}
	for i, a := range r.Activities {
		if err := f.SetSheetRow(sheetActivities, cellName(1, i+3), &[]interface{}{a.ActivityID, a.ActivityName, a.ResortID, a.Reservations}); err != nil {
			return fmt.Errorf("error writing activity row: %w", err)
		}
	}
	return nil
}

func writeResorts(f *excelize.File, period string, st *styles, r *report.Report) error {
	if err := newSheet(f, sheetResorts, period, st, []string{"Resort ID", "Resort", "Average occupancy %", "Activity reservations"}); err != nil {
		return err
	}
	for i, s := range r.Resorts {
		row := i + 3
		if err := f.SetSheetRow(sheetResorts, cellName(1, row), &[]interface{}{s.ResortID, s.ResortName, s.AverageOccupancy, s.ActivityReservations}); err != nil {
			return fmt.Errorf("error writing resort row: %w", err)
		}
		pct := cellName(3, row)
		_ = f.SetCellStyle(sheetResorts, pct, pct, percentStyle(st, s.AverageOccupancy))
	}
	return nil
}

func percentStyle(st *styles, pct float64) int {
	switch {
	case pct >= busyPercent:
		return st.busy
	case pct <= quietPercent:
		return st.quiet
	default:
		return st.percent
	}
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
