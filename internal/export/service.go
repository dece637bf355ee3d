// Package export renders case records as XLSX worklists for reviewers.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
	"github.com/genesilico/trf-intake/internal/validate"
)

// Service produces XLSX bytes from a canonical record.
type Service struct {
	sch    *schema.Schema
	logger *slog.Logger
}

func NewService(sch *schema.Schema, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sch: sch, logger: logger}
}

// ExportWorklistXLSX returns a workbook with one row per schema field in
// declaration order: the current value, its confidence and source, and any
// open validation issue. Reviewers work the sheet top to bottom.
func (s *Service) ExportWorklistXLSX(rec *trf.CanonicalRecord, violations []validate.Violation) ([]byte, error) {
	start := time.Now()

	issueByField := make(map[string]string, len(violations))
	for _, v := range violations {
		if _, ok := issueByField[v.FieldName]; ok {
			continue
		}
		issueByField[v.FieldName] = fmt.Sprintf("%s: %s", v.Kind, v.Detail)
	}

	f := excelize.NewFile()
	const sheet = "Review"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defIndex, _ := f.GetSheetIndex("Sheet1"); defIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{"Field", "Value", "Confidence", "Source", "Issue"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	row := 2
	for _, spec := range s.sch.Fields() {
		write(1, row, spec.Name)
		if field, ok := rec.Fields[spec.Name]; ok {
			write(2, row, field.Value)
			write(3, row, fmt.Sprintf("%.2f", field.Confidence))
			write(4, row, field.Source)
		}
		write(5, row, issueByField[spec.Name])
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 44)
	_ = f.SetColWidth(sheet, "B", "B", 32)
	_ = f.SetColWidth(sheet, "C", "D", 14)
	_ = f.SetColWidth(sheet, "E", "E", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export.worklist.done",
		"case_id", rec.CaseID,
		"rows", row-2,
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
