package xlsx

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/Shailesh-Murmu/AutoMpp/internal/fsutil"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
)

const sheetName = "Tracker"

var (
	trackerHeader = []string{"S.No.", "Location", "SPOC", "Email ID", "Document Uploaded", "Uploaded", "Uploaded When"}
	columnWidths  = []float64{6, 20, 25, 30, 50, 12, 25}
	mergedColumns = []string{"A", "B", "C", "D", "F", "G"}
)

const (
	fillUploaded = "C6EFCE"
	fillMissing  = "FFC7CE"
)

// Writer renders tracker rows into a formatted workbook. The file is built in
// memory and replaces the target atomically.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) WriteTracker(ctx context.Context, path string, rows []gateway.TrackerRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := buildTracker(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fsutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		return f.Write(out)
	})
}

func buildTracker(rows []gateway.TrackerRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := populate(f, rows); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := format(f, rows); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func populate(f *excelize.File, rows []gateway.TrackerRow) error {
	header := make([]any, len(trackerHeader))
	for i, h := range trackerHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		values := []any{nil, nil, nil, nil, row.Document, nil, nil}
		if row.Seq > 0 {
			values = []any{row.Seq, row.Location, row.SPOC, row.Email, row.Document, row.Uploaded, row.Timestamp}
		}
		if err := f.SetSheetRow(sheetName, "A"+strconv.Itoa(i+2), &values); err != nil {
			return err
		}
	}
	return nil
}

func format(f *excelize.File, rows []gateway.TrackerRow) error {
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return err
		}
	}

	align := &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true}
	center, err := f.NewStyle(&excelize.Style{Alignment: align})
	if err != nil {
		return err
	}
	green, err := f.NewStyle(&excelize.Style{Alignment: align, Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillUploaded}}})
	if err != nil {
		return err
	}
	red, err := f.NewStyle(&excelize.Style{Alignment: align, Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillMissing}}})
	if err != nil {
		return err
	}

	last := strconv.Itoa(len(rows) + 1)
	if err := f.SetCellStyle(sheetName, "A1", "D"+last, center); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "F1", "G"+last, center); err != nil {
		return err
	}

	for _, group := range groupSpans(rows) {
		start := strconv.Itoa(group.start + 2)
		end := strconv.Itoa(group.end + 2)
		style := 0
		switch rows[group.start].Uploaded {
		case "Yes":
			style = green
		case "No":
			style = red
		}
		if style != 0 {
			if err := f.SetCellStyle(sheetName, "F"+start, "F"+start, style); err != nil {
				return err
			}
		}
		if group.end == group.start {
			continue
		}
		for _, col := range mergedColumns {
			if err := f.MergeCell(sheetName, col+start, col+end); err != nil {
				return fmt.Errorf("merge %s%s:%s%s: %w", col, start, col, end, err)
			}
		}
	}
	return nil
}

type span struct {
	start int
	end   int
}

// groupSpans returns the inclusive row index range of each roster group. A
// group starts at a row carrying a sequence number and runs until the next.
func groupSpans(rows []gateway.TrackerRow) []span {
	var spans []span
	for i, row := range rows {
		if row.Seq > 0 || len(spans) == 0 {
			spans = append(spans, span{start: i, end: i})
			continue
		}
		spans[len(spans)-1].end = i
	}
	return spans
}
