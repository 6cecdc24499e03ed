package xlsx

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
)

// Reader reads the first worksheet of a local workbook, or a CSV file, as a
// header row plus data rows. Fully blank rows are dropped.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) Read(ctx context.Context, path string) (gateway.Table, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Table{}, err
	}
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx", ".xlsm":
		rows, err = readWorkbook(path)
	default:
		return gateway.Table{}, fmt.Errorf("%w: %s", gateway.ErrUnsupported, path)
	}
	if err != nil {
		return gateway.Table{}, err
	}
	return toTable(rows), nil
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
}

func toTable(rows [][]string) gateway.Table {
	var table gateway.Table
	for i, row := range rows {
		if i == 0 {
			table.Header = row
			continue
		}
		if blankRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
