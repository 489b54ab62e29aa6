package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/valyala/fastjson"
	"github.com/xuri/excelize/v2"
)

// Format is a supported export format
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "xlsx"
)

const sheetName = "Logs"

var parserPool fastjson.ParserPool

// Columns is the flattened column order shared by CSV and XLSX output
var Columns = []string{
	"_id",
	"timestamp",
	"level",
	"message",
	"resourceId",
	"traceId",
	"spanId",
	"commit",
	"metadata.parentResourceId",
}

// ParseFormat maps a format parameter to a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON, FormatExcel:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported export format: %s", s)
	}
}

// ContentType returns the media type for the format
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// FileName builds the attachment name for an export taken at t
func (f Format) FileName(t time.Time) string {
	return fmt.Sprintf("logs_%s.%s", t.UTC().Format("20060102_150405"), f)
}

// Result describes a finished export
type Result struct {
	Format   Format        `json:"format"`
	RowCount int           `json:"row_count"`
	Duration time.Duration `json:"duration"`
}

// Exporter renders search hits as downloadable files
type Exporter struct {
	now func() time.Time
}

func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// Export writes hits to w in the given format. JSON output keeps the
// backend-native hits; CSV and XLSX flatten each hit into Columns.
func (e *Exporter) Export(w io.Writer, format Format, hits []json.RawMessage) (*Result, error) {
	start := e.now()

	var err error
	switch format {
	case FormatCSV:
		err = e.exportCSV(w, hits)
	case FormatJSON:
		err = e.exportJSON(w, hits)
	case FormatExcel:
		err = e.exportExcel(w, hits)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Format:   format,
		RowCount: len(hits),
		Duration: e.now().Sub(start),
	}, nil
}

// Flatten converts a hit into a row ordered like Columns. Fields missing
// from the hit are left empty; non-string values are written as JSON text.
func Flatten(raw json.RawMessage) ([]string, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode hit: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("decode hit: expected object, got %s", v.Type())
	}

	source := v.Get("_source")
	row := make([]string, len(Columns))
	for i, col := range Columns {
		if col == "_id" {
			row[i] = cellValue(v.Get("_id"))
			continue
		}
		if source != nil {
			row[i] = cellValue(source.Get(strings.Split(col, ".")...))
		}
	}
	return row, nil
}

func cellValue(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNull:
		return ""
	default:
		return v.String()
	}
}

func (e *Exporter) exportCSV(w io.Writer, hits []json.RawMessage) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(Columns); err != nil {
		return err
	}
	for _, raw := range hits {
		row, err := Flatten(raw)
		if err != nil {
			return err
		}
		if err := csvWriter.Write(row); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (e *Exporter) exportJSON(w io.Writer, hits []json.RawMessage) error {
	if hits == nil {
		hits = []json.RawMessage{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(map[string]interface{}{
		"logs":     hits,
		"count":    len(hits),
		"exported": e.now().UTC(),
	})
}

func (e *Exporter) exportExcel(w io.Writer, hits []json.RawMessage) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E0E0E0"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 2},
		},
	})
	if err != nil {
		return err
	}

	for col, header := range Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
		if err := file.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(Columns))
	if err != nil {
		return err
	}
	if err := file.SetColWidth(sheetName, "A", lastCol, 20); err != nil {
		return err
	}

	for i, raw := range hits {
		row, err := Flatten(raw)
		if err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}

	if len(hits) > 0 {
		ref := fmt.Sprintf("A1:%s%d", lastCol, len(hits)+1)
		if err := file.AutoFilter(sheetName, ref, nil); err != nil {
			return err
		}
	}

	return file.Write(w)
}
