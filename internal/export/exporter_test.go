package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var sampleHits = []json.RawMessage{
	json.RawMessage(`{"_index":"logs","_id":"doc-1","_score":1.0,"_source":{"level":"error","message":"Failed to connect to DB","resourceId":"server-1234","timestamp":"2023-09-15T08:00:00Z","traceId":"abc-xyz-123","spanId":"span-456","commit":"5e5342f","metadata":{"parentResourceId":"server-0987"}}}`),
	json.RawMessage(`{"_index":"logs","_id":"doc-2","_source":{"level":"info","message":"ok"}}`),
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"csv", FormatCSV, false},
		{"json", FormatJSON, false},
		{"xlsx", FormatExcel, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFileName(t *testing.T) {
	at := time.Date(2023, 9, 15, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "logs_20230915_080000.xlsx", FormatExcel.FileName(at))
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
}

func TestFlatten(t *testing.T) {
	row, err := Flatten(sampleHits[0])
	require.NoError(t, err)
	assert.Equal(t, []string{
		"doc-1", "2023-09-15T08:00:00Z", "error", "Failed to connect to DB",
		"server-1234", "abc-xyz-123", "span-456", "5e5342f", "server-0987",
	}, row)

	row, err = Flatten(sampleHits[1])
	require.NoError(t, err)
	assert.Equal(t, "doc-2", row[0])
	assert.Equal(t, "", row[len(row)-1])

	_, err = Flatten(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	res, err := NewExporter().Export(&buf, FormatCSV, sampleHits)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, "doc-1", records[1][0])
	assert.Equal(t, "server-0987", records[1][8])
}

func TestExportCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	res, err := NewExporter().Export(&buf, FormatCSV, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.RowCount)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestExportJSONKeepsNativeHits(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewExporter().Export(&buf, FormatJSON, sampleHits)
	require.NoError(t, err)

	var out struct {
		Logs  []map[string]interface{} `json:"logs"`
		Count int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "logs", out.Logs[0]["_index"])
	assert.Contains(t, out.Logs[0], "_source")
}

func TestExportExcel(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewExporter().Export(&buf, FormatExcel, sampleHits)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "abc-xyz-123", rows[1][5])
	assert.Equal(t, "info", rows[2][2])
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := NewExporter().Export(&bytes.Buffer{}, Format("pdf"), sampleHits)
	assert.Error(t, err)
}

func TestFlattenFormatsNonStringValues(t *testing.T) {
	raw := json.RawMessage(`{"_id":"doc-3","_source":{"level":"error","timestamp":1694764800000,"commit":null,"metadata":{"parentResourceId":7},"traceId":{"nested":true}}}`)

	row, err := Flatten(raw)
	require.NoError(t, err)
	assert.Equal(t, "doc-3", row[0])
	assert.Equal(t, "1694764800000", row[1])
	assert.Equal(t, `{"nested":true}`, row[5])
	assert.Equal(t, "", row[7])
	assert.Equal(t, "7", row[8])
}

func TestExportCSVToleratesLooselyTypedDocuments(t *testing.T) {
	hits := append([]json.RawMessage{
		json.RawMessage(`{"_id":"doc-3","_source":{"level":"warn","metadata":{"parentResourceId":7}}}`),
	}, sampleHits...)

	var buf bytes.Buffer
	res, err := NewExporter().Export(&buf, FormatCSV, hits)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowCount)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "7", records[1][8])
}
