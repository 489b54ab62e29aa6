package ingestion

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fastjson"

	"github.com/your-username/logsgate/internal/models"
)

var (
	ErrBodyTooLarge        = errors.New("request body too large")
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
	ErrMalformedBody       = errors.New("request body is not valid JSON")
	ErrNotArray            = errors.New("request body must be a JSON array of log records")
)

// FieldError is one structural problem in one record of a batch
type FieldError struct {
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// ValidationError rejects a whole batch. It lists every problem found.
type ValidationError struct {
	Records  int
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid batch"
	}
	p := e.Problems[0]
	msg := fmt.Sprintf("record %d: %s %s", p.Index, p.Field, p.Reason)
	if n := len(e.Problems) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

var requiredFields = []string{"level", "message", "resourceId", "timestamp", "traceId", "spanId", "commit"}

const (
	metadataField       = "metadata"
	parentResourceField = "parentResourceId"
)

var parserPool fastjson.ParserPool

// ReadBody reads the request body, decompressing gzip or zstd payloads.
// maxBytes bounds both the wire size and the decompressed size.
func ReadBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	raw := http.MaxBytesReader(w, r.Body, maxBytes)
	defer raw.Close()

	var body io.Reader = raw
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip":
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		defer zr.Close()
		body = zr
	case "zstd":
		zr, err := zstd.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		defer zr.Close()
		body = zr
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, enc)
	}

	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrBodyTooLarge
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

// DecodeBatch validates a JSON array of log records. Every field is
// required and must be a string; metadata must be an object holding a
// string parentResourceId. Unknown fields are ignored.
func DecodeBatch(body []byte) ([]models.LogRecord, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if v.Type() != fastjson.TypeArray {
		return nil, ErrNotArray
	}
	items, _ := v.Array()

	records := make([]models.LogRecord, 0, len(items))
	var problems []FieldError
	for i, item := range items {
		rec, errs := decodeRecord(i, item)
		if len(errs) > 0 {
			problems = append(problems, errs...)
			continue
		}
		records = append(records, rec)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Records: len(items), Problems: problems}
	}
	return records, nil
}

func decodeRecord(index int, v *fastjson.Value) (models.LogRecord, []FieldError) {
	var rec models.LogRecord
	if v.Type() != fastjson.TypeObject {
		return rec, []FieldError{{Index: index, Reason: "must be an object"}}
	}

	var problems []FieldError
	values := make(map[string]string, len(requiredFields))
	for _, field := range requiredFields {
		s, problem := stringField(v, field)
		if problem != "" {
			problems = append(problems, FieldError{Index: index, Field: field, Reason: problem})
			continue
		}
		values[field] = s
	}

	var parent string
	switch meta := v.Get(metadataField); {
	case meta == nil:
		problems = append(problems, FieldError{Index: index, Field: metadataField, Reason: "field required"})
	case meta.Type() != fastjson.TypeObject:
		problems = append(problems, FieldError{Index: index, Field: metadataField, Reason: "must be an object"})
	default:
		s, problem := stringField(meta, parentResourceField)
		if problem != "" {
			problems = append(problems, FieldError{Index: index, Field: metadataField + "." + parentResourceField, Reason: problem})
		}
		parent = s
	}

	if len(problems) > 0 {
		return rec, problems
	}

	rec = models.LogRecord{
		Level:      values["level"],
		Message:    values["message"],
		ResourceID: values["resourceId"],
		Timestamp:  values["timestamp"],
		TraceID:    values["traceId"],
		SpanID:     values["spanId"],
		Commit:     values["commit"],
		Metadata:   models.Metadata{ParentResourceID: parent},
	}
	return rec, nil
}

func stringField(obj *fastjson.Value, key string) (string, string) {
	fv := obj.Get(key)
	if fv == nil {
		return "", "field required"
	}
	b, err := fv.StringBytes()
	if err != nil {
		return "", "must be a string"
	}
	return string(b), ""
}
