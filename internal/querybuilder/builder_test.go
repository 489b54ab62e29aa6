package querybuilder

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-username/logsgate/internal/models"
)

func filterFrom(raw string) models.QueryFilter {
	q, _ := url.ParseQuery(raw)
	return models.NewQueryFilter(q, ValueParams())
}

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestBuildNoFiltersIsEmptyConjunction(t *testing.T) {
	q := Build(filterFrom(""))

	assert.JSONEq(t, `{"query":{"bool":{"must":[]}}}`, toJSON(t, q))
	assert.Empty(t, q.Clauses())
}

func TestBuildSingleFilter(t *testing.T) {
	tests := []struct {
		query    string
		expected string
	}{
		{"level=error", `{"term":{"level":"error"}}`},
		{"message=Failed+to+connect", `{"match":{"message":"Failed to connect"}}`},
		{"resourceId=server-1234", `{"term":{"resourceId":"server-1234"}}`},
		{"timestamp=2023-09-15T08:00:00Z", `{"term":{"timestamp":"2023-09-15T08:00:00Z"}}`},
		{"traceId=abc-xyz-123", `{"term":{"traceId":"abc-xyz-123"}}`},
		{"spanId=span-456", `{"term":{"spanId":"span-456"}}`},
		{"commit=5e5342f", `{"term":{"commit":"5e5342f"}}`},
		{"parentResourceId=p-1", `{"term":{"metadata.parentResourceId":"p-1"}}`},
		{"timestamp_from=2023-01-01", `{"range":{"timestamp":{"gte":"2023-01-01"}}}`},
		{"timestamp_to=2023-12-31", `{"range":{"timestamp":{"lte":"2023-12-31"}}}`},
		{"timestampFrom=2023-01-01", `{"range":{"timestamp":{"gte":"2023-01-01"}}}`},
		{"timestampTo=2023-12-31", `{"range":{"timestamp":{"lte":"2023-12-31"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			clauses := Build(filterFrom(tt.query)).Clauses()
			require.Len(t, clauses, 1)
			assert.JSONEq(t, tt.expected, toJSON(t, clauses[0]))
		})
	}
}

func TestBuildEmptyValuesAreAbsent(t *testing.T) {
	q := Build(filterFrom("level=&message=&timestamp_from="))
	assert.Empty(t, q.Clauses())
}

func TestBuildLevelAndWindow(t *testing.T) {
	q := Build(filterFrom("level=error&timestamp_from=2023-01-01&timestamp_to=2023-12-31"))

	assert.JSONEq(t, `{"query":{"bool":{"must":[
		{"term":{"level":"error"}},
		{"range":{"timestamp":{"gte":"2023-01-01","lte":"2023-12-31"}}}
	]}}}`, toJSON(t, q))
}

func TestBuildInvertedWindowIsNotValidated(t *testing.T) {
	q := Build(filterFrom("timestamp_from=2024-01-01&timestamp_to=2023-01-01"))

	clauses := q.Clauses()
	require.Len(t, clauses, 1)
	assert.JSONEq(t, `{"range":{"timestamp":{"gte":"2024-01-01","lte":"2023-01-01"}}}`, toJSON(t, clauses[0]))
}

func TestBuildAllFilters(t *testing.T) {
	q := Build(filterFrom("level=error&message=db&resourceId=r&timestamp=t&traceId=tr&spanId=sp" +
		"&commit=c&parentResourceId=p&timestamp_from=a&timestamp_to=b"))

	// eight value clauses plus one shared range clause
	assert.Len(t, q.Clauses(), 9)
}

func TestBuildIgnoresUnknownParams(t *testing.T) {
	q := Build(filterFrom("service=api&limit=10"))
	assert.Empty(t, q.Clauses())
}

func TestFilterTableCoversEveryParam(t *testing.T) {
	seen := make(map[string]ClauseKind)
	for _, spec := range Filters {
		_, dup := seen[spec.Param]
		assert.False(t, dup, "duplicate param %s", spec.Param)
		seen[spec.Param] = spec.Kind
	}

	assert.Equal(t, Match, seen["message"])
	assert.Equal(t, RangeFrom, seen[models.ParamTimestampFrom])
	assert.Equal(t, RangeTo, seen[models.ParamTimestampTo])
	for _, p := range []string{"level", "resourceId", "timestamp", "traceId", "spanId", "commit", "parentResourceId"} {
		assert.Equal(t, Term, seen[p], p)
	}
	assert.Len(t, ValueParams(), 8)
}
