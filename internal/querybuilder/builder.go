package querybuilder

import (
	"github.com/your-username/logsgate/internal/models"
)

// ClauseKind selects how a filter value is turned into a backend clause
type ClauseKind int

const (
	// Term is an exact equality on the literal value
	Term ClauseKind = iota
	// Match is a full-text relevance match
	Match
	// RangeFrom is an inclusive lower bound
	RangeFrom
	// RangeTo is an inclusive upper bound
	RangeTo
)

func (k ClauseKind) String() string {
	switch k {
	case Term:
		return "term"
	case Match:
		return "match"
	case RangeFrom:
		return "range_from"
	case RangeTo:
		return "range_to"
	default:
		return "unknown"
	}
}

// FilterSpec maps one query parameter to a document field and clause kind
type FilterSpec struct {
	Param string
	Field string
	Kind  ClauseKind
}

// TimestampField is the field both range bounds apply to
const TimestampField = "timestamp"

// Filters is the complete parameter-to-clause table. Clause order in built
// queries follows this table.
var Filters = []FilterSpec{
	{Param: "level", Field: "level", Kind: Term},
	{Param: "message", Field: "message", Kind: Match},
	{Param: "resourceId", Field: "resourceId", Kind: Term},
	{Param: "timestamp", Field: "timestamp", Kind: Term},
	{Param: "traceId", Field: "traceId", Kind: Term},
	{Param: "spanId", Field: "spanId", Kind: Term},
	{Param: "commit", Field: "commit", Kind: Term},
	{Param: "parentResourceId", Field: "metadata.parentResourceId", Kind: Term},
	{Param: models.ParamTimestampFrom, Field: TimestampField, Kind: RangeFrom},
	{Param: models.ParamTimestampTo, Field: TimestampField, Kind: RangeTo},
}

// ValueParams returns the parameter names of the non-range filters
func ValueParams() []string {
	params := make([]string, 0, len(Filters))
	for _, spec := range Filters {
		if spec.Kind == Term || spec.Kind == Match {
			params = append(params, spec.Param)
		}
	}
	return params
}

// Query is a search request body in the backend's query DSL
type Query map[string]interface{}

// Clauses returns the conjunction the query was built from
func (q Query) Clauses() []interface{} {
	inner, _ := q["query"].(map[string]interface{})
	boolQuery, _ := inner["bool"].(map[string]interface{})
	must, _ := boolQuery["must"].([]interface{})
	return must
}

// Build turns a filter into a bool query whose must list holds one clause
// per present filter. Both range bounds share a single range clause and are
// not checked against each other. No filters yields an empty conjunction,
// which the backend treats as match-all.
func Build(filter models.QueryFilter) Query {
	must := make([]interface{}, 0, len(Filters))
	var bounds map[string]interface{}

	for _, spec := range Filters {
		switch spec.Kind {
		case Term:
			if v, ok := filter.Values[spec.Param]; ok {
				must = append(must, clause("term", spec.Field, v))
			}
		case Match:
			if v, ok := filter.Values[spec.Param]; ok {
				must = append(must, clause("match", spec.Field, v))
			}
		case RangeFrom, RangeTo:
			value, op := filter.From, "gte"
			if spec.Kind == RangeTo {
				value, op = filter.To, "lte"
			}
			if value == "" {
				continue
			}
			if bounds == nil {
				bounds = make(map[string]interface{})
				must = append(must, clause("range", spec.Field, bounds))
			}
			bounds[op] = value
		}
	}

	return Query{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": must,
			},
		},
	}
}

func clause(kind, field string, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		kind: map[string]interface{}{field: value},
	}
}
