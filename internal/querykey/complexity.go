package querykey

import (
	"fmt"
	"strings"
)

// Scoring weights and thresholds for Analyze
const (
	RelationWeight    = 10
	MaxRelations      = 3
	OrBranchWeight    = 5
	TextSearchWeight  = 15
	DeepSkipWeight    = 20
	DeepSkipThreshold = 1000
)

var textSearchOps = map[string]bool{
	"contains":   true,
	"startsWith": true,
	"endsWith":   true,
	"search":     true,
}

// Condition is a single field predicate
type Condition struct {
	Field string      `json:"field" yaml:"field"`
	Op    string      `json:"op" yaml:"op"`
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`
}

// Query describes a proposed database read
type Query struct {
	Include []string    `json:"include,omitempty" yaml:"include,omitempty"`
	Where   []Condition `json:"where,omitempty" yaml:"where,omitempty"`
	Or      []Condition `json:"or,omitempty" yaml:"or,omitempty"`
	Skip    int         `json:"skip,omitempty" yaml:"skip,omitempty"`
	Take    int         `json:"take,omitempty" yaml:"take,omitempty"`
}

// Complexity is an advisory cost estimate
type Complexity struct {
	Score    int      `json:"complexity" yaml:"complexity"`
	Warnings []string `json:"warnings" yaml:"warnings"`
}

// Analyze scores q. The result never blocks a query; it only informs
// developers.
func Analyze(q Query) Complexity {
	c := Complexity{Warnings: []string{}}

	if n := len(q.Include); n > 0 {
		c.Score += n * RelationWeight
		if n > MaxRelations {
			c.Warnings = append(c.Warnings, fmt.Sprintf(
				"query includes %d relations; consider selecting fewer or splitting the query", n))
		}
	}

	c.Score += len(q.Or) * OrBranchWeight

	if fields := textSearchFields(q); len(fields) > 0 {
		c.Score += TextSearchWeight
		c.Warnings = append(c.Warnings, fmt.Sprintf(
			"text search on %s; ensure the field is indexed", strings.Join(fields, ", ")))
	}

	if q.Skip > DeepSkipThreshold {
		c.Score += DeepSkipWeight
		c.Warnings = append(c.Warnings, fmt.Sprintf(
			"offset pagination skips %d rows; prefer cursor-based pagination", q.Skip))
	}

	return c
}

func textSearchFields(q Query) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, group := range [][]Condition{q.Where, q.Or} {
		for _, cond := range group {
			if !textSearchOps[cond.Op] || seen[cond.Field] {
				continue
			}
			seen[cond.Field] = true
			fields = append(fields, cond.Field)
		}
	}
	return fields
}
