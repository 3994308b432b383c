package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"learnedge/apperr"
	"learnedge/models"

	"github.com/tidwall/gjson"
)

// --- Content query ---
//
// A content query is a list of alternating parts:
//   "pricing lessthan 50", "and", "level equals beginner"
// Each condition is "path operator value" where path is a gjson path into the
// course JSON. Logic is applied left to right without precedence.

// QueryCondition is a single "path operator value" condition.
type QueryCondition struct {
	Path          string
	Operator      string // Base operator, the -insensitive suffix removed
	Value         interface{}
	ValueType     gjson.Type
	IsInsensitive bool
	Original      string
}

// LogicalOperator joins two conditions.
type LogicalOperator string

const (
	LogicAnd LogicalOperator = "and"
	LogicOr  LogicalOperator = "or"
)

// ParsedQuery holds the conditions and the operators between them.
type ParsedQuery struct {
	Conditions []QueryCondition
	Logic      []LogicalOperator // Logic[i] joins Conditions[i] and Conditions[i+1]
}

var baseOperators = map[string]bool{
	"equals": true, "notequals": true,
	"greaterthan": true, "lessthan": true,
	"greaterthanorequals": true, "lessthanorequals": true,
	"contains": true, "startswith": true, "endswith": true,
}

var insensitiveOperators = map[string]bool{
	"equals": true, "notequals": true, "contains": true, "startswith": true, "endswith": true,
}

// ParseContentQuery validates and parses the raw query parts. An empty list
// yields a nil query which matches everything.
func ParseContentQuery(parts []string) (*ParsedQuery, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	parsed := &ParsedQuery{}
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("query part at index %d is empty", i)
		}
		if i%2 == 0 {
			cond, err := parseSingleCondition(part)
			if err != nil {
				return nil, fmt.Errorf("invalid condition at index %d (%q): %w", i, part, err)
			}
			parsed.Conditions = append(parsed.Conditions, cond)
			continue
		}
		logic := LogicalOperator(strings.ToLower(part))
		if logic != LogicAnd && logic != LogicOr {
			return nil, fmt.Errorf("invalid logical operator at index %d: %q, expected 'and' or 'or'", i, part)
		}
		parsed.Logic = append(parsed.Logic, logic)
	}
	if len(parts)%2 == 0 {
		return nil, errors.New("query must end with a condition, not a logical operator")
	}
	return parsed, nil
}

func parseSingleCondition(s string) (QueryCondition, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return QueryCondition{}, errors.New("condition must have the form 'path operator value'")
	}
	path, operator := fields[0], strings.ToLower(fields[1])

	insensitive := false
	if base, ok := strings.CutSuffix(operator, "-insensitive"); ok {
		if !insensitiveOperators[base] {
			return QueryCondition{}, fmt.Errorf("operator %q does not support -insensitive", base)
		}
		operator, insensitive = base, true
	}
	if !baseOperators[operator] {
		return QueryCondition{}, fmt.Errorf("invalid operator %q", fields[1])
	}

	// The value is everything after the operator, inner spacing preserved.
	afterPath := strings.TrimSpace(s)[len(path):]
	rest := strings.TrimSpace(afterPath[strings.Index(afterPath, fields[1])+len(fields[1]):])
	value, valueType := parseValue(rest)

	return QueryCondition{
		Path:          path,
		Operator:      operator,
		Value:         value,
		ValueType:     valueType,
		IsInsensitive: insensitive,
		Original:      s,
	}, nil
}

// parseValue types a literal: quoted string, null, number, bool, else bare string.
// Numbers are checked before booleans so that "0" and "1" stay numeric.
func parseValue(raw string) (interface{}, gjson.Type) {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1], gjson.String
	}
	if raw == "null" {
		return nil, gjson.Null
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, gjson.Number
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		if b {
			return true, gjson.True
		}
		return false, gjson.False
	}
	return raw, gjson.String
}

// Matches evaluates the query against a JSON document.
func (q *ParsedQuery) Matches(doc string) (bool, error) {
	if q == nil || len(q.Conditions) == 0 {
		return true, nil
	}
	result, err := evaluateCondition(doc, q.Conditions[0])
	if err != nil {
		return false, err
	}
	for i, logic := range q.Logic {
		next, err := evaluateCondition(doc, q.Conditions[i+1])
		if err != nil {
			return false, err
		}
		if logic == LogicAnd {
			result = result && next
		} else {
			result = result || next
		}
	}
	return result, nil
}

// evaluateCondition treats a missing path as a non-match.
func evaluateCondition(doc string, cond QueryCondition) (bool, error) {
	target := gjson.Get(doc, cond.Path)
	if !target.Exists() {
		return false, nil
	}
	ok, err := compareJSONValue(target, cond)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", cond.Original, err)
	}
	return ok, nil
}

func compareJSONValue(target gjson.Result, cond QueryCondition) (bool, error) {
	op := cond.Operator

	if target.IsArray() && op == "contains" {
		found := false
		target.ForEach(func(_, el gjson.Result) bool {
			found = elementEquals(el, cond)
			return !found
		})
		return found, nil
	}

	if target.Type == gjson.Null || cond.ValueType == gjson.Null {
		both := target.Type == gjson.Null && cond.ValueType == gjson.Null
		switch op {
		case "equals":
			return both, nil
		case "notequals":
			return !both, nil
		case "contains":
			return false, nil
		}
		return false, fmt.Errorf("operator %q is invalid for null comparison", op)
	}

	switch target.Type {
	case gjson.String:
		if cond.ValueType != gjson.String {
			if op == "notequals" {
				return true, nil
			}
			return false, fmt.Errorf("type mismatch: cannot compare string with %s using %q", cond.ValueType, op)
		}
		return compareStrings(target.String(), cond.Value.(string), op, cond.IsInsensitive)

	case gjson.Number:
		if cond.ValueType != gjson.Number {
			if op == "notequals" {
				return true, nil
			}
			return false, fmt.Errorf("type mismatch: cannot compare number with %s using %q", cond.ValueType, op)
		}
		a, b := target.Float(), cond.Value.(float64)
		switch op {
		case "equals":
			return a == b, nil
		case "notequals":
			return a != b, nil
		case "greaterthan":
			return a > b, nil
		case "lessthan":
			return a < b, nil
		case "greaterthanorequals":
			return a >= b, nil
		case "lessthanorequals":
			return a <= b, nil
		}
		return false, fmt.Errorf("operator %q is invalid for numbers", op)

	case gjson.True, gjson.False:
		isBool := cond.ValueType == gjson.True || cond.ValueType == gjson.False
		switch op {
		case "equals":
			return isBool && target.Bool() == cond.Value.(bool), nil
		case "notequals":
			return !isBool || target.Bool() != cond.Value.(bool), nil
		}
		return false, fmt.Errorf("operator %q is invalid for booleans", op)
	}

	return false, fmt.Errorf("operator %q is invalid for objects", op)
}

func elementEquals(el gjson.Result, cond QueryCondition) bool {
	switch el.Type {
	case gjson.String:
		if cond.ValueType != gjson.String {
			return false
		}
		if cond.IsInsensitive {
			return strings.EqualFold(el.String(), cond.Value.(string))
		}
		return el.String() == cond.Value.(string)
	case gjson.Number:
		return cond.ValueType == gjson.Number && el.Float() == cond.Value.(float64)
	case gjson.True, gjson.False:
		return (cond.ValueType == gjson.True || cond.ValueType == gjson.False) && el.Bool() == cond.Value.(bool)
	case gjson.Null:
		return cond.ValueType == gjson.Null
	}
	return false
}

func compareStrings(a, b, op string, insensitive bool) (bool, error) {
	if insensitive {
		a, b = strings.ToLower(a), strings.ToLower(b)
	}
	switch op {
	case "equals":
		return a == b, nil
	case "notequals":
		return a != b, nil
	case "contains":
		return strings.Contains(a, b), nil
	case "startswith":
		return strings.HasPrefix(a, b), nil
	case "endswith":
		return strings.HasSuffix(a, b), nil
	}
	return false, fmt.Errorf("type mismatch: cannot apply numeric operator %q to string value", op)
}

// --- Catalog listing ---

// Catalog sort orders.
const (
	SortPriceLowToHigh = "price-lowtohigh"
	SortPriceHighToLow = "price-hightolow"
	SortTitleAToZ      = "title-atoz"
	SortTitleZToA      = "title-ztoa"

	defaultLimit = 20
	maxLimit     = 100
)

// CourseQuery describes a student catalog listing.
type CourseQuery struct {
	Categories    []string // OR within the list
	Levels        []string
	Languages     []string
	SortBy        string
	ContentQuery  []string
	PublishedOnly bool
	Page          int
	Limit         int
}

// CoursePage is one page of a catalog listing.
type CoursePage struct {
	Courses []models.Course `json:"courses"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}

// QueryCourses filters, sorts and paginates courses in memory. It works on
// the output of any Store so both backends share one listing behavior.
func QueryCourses(courses []models.Course, q CourseQuery) (CoursePage, error) {
	parsed, err := ParseContentQuery(q.ContentQuery)
	if err != nil {
		return CoursePage{}, apperr.Invalid("invalid content_query: %v", err)
	}
	if parsed != nil {
		for _, cond := range parsed.Conditions {
			if isPrivatePath(cond.Path) {
				return CoursePage{}, apperr.Invalid("invalid content_query: %q cannot be searched", cond.Path)
			}
		}
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = SortPriceLowToHigh
	}
	switch sortBy {
	case SortPriceLowToHigh, SortPriceHighToLow, SortTitleAToZ, SortTitleZToA:
	default:
		return CoursePage{}, apperr.Invalid("invalid sortBy %q", q.SortBy)
	}

	matched := make([]models.Course, 0, len(courses))
	for _, c := range courses {
		if q.PublishedOnly && !c.IsPublished {
			continue
		}
		if !inList(q.Categories, c.Category) || !inList(q.Levels, c.Level) || !inList(q.Languages, c.PrimaryLanguage) {
			continue
		}
		if parsed != nil {
			doc, err := json.Marshal(c.View())
			if err != nil {
				return CoursePage{}, apperr.Internal(err, "encoding course %s", c.ID)
			}
			ok, err := parsed.Matches(string(doc))
			if err != nil {
				return CoursePage{}, apperr.Invalid("invalid content_query: %v", err)
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, c)
	}

	sortCatalog(matched, sortBy)
	return paginate(matched, q.Page, q.Limit), nil
}

// isPrivatePath reports whether a content query path reaches the enrollment
// list. Matching runs on the student view, which has no such field.
func isPrivatePath(path string) bool {
	root := strings.TrimLeft(path, "@.")
	root = strings.TrimPrefix(root, "this.")
	if i := strings.IndexAny(root, ".|#"); i >= 0 {
		root = root[:i]
	}
	return strings.EqualFold(root, "students")
}

// inList is true for an empty filter or a case-insensitive member.
func inList(filter []string, value string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, value) {
			return true
		}
	}
	return false
}

func sortCatalog(courses []models.Course, sortBy string) {
	sort.SliceStable(courses, func(i, j int) bool {
		a, b := courses[i], courses[j]
		switch sortBy {
		case SortPriceHighToLow:
			return a.Pricing > b.Pricing
		case SortTitleAToZ:
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case SortTitleZToA:
			return strings.ToLower(a.Title) > strings.ToLower(b.Title)
		default:
			return a.Pricing < b.Pricing
		}
	})
}

func paginate(courses []models.Course, page, limit int) CoursePage {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	total := len(courses)
	if page-1 > total/limit {
		return CoursePage{Courses: courses[total:], Total: total, Page: page, Limit: limit}
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return CoursePage{Courses: courses[start:end], Total: total, Page: page, Limit: limit}
}
