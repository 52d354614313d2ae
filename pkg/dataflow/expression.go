package dataflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SyntaxError reports a malformed expression. It is detectable from the
// expression string alone, without a resolution context.
type SyntaxError struct {
	// Expression is the offending input string.
	Expression string

	// Reason describes what is malformed.
	Reason string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("expression syntax error in %q: %s", e.Expression, e.Reason)
}

// PathError reports a path that did not resolve against the context: a missing
// producer, a missing field, or an out-of-range index.
type PathError struct {
	// Path is the unresolved path in source form.
	Path string

	// Reason describes the failing step.
	Reason string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("path not found: %s: %s", e.Path, e.Reason)
}

// step is one traversal step of a parsed path.
type step struct {
	field   string
	index   int
	isIndex bool
}

// expression is one parsed {{ ... }} reference.
type expression struct {
	// raw is the full matched text including delimiters.
	raw string

	// node is the explicit producer unit id, empty for the $json short form.
	node string

	// path is the original path text for error reporting.
	path string

	// steps are the parsed traversal steps.
	steps []step
}

var (
	// exprRe matches one complete expression. The path must start with a field
	// segment; subsequent segments are fields or numeric indexes.
	exprRe = regexp.MustCompile(
		`\{\{\s*(?:\$node\("([^"]*)"\)\.json|\$json)` +
			`((?:\.[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\])+)\s*\}\}`)

	segmentRe = regexp.MustCompile(`\.([A-Za-z_][A-Za-z0-9_]*)|\[([0-9]+)\]`)
)

// ContainsExpression reports whether the string contains expression delimiters.
func ContainsExpression(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "}}")
}

// IsExact reports whether the string is exactly one expression (modulo
// surrounding whitespace), which selects native-type resolution.
func IsExact(s string) bool {
	trimmed := strings.TrimSpace(s)
	loc := exprRe.FindStringIndex(trimmed)
	return loc != nil && loc[0] == 0 && loc[1] == len(trimmed)
}

// Validate checks expression syntax without resolving. It accepts strings with
// zero expressions (plain literals pass through untouched at resolution time).
func Validate(s string) error {
	if !ContainsExpression(s) {
		return nil
	}

	if _, err := parseAll(s); err != nil {
		return err
	}
	return nil
}

// parseAll extracts and parses every expression in the string, failing when
// delimiters remain that do not form a well-formed expression.
func parseAll(s string) ([]expression, error) {
	matches := exprRe.FindAllStringSubmatchIndex(s, -1)

	exprs := make([]expression, 0, len(matches))
	remainder := s
	for _, m := range matches {
		raw := s[m[0]:m[1]]
		node := ""
		if m[2] >= 0 {
			node = s[m[2]:m[3]]
		}
		path := s[m[4]:m[5]]
		exprs = append(exprs, expression{
			raw:   raw,
			node:  node,
			path:  path,
			steps: parsePath(path),
		})
		remainder = strings.Replace(remainder, raw, "", 1)
	}

	// Any delimiter left over belongs to no well-formed expression.
	if idx := strings.Index(remainder, "{{"); idx >= 0 {
		return nil, &SyntaxError{Expression: s, Reason: "unmatched or malformed '{{'"}
	}
	if idx := strings.Index(remainder, "}}"); idx >= 0 {
		return nil, &SyntaxError{Expression: s, Reason: "unmatched '}}'"}
	}
	return exprs, nil
}

func parsePath(path string) []step {
	segments := segmentRe.FindAllStringSubmatch(path, -1)
	steps := make([]step, 0, len(segments))
	for _, seg := range segments {
		if seg[1] != "" {
			steps = append(steps, step{field: seg[1]})
			continue
		}
		// The regex only admits digits here.
		idx, _ := strconv.Atoi(seg[2])
		steps = append(steps, step{index: idx, isIndex: true})
	}
	return steps
}
