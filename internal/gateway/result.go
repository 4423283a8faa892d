package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the outcome of parsing a gateway response: either Ok with a typed
// value or a ParseFailure carrying the raw text.
type Result[T any] struct {
	value T
	raw   string
	err   error
	ok    bool
}

// Ok wraps a successfully parsed value.
func Ok[T any](v T, raw string) Result[T] {
	return Result[T]{value: v, raw: raw, ok: true}
}

// ParseFailure wraps raw text that could not be parsed.
func ParseFailure[T any](raw string, err error) Result[T] {
	return Result[T]{raw: raw, err: err}
}

// Value returns the parsed value and whether parsing succeeded.
func (r Result[T]) Value() (T, bool) { return r.value, r.ok }

// Ok reports whether the result holds a parsed value.
func (r Result[T]) Ok() bool { return r.ok }

// Raw returns the unparsed response text.
func (r Result[T]) Raw() string { return r.raw }

// Err returns the parse error of a failure, wrapping ErrInvalidOutput.
func (r Result[T]) Err() error { return r.err }

// Validator checks a parsed value.
type Validator[T any] func(T) error

// ParseJSON extracts the first JSON object from raw text, tolerating markdown
// code fences and surrounding prose, and validates it.
func ParseJSON[T any](raw string, validate Validator[T]) Result[T] {
	block := extractJSONObject(stripCodeFences(raw))
	if block == "" {
		return ParseFailure[T](raw, fmt.Errorf("%w: no JSON object found", ErrInvalidOutput))
	}

	var v T
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return ParseFailure[T](raw, fmt.Errorf("%w: %v", ErrInvalidOutput, err))
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return ParseFailure[T](raw, fmt.Errorf("%w: validation failed: %v", ErrInvalidOutput, err))
		}
	}
	return Ok(v, raw)
}

// CompleteJSON sends req with JSON mode and parses the reply. Transport
// failures are returned as errors; parse failures as a ParseFailure result.
func CompleteJSON[T any](ctx context.Context, c Client, req Request, validate Validator[T]) (Result[T], Response, error) {
	req.JSON = true
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return Result[T]{}, resp, err
	}
	return ParseJSON(resp.Text, validate), resp, nil
}

func stripCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// extractJSONObject returns the first balanced {...} block, skipping braces
// inside string literals.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
