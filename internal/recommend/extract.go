package recommend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawTag is a tag as the backend returned it, before validation.
type rawTag struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type rawContent struct {
	ToAdd    *[]rawTag `json:"toAdd"`
	ToRemove *[]rawTag `json:"toRemove"`
}

type rawResponse struct {
	Content *rawContent `json:"content"`
}

// extractObject returns the first balanced top-level JSON object in s.
// Braces inside string literals are ignored. An opening brace that never
// closes is skipped and the scan resumes after it.
func extractObject(s string) (string, bool) {
	for from := 0; from < len(s); {
		start := strings.IndexByte(s[from:], '{')
		if start < 0 {
			return "", false
		}
		start += from
		if end, ok := matchBrace(s, start); ok {
			return s[start : end+1], true
		}
		from = start + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at s[start].
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// parseResponse extracts and shape-checks the recommendation payload.
func parseResponse(raw string) (add, remove []rawTag, err error) {
	obj, ok := extractObject(raw)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}

	var resp rawResponse
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch {
	case resp.Content == nil:
		return nil, nil, fmt.Errorf("%w: missing content", ErrMalformedResponse)
	case resp.Content.ToAdd == nil:
		return nil, nil, fmt.Errorf("%w: content.toAdd must be an array", ErrMalformedResponse)
	case resp.Content.ToRemove == nil:
		return nil, nil, fmt.Errorf("%w: content.toRemove must be an array", ErrMalformedResponse)
	}

	return *resp.Content.ToAdd, *resp.Content.ToRemove, nil
}
