package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jackzampolin/llmshape/internal/schema"
)

// maxRawInFailure caps how much model output a parse failure carries.
const maxRawInFailure = 16 << 10

// parseContent parses model output as JSON, with lightweight recovery for
// markdown code fences and surrounding text. On failure the error location is
// reported against the untrimmed content.
func parseContent(content string) (any, *Failure) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, &Failure{
			Kind:    KindParse,
			Message: "empty response content",
			Raw:     content,
			Line:    1,
			Column:  1,
		}
	}

	candidates := []string{trimmed}
	if stripped := stripCodeFences(trimmed); stripped != "" && stripped != trimmed {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(trimmed); extracted != "" && extracted != trimmed {
		candidates = append(candidates, extracted)
	}

	var firstErr error
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		doc, err := schema.Decode([]byte(candidate))
		if err == nil {
			return doc, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	leading := len(content) - len(strings.TrimLeftFunc(content, unicode.IsSpace))
	offset := int64(leading) + errorOffset(firstErr, trimmed)
	line, column := position(content, offset)

	raw := content
	if len(raw) > maxRawInFailure {
		raw = raw[:maxRawInFailure] + "...[truncated]"
	}

	return nil, &Failure{
		Kind:    KindParse,
		Message: fmt.Sprintf("response is not valid JSON: %v", firstErr),
		Raw:     raw,
		Offset:  offset,
		Line:    line,
		Column:  column,
		Err:     firstErr,
	}
}

// errorOffset returns the byte offset in text where decoding failed.
func errorOffset(err error, text string) int64 {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		if strings.Contains(syntaxErr.Error(), "unexpected end") {
			return int64(len(text))
		}
		// Offset counts the bytes read, including the offending one.
		if syntaxErr.Offset > 0 {
			return syntaxErr.Offset - 1
		}
		return 0
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return int64(len(text))
	}
	return 0
}

// position converts a byte offset into a 1-based line and rune column.
func position(text string, offset int64) (line, column int) {
	if offset > int64(len(text)) {
		offset = int64(len(text))
	}
	prefix := text[:offset]
	line = strings.Count(prefix, "\n") + 1
	lineStart := strings.LastIndexByte(prefix, '\n') + 1
	column = utf8.RuneCountInString(prefix[lineStart:]) + 1
	return line, column
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONCandidate returns the span from the first '{' or '[' to the last
// matching closer.
func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	objectStart := strings.Index(trimmed, "{")
	arrayStart := strings.Index(trimmed, "[")

	start := -1
	closeChar := ""
	switch {
	case objectStart >= 0 && arrayStart >= 0:
		if objectStart < arrayStart {
			start = objectStart
			closeChar = "}"
		} else {
			start = arrayStart
			closeChar = "]"
		}
	case objectStart >= 0:
		start = objectStart
		closeChar = "}"
	case arrayStart >= 0:
		start = arrayStart
		closeChar = "]"
	default:
		return ""
	}

	end := strings.LastIndex(trimmed, closeChar)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}
