package trace

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseLiteral reads a literal as written in source: numbers (decimal,
// hex/octal/binary, signed), quoted strings, true/false/null/undefined,
// NaN/Infinity, and bracketed arrays of literals.
func ParseLiteral(text string) (Value, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Undefined, fmt.Errorf("%w: empty literal", ErrInvalidLiteral)
	}

	switch s {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "null":
		return Null, nil
	case "undefined":
		return Undefined, nil
	case "NaN":
		return Number(math.NaN()), nil
	}

	switch s[0] {
	case '"', '\'':
		str, err := unquote(s)
		if err != nil {
			return Undefined, fmt.Errorf("%w: %s: %v", ErrInvalidLiteral, s, err)
		}
		return String(str), nil
	case '[':
		return parseArrayLiteral(s)
	}

	if n, ok := parseNumber(s); ok {
		return Number(n), nil
	}
	return Undefined, fmt.Errorf("%w: %q", ErrInvalidLiteral, s)
}

func parseNumber(s string) (float64, bool) {
	sign := 1.0
	body := s
	if strings.HasPrefix(body, "-") {
		sign, body = -1, body[1:]
	} else if strings.HasPrefix(body, "+") {
		body = body[1:]
	}
	if body == "" {
		return 0, false
	}
	if body == "Infinity" {
		return sign * math.Inf(1), true
	}

	if len(body) > 2 && body[0] == '0' {
		base := 0
		switch body[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(body[2:], base, 64)
			if err != nil {
				return 0, false
			}
			return sign * float64(n), true
		}
	}

	for _, r := range body {
		if (r < '0' || r > '9') && r != '.' && r != 'e' && r != 'E' && r != '+' && r != '-' {
			return 0, false
		}
	}
	n, err := strconv.ParseFloat(body, 64)
	if err != nil && !math.IsInf(n, 0) {
		return 0, false
	}
	return sign * n, true
}

func unquote(s string) (string, error) {
	quote := s[0]
	if len(s) < 2 || s[len(s)-1] != quote {
		return "", fmt.Errorf("unterminated string")
	}
	body := s[1 : len(s)-1]

	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == quote {
			return "", fmt.Errorf("unescaped quote at offset %d", i+1)
		}
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("dangling escape")
		}
		switch e := body[i]; e {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '0':
			sb.WriteByte(0)
		case 'x', 'u':
			width := 2
			if e == 'u' {
				width = 4
			}
			if i+width >= len(body) {
				return "", fmt.Errorf("short \\%c escape", e)
			}
			code, err := strconv.ParseUint(body[i+1:i+1+width], 16, 32)
			if err != nil {
				return "", fmt.Errorf("bad \\%c escape: %w", e, err)
			}
			sb.WriteRune(rune(code))
			i += width
		default:
			r, size := utf8.DecodeRuneInString(body[i:])
			sb.WriteRune(r)
			i += size - 1
		}
	}
	return sb.String(), nil
}

func parseArrayLiteral(s string) (Value, error) {
	if s[len(s)-1] != ']' {
		return Undefined, fmt.Errorf("%w: unterminated array %q", ErrInvalidLiteral, s)
	}
	parts, err := splitTopLevel(s[1 : len(s)-1])
	if err != nil {
		return Undefined, fmt.Errorf("%w: %q: %v", ErrInvalidLiteral, s, err)
	}

	elems := make([]Value, 0, len(parts))
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			if i == len(parts)-1 && i > 0 {
				break // trailing comma
			}
			if len(parts) == 1 {
				break // []
			}
			return Undefined, fmt.Errorf("%w: empty element in %q", ErrInvalidLiteral, s)
		}
		v, err := ParseLiteral(part)
		if err != nil {
			return Undefined, err
		}
		elems = append(elems, v)
	}
	return NewArray(elems...), nil
}

// splitTopLevel splits on commas outside quotes and nested brackets.
func splitTopLevel(s string) ([]string, error) {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced ']'")
			}
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if quote != 0 || depth != 0 {
		return nil, fmt.Errorf("unterminated element")
	}
	return append(parts, s[start:]), nil
}
