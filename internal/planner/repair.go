package planner

import (
	"encoding/json"
	"strings"
)

type containerKind byte

const (
	inObject containerKind = '{'
	inArray  containerKind = '['
)

type expect int

const (
	expectValue expect = iota
	expectKey
	expectColon
	expectCommaOrClose
)

type frame struct {
	kind   containerKind
	expect expect
}

type checkpoint struct {
	length int
	stack  []frame
}

// repairJSON salvages a truncated JSON document. It walks the input token by
// token, remembering the last point at which every open container was in a
// consistent state (just opened, or just after a complete member/element).
// Scanning stops at the first token that cannot be valid: an unterminated
// string, a malformed literal, or out-of-place punctuation. The output is
// everything up to the last checkpoint with a dangling comma removed and the
// still-open containers closed in reverse order. A number at the very end of
// the input is kept as-is.
func repairJSON(input string) (string, bool) {
	var (
		out   strings.Builder
		stack []frame
		last  *checkpoint
	)
	mark := func() {
		last = &checkpoint{length: out.Len(), stack: append([]frame(nil), stack...)}
	}
	// completeValue records that a value finished in the current container.
	completeValue := func() bool {
		if len(stack) == 0 {
			return true
		}
		stack[len(stack)-1].expect = expectCommaOrClose
		mark()
		return false
	}

	i := 0
scan:
	for i < len(input) {
		c := input[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		var state expect = expectValue
		if len(stack) > 0 {
			state = stack[len(stack)-1].expect
		}

		switch c {
		case '{', '[':
			if state != expectValue {
				break scan
			}
			out.WriteByte(c)
			stack = append(stack, newFrame(containerKind(c)))
			mark()
			i++

		case '}', ']':
			if len(stack) == 0 {
				break scan
			}
			top := stack[len(stack)-1]
			if byte(top.kind) != openerFor(c) {
				break scan
			}
			// Accept a trailing comma before the closer by dropping it.
			switch {
			case top.expect == expectCommaOrClose:
			case top.kind == inObject && top.expect == expectKey:
			case top.kind == inArray && top.expect == expectValue:
			default:
				break scan
			}
			trimTrailingComma(&out)
			out.WriteByte(c)
			stack = stack[:len(stack)-1]
			i++
			if completeValue() {
				return out.String(), true
			}

		case ':':
			if state != expectColon {
				break scan
			}
			out.WriteByte(c)
			stack[len(stack)-1].expect = expectValue
			i++

		case ',':
			if state != expectCommaOrClose {
				break scan
			}
			out.WriteByte(c)
			top := &stack[len(stack)-1]
			if top.kind == inObject {
				top.expect = expectKey
			} else {
				top.expect = expectValue
			}
			i++

		case '"':
			end, ok := scanString(input, i)
			if !ok {
				break scan
			}
			if state != expectKey && state != expectValue {
				break scan
			}
			out.WriteString(input[i:end])
			i = end
			if state == expectKey {
				stack[len(stack)-1].expect = expectColon
				continue
			}
			if completeValue() {
				return out.String(), true
			}

		default:
			if state != expectValue {
				break scan
			}
			end := scanLiteral(input, i)
			literal := input[i:end]
			if literal == "" || !validLiteral(literal) {
				break scan
			}
			out.WriteString(literal)
			i = end
			if completeValue() {
				return out.String(), true
			}
		}
	}

	if last == nil {
		return "", false
	}
	result := out.String()[:last.length]
	var b strings.Builder
	b.WriteString(result)
	trimTrailingComma(&b)
	for j := len(last.stack) - 1; j >= 0; j-- {
		b.WriteByte(closerFor(last.stack[j].kind))
	}
	return b.String(), true
}

func newFrame(kind containerKind) frame {
	f := frame{kind: kind, expect: expectValue}
	if kind == inObject {
		f.expect = expectKey
	}
	return f
}

func openerFor(closer byte) byte {
	if closer == '}' {
		return '{'
	}
	return '['
}

func closerFor(kind containerKind) byte {
	if kind == inObject {
		return '}'
	}
	return ']'
}

// scanString returns the index just past the closing quote of the string
// starting at input[start].
func scanString(input string, start int) (int, bool) {
	for i := start + 1; i < len(input); i++ {
		switch input[i] {
		case '\\':
			i++
		case '"':
			return i + 1, true
		}
	}
	return 0, false
}

func scanLiteral(input string, start int) int {
	i := start
	for i < len(input) {
		c := input[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' {
			i++
			continue
		}
		break
	}
	return i
}

func validLiteral(literal string) bool {
	switch literal {
	case "true", "false", "null":
		return true
	}
	return json.Valid([]byte(literal))
}

func trimTrailingComma(b *strings.Builder) {
	s := strings.TrimRight(b.String(), " \t\r\n")
	if strings.HasSuffix(s, ",") {
		s = s[:len(s)-1]
	} else if len(s) == b.Len() {
		return
	}
	b.Reset()
	b.WriteString(s)
}
