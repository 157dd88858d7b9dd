package frontend

import (
	"fmt"
	"strconv"
	"strings"

	"reticle/internal/diag"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNum
	tokAny
	tokArrow
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	val  int64
	line int
	col  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNum:
		return fmt.Sprintf("number %s", t.text)
	case tokIdent:
		return fmt.Sprintf("identifier %q", t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

func (t token) pos() string { return fmt.Sprintf("%d:%d", t.line, t.col) }

// lex splits src into tokens. Line comments start with "//".
func lex(src string) ([]token, error) {
	var toks []token
	line, col := 1, 1
	i := 0
	advance := func(n int) {
		for k := 0; k < n; k++ {
			if src[i] == '\n' {
				line++
				col = 1
			} else {
				col++
			}
			i++
		}
	}
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			advance(1)
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				advance(1)
			}
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], line: line, col: col})
			advance(j - i)
		case isDigit(c) || (c == '-' && i+1 < len(src) && isDigit(src[i+1])):
			j := i + 1
			for j < len(src) && (isIdentPart(src[j])) {
				j++
			}
			text := src[i:j]
			v, err := parseNumber(text)
			if err != nil {
				return nil, diag.Errorf(diag.ParseError, "%d:%d: bad number %q", line, col, text)
			}
			toks = append(toks, token{kind: tokNum, text: text, val: v, line: line, col: col})
			advance(j - i)
		case strings.HasPrefix(src[i:], "->"):
			toks = append(toks, token{kind: tokArrow, text: "->", line: line, col: col})
			advance(2)
		case strings.HasPrefix(src[i:], "??"):
			toks = append(toks, token{kind: tokAny, text: "??", line: line, col: col})
			advance(2)
		case strings.ContainsRune("()[]{},;:=@<>+", rune(c)):
			toks = append(toks, token{kind: tokPunct, text: string(c), line: line, col: col})
			advance(1)
		default:
			return nil, diag.Errorf(diag.ParseError, "%d:%d: unexpected character %q", line, col, c)
		}
	}
	toks = append(toks, token{kind: tokEOF, line: line, col: col})
	return toks, nil
}

// parseNumber accepts decimal, 0x and 0b literals. Unsigned literals use the
// full 64 bits so LUT6 tables fit.
func parseNumber(text string) (int64, error) {
	if strings.HasPrefix(text, "-") {
		return strconv.ParseInt(text, 0, 64)
	}
	u, err := strconv.ParseUint(text, 0, 64)
	return int64(u), err
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
