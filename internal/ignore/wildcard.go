package ignore

import (
	"regexp"
	"strings"
)

// TranslateWildcard converts a shell wildcard into an anchored regular expression.
// '*' matches any run of characters including '/', '?' matches one character and
// bracket expressions become character classes ('!' negates). An unterminated '['
// is taken literally.
func TranslateWildcard(pattern string) string {
	var b strings.Builder
	b.WriteString(`^(?s:`)

	runes := []rune(pattern)
	n := len(runes)
	for i := 0; i < n; i++ {
		c := runes[i]
		switch c {
		case '*':
			// consecutive stars collapse into one
			for i+1 < n && runes[i+1] == '*' {
				i++
			}
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			end, ok := classEnd(runes, i)
			if !ok {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(bracketClass(runes[i+1 : end]))
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	b.WriteString(`)$`)
	return b.String()
}

// classEnd finds the closing ']' of a bracket expression starting at runes[start].
// A ']' directly after '[' or '[!' is part of the set.
func classEnd(runes []rune, start int) (int, bool) {
	j := start + 1
	if j < len(runes) && runes[j] == '!' {
		j++
	}
	if j < len(runes) && runes[j] == ']' {
		j++
	}
	for ; j < len(runes); j++ {
		if runes[j] == ']' {
			return j, true
		}
	}
	return 0, false
}

// bracketClass renders the inside of a bracket expression as a regex class.
// Reversed ranges such as z-a match nothing and are dropped; a class left
// without members never matches, or matches any character when negated.
func bracketClass(body []rune) string {
	negate := len(body) > 0 && body[0] == '!'
	if negate {
		body = body[1:]
	}

	var members strings.Builder
	for k := 0; k < len(body); k++ {
		lo := body[k]
		if k+2 < len(body) && body[k+1] == '-' {
			hi := body[k+2]
			k += 2
			if lo > hi {
				continue
			}
			writeClassRune(&members, lo)
			members.WriteByte('-')
			writeClassRune(&members, hi)
			continue
		}
		writeClassRune(&members, lo)
	}

	if members.Len() == 0 {
		if negate {
			return `[\x00-\x{10FFFF}]`
		}
		return `[^\x00-\x{10FFFF}]`
	}

	if negate {
		return "[^" + members.String() + "]"
	}
	return "[" + members.String() + "]"
}

func writeClassRune(b *strings.Builder, c rune) {
	switch c {
	case '\\', '[', ']', '^', '-':
		b.WriteByte('\\')
	}
	b.WriteRune(c)
}
