// Package xmlscan reads the flat, loosely well-formed XML the ERP returns.
//
// It is a first-match tag scanner, not a parser: elements are located by name
// without tracking nesting, so a block is closed by the first matching end tag.
// That is enough for the ERP's vocabulary, where row and item tags never nest
// in themselves, and it keeps working on responses a strict decoder rejects.
package xmlscan

import "strings"

const (
	cdataOpen  = "<![CDATA["
	cdataClose = "]]>"
)

var (
	escaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	unescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")
)

// Escape replaces the five reserved markup characters with entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape reverses Escape for exactly one level: "&amp;lt;" becomes "&lt;".
func Unescape(s string) string {
	return unescaper.Replace(s)
}

type span struct {
	inner string
	end   int
}

// find locates the first <name ...>...</name> (or <name/>) at or after from.
// The opening tag may carry attributes; "<namex>" does not match "name".
func find(s, name string, from int) (span, bool) {
	open := "<" + name
	closing := "</" + name + ">"
	for from < len(s) {
		i := strings.Index(s[from:], open)
		if i < 0 {
			return span{}, false
		}
		j := from + i + len(open)
		if j >= len(s) {
			return span{}, false
		}
		switch c := s[j]; {
		case c == '>' || c == '/' || isSpace(c):
		default:
			from = j
			continue
		}
		k := strings.IndexByte(s[j:], '>')
		if k < 0 {
			return span{}, false
		}
		bodyStart := j + k + 1
		if s[bodyStart-2] == '/' {
			return span{end: bodyStart}, true
		}
		c := strings.Index(s[bodyStart:], closing)
		if c < 0 {
			return span{}, false
		}
		return span{
			inner: s[bodyStart : bodyStart+c],
			end:   bodyStart + c + len(closing),
		}, true
	}
	return span{}, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Inner returns the raw content of the first name element.
func Inner(s, name string) (string, bool) {
	sp, ok := find(s, name, 0)
	return sp.inner, ok
}

// Text returns the trimmed text of the first name element with one level of
// CDATA removed, or "" when the element is absent.
func Text(s, name string) string {
	inner, ok := Inner(s, name)
	if !ok {
		return ""
	}
	v := strings.TrimSpace(inner)
	if strings.HasPrefix(v, cdataOpen) && strings.HasSuffix(v, cdataClose) {
		v = strings.TrimSpace(v[len(cdataOpen) : len(v)-len(cdataClose)])
	}
	return v
}

// Blocks returns the raw content of every non-overlapping name element in order.
func Blocks(s, name string) []string {
	var out []string
	pos := 0
	for {
		sp, ok := find(s, name, pos)
		if !ok {
			return out
		}
		out = append(out, sp.inner)
		pos = sp.end
	}
}

// Count returns the number of <name> opening tags, attributes allowed.
func Count(s, name string) int {
	open := "<" + name
	n := 0
	for i := 0; ; {
		k := strings.Index(s[i:], open)
		if k < 0 {
			return n
		}
		j := i + k + len(open)
		if j < len(s) && (s[j] == '>' || isSpace(s[j])) {
			n++
		}
		i = j
	}
}
