package builder

import (
	"strings"

	"authrator/internal/model"
)

// appendQuery appends the params with a non-empty key to u, using '?' when
// u has no query delimiter yet and '&' otherwise.
func appendQuery(u string, params []model.KeyValue) string {
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		if p.Key == "" {
			continue
		}
		pairs = append(pairs, encodeComponent(p.Key)+"="+encodeComponent(p.Value))
	}
	if len(pairs) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + strings.Join(pairs, "&")
}

const upperhex = "0123456789ABCDEF"

// encodeComponent percent-encodes every byte of s except the unreserved
// marks A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeComponent(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !isUnreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
