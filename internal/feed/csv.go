package feed

import "strings"

// Header is the first line of every feed document.
const Header = "VIN,StockNumber,ImageURLs"

const lineEnd = "\r\n"

// Escape quotes a field per RFC 4180 when it contains a comma, a double quote
// or a line break. Other values are returned unchanged.
func Escape(field string) string {
	if !strings.ContainsAny(field, ",\"\r\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func writeRow(b *strings.Builder, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(Escape(f))
	}
	b.WriteString(lineEnd)
}
