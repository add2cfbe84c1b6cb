package satellite

import "strings"

// fit returns open+close laid out over the span original occupied: the same
// line breaks, and the text after the span keeps its line and column whenever
// the replacement is no wider than the original on its first or last line.
func fit(open, close, original string) string {
	var b strings.Builder
	b.WriteString(open)

	last := strings.LastIndexByte(original, '\n')
	if last < 0 {
		if pad := len(original) - len(open) - len(close); pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(close)
		return b.String()
	}

	for i := 0; i < len(original); i++ {
		if c := original[i]; c == '\n' || c == '\r' {
			b.WriteByte(c)
		}
	}
	if pad := len(original) - last - 1 - len(close); pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	b.WriteString(close)
	return b.String()
}
