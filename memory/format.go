package memory

import (
	"fmt"
	"strconv"
	"strings"
)

// Delimiter markers for the context block. Each group is bounded by a header
// and footer so a downstream generator can tell document excerpts from
// conversational memory.
const (
	docHeader  = "=== Document excerpts from long-term memory ==="
	docFooter  = "=== End of document excerpts ==="
	convHeader = "=== Past user messages from long-term memory ==="
	convFooter = "=== End of past user messages ==="
)

// FormatContext renders retrieved records into a structured text block for
// prompt injection. Records split into two ordered groups: document-derived
// chunks first, then conversational content. A group with no members is
// omitted entirely; an empty input yields an empty string.
func FormatContext(records []Record) string {
	var docs, conv []Record
	for _, rec := range records {
		switch rec.Type {
		case TypeDocChunk:
			docs = append(docs, rec)
		case TypeDocIndex:
			// Passports are not context.
		default:
			conv = append(conv, rec)
		}
	}
	if len(docs) == 0 && len(conv) == 0 {
		return ""
	}

	var b strings.Builder
	if len(docs) > 0 {
		b.WriteString(docHeader)
		b.WriteByte('\n')
		for i, rec := range docs {
			fmt.Fprintf(&b, "%d. %s%s\n", i+1, sourceTag(rec), rec.Text)
		}
		b.WriteString(docFooter)
		b.WriteByte('\n')
	}
	if len(conv) > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(convHeader)
		b.WriteByte('\n')
		for i, rec := range conv {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec.Text)
		}
		b.WriteString(convFooter)
		b.WriteByte('\n')
	}
	return b.String()
}

// sourceTag builds the bracketed source descriptor of a document chunk from
// whichever of filename, page number and heading are present, in that order.
func sourceTag(rec Record) string {
	var parts []string
	if rec.Filename != "" {
		parts = append(parts, rec.Filename)
	}
	if rec.PageNo > 0 {
		parts = append(parts, "p. "+strconv.Itoa(rec.PageNo))
	}
	if rec.Headings != "" {
		parts = append(parts, rec.Headings)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, ", ") + "] "
}
