package objects

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Render produces the human-readable rendering used by the cat command
// (without -r/--raw). It is never used for hashing, only Encode's bytes
// are: a one-line sentinel for Null, escaped content for Blob, one line
// per entry for Tree, and author/date/tree/parent/message for Commit.
func (o *Object) Render() string {
	switch o.Kind {
	case KindNull:
		return "Null object :)"
	case KindBlob:
		return "Blob:\n" + escapeASCII(o.Blob)
	case KindTree:
		if len(o.Tree) == 0 {
			return "Empty tree :)"
		}
		var b strings.Builder
		b.WriteString("Tree:")
		for _, e := range o.Tree {
			fmt.Fprintf(&b, "\n- %q %s", e.Content.String(), escapeASCII(e.Name))
		}
		return b.String()
	case KindCommit:
		c := o.Commit
		return fmt.Sprintf(
			"Commit by %s <%s> at %s\n- %q state\n- %q parent\n%s",
			c.AuthorName, c.AuthorEmail, c.Timestamp.UTC().Format(time.RFC3339),
			c.Tree.String(), c.Parent.String(), c.Message,
		)
	default:
		return fmt.Sprintf("<unknown object kind %d>", o.Kind)
	}
}

// escapeASCII renders raw bytes (which are not necessarily UTF-8):
// printable ASCII other than backslash and double quote passes through,
// everything else becomes a \xHH or named escape.
func escapeASCII(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		switch {
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '"':
			b.WriteString(`\"`)
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			b.WriteString(`\x`)
			s := strconv.FormatUint(uint64(c), 16)
			if len(s) < 2 {
				b.WriteByte('0')
			}
			b.WriteString(s)
		}
	}
	return b.String()
}
