package outfmt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"text/tabwriter"

	"github.com/acto-dev/ajax/internal/filter"
)

// WriteBody prints a response body in text mode. JSON bodies are indented
// (or filtered when query is set); anything else is written verbatim.
func WriteBody(w io.Writer, body []byte, contentType, query string, compact bool) error {
	if len(body) == 0 {
		return nil
	}
	if query != "" {
		result, err := filter.ApplyFromJSON(body, query)
		if err != nil {
			return err
		}
		return WriteJSON(w, result, compact)
	}
	if isJSONContent(contentType, body) {
		var buf bytes.Buffer
		var err error
		if compact {
			err = json.Compact(&buf, body)
		} else {
			err = json.Indent(&buf, body, "", "  ")
		}
		if err == nil {
			buf.WriteByte('\n')
			_, err = w.Write(buf.Bytes())
			return err
		}
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if body[len(body)-1] != '\n' {
		_, err := fmt.Fprintln(w)
		return err
	}
	return nil
}

func isJSONContent(contentType string, body []byte) bool {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if mediaType == "application/json" || bytes.HasSuffix([]byte(mediaType), []byte("+json")) {
				return true
			}
		}
	}
	return json.Valid(body)
}

// Table writes tab-aligned columns for text output.
type Table struct {
	tw *tabwriter.Writer
}

// NewTable starts a table and writes its header row.
func NewTable(w io.Writer, headers ...string) *Table {
	t := &Table{tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
	t.Row(headers...)
	return t
}

// Row writes a single row to the table.
func (t *Table) Row(columns ...string) {
	for i, col := range columns {
		if i > 0 {
			_, _ = fmt.Fprint(t.tw, "\t")
		}
		_, _ = fmt.Fprint(t.tw, col)
	}
	_, _ = fmt.Fprintln(t.tw)
}

// Flush writes the buffered rows.
func (t *Table) Flush() error {
	return t.tw.Flush()
}
