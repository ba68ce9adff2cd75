// Package panel talks to the local web interface of a Drooff Fire+ controller
// and turns its plaintext status dump into a models.StatusRecord.
package panel

import (
	"fmt"
	"strings"

	"fireplus/internal/models"
)

const (
	lineSep        = "\n"
	escapedLineSep = `\n`
)

// Decode turns a raw status dump into a record.
//
// The dump is one value per line, framed by a leading and a trailing line
// that carry no data. The values are matched to models.Fields by position,
// so anything other than exactly models.FieldCount value lines is rejected.
func Decode(raw string) (models.StatusRecord, error) {
	lines := splitLines(raw)
	if len(lines) < 2 {
		return models.StatusRecord{}, fmt.Errorf("%w: missing framing lines", ErrMalformedResponse)
	}

	values := lines[1 : len(lines)-1]
	switch {
	case len(values) < models.FieldCount:
		return models.StatusRecord{}, fmt.Errorf("%w: insufficient fields: got %d, want %d",
			ErrMalformedResponse, len(values), models.FieldCount)
	case len(values) > models.FieldCount:
		return models.StatusRecord{}, fmt.Errorf("%w: unexpected fields: got %d, want %d",
			ErrMalformedResponse, len(values), models.FieldCount)
	}

	var rec models.StatusRecord
	copy(rec[:], values)
	return rec, nil
}

// splitLines normalizes line endings and splits the dump. Some panel
// firmwares return it as a quoted string with escaped newlines; those are
// split on the escape sequence instead.
//
// The first and last elements are framing whatever they hold, so an empty
// framing line is still framing. Only when the strict split does not yield
// the expected count is one empty element dropped from each end, which
// covers a body wrapped in an extra newline.
func splitLines(raw string) []string {
	text := strings.ReplaceAll(raw, "\r\n", lineSep)
	if text == "" {
		return nil
	}

	sep := lineSep
	if !strings.Contains(text, lineSep) && strings.Contains(text, escapedLineSep) {
		sep = escapedLineSep
	}

	lines := strings.Split(text, sep)
	if len(lines)-2 == models.FieldCount {
		return lines
	}
	if len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
