package clicks

import (
	"strings"

	"github.com/mikepea/linkcash/pkg/linkcash/models"
)

// Column widths for visitor-supplied values on a click row.
const (
	maxNameLength = 64
	maxCityLength = 128
	maxIPLength   = 64
)

// cleanText makes a header value safe to store: invalid UTF-8 and NUL
// bytes are dropped and the result is cut to limit runes. A limit of zero
// keeps the full length.
func cleanText(v string, limit int) string {
	v = strings.ToValidUTF8(v, "")
	v = strings.ReplaceAll(v, "\x00", "")
	v = strings.TrimSpace(v)
	if limit > 0 {
		v = models.TruncateRunes(v, limit)
	}
	return v
}
