package media

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Filename layout: <photographer>_<YYYY-MM-DD>_<HH-MM-SS>_<token><ext>.
// Older uploads use <photographer>_<token><ext>; both decode.
const (
	nameDelimiter = "_"
	dateLayout    = "2006-01-02"
	timeLayout    = "15-04-05"

	// TimestampLayout is the batch timestamp segment as it appears on disk.
	TimestampLayout = dateLayout + nameDelimiter + timeLayout
)

// FileName is the metadata recovered from a stored filename. Decoding is
// lossy: a photographer label containing "_" is misattributed.
type FileName struct {
	Photographer string
	Timestamp    time.Time // zero when the name carries no timestamp
	Token        string
	Ext          string
}

// HasTimestamp reports whether a timestamp segment was decoded.
func (f FileName) HasTimestamp() bool {
	return !f.Timestamp.IsZero()
}

// NewToken returns a random uniqueness token. UUIDs never contain the
// delimiter, so the token cannot shift decoded segments.
func NewToken() string {
	return uuid.NewString()
}

// NewBaseName builds the per-batch shared prefix "label_timestamp". The
// label must already be sanitized.
func NewBaseName(label string, at time.Time) string {
	return label + nameDelimiter + at.Format(TimestampLayout)
}

// EncodeFilename joins a batch base name, a token and the original
// extension. The extension is kept verbatim, including its case.
func EncodeFilename(base, token, ext string) string {
	return base + nameDelimiter + token + ext
}

// DecodeFilename recovers provenance from a stored filename. It never
// fails; unparseable parts are left empty.
func DecodeFilename(name string) FileName {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	parts := strings.Split(stem, nameDelimiter)

	fn := FileName{Photographer: parts[0], Ext: ext}
	if len(parts) == 1 {
		return fn
	}

	if len(parts) >= 3 {
		if ts, err := time.Parse(TimestampLayout, parts[1]+nameDelimiter+parts[2]); err == nil {
			fn.Timestamp = ts
			fn.Token = strings.Join(parts[3:], nameDelimiter)
			return fn
		}
	}

	fn.Token = strings.Join(parts[1:], nameDelimiter)
	return fn
}
