// Package fingerprint computes content digests recorded with every load for
// provenance. Digests are never used to decide whether data is correct.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// Unavailable is recorded when a digest could not be computed.
const Unavailable = "unavailable"

// Bytes returns the 16-byte BLAKE3 digest of b as hex.
func Bytes(b []byte) string {
	hasher := blake3.New()
	_, _ = hasher.Write(b)

	var buf [16]byte
	_, _ = hasher.Digest().Read(buf[0:])
	return fmt.Sprintf("%x", buf)
}

// Rows digests decoded rows. Column names and row order both contribute, so
// the same rows in a different order produce a different digest.
func Rows(columns []string, rows [][]any) string {
	hasher := blake3.New()

	header, err := json.Marshal(columns)
	if err != nil {
		return Unavailable
	}
	_, _ = hasher.Write(header)
	_, _ = hasher.Write([]byte{'\n'})

	for _, row := range rows {
		encoded, err := encodeRow(row)
		if err != nil {
			return Unavailable
		}
		_, _ = hasher.Write(encoded)
		_, _ = hasher.Write([]byte{'\n'})
	}

	var buf [16]byte
	_, _ = hasher.Digest().Read(buf[0:])
	return fmt.Sprintf("%x", buf)
}

func encodeRow(row []any) ([]byte, error) {
	values := make([]any, len(row))
	for i, v := range row {
		switch tv := v.(type) {
		case time.Time:
			values[i] = tv.UTC().Format(time.RFC3339Nano)
		case fmt.Stringer:
			values[i] = tv.String()
		default:
			values[i] = v
		}
	}
	return json.Marshal(values)
}
