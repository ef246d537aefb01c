package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMalformedTransfer is returned when a bulk transfer line is not a
// "key value" pair.
var ErrMalformedTransfer = errors.New("malformed bulk transfer")

// EncodeBulk serializes entries as newline-separated "key value" lines in key
// order. If limit > 0 the payload is cut at the last whole line that fits and
// the number of dropped entries is returned. An empty store encodes to an
// empty payload.
func EncodeBulk(entries map[string]string, limit int) ([]byte, int) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		line := k + " " + entries[k]
		size := len(line)
		if b.Len() > 0 {
			size++
		}
		if limit > 0 && b.Len()+size > limit {
			return []byte(b.String()), len(keys) - i
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return []byte(b.String()), 0
}

// DecodeBulk parses a bulk transfer payload. The whole payload is validated
// before anything is returned: one bad line fails the transfer.
func DecodeBulk(payload []byte) (map[string]string, error) {
	entries := make(map[string]string)
	if len(payload) == 0 {
		return entries, nil
	}

	for i, line := range strings.Split(string(payload), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedTransfer, i+1, line)
		}
		entries[fields[0]] = fields[1]
	}
	return entries, nil
}
