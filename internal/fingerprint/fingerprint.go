// Package fingerprint computes content digests used to decide whether a
// source changed between cycles.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
)

const chunkSize = 4096

// File returns the SHA-256 of the file at path. ok is false when the file
// does not exist.
func File(path string) (digest string, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", false, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}

// Dataset digests a deterministic JSON encoding of v. Map keys are emitted
// in sorted order by encoding/json, so equal values give equal digests.
func Dataset(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return Bytes(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
