package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

const hashBlockSize = 4096

// HashReader computes the SHA-256 of r as a lowercase hex string, reading in
// fixed-size blocks so arbitrarily large uploads stay off the heap.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashBlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the SHA-256 of data as a lowercase hex string.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
