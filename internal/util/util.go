package util

import (
	"crypto/sha1"
	"encoding/hex"
)

// HashURL derives a fixed-size key from a url, safe to embed in a
// redis key regardless of the url's characters.
func HashURL(url string) string {
	hasher := sha1.New()
	hasher.Write([]byte(url))

	return hex.EncodeToString(hasher.Sum(nil))
}
