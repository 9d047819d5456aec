package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashInputs returns a stable SHA-256 hex digest of the given value's JSON
// encoding. Audit entries record this for every set of inputs a pipeline
// decision consumed.
func HashInputs(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
