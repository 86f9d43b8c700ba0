// Package signing implements the upload authenticity check: an HMAC-SHA256
// over the file digest, the canonical options JSON, and the client timestamp.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/prooflab/cardproof-backend/internal/jobs"
)

// MaxClockSkew bounds how stale a signed timestamp may be, in either
// direction.
const MaxClockSkew = 5 * time.Minute

// CanonicalOptions serializes options with a fixed, alphabetical key order so
// both sides sign identical bytes.
func CanonicalOptions(opts jobs.Options) string {
	canonical := struct {
		DPI           int  `json:"dpi"`
		EnableOCG     bool `json:"enableOcg"`
		ExtractVector bool `json:"extractVector"`
	}{opts.DPI, opts.EnableOCG, opts.ExtractVector}
	raw, _ := json.Marshal(canonical)
	return string(raw)
}

// Compute returns the hex signature over sha256_hex(file) || canonical_json ||
// timestamp (decimal milliseconds).
func Compute(secret string, fileDigest [sha256.Size]byte, opts jobs.Options, timestampMS int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(hex.EncodeToString(fileDigest[:])))
	mac.Write([]byte(CanonicalOptions(opts)))
	mac.Write([]byte(strconv.FormatInt(timestampMS, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the presented signature and the timestamp freshness against
// now. The comparison is constant time.
func Verify(secret, presented string, fileDigest [sha256.Size]byte, opts jobs.Options, timestampMS int64, now time.Time) bool {
	ts := time.UnixMilli(timestampMS)
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew {
		return false
	}
	want := Compute(secret, fileDigest, opts, timestampMS)
	return hmac.Equal([]byte(want), []byte(presented))
}
