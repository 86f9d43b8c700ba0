package signing

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prooflab/cardproof-backend/internal/jobs"
)

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	digest := sha256.Sum256([]byte("card bytes"))
	opts := jobs.Options{DPI: 600, ExtractVector: true}
	now := time.Now()
	ts := now.UnixMilli()

	sig := Compute("secret", digest, opts, ts)
	require.True(t, Verify("secret", sig, digest, opts, ts, now))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()
	digest := sha256.Sum256([]byte("card bytes"))
	opts := jobs.Options{DPI: 600}
	now := time.Now()
	ts := now.UnixMilli()

	sig := Compute("secret", digest, opts, ts)
	require.False(t, Verify("other", sig, digest, opts, ts, now))
}

func TestVerifyRejectsTamperedInputs(t *testing.T) {
	t.Parallel()
	digest := sha256.Sum256([]byte("card bytes"))
	opts := jobs.Options{DPI: 600}
	now := time.Now()
	ts := now.UnixMilli()
	sig := Compute("secret", digest, opts, ts)

	otherDigest := sha256.Sum256([]byte("swapped file"))
	require.False(t, Verify("secret", sig, otherDigest, opts, ts, now))

	require.False(t, Verify("secret", sig, digest, jobs.Options{DPI: 1200}, ts, now))
	require.False(t, Verify("secret", sig, digest, opts, ts+1, now))
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	t.Parallel()
	digest := sha256.Sum256([]byte("card bytes"))
	opts := jobs.Options{DPI: 600}
	now := time.Now()

	old := now.Add(-MaxClockSkew - time.Second).UnixMilli()
	sig := Compute("secret", digest, opts, old)
	require.False(t, Verify("secret", sig, digest, opts, old, now))

	future := now.Add(MaxClockSkew + time.Second).UnixMilli()
	sig = Compute("secret", digest, opts, future)
	require.False(t, Verify("secret", sig, digest, opts, future, now))

	edge := now.Add(-MaxClockSkew + time.Second).UnixMilli()
	sig = Compute("secret", digest, opts, edge)
	require.True(t, Verify("secret", sig, digest, opts, edge, now))
}

func TestCanonicalOptionsIsStable(t *testing.T) {
	t.Parallel()
	got := CanonicalOptions(jobs.Options{DPI: 300, EnableOCG: true, ExtractVector: false})
	require.Equal(t, `{"dpi":300,"enableOcg":true,"extractVector":false}`, got)
}
