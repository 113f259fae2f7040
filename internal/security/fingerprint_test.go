package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	fm := NewFingerprintManager()
	first := fm.Fingerprint()
	second := fm.Fingerprint()

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)

	// A fresh manager on the same machine computes the same composite.
	other := NewFingerprintManager()
	assert.Equal(t, first, other.Fingerprint())
}

func TestFingerprintCacheClear(t *testing.T) {
	fm := NewFingerprintManager()
	before := fm.Fingerprint()
	fm.ClearCache()
	assert.Equal(t, before, fm.Fingerprint())
}

func TestFingerprintEnvOverride(t *testing.T) {
	t.Setenv(FingerprintOverrideEnv, "pinned-fingerprint")

	fm := NewFingerprintManager()
	assert.Equal(t, "pinned-fingerprint", fm.Fingerprint())
	assert.True(t, fm.Matches("pinned-fingerprint"))
	assert.False(t, fm.Matches("something-else"))
}

func TestFingerprintComponents(t *testing.T) {
	fm := NewFingerprintManager()
	components := fm.Components()

	require.Contains(t, components, "hostname")
	require.Contains(t, components, "os")
	assert.NotEmpty(t, components["os"])
	assert.NotEmpty(t, components["platform"])
}

func TestShortHashStable(t *testing.T) {
	assert.Equal(t, shortHash("model name: example"), shortHash("model name: example"))
	assert.NotEqual(t, shortHash("a"), shortHash("b"))
	assert.Len(t, shortHash("x"), 16)
}
