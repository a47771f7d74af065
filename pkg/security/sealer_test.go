package security

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return s
}

func TestSealRoundTrip(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("sk_live_abc", "DJ001")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sealed, "v1."))
	require.NotContains(t, sealed, "sk_live_abc")

	plain, err := s.Open(sealed, "DJ001")
	require.NoError(t, err)
	require.Equal(t, "sk_live_abc", plain)
}

func TestSealUsesFreshNonce(t *testing.T) {
	s := newTestSealer(t)
	a, err := s.Seal("token", "DJ001")
	require.NoError(t, err)
	b, err := s.Seal("token", "DJ001")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestOpenRejectsWrongOwnerAndTampering(t *testing.T) {
	s := newTestSealer(t)
	sealed, err := s.Seal("token", "DJ001")
	require.NoError(t, err)

	_, err = s.Open(sealed, "DJ002")
	require.ErrorIs(t, err, ErrInvalidSealedValue)

	_, err = s.Open(sealed[:len(sealed)-2]+"AA", "DJ001")
	require.ErrorIs(t, err, ErrInvalidSealedValue)

	_, err = s.Open("plaintext-token", "DJ001")
	require.ErrorIs(t, err, ErrInvalidSealedValue)
}

func TestNewSealerRejectsShortKey(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	require.Error(t, err)
}
