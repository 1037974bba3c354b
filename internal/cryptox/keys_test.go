package cryptox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	expectedHex := "9290403300158e19f27e48e7087f7383b03065bf5b25ef23ebc40229616cd8b3"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, []byte("salt-1"))
	key2 := DeriveKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestParseKey(t *testing.T) {
	key := bytes.Repeat([]byte{0x5A}, 32)
	short := bytes.Repeat([]byte{0x11}, 16)

	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{name: "std base64", in: base64.StdEncoding.EncodeToString(key), want: key},
		{name: "raw url base64", in: base64.RawURLEncoding.EncodeToString(key), want: key},
		{name: "hex 32", in: hex.EncodeToString(key), want: key},
		{name: "hex 16", in: hex.EncodeToString(short), want: short},
		{name: "surrounding spaces", in: "  " + EncodeKey(key) + "\n", want: key},
		{name: "empty", in: "", wantErr: true},
		{name: "wrong length", in: base64.StdEncoding.EncodeToString([]byte("short")), wantErr: true},
		{name: "garbage", in: "!!!not a key!!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)

	parsed, err := ParseKey(EncodeKey(a))
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func TestWipe(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	Wipe(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
	Wipe(nil)
}

func TestRandomBytes(t *testing.T) {
	b, err := RandomBytes(0)
	require.NoError(t, err)
	assert.Empty(t, b)

	b, err = RandomBytes(24)
	require.NoError(t, err)
	assert.Len(t, b, 24)
}
