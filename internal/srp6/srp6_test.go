package srp6

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqSalt() []byte {
	salt := make([]byte, SaltSize)
	for i := range salt {
		salt[i] = byte(i)
	}
	return salt
}

func TestComputeVerifier_ReferenceVectors(t *testing.T) {
	padSalt := make([]byte, SaltSize)
	padSalt[0] = 0x19

	tests := []struct {
		name     string
		username string
		password string
		salt     []byte
		want     string
	}{
		{
			name:     "sequential salt",
			username: "alice",
			password: "secret",
			salt:     seqSalt(),
			want:     "cb4849801a9bf7f8df2983dc31eea8f4920e9fbcaa439848fcc0b94af4511739",
		},
		{
			name:     "repeated byte salt",
			username: "Rndbot7",
			password: "hunter2",
			salt:     bytes.Repeat([]byte{0xAB}, SaltSize),
			want:     "0a9a5e8d6078cb4bccbf6f1c4445cd628c9ff58bdac91207d7e964c9ec712b3f",
		},
		{
			name:     "zero salt",
			username: "a",
			password: "b",
			salt:     make([]byte, SaltSize),
			want:     "303c245b16c23522f89d7095398b2cec7d8a33d711bd5b9bc427bd6d678bf93b",
		},
		{
			name:     "high end zero padded",
			username: "padme",
			password: "amidala",
			salt:     padSalt,
			want:     "43e5f2e9f11e81c7eeafeb43713c8fbf2cf42eb1d4bbc272b8b1e92bb8ba5900",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeVerifier(tt.username, tt.password, tt.salt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(got[:]))
		})
	}
}

func TestComputeVerifier_CaseInsensitive(t *testing.T) {
	lower, err := ComputeVerifier("alice", "secret", seqSalt())
	require.NoError(t, err)
	upper, err := ComputeVerifier("ALICE", "SECRET", seqSalt())
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
}

func TestComputeVerifier_Deterministic(t *testing.T) {
	first, err := ComputeVerifier("bob", "pw", seqSalt())
	require.NoError(t, err)
	second, err := ComputeVerifier("bob", "pw", seqSalt())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeVerifier_BelowModulus(t *testing.T) {
	v, err := ComputeVerifier("carol", "pw", seqSalt())
	require.NoError(t, err)

	be := make([]byte, VerifierSize)
	for i := range v {
		be[VerifierSize-1-i] = v[i]
	}
	n := Modulus()
	assert.Equal(t, -1, new(big.Int).SetBytes(be).Cmp(n))
}

func TestDeriveCredential_FreshSalt(t *testing.T) {
	first, err := DeriveCredential("alice", "secret")
	require.NoError(t, err)
	second, err := DeriveCredential("alice", "secret")
	require.NoError(t, err)

	assert.NotEqual(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.Verifier, second.Verifier)

	recomputed, err := ComputeVerifier("alice", "secret", first.Salt[:])
	require.NoError(t, err)
	assert.Equal(t, first.Verifier, recomputed)
}

func TestDeriver_UsesInjectedSource(t *testing.T) {
	d := NewDeriver(bytes.NewReader(seqSalt()))

	cred, err := d.DeriveCredential("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, seqSalt(), cred.Salt[:])
	assert.Equal(t, "cb4849801a9bf7f8df2983dc31eea8f4920e9fbcaa439848fcc0b94af4511739", hex.EncodeToString(cred.Verifier[:]))
}

func TestDeriver_WeakEntropy(t *testing.T) {
	tests := []struct {
		name string
		src  *Deriver
	}{
		{"short read", NewDeriver(bytes.NewReader(make([]byte, SaltSize-1)))},
		{"reader error", NewDeriver(iotest.ErrReader(errors.New("no entropy")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.src.DeriveCredential("alice", "secret")
			assert.ErrorIs(t, err, ErrWeakEntropy)
		})
	}
}

func TestDeriveCredential_InvalidInput(t *testing.T) {
	_, err := DeriveCredential("", "secret")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = DeriveCredential("alice", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, int64(7), Generator().Int64())
	assert.Equal(t, 256, Modulus().BitLen())
	assert.Equal(t, "894b645e89e1535bbdad5b8b290650530801b18ebfbf5e8fab3c82872a3e9bb7", Modulus().Text(16))
}
