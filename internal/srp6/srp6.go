// Package srp6 derives the salt/verifier pairs the game's auth server uses for
// its SRP6 login exchange. It never performs the exchange itself.
package srp6

import (
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"io"
	"math/big"
	"strings"
)

const (
	// SaltSize and VerifierSize are fixed by the auth server's schema.
	SaltSize     = 32
	VerifierSize = 32
)

var (
	// ErrWeakEntropy is returned when the random source cannot supply a salt.
	ErrWeakEntropy = errors.New("srp6: entropy source unavailable")

	// ErrInvalidInput is returned for an empty username or password.
	ErrInvalidInput = errors.New("srp6: username and password are required")
)

var (
	g = big.NewInt(7)
	n = mustHex("894B645E89E1535BBDAD5B8B290650530801B18EBFBF5E8FAB3C82872A3E9BB7")
)

// Generator returns a copy of the group generator g.
func Generator() *big.Int { return new(big.Int).Set(g) }

// Modulus returns a copy of the 256-bit group modulus N.
func Modulus() *big.Int { return new(big.Int).Set(n) }

// Credential is the stored login material for one account.
type Credential struct {
	Salt     [SaltSize]byte
	Verifier [VerifierSize]byte
}

// Deriver derives credentials using a configurable entropy source.
type Deriver struct {
	rand io.Reader
}

// NewDeriver returns a Deriver reading salts from r. A nil r uses crypto/rand.
func NewDeriver(r io.Reader) *Deriver {
	if r == nil {
		r = rand.Reader
	}
	return &Deriver{rand: r}
}

// DeriveCredential draws a fresh salt and computes the matching verifier.
// Repeated calls with the same inputs yield different pairs.
func (d *Deriver) DeriveCredential(username, password string) (Credential, error) {
	if username == "" || password == "" {
		return Credential{}, ErrInvalidInput
	}

	var cred Credential
	if _, err := io.ReadFull(d.rand, cred.Salt[:]); err != nil {
		return Credential{}, errors.Join(ErrWeakEntropy, err)
	}

	verifier, err := ComputeVerifier(username, password, cred.Salt[:])
	if err != nil {
		return Credential{}, err
	}
	cred.Verifier = verifier
	return cred, nil
}

var defaultDeriver = NewDeriver(nil)

// DeriveCredential derives a credential using crypto/rand.
func DeriveCredential(username, password string) (Credential, error) {
	return defaultDeriver.DeriveCredential(username, password)
}

// ComputeVerifier returns g^x mod N where x = SHA1(salt || SHA1(U ":" P)) read
// little-endian, with U and P uppercased. The result is 32 bytes little-endian.
func ComputeVerifier(username, password string, salt []byte) ([VerifierSize]byte, error) {
	var out [VerifierSize]byte
	if username == "" || password == "" {
		return out, ErrInvalidInput
	}

	inner := sha1.Sum([]byte(strings.ToUpper(username) + ":" + strings.ToUpper(password)))

	outer := sha1.New()
	outer.Write(salt)
	outer.Write(inner[:])
	x := new(big.Int).SetBytes(reverse(outer.Sum(nil)))

	v := new(big.Int).Exp(g, x, n)

	// FillBytes pads big-endian on the left; reversing moves the padding to
	// the high end of the little-endian encoding.
	v.FillBytes(out[:])
	reverseInPlace(out[:])
	return out, nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

func reverseInPlace(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func mustHex(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("srp6: invalid constant " + s)
	}
	return v
}
