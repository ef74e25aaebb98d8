// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rsa implements RSAES-OAEP encryption and RSASSA-PSS signatures on
// top of a constant-time big integer engine, with CRT accelerated private key
// operations and optional blinding.
//
// Keys are assembled from their raw big-endian components, validated once and
// then read-only, so a key may be shared freely between goroutines. Randomness
// is always supplied by the caller as an io.Reader.
//
// https://datatracker.ietf.org/doc/html/rfc8017
package rsa

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/cronokirby/safenum"
)

// Salt length presets for SignPSS and VerifyPSS. Any non-negative value is a
// literal salt length in bytes.
const (
	// SaltLengthAuto signs with the longest salt the modulus allows and
	// verifies with whatever salt length the signature carries.
	SaltLengthAuto = -1

	// SaltLengthEqualsHash uses a salt as long as the hash output.
	SaltLengthEqualsHash = -2
)

// Error types for the RSA operations. Decryption and verification failures are
// never wrapped, so they carry no hint about what went wrong.
var (
	ErrBadInputData    = errors.New("rsa: bad input data")
	ErrDecryption      = errors.New("rsa: decryption error")
	ErrVerification    = errors.New("rsa: verification error")
	ErrKeyInconsistent = errors.New("rsa: key inconsistent")
	ErrRandomSource    = errors.New("rsa: random source failed")
)

// minModulusBits is the smallest modulus accepted for a key.
const minModulusBits = 128

var (
	bigOne   = big.NewInt(1)
	bigThree = big.NewInt(3)
)

// Components are the raw big-endian integers making up an RSA key. Leading
// zero bytes are permitted. Fields that are not needed for a given use may be
// left nil: a public key needs N and E only, a secret key additionally needs
// either D or both primes, with everything else derived on construction.
type Components struct {
	N    []byte // modulus
	E    []byte // public exponent
	D    []byte // private exponent
	P    []byte // first prime factor
	Q    []byte // second prime factor
	DP   []byte // D mod (P-1)
	DQ   []byte // D mod (Q-1)
	QInv []byte // Q^-1 mod P
}

// PublicKey is an RSA public key usable for encryption and verification.
type PublicKey struct {
	n    *big.Int
	e    *big.Int
	bits int // bit length of the modulus
	size int // byte length of the modulus, k

	nMod *safenum.Modulus
	eNat *safenum.Nat
}

// NewPublicKey creates a public key from its big-endian modulus and exponent.
func NewPublicKey(n, e []byte) (*PublicKey, error) {
	return newPublicKey(new(big.Int).SetBytes(n), new(big.Int).SetBytes(e))
}

// newPublicKey validates the public values and precomputes the engine forms.
func newPublicKey(n, e *big.Int) (*PublicKey, error) {
	if n.BitLen() < minModulusBits {
		return nil, fmt.Errorf("%w: modulus smaller than %d bits", ErrKeyInconsistent, minModulusBits)
	}
	if n.Bit(0) == 0 {
		return nil, fmt.Errorf("%w: modulus must be odd", ErrKeyInconsistent)
	}
	if e.Cmp(bigThree) < 0 || e.Bit(0) == 0 {
		return nil, fmt.Errorf("%w: public exponent must be odd and at least 3", ErrKeyInconsistent)
	}
	if e.Cmp(n) >= 0 {
		return nil, fmt.Errorf("%w: public exponent exceeds modulus", ErrKeyInconsistent)
	}
	bits := n.BitLen()
	return &PublicKey{
		n:    n,
		e:    e,
		bits: bits,
		size: (bits + 7) / 8,
		nMod: safenum.ModulusFromBytes(n.Bytes()),
		eNat: new(safenum.Nat).SetBytes(e.Bytes()),
	}, nil
}

// Size returns the modulus length in bytes, which is also the length of every
// ciphertext and signature.
func (k *PublicKey) Size() int {
	return k.size
}

// BitLen returns the modulus length in bits.
func (k *PublicKey) BitLen() int {
	return k.bits
}

// Components returns copies of the modulus and public exponent.
func (k *PublicKey) Components() *Components {
	return &Components{N: k.n.Bytes(), E: k.e.Bytes()}
}

// Equal reports whether two public keys have the same modulus and exponent.
func (k *PublicKey) Equal(other *PublicKey) bool {
	return k.n.Cmp(other.n) == 0 && k.e.Cmp(other.e) == 0
}

// SecretKey is an RSA private key usable for decryption and signing. When the
// prime factors are known, the private operation runs through the Chinese
// Remainder Theorem, otherwise it exponentiates by D directly.
type SecretKey struct {
	pub *PublicKey

	d            *big.Int
	p, q         *big.Int
	dp, dq, qinv *big.Int

	dNat          *safenum.Nat
	pMod, qMod    *safenum.Modulus
	dpNat, dqNat  *safenum.Nat
	qinvNat, qNat *safenum.Nat

	crt      bool // prime factors known, private ops use CRT
	zeroized bool
}

// NewSecretKey creates a secret key from its components, deriving whatever is
// missing and checking that everything supplied is mutually consistent:
//
//   - N = P * Q, whenever the primes are present
//   - E * D = 1 mod (P-1) and mod (Q-1), so mod lambda(N)
//   - DP, DQ and QInv match D, P and Q
//
// Keys without primes are accepted, but use the slower direct exponentiation.
func NewSecretKey(c *Components) (*SecretKey, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: no components", ErrKeyInconsistent)
	}
	var (
		n    = optional(c.N)
		e    = optional(c.E)
		d    = optional(c.D)
		p    = optional(c.P)
		q    = optional(c.Q)
		dp   = optional(c.DP)
		dq   = optional(c.DQ)
		qinv = optional(c.QInv)
	)
	if e == nil {
		return nil, fmt.Errorf("%w: missing public exponent", ErrKeyInconsistent)
	}
	if (p == nil) != (q == nil) {
		return nil, fmt.Errorf("%w: only one prime factor given", ErrKeyInconsistent)
	}
	crt := p != nil
	if !crt && (dp != nil || dq != nil || qinv != nil) {
		return nil, fmt.Errorf("%w: CRT values given without prime factors", ErrKeyInconsistent)
	}
	if crt {
		if p.Cmp(bigOne) <= 0 || q.Cmp(bigOne) <= 0 {
			return nil, fmt.Errorf("%w: prime factors must exceed one", ErrKeyInconsistent)
		}
		if p.Cmp(q) == 0 {
			return nil, fmt.Errorf("%w: prime factors must differ", ErrKeyInconsistent)
		}
		pq := new(big.Int).Mul(p, q)
		if n == nil {
			n = pq
		} else if n.Cmp(pq) != 0 {
			return nil, fmt.Errorf("%w: modulus is not the product of the primes", ErrKeyInconsistent)
		}
	}
	if n == nil {
		return nil, fmt.Errorf("%w: missing modulus", ErrKeyInconsistent)
	}
	pub, err := newPublicKey(n, e)
	if err != nil {
		return nil, err
	}
	key := &SecretKey{pub: pub, crt: crt}

	if !crt {
		if d == nil {
			return nil, fmt.Errorf("%w: missing private exponent", ErrKeyInconsistent)
		}
		if d.Sign() <= 0 || d.Cmp(n) >= 0 {
			return nil, fmt.Errorf("%w: private exponent out of range", ErrKeyInconsistent)
		}
		key.d = d
		key.dNat = new(safenum.Nat).SetBytes(d.Bytes())

		// Without the factors, the best available check is a trial round trip
		if !key.roundTrips() {
			return nil, fmt.Errorf("%w: private exponent does not invert the public one", ErrKeyInconsistent)
		}
		return key, nil
	}
	var (
		p1 = new(big.Int).Sub(p, bigOne)
		q1 = new(big.Int).Sub(q, bigOne)
	)
	if d == nil {
		// lambda(N) = lcm(P-1, Q-1), even, so inverted with the even-modulus path
		gcd := new(big.Int).GCD(nil, nil, p1, q1)
		lambda := new(big.Int).Mul(p1, q1)
		lambda.Div(lambda, gcd)

		// A non-invertible E yields a D that fails the congruence checks below
		lambdaMod := safenum.ModulusFromBytes(lambda.Bytes())
		d = new(big.Int).SetBytes(new(safenum.Nat).ModInverse(pub.eNat, lambdaMod).Bytes())
	}
	if d.Sign() <= 0 || d.Cmp(n) >= 0 {
		return nil, fmt.Errorf("%w: private exponent out of range", ErrKeyInconsistent)
	}
	ed := new(big.Int).Mul(e, d)
	if new(big.Int).Mod(ed, p1).Cmp(bigOne) != 0 || new(big.Int).Mod(ed, q1).Cmp(bigOne) != 0 {
		return nil, fmt.Errorf("%w: E * D != 1 mod lambda(N)", ErrKeyInconsistent)
	}
	wantDP := new(big.Int).Mod(d, p1)
	if dp == nil {
		dp = wantDP
	} else if dp.Cmp(wantDP) != 0 {
		return nil, fmt.Errorf("%w: DP != D mod (P-1)", ErrKeyInconsistent)
	}
	wantDQ := new(big.Int).Mod(d, q1)
	if dq == nil {
		dq = wantDQ
	} else if dq.Cmp(wantDQ) != 0 {
		return nil, fmt.Errorf("%w: DQ != D mod (Q-1)", ErrKeyInconsistent)
	}
	pMod := safenum.ModulusFromBytes(p.Bytes())
	qNat := new(safenum.Nat).SetBytes(q.Bytes())
	qRed := new(safenum.Nat).Mod(qNat, pMod)
	if qRed.IsUnit(pMod) != 1 {
		return nil, fmt.Errorf("%w: Q not invertible mod P", ErrKeyInconsistent)
	}
	wantQInv := new(big.Int).SetBytes(new(safenum.Nat).ModInverse(qRed, pMod).Bytes())
	if qinv == nil {
		qinv = wantQInv
	} else if qinv.Cmp(wantQInv) != 0 {
		return nil, fmt.Errorf("%w: QInv != Q^-1 mod P", ErrKeyInconsistent)
	}
	key.d, key.p, key.q = d, p, q
	key.dp, key.dq, key.qinv = dp, dq, qinv

	key.dNat = new(safenum.Nat).SetBytes(d.Bytes())
	key.pMod = pMod
	key.qMod = safenum.ModulusFromBytes(q.Bytes())
	key.dpNat = new(safenum.Nat).SetBytes(dp.Bytes())
	key.dqNat = new(safenum.Nat).SetBytes(dq.Bytes())
	key.qinvNat = new(safenum.Nat).SetBytes(qinv.Bytes())
	key.qNat = qNat

	return key, nil
}

// MustNewSecretKey creates a secret key from its components. It panics if the
// components are inconsistent.
func MustNewSecretKey(c *Components) *SecretKey {
	key, err := NewSecretKey(c)
	if err != nil {
		panic(err)
	}
	return key
}

// PublicKey returns the public counterpart of the secret key.
func (k *SecretKey) PublicKey() *PublicKey {
	return k.pub
}

// Size returns the modulus length in bytes.
func (k *SecretKey) Size() int {
	return k.pub.size
}

// HasCRT reports whether the key holds the prime factors and therefore runs
// its private operations through the Chinese Remainder Theorem.
func (k *SecretKey) HasCRT() bool {
	return k.crt
}

// Components returns copies of every component of the key. The CRT fields are
// nil for keys constructed without prime factors.
func (k *SecretKey) Components() *Components {
	c := k.pub.Components()
	if k.zeroized {
		return c
	}
	c.D = k.d.Bytes()
	if k.crt {
		c.P, c.Q = k.p.Bytes(), k.q.Bytes()
		c.DP, c.DQ, c.QInv = k.dp.Bytes(), k.dq.Bytes(), k.qinv.Bytes()
	}
	return c
}

// Zeroize overwrites the secret integers held by the key and releases the
// engine values derived from them. The key is unusable afterwards. It must not
// be called while other goroutines are still using the key.
//
// The prime moduli used by the CRT path offer no way to overwrite them, so
// their copies of P and Q are only dropped and linger until collected.
func (k *SecretKey) Zeroize() {
	for _, x := range []*big.Int{k.d, k.p, k.q, k.dp, k.dq, k.qinv} {
		if x == nil {
			continue
		}
		words := x.Bits()
		for i := range words {
			words[i] = 0
		}
		x.SetInt64(0)
	}
	for _, x := range []*safenum.Nat{k.dNat, k.dpNat, k.dqNat, k.qinvNat, k.qNat} {
		if x != nil {
			x.SetUint64(0)
		}
	}
	k.d, k.p, k.q, k.dp, k.dq, k.qinv = nil, nil, nil, nil, nil, nil
	k.dNat, k.dpNat, k.dqNat, k.qinvNat, k.qNat = nil, nil, nil, nil, nil
	k.pMod, k.qMod = nil, nil
	k.zeroized = true
}

// roundTrips checks that (2^E)^D = 2 mod N.
func (k *SecretKey) roundTrips() bool {
	two := make([]byte, k.pub.size)
	two[len(two)-1] = 2

	c, err := k.pub.public(two)
	if err != nil {
		return false
	}
	m := new(safenum.Nat).Exp(new(safenum.Nat).SetBytes(c), k.dNat, k.pub.nMod)
	return equalBytes(m.FillBytes(make([]byte, k.pub.size)), two)
}

// optional parses a big-endian component, mapping an absent one to nil.
func optional(b []byte) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).SetBytes(b)
}
