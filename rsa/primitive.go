// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsa

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/cronokirby/safenum"
)

// maxBlindingAttempts bounds the search for an invertible blinding factor, so
// a broken random source fails instead of spinning forever.
const maxBlindingAttempts = 16

// errFault is returned if a private operation does not survive re-encryption.
var errFault = errors.New("rsa: private operation fault")

// os2ip converts a big-endian octet string into an integer representative,
// rejecting anything wider than the modulus or not smaller than it.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-4.2
func (k *PublicKey) os2ip(in []byte) (*safenum.Nat, error) {
	if len(in) > k.size {
		return nil, fmt.Errorf("%w: representative longer than modulus", ErrBadInputData)
	}
	if new(big.Int).SetBytes(in).Cmp(k.n) >= 0 {
		return nil, fmt.Errorf("%w: representative out of range", ErrBadInputData)
	}
	return new(safenum.Nat).SetBytes(in), nil
}

// i2osp converts a reduced integer into a k byte big-endian octet string.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-4.1
func (k *PublicKey) i2osp(x *safenum.Nat) []byte {
	return x.FillBytes(make([]byte, k.size))
}

// public computes in^E mod N.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-5.1.1
func (k *PublicKey) public(in []byte) ([]byte, error) {
	m, err := k.os2ip(in)
	if err != nil {
		return nil, err
	}
	return k.i2osp(new(safenum.Nat).Exp(m, k.eNat, k.nMod)), nil
}

// private computes in^D mod N, through CRT when the primes are known. With a
// non-nil random source the input is blinded first. The result is checked by
// re-encrypting it, so a faulty computation is never released.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-5.1.2
func (k *SecretKey) private(random io.Reader, in []byte) ([]byte, error) {
	if k.zeroized {
		return nil, fmt.Errorf("%w: key has been zeroized", ErrKeyInconsistent)
	}
	c, err := k.pub.os2ip(in)
	if err != nil {
		return nil, err
	}
	var unblind *safenum.Nat
	if random != nil {
		r, rInv, err := k.pub.blindingPair(random)
		if err != nil {
			return nil, err
		}
		// c' = c * r^E mod N, so that m' = m * r and m = m' * r^-1
		rE := new(safenum.Nat).Exp(r, k.pub.eNat, k.pub.nMod)
		c = new(safenum.Nat).ModMul(new(safenum.Nat).Mod(c, k.pub.nMod), rE, k.pub.nMod)
		unblind = rInv
	}
	var m *safenum.Nat
	if k.crt {
		m = k.privateCRT(c)
	} else {
		m = k.privateDirect(c)
	}
	if unblind != nil {
		m.ModMul(m, unblind, k.pub.nMod)
	}
	out := k.pub.i2osp(m)

	// Re-encrypt and compare against the original input
	check := k.pub.i2osp(new(safenum.Nat).Exp(m, k.pub.eNat, k.pub.nMod))
	if !equalBytes(check, leftPad(in, k.pub.size)) {
		return nil, errFault
	}
	return out, nil
}

// privateDirect computes c^D mod N without the factors.
func (k *SecretKey) privateDirect(c *safenum.Nat) *safenum.Nat {
	return new(safenum.Nat).Exp(c, k.dNat, k.pub.nMod)
}

// privateCRT computes c^D mod N with Garner's recombination:
//
//	m1 = c^dP mod P
//	m2 = c^dQ mod Q
//	h  = qInv * (m1 - m2) mod P
//	m  = m2 + h * Q
func (k *SecretKey) privateCRT(c *safenum.Nat) *safenum.Nat {
	m1 := new(safenum.Nat).Exp(new(safenum.Nat).Mod(c, k.pMod), k.dpNat, k.pMod)
	m2 := new(safenum.Nat).Exp(new(safenum.Nat).Mod(c, k.qMod), k.dqNat, k.qMod)

	h := new(safenum.Nat).ModSub(m1, new(safenum.Nat).Mod(m2, k.pMod), k.pMod)
	h.ModMul(h, k.qinvNat, k.pMod)

	// h < P and m2 < Q, so m2 + h*Q < N and the reductions below are exact
	n := k.pub.nMod
	m := new(safenum.Nat).ModMul(new(safenum.Nat).Mod(h, n), new(safenum.Nat).Mod(k.qNat, n), n)
	return m.ModAdd(m, new(safenum.Nat).Mod(m2, n), n)
}

// blindingPair draws a uniformly random r in [1, N) that is invertible mod N,
// returning both r and r^-1. Both stay inside the constant-time engine.
func (k *PublicKey) blindingPair(random io.Reader) (r, rInv *safenum.Nat, err error) {
	buf := make([]byte, k.size)
	for i := 0; i < maxBlindingAttempts; i++ {
		if _, err := io.ReadFull(random, buf); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
		}
		r := new(safenum.Nat).Mod(new(safenum.Nat).SetBytes(buf), k.nMod)
		if r.IsUnit(k.nMod) != 1 {
			continue
		}
		return r, new(safenum.Nat).ModInverse(r, k.nMod), nil
	}
	return nil, nil, fmt.Errorf("%w: no invertible blinding factor found", ErrRandomSource)
}

// leftPad returns in widened to size bytes with leading zeroes.
func leftPad(in []byte, size int) []byte {
	if len(in) >= size {
		return in
	}
	out := make([]byte, size)
	copy(out[size-len(in):], in)
	return out
}

// equalBytes compares two byte slices in constant time.
func equalBytes(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
