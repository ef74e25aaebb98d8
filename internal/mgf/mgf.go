// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mgf implements the mask generation functions used by OAEP and PSS:
// MGF1 for fixed output hashes and the SHAKE XOFs for RFC 8702.
//
// https://datatracker.ietf.org/doc/html/rfc8017#appendix-B.2.1
// https://datatracker.ietf.org/doc/html/rfc8702#section-2
package mgf

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/cloudflare/circl/xof"
	"github.com/dark-bio/pkcs1-go/digest"
)

// ErrMaskTooLong is returned if the requested mask exceeds hLen * 2^32 bytes,
// the most MGF1 can produce with a 32 bit counter.
var ErrMaskTooLong = errors.New("mgf: mask too long")

// MGF1 derives a maskLen byte mask from the seed.
func MGF1(h digest.Algorithm, seed []byte, maskLen int) ([]byte, error) {
	if err := checkLength(h, maskLen); err != nil {
		return nil, err
	}
	out := make([]byte, maskLen)
	mgf1XOR(out, h, seed)
	return out, nil
}

// Mask derives a maskLen byte mask from the seed with the generator that goes
// with h: the XOF itself for SHAKE, MGF1 for everything else.
func Mask(h digest.Algorithm, seed []byte, maskLen int) ([]byte, error) {
	if err := checkLength(h, maskLen); err != nil {
		return nil, err
	}
	out := make([]byte, maskLen)
	if err := XOR(out, h, seed); err != nil {
		return nil, err
	}
	return out, nil
}

// XOR xors the mask derived from the seed into out, in place.
func XOR(out []byte, h digest.Algorithm, seed []byte) error {
	if err := checkLength(h, len(out)); err != nil {
		return err
	}
	if h.IsXOF() {
		shakeXOR(out, h, seed)
		return nil
	}
	mgf1XOR(out, h, seed)
	return nil
}

func checkLength(h digest.Algorithm, maskLen int) error {
	if maskLen < 0 {
		return ErrMaskTooLong
	}
	if !h.IsXOF() && uint64(maskLen) > uint64(h.Size())<<32 {
		return ErrMaskTooLong
	}
	return nil
}

// mgf1XOR runs Hash(seed || C) for C = 0, 1, ... as a 4 byte big-endian
// counter and xors the stream into out.
func mgf1XOR(out []byte, h digest.Algorithm, seed []byte) {
	var (
		hasher  = h.New()
		counter [4]byte
		block   []byte
	)
	for c, done := uint32(0), 0; done < len(out); c++ {
		binary.BigEndian.PutUint32(counter[:], c)

		hasher.Reset()
		hasher.Write(seed)
		hasher.Write(counter[:])
		block = hasher.Sum(block[:0])

		done += xorBytes(out[done:], block)
	}
}

// shakeXOR squeezes len(out) bytes of SHAKE(seed) and xors them into out.
func shakeXOR(out []byte, h digest.Algorithm, seed []byte) {
	id := xof.SHAKE128
	if h == digest.SHAKE256 {
		id = xof.SHAKE256
	}
	x := id.New()
	x.Write(seed)

	stream := make([]byte, len(out))
	if _, err := io.ReadFull(x, stream); err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	xorBytes(out, stream)
}

// xorBytes xors src into dst up to the shorter length, returning the count.
func xorBytes(dst, src []byte) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
	return n
}
