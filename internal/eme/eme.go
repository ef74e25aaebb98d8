// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package eme implements the EME-OAEP encoding used by RSAES-OAEP.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-7.1
package eme

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/dark-bio/pkcs1-go/digest"
	"github.com/dark-bio/pkcs1-go/internal/mgf"
)

// Error types for OAEP encoding and decoding failures
var (
	ErrMessageTooLong  = errors.New("eme: message too long")
	ErrModulusTooSmall = errors.New("eme: modulus too small for hash")
	ErrRandomSource    = errors.New("eme: random source failed")
	ErrDecoding        = errors.New("eme: decoding error")
)

// MaxMessageLength returns the longest message that fits into a k byte block,
// or a negative number if none does.
func MaxMessageLength(h digest.Algorithm, k int) int {
	return k - 2*h.Size() - 2
}

// Encode pads msg into a k byte encoded message, 0x00 || maskedSeed || maskedDB,
// drawing a fresh hLen byte seed from random.
func Encode(h digest.Algorithm, random io.Reader, msg, label []byte, k int) ([]byte, error) {
	hLen := h.Size()
	if k < 2*hLen+2 {
		return nil, ErrModulusTooSmall
	}
	if len(msg) > MaxMessageLength(h, k) {
		return nil, ErrMessageTooLong
	}
	em := make([]byte, k)
	seed := em[1 : 1+hLen]
	db := em[1+hLen:]

	// DB = lHash || PS || 0x01 || M, with PS already zeroed by make
	copy(db[:hLen], h.Sum(label))
	db[len(db)-len(msg)-1] = 0x01
	copy(db[len(db)-len(msg):], msg)

	if _, err := io.ReadFull(random, seed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	// maskedDB = DB ^ MGF(seed), maskedSeed = seed ^ MGF(maskedDB)
	if err := mgf.XOR(db, h, seed); err != nil {
		return nil, err
	}
	if err := mgf.XOR(seed, h, db); err != nil {
		return nil, err
	}
	return em, nil
}

// Decode strips the OAEP padding from em in place and returns the message.
//
// Every check runs on every call and all failures collapse into ErrDecoding,
// so neither the result nor the timing tells which one failed (Manger's
// attack).
func Decode(h digest.Algorithm, em, label []byte) ([]byte, error) {
	hLen := h.Size()
	if len(em) < 2*hLen+2 {
		return nil, ErrDecoding
	}
	lHash := h.Sum(label)

	firstByteIsZero := subtle.ConstantTimeByteEq(em[0], 0)

	seed := em[1 : 1+hLen]
	db := em[1+hLen:]

	if err := mgf.XOR(seed, h, db); err != nil {
		return nil, ErrDecoding
	}
	if err := mgf.XOR(db, h, seed); err != nil {
		return nil, ErrDecoding
	}
	lHashGood := subtle.ConstantTimeCompare(lHash, db[:hLen])

	// The remainder must be zero or more 0x00, a 0x01 and then the message:
	//   looking: 1 while the 0x01 separator has not been seen yet
	//   index:   offset of the separator
	//   invalid: 1 if a non-zero byte came before the separator
	var looking, index, invalid int
	looking = 1

	rest := db[hLen:]
	for i := 0; i < len(rest); i++ {
		equals0 := subtle.ConstantTimeByteEq(rest[i], 0)
		equals1 := subtle.ConstantTimeByteEq(rest[i], 1)

		index = subtle.ConstantTimeSelect(looking&equals1, i, index)
		looking = subtle.ConstantTimeSelect(equals1, 0, looking)
		invalid = subtle.ConstantTimeSelect(looking&^equals0, 1, invalid)
	}
	if firstByteIsZero&lHashGood&^invalid&^looking != 1 {
		return nil, ErrDecoding
	}
	return rest[index+1:], nil
}
