// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsa

import (
	"fmt"
	"io"

	"github.com/dark-bio/pkcs1-go/digest"
	"github.com/dark-bio/pkcs1-go/internal/emsa"
)

// SignPSS signs a precomputed message digest with RSASSA-PSS. The salt is
// drawn from random, which also blinds the private operation. The salt length
// is either a byte count or one of SaltLengthAuto and SaltLengthEqualsHash.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-8.1.1
func (k *SecretKey) SignPSS(random io.Reader, h digest.Algorithm, saltLen int, hashed []byte) ([]byte, error) {
	if !h.Available() {
		return nil, fmt.Errorf("%w: %v", ErrBadInputData, digest.ErrUnsupported)
	}
	if len(hashed) != h.Size() {
		return nil, fmt.Errorf("%w: digest is %d bytes, %v needs %d", ErrBadInputData, len(hashed), h, h.Size())
	}
	emBits := k.pub.bits - 1

	switch saltLen {
	case SaltLengthAuto:
		saltLen = emsa.MaxSaltLength(h, emBits)
	case SaltLengthEqualsHash:
		saltLen = h.Size()
	}
	if saltLen < 0 || saltLen > emsa.MaxSaltLength(h, emBits) {
		return nil, fmt.Errorf("%w: modulus too small for %v with a %d byte salt", ErrBadInputData, h, saltLen)
	}
	salt := make([]byte, saltLen)
	if saltLen > 0 && random == nil {
		return nil, fmt.Errorf("%w: salt requested without a source", ErrRandomSource)
	}
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	em, err := emsa.Encode(h, hashed, salt, emBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInputData, err)
	}
	return k.private(random, em)
}

// SignPSSMessage hashes msg with h and signs the digest with RSASSA-PSS.
func (k *SecretKey) SignPSSMessage(random io.Reader, h digest.Algorithm, saltLen int, msg []byte) ([]byte, error) {
	if !h.Available() {
		return nil, fmt.Errorf("%w: %v", ErrBadInputData, digest.ErrUnsupported)
	}
	return k.SignPSS(random, h, saltLen, h.Sum(msg))
}

// VerifyPSS checks an RSASSA-PSS signature over a precomputed message digest.
// A salt length of SaltLengthAuto accepts any salt the signature carries.
//
// Every failure yields ErrVerification, without any further detail.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-8.1.2
func VerifyPSS(pub *PublicKey, h digest.Algorithm, saltLen int, hashed, sig []byte) error {
	if !h.Available() || len(sig) != pub.size {
		return ErrVerification
	}
	if saltLen == SaltLengthEqualsHash {
		saltLen = h.Size()
	}
	em, err := pub.public(sig)
	if err != nil {
		return ErrVerification
	}
	// EM is ceil((modBits-1)/8) bytes, one short of k when modBits = 1 mod 8
	emBits := pub.bits - 1
	if emLen := (emBits + 7) / 8; emLen < len(em) {
		if em[0] != 0 {
			return ErrVerification
		}
		em = em[1:]
	}
	if err := emsa.Verify(h, hashed, em, emBits, saltLen); err != nil {
		return ErrVerification
	}
	return nil
}

// VerifyPSSMessage hashes msg with h and checks the RSASSA-PSS signature.
func VerifyPSSMessage(pub *PublicKey, h digest.Algorithm, saltLen int, msg, sig []byte) error {
	if !h.Available() {
		return ErrVerification
	}
	return VerifyPSS(pub, h, saltLen, h.Sum(msg), sig)
}
