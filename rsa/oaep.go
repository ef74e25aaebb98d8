// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsa

import (
	"errors"
	"fmt"
	"io"

	"github.com/dark-bio/pkcs1-go/digest"
	"github.com/dark-bio/pkcs1-go/internal/eme"
)

// MaxMessageLength returns the longest plaintext EncryptOAEP accepts for the
// key and hash, or a negative number if the modulus is too small for the hash.
func (k *PublicKey) MaxMessageLength(h digest.Algorithm) int {
	if !h.Available() {
		return -1
	}
	return eme.MaxMessageLength(h, k.size)
}

// EncryptOAEP encrypts msg with RSAES-OAEP, drawing the seed from random. The
// label is bound to the ciphertext and must be presented again on decryption;
// nil is the common empty label.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-7.1.1
func EncryptOAEP(pub *PublicKey, random io.Reader, h digest.Algorithm, msg, label []byte) ([]byte, error) {
	if !h.Available() {
		return nil, fmt.Errorf("%w: %v", ErrBadInputData, digest.ErrUnsupported)
	}
	if random == nil {
		return nil, fmt.Errorf("%w: seed requested without a source", ErrRandomSource)
	}
	em, err := eme.Encode(h, random, msg, label, pub.size)
	if err != nil {
		if errors.Is(err, eme.ErrRandomSource) {
			return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBadInputData, err)
	}
	return pub.public(em)
}

// DecryptOAEP decrypts an RSAES-OAEP ciphertext. If random is non-nil, it is
// used to blind the private operation.
//
// Every failure yields ErrDecryption, without any further detail.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-7.1.2
func (k *SecretKey) DecryptOAEP(random io.Reader, h digest.Algorithm, ciphertext, label []byte) ([]byte, error) {
	if !h.Available() || len(ciphertext) != k.pub.size {
		return nil, ErrDecryption
	}
	em, err := k.private(random, ciphertext)
	if err != nil {
		return nil, ErrDecryption
	}
	msg, err := eme.Decode(h, em, label)
	if err != nil {
		return nil, ErrDecryption
	}
	return msg, nil
}
