// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package emsa implements the EMSA-PSS encoding used by RSASSA-PSS.
//
// https://datatracker.ietf.org/doc/html/rfc8017#section-9.1
package emsa

import (
	"crypto/subtle"
	"errors"

	"github.com/dark-bio/pkcs1-go/digest"
	"github.com/dark-bio/pkcs1-go/internal/mgf"
)

// SaltLengthAuto makes Verify recover the salt length from the encoding.
const SaltLengthAuto = -1

// Error types for PSS encoding and verification failures
var (
	ErrEncoding     = errors.New("emsa: encoding error")
	ErrInconsistent = errors.New("emsa: inconsistent")
)

// padding is the eight zero octets that prefix M'.
var padding [8]byte

// MaxSaltLength returns the longest salt an emBits sized encoding can carry,
// or a negative number if the encoding cannot fit even an empty salt.
func MaxSaltLength(h digest.Algorithm, emBits int) int {
	return (emBits+7)/8 - h.Size() - 2
}

// Encode builds EM = maskedDB || H || 0xbc from the message digest and salt.
func Encode(h digest.Algorithm, mHash, salt []byte, emBits int) ([]byte, error) {
	var (
		hLen  = h.Size()
		sLen  = len(salt)
		emLen = (emBits + 7) / 8
	)
	// 2.  mHash must be the output of the hash, not the message itself.
	if len(mHash) != hLen {
		return nil, ErrEncoding
	}
	// 3.  If emLen < hLen + sLen + 2, output "encoding error" and stop.
	if emBits < 1 || emLen < hLen+sLen+2 {
		return nil, ErrEncoding
	}
	em := make([]byte, emLen)
	db := em[:emLen-hLen-1]
	hh := em[emLen-hLen-1 : emLen-1]

	// 5.  M' = (0x)00 00 00 00 00 00 00 00 || mHash || salt
	// 6.  H = Hash(M')
	copy(hh, h.Sum(padding[:], mHash, salt))

	// 7.  PS is emLen - sLen - hLen - 2 zero octets (already zero).
	// 8.  DB = PS || 0x01 || salt
	db[len(db)-sLen-1] = 0x01
	copy(db[len(db)-sLen:], salt)

	// 9.  dbMask = MGF(H, emLen - hLen - 1)
	// 10. maskedDB = DB \xor dbMask
	if err := mgf.XOR(db, h, hh); err != nil {
		return nil, err
	}
	// 11. Clear the leftmost 8emLen - emBits bits of maskedDB.
	db[0] &= 0xff >> (8*emLen - emBits)

	// 12. EM = maskedDB || H || 0xbc
	em[emLen-1] = 0xbc
	return em, nil
}

// Verify checks that em is a valid encoding of mHash. The salt length may be
// SaltLengthAuto to accept any salt. Every failure is ErrInconsistent. The
// encoded message is unmasked in place.
func Verify(h digest.Algorithm, mHash, em []byte, emBits, sLen int) error {
	var (
		hLen  = h.Size()
		emLen = (emBits + 7) / 8
	)
	if emBits < 1 || len(em) != emLen || len(mHash) != hLen {
		return ErrInconsistent
	}
	// 3.  If emLen < hLen + sLen + 2, output "inconsistent" and stop.
	if sLen < SaltLengthAuto || sLen > emLen-hLen-2 || emLen < hLen+2 {
		return ErrInconsistent
	}
	// 4.  The rightmost octet of EM must be 0xbc.
	if subtle.ConstantTimeByteEq(em[emLen-1], 0xbc) == 0 {
		return ErrInconsistent
	}
	// 5.  maskedDB is the leftmost emLen - hLen - 1 octets, H the next hLen.
	db := em[:emLen-hLen-1]
	hh := em[emLen-hLen-1 : emLen-1]

	// 6.  The leftmost 8emLen - emBits bits of maskedDB must be zero.
	topMask := byte(0xff >> (8*emLen - emBits))
	if subtle.ConstantTimeByteEq(db[0]&^topMask, 0) == 0 {
		return ErrInconsistent
	}
	// 7.  dbMask = MGF(H, emLen - hLen - 1)
	// 8.  DB = maskedDB \xor dbMask
	if err := mgf.XOR(db, h, hh); err != nil {
		return ErrInconsistent
	}
	// 9.  Clear the leftmost 8emLen - emBits bits of DB.
	db[0] &= topMask

	// 10. DB must be zero octets, a 0x01 octet and then the salt.
	if sLen == SaltLengthAuto {
		sep := 0
		for sep < len(db) && db[sep] == 0x00 {
			sep++
		}
		if sep == len(db) || db[sep] != 0x01 {
			return ErrInconsistent
		}
		sLen = len(db) - sep - 1
	} else {
		psLen := len(db) - sLen - 1
		if subtle.ConstantTimeCompare(db[:psLen], make([]byte, psLen)) == 0 {
			return ErrInconsistent
		}
		if subtle.ConstantTimeByteEq(db[psLen], 0x01) == 0 {
			return ErrInconsistent
		}
	}
	// 11. salt is the last sLen octets of DB.
	salt := db[len(db)-sLen:]

	// 12. M' = (0x)00 00 00 00 00 00 00 00 || mHash || salt
	// 13. H' = Hash(M')
	// 14. Consistent iff H = H'.
	if subtle.ConstantTimeCompare(hh, h.Sum(padding[:], mHash, salt)) == 0 {
		return ErrInconsistent
	}
	return nil
}
