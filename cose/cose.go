// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cose provides COSE wrappers for RSA keys, PSS signatures and OAEP
// key transport.
//
// https://datatracker.ietf.org/doc/html/rfc9052
// https://datatracker.ietf.org/doc/html/rfc8230
package cose

import (
	"errors"
	"fmt"
	"io"

	"github.com/dark-bio/pkcs1-go/digest"
	"github.com/dark-bio/pkcs1-go/rsa"
	"github.com/fxamacker/cbor/v2"
)

// Algorithm identifiers for COSE operations, per RFC 8230 Section 2 and 3.
const (
	AlgorithmPS256 = -37 // RSASSA-PSS w/ SHA-256
	AlgorithmPS384 = -38 // RSASSA-PSS w/ SHA-384
	AlgorithmPS512 = -39 // RSASSA-PSS w/ SHA-512

	AlgorithmRSAOAEP    = -40 // RSAES-OAEP w/ SHA-1
	AlgorithmRSAOAEP256 = -41 // RSAES-OAEP w/ SHA-256
	AlgorithmRSAOAEP512 = -42 // RSAES-OAEP w/ SHA-512
)

// KeyTypeRSA is the COSE key type for RSA keys.
const KeyTypeRSA = 3

// Error types for COSE operations
var (
	ErrUnexpectedAlgorithm = errors.New("cose: unexpected algorithm")
	ErrUnexpectedKeyType   = errors.New("cose: unexpected key type")
	ErrInvalidKey          = errors.New("cose: invalid key")
	ErrInvalidEncoding     = errors.New("cose: invalid encoding")
	ErrSignatureInvalid    = errors.New("cose: signature verification failed")
	ErrDecryptionFailed    = errors.New("cose: decryption failed")
)

// signatureHashes maps the PSS algorithms to their hash. The salt is always
// as long as the hash output.
var signatureHashes = map[int64]digest.Algorithm{
	AlgorithmPS256: digest.SHA256,
	AlgorithmPS384: digest.SHA384,
	AlgorithmPS512: digest.SHA512,
}

// encryptionHashes maps the OAEP algorithms to their hash, used both for the
// label and MGF1.
var encryptionHashes = map[int64]digest.Algorithm{
	AlgorithmRSAOAEP:    digest.SHA1,
	AlgorithmRSAOAEP256: digest.SHA256,
	AlgorithmRSAOAEP512: digest.SHA512,
}

// encMode produces deterministic encodings with nil byte strings written as
// empty ones, so absent and empty external data sign identically.
var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.NilContainers = cbor.NilContainerAsEmpty

	mode, err := opts.EncMode()
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	return mode
}()

// decMode rejects duplicate keys, indefinite lengths and unknown fields.
var decMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	return mode
}()

// PublicKeyMap is the COSE_Key form of an RSA public key per RFC 8230
// Section 4.
type PublicKeyMap struct {
	KeyType int64  `cbor:"1,keyasint"`
	N       []byte `cbor:"-1,keyasint"`
	E       []byte `cbor:"-2,keyasint"`
}

// SecretKeyMap is the COSE_Key form of an RSA private key per RFC 8230
// Section 4. Keys without primes carry only the private exponent.
type SecretKeyMap struct {
	KeyType int64  `cbor:"1,keyasint"`
	N       []byte `cbor:"-1,keyasint"`
	E       []byte `cbor:"-2,keyasint"`
	D       []byte `cbor:"-3,keyasint"`
	P       []byte `cbor:"-4,keyasint,omitempty"`
	Q       []byte `cbor:"-5,keyasint,omitempty"`
	DP      []byte `cbor:"-6,keyasint,omitempty"`
	DQ      []byte `cbor:"-7,keyasint,omitempty"`
	QInv    []byte `cbor:"-8,keyasint,omitempty"`
}

// ProtectedHeader contains the algorithm identifier.
type ProtectedHeader struct {
	Algorithm int64 `cbor:"1,keyasint"`
}

// EmptyHeader is an empty unprotected header map.
type EmptyHeader struct{}

// CoseSign1 is the COSE_Sign1 structure per RFC 9052 Section 4.2.
//
//	COSE_Sign1 = [
//	    protected:   bstr,
//	    unprotected: header_map,
//	    payload:     bstr,
//	    signature:   bstr
//	]
type CoseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected EmptyHeader
	Payload     []byte
	Signature   []byte
}

// CoseRecipient is a leaf COSE_recipient structure per RFC 9052 Section 5.1,
// carrying a content encryption key wrapped to an RSA public key.
//
//	COSE_recipient = [
//	    protected:   bstr,
//	    unprotected: header_map,
//	    ciphertext:  bstr
//	]
type CoseRecipient struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected EmptyHeader
	Ciphertext  []byte
}

// SigStructure is the Sig_structure for computing signatures per RFC 9052 Section 4.4.
//
//	Sig_structure = [
//	    context:        "Signature1",
//	    body_protected: bstr,
//	    external_aad:   bstr,
//	    payload:        bstr
//	]
type SigStructure struct {
	_           struct{} `cbor:",toarray"`
	Context     string
	Protected   []byte
	ExternalAAD []byte
	Payload     []byte
}

// MarshalPublicKey encodes an RSA public key as a COSE_Key.
func MarshalPublicKey(key *rsa.PublicKey) []byte {
	c := key.Components()

	blob, err := encMode.Marshal(&PublicKeyMap{KeyType: KeyTypeRSA, N: c.N, E: c.E})
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	return blob
}

// ParsePublicKey decodes a COSE_Key holding an RSA public key. Encodings that
// carry private parameters are rejected.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	var m PublicKeyMap
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if m.KeyType != KeyTypeRSA {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedKeyType, m.KeyType, KeyTypeRSA)
	}
	key, err := rsa.NewPublicKey(m.N, m.E)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// MarshalSecretKey encodes an RSA secret key as a COSE_Key.
func MarshalSecretKey(key *rsa.SecretKey) []byte {
	c := key.Components()

	blob, err := encMode.Marshal(&SecretKeyMap{
		KeyType: KeyTypeRSA,
		N:       c.N,
		E:       c.E,
		D:       c.D,
		P:       c.P,
		Q:       c.Q,
		DP:      c.DP,
		DQ:      c.DQ,
		QInv:    c.QInv,
	})
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	return blob
}

// ParseSecretKey decodes a COSE_Key holding an RSA secret key. The CRT values
// must either all be present or all be absent.
func ParseSecretKey(data []byte) (*rsa.SecretKey, error) {
	var m SecretKeyMap
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if m.KeyType != KeyTypeRSA {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedKeyType, m.KeyType, KeyTypeRSA)
	}
	if len(m.N) == 0 || len(m.D) == 0 {
		return nil, fmt.Errorf("%w: missing modulus or private exponent", ErrInvalidKey)
	}
	crt := []int{len(m.P), len(m.Q), len(m.DP), len(m.DQ), len(m.QInv)}
	for _, size := range crt[1:] {
		if (size == 0) != (crt[0] == 0) {
			return nil, fmt.Errorf("%w: partial CRT parameters", ErrInvalidKey)
		}
	}
	key, err := rsa.NewSecretKey(&rsa.Components{
		N:    m.N,
		E:    m.E,
		D:    m.D,
		P:    m.P,
		Q:    m.Q,
		DP:   m.DP,
		DQ:   m.DQ,
		QInv: m.QInv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// Sign creates a COSE_Sign1 digital signature of the msgToEmbed.
//
//   - random: The source of the salt, also blinding the private operation
//   - msgToEmbed: The message to sign (embedded in COSE_Sign1)
//   - msgToAuth: Additional authenticated data (not embedded, but signed)
//   - signer: The RSA secret key to sign with
//   - algorithm: One of the PS256, PS384 or PS512 identifiers
//
// Returns the serialized COSE_Sign1 structure.
func Sign(random io.Reader, msgToEmbed, msgToAuth []byte, signer *rsa.SecretKey, algorithm int64) ([]byte, error) {
	h, ok := signatureHashes[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %d is not a PSS algorithm", ErrUnexpectedAlgorithm, algorithm)
	}
	// Build protected header
	protected, err := encMode.Marshal(&ProtectedHeader{Algorithm: algorithm})
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	// Build and sign Sig_structure
	sigStructure := SigStructure{
		Context:     "Signature1",
		Protected:   protected,
		ExternalAAD: msgToAuth,
		Payload:     msgToEmbed,
	}
	toBeSigned, err := encMode.Marshal(&sigStructure)
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	signature, err := signer.SignPSSMessage(random, h, rsa.SaltLengthEqualsHash, toBeSigned)
	if err != nil {
		return nil, err
	}
	// Build and encode COSE_Sign1
	sign1 := CoseSign1{
		Protected:   protected,
		Unprotected: EmptyHeader{},
		Payload:     msgToEmbed,
		Signature:   signature,
	}
	result, err := encMode.Marshal(&sign1)
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	return result, nil
}

// Verify validates a COSE_Sign1 digital signature and returns the payload.
//
//   - msgToCheck: The serialized COSE_Sign1 structure
//   - msgToAuth: The same additional authenticated data used during signing
//   - verifier: The RSA public key to verify against
//
// Returns the embedded payload if verification succeeds.
func Verify(msgToCheck, msgToAuth []byte, verifier *rsa.PublicKey) ([]byte, error) {
	// Parse COSE_Sign1
	var sign1 CoseSign1
	if err := decMode.Unmarshal(msgToCheck, &sign1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	// Verify the protected header
	algorithm, err := parseProtectedHeader(sign1.Protected)
	if err != nil {
		return nil, err
	}
	h, ok := signatureHashes[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %d is not a PSS algorithm", ErrUnexpectedAlgorithm, algorithm)
	}
	// Reconstruct Sig_structure to verify
	sigStructure := SigStructure{
		Context:     "Signature1",
		Protected:   sign1.Protected,
		ExternalAAD: msgToAuth,
		Payload:     sign1.Payload,
	}
	toBeSigned, err := encMode.Marshal(&sigStructure)
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	// Verify signature
	if err := rsa.VerifyPSSMessage(verifier, h, rsa.SaltLengthEqualsHash, toBeSigned, sign1.Signature); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return sign1.Payload, nil
}

// WrapKey encrypts a content encryption key to a recipient.
//
//   - random: The source of the OAEP seed
//   - cek: The content encryption key to wrap
//   - recipient: The RSA public key to encrypt to
//   - algorithm: One of the RSAES-OAEP identifiers
//
// Returns the serialized COSE_recipient structure.
func WrapKey(random io.Reader, cek []byte, recipient *rsa.PublicKey, algorithm int64) ([]byte, error) {
	h, ok := encryptionHashes[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %d is not an OAEP algorithm", ErrUnexpectedAlgorithm, algorithm)
	}
	// Build protected header
	protected, err := encMode.Marshal(&ProtectedHeader{Algorithm: algorithm})
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	// RFC 8230 Section 3 fixes the OAEP label to the empty string
	ciphertext, err := rsa.EncryptOAEP(recipient, random, h, cek, nil)
	if err != nil {
		return nil, err
	}
	// Build and encode COSE_recipient
	recip := CoseRecipient{
		Protected:   protected,
		Unprotected: EmptyHeader{},
		Ciphertext:  ciphertext,
	}
	result, err := encMode.Marshal(&recip)
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	return result, nil
}

// UnwrapKey decrypts a content encryption key wrapped by WrapKey.
//
//   - random: The source blinding the private operation, or nil
//   - msgToOpen: The serialized COSE_recipient structure
//   - recipient: The RSA secret key to decrypt with
//
// Returns the content encryption key if decryption succeeds.
func UnwrapKey(random io.Reader, msgToOpen []byte, recipient *rsa.SecretKey) ([]byte, error) {
	// Parse COSE_recipient
	var recip CoseRecipient
	if err := decMode.Unmarshal(msgToOpen, &recip); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	// Verify the protected header
	algorithm, err := parseProtectedHeader(recip.Protected)
	if err != nil {
		return nil, err
	}
	h, ok := encryptionHashes[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %d is not an OAEP algorithm", ErrUnexpectedAlgorithm, algorithm)
	}
	cek, err := recipient.DecryptOAEP(random, h, recip.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return cek, nil
}

// parseProtectedHeader decodes a protected header holding exactly an algorithm.
func parseProtectedHeader(data []byte) (int64, error) {
	var header ProtectedHeader
	if err := decMode.Unmarshal(data, &header); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return header.Algorithm, nil
}
