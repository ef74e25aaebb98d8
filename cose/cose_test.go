// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cose

import (
	"bytes"
	"crypto/rand"
	stdrsa "crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"testing"

	"github.com/dark-bio/pkcs1-go/digest"
	"github.com/dark-bio/pkcs1-go/rnd"
	"github.com/dark-bio/pkcs1-go/rsa"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
)

// RFC 3447 OAEP worked example modulus, E = 17.
const vectorN = "bbf82f090682ce9c2338ac2b9da871f7368d07eed41043a440d6b6f07454f51f" +
	"b8dfbaaf035c02ab61ea48ceeb6fcd4876ed520d60e1ec4619719d8a5b8b807f" +
	"afb8e0a3dfc737723ee6b4b7d93a2584ee6a649d060953748834b2454598394e" +
	"e0aab12d7b61a51f527a9a41f6c1687fe2537298ca2a8f5946f8e5fd091dbdcb"

var (
	testKeysOnce sync.Once
	testKeys     [2]*rsa.SecretKey
)

// generateKeys returns two 2048 bit keys, large enough for every algorithm,
// shared across tests as generation is slow.
func generateKeys(t testing.TB) (*rsa.SecretKey, *rsa.SecretKey) {
	t.Helper()

	testKeysOnce.Do(func() {
		for i := range testKeys {
			std, err := stdrsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			testKeys[i] = rsa.MustNewSecretKey(&rsa.Components{
				N: std.N.Bytes(),
				E: big.NewInt(int64(std.E)).Bytes(),
				D: std.D.Bytes(),
				P: std.Primes[0].Bytes(),
				Q: std.Primes[1].Bytes(),
			})
		}
	})
	return testKeys[0], testKeys[1]
}

// Tests that a public key encodes to the exact RFC 8230 layout.
func TestMarshalPublicKeyVector(t *testing.T) {
	n, _ := hex.DecodeString(vectorN)
	key, err := rsa.NewPublicKey(n, []byte{0x11})
	if err != nil {
		t.Fatalf("failed to load public key: %v", err)
	}
	// {1: 3, -1: h'bbf8...dbcb', -2: h'11'}
	want := "a3" + "0103" + "205880" + vectorN + "214111"
	if have := hex.EncodeToString(MarshalPublicKey(key)); have != want {
		t.Fatalf("encoding mismatch: have %s, want %s", have, want)
	}
}

// Tests that keys survive an encode-decode cycle.
func TestKeyRoundTrip(t *testing.T) {
	alice, _ := generateKeys(t)

	pub, err := ParsePublicKey(MarshalPublicKey(alice.PublicKey()))
	if err != nil {
		t.Fatalf("failed to parse public key: %v", err)
	}
	if !pub.Equal(alice.PublicKey()) {
		t.Fatalf("public key mismatch")
	}
	sec, err := ParseSecretKey(MarshalSecretKey(alice))
	if err != nil {
		t.Fatalf("failed to parse secret key: %v", err)
	}
	if diff := cmp.Diff(alice.Components(), sec.Components()); diff != "" {
		t.Fatalf("secret key mismatch (-want +got):\n%s", diff)
	}
	// Keys without primes only carry the private exponent
	c := alice.Components()
	direct := rsa.MustNewSecretKey(&rsa.Components{N: c.N, E: c.E, D: c.D})

	sec, err = ParseSecretKey(MarshalSecretKey(direct))
	if err != nil {
		t.Fatalf("failed to parse direct secret key: %v", err)
	}
	if sec.HasCRT() {
		t.Fatalf("direct key gained CRT parameters")
	}
	if diff := cmp.Diff(direct.Components(), sec.Components()); diff != "" {
		t.Fatalf("direct key mismatch (-want +got):\n%s", diff)
	}
}

// Tests that malformed or mismatched key encodings are rejected.
func TestParseKeyRejects(t *testing.T) {
	alice, bobby := generateKeys(t)
	c := alice.Components()

	encode := func(m any) []byte {
		blob, err := encMode.Marshal(m)
		if err != nil {
			t.Fatalf("failed to encode: %v", err)
		}
		return blob
	}
	// Public key parsing
	pubTests := []struct {
		name string
		data []byte
		want error
	}{
		{"secret key", MarshalSecretKey(alice), ErrInvalidEncoding},
		{"wrong key type", encode(&PublicKeyMap{KeyType: 2, N: c.N, E: c.E}), ErrUnexpectedKeyType},
		{"even modulus", encode(&PublicKeyMap{KeyType: KeyTypeRSA, N: append(c.N[:len(c.N)-1:len(c.N)-1], 0x00), E: c.E}), ErrInvalidKey},
		{"duplicate key", []byte{0xa2, 0x01, 0x03, 0x01, 0x03}, ErrInvalidEncoding},
		{"trailing bytes", append(MarshalPublicKey(alice.PublicKey()), 0x00), ErrInvalidEncoding},
		{"not a map", []byte{0x80}, ErrInvalidEncoding},
	}
	for _, tt := range pubTests {
		if _, err := ParsePublicKey(tt.data); !errors.Is(err, tt.want) {
			t.Errorf("public %s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
	// Secret key parsing
	bc := bobby.Components()
	secTests := []struct {
		name string
		m    *SecretKeyMap
		want error
	}{
		{"wrong key type", &SecretKeyMap{KeyType: 2, N: c.N, E: c.E, D: c.D}, ErrUnexpectedKeyType},
		{"missing exponent", &SecretKeyMap{KeyType: KeyTypeRSA, N: c.N, E: c.E}, ErrInvalidKey},
		{"partial CRT", &SecretKeyMap{KeyType: KeyTypeRSA, N: c.N, E: c.E, D: c.D, P: c.P, Q: c.Q}, ErrInvalidKey},
		{"mixed keys", &SecretKeyMap{KeyType: KeyTypeRSA, N: c.N, E: c.E, D: bc.D}, ErrInvalidKey},
	}
	for _, tt := range secTests {
		if _, err := ParseSecretKey(encode(tt.m)); !errors.Is(err, tt.want) {
			t.Errorf("secret %s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
}

// Tests various combinations of signing and verifying ops.
func TestSignVerify(t *testing.T) {
	tests := []struct {
		msgToSign         []byte
		msgToAuth         []byte
		verifierMsgToAuth []byte
		wrongKey          bool
		wantOK            bool
	}{
		// Valid signature with aad
		{
			msgToSign:         []byte("foo"),
			msgToAuth:         []byte("bar"),
			verifierMsgToAuth: []byte("bar"),
			wrongKey:          false,
			wantOK:            true,
		},
		// Valid signature, empty and absent aad
		{
			msgToSign:         []byte("foobar"),
			msgToAuth:         nil,
			verifierMsgToAuth: []byte(""),
			wrongKey:          false,
			wantOK:            true,
		},
		// Wrong aad
		{
			msgToSign:         []byte("foo!"),
			msgToAuth:         []byte("bar"),
			verifierMsgToAuth: []byte("baz"),
			wrongKey:          false,
			wantOK:            false,
		},
		// Wrong key
		{
			msgToSign:         []byte("foo!"),
			msgToAuth:         []byte(""),
			verifierMsgToAuth: []byte(""),
			wrongKey:          true,
			wantOK:            false,
		},
	}
	alice, bobby := generateKeys(t)

	for _, alg := range []int64{AlgorithmPS256, AlgorithmPS384, AlgorithmPS512} {
		for i, tt := range tests {
			t.Run(fmt.Sprintf("alg %d test %d", alg, i), func(t *testing.T) {
				signed, err := Sign(rnd.Secure(), tt.msgToSign, tt.msgToAuth, alice, alg)
				if err != nil {
					t.Fatalf("failed to sign: %v", err)
				}
				verifier := alice.PublicKey()
				if tt.wrongKey {
					verifier = bobby.PublicKey()
				}
				recovered, err := Verify(signed, tt.verifierMsgToAuth, verifier)

				if tt.wantOK {
					if err != nil {
						t.Fatalf("expected success, have error: %v", err)
					}
					if !bytes.Equal(recovered, tt.msgToSign) {
						t.Fatalf("payload mismatch: have %q, want %q", recovered, tt.msgToSign)
					}
				} else {
					if !errors.Is(err, ErrSignatureInvalid) {
						t.Fatalf("error = %v, want %v", err, ErrSignatureInvalid)
					}
				}
			})
		}
	}
}

// Tests that the algorithm in the protected header is enforced.
func TestSignVerifyAlgorithm(t *testing.T) {
	alice, _ := generateKeys(t)

	if _, err := Sign(rnd.Secure(), []byte("foo"), nil, alice, AlgorithmRSAOAEP256); !errors.Is(err, ErrUnexpectedAlgorithm) {
		t.Fatalf("signing with OAEP: error = %v, want %v", err, ErrUnexpectedAlgorithm)
	}
	signed, err := Sign(rnd.Secure(), []byte("foo"), nil, alice, AlgorithmPS256)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	var sign1 CoseSign1
	if err := cbor.Unmarshal(signed, &sign1); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	// Swapping the algorithm changes both the hash and the signed bytes
	for _, alg := range []int64{AlgorithmPS384, AlgorithmRSAOAEP256} {
		sign1.Protected, _ = encMode.Marshal(&ProtectedHeader{Algorithm: alg})
		forged, _ := encMode.Marshal(&sign1)

		if _, err := Verify(forged, nil, alice.PublicKey()); err == nil {
			t.Errorf("algorithm %d: forged header accepted", alg)
		}
	}
	if _, err := Verify(signed[1:], nil, alice.PublicKey()); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("truncated: error = %v, want %v", err, ErrInvalidEncoding)
	}
}

// Tests various combinations of key wrapping and unwrapping ops.
func TestWrapUnwrap(t *testing.T) {
	alice, bobby := generateKeys(t)

	cek := make([]byte, 32)
	if _, err := rand.Read(cek); err != nil {
		t.Fatalf("failed to draw key: %v", err)
	}
	for _, alg := range []int64{AlgorithmRSAOAEP, AlgorithmRSAOAEP256, AlgorithmRSAOAEP512} {
		wrapped, err := WrapKey(rnd.Secure(), cek, alice.PublicKey(), alg)
		if err != nil {
			t.Fatalf("alg %d: failed to wrap: %v", alg, err)
		}
		got, err := UnwrapKey(rnd.Secure(), wrapped, alice)
		if err != nil {
			t.Fatalf("alg %d: failed to unwrap: %v", alg, err)
		}
		if !bytes.Equal(got, cek) {
			t.Fatalf("alg %d: key mismatch: have %x, want %x", alg, got, cek)
		}
		if _, err := UnwrapKey(rnd.Secure(), wrapped, bobby); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("alg %d: wrong key: error = %v, want %v", alg, err, ErrDecryptionFailed)
		}
		// Relabeling with another OAEP hash must not decrypt
		var recip CoseRecipient
		if err := cbor.Unmarshal(wrapped, &recip); err != nil {
			t.Fatalf("alg %d: failed to decode: %v", alg, err)
		}
		other := int64(AlgorithmRSAOAEP256)
		if alg == AlgorithmRSAOAEP256 {
			other = AlgorithmRSAOAEP512
		}
		recip.Protected, _ = encMode.Marshal(&ProtectedHeader{Algorithm: other})
		forged, _ := encMode.Marshal(&recip)

		if _, err := UnwrapKey(rnd.Secure(), forged, alice); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("alg %d: relabeled: error = %v, want %v", alg, err, ErrDecryptionFailed)
		}
	}
	if _, err := WrapKey(rnd.Secure(), cek, alice.PublicKey(), AlgorithmPS256); !errors.Is(err, ErrUnexpectedAlgorithm) {
		t.Fatalf("wrapping with PSS: error = %v, want %v", err, ErrUnexpectedAlgorithm)
	}
	// 2048 bit keys with SHA-512 hold at most 256 - 128 - 2 = 126 bytes
	if _, err := WrapKey(rnd.Secure(), make([]byte, 127), alice.PublicKey(), AlgorithmRSAOAEP512); !errors.Is(err, rsa.ErrBadInputData) {
		t.Fatalf("oversized key: error = %v, want %v", err, rsa.ErrBadInputData)
	}
}

// Tests that the caller's random source is the only one consumed, so fixed
// randomness yields fixed encodings.
func TestInjectedRandomness(t *testing.T) {
	alice, _ := generateKeys(t)

	salt := bytes.Repeat([]byte{0x5a}, digest.SHA256.Size())
	source := func() *rnd.Buffer {
		// Salt first, then blinding values from a fixed keystream
		return rnd.NewBuffer(salt, rnd.NewPseudo([16]byte{}, 0, 0))
	}
	first, err := Sign(source(), []byte("foo"), []byte("bar"), alice, AlgorithmPS256)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	second, err := Sign(source(), []byte("foo"), []byte("bar"), alice, AlgorithmPS256)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("fixed salt signed differently: %x != %x", first, second)
	}
	if _, err := Verify(first, []byte("bar"), alice.PublicKey()); err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	if _, err := Sign(rnd.NewBuffer(nil, nil), []byte("foo"), nil, alice, AlgorithmPS256); !errors.Is(err, rsa.ErrRandomSource) {
		t.Fatalf("exhausted source: error = %v, want %v", err, rsa.ErrRandomSource)
	}
	// OAEP with SHA-256 draws exactly one 32 byte seed
	seed := bytes.Repeat([]byte{0xa5}, digest.SHA256.Size())
	cek := []byte("0123456789abcdef0123456789abcdef")

	first, err = WrapKey(rnd.NewBuffer(seed, nil), cek, alice.PublicKey(), AlgorithmRSAOAEP256)
	if err != nil {
		t.Fatalf("failed to wrap: %v", err)
	}
	second, err = WrapKey(rnd.NewBuffer(seed, nil), cek, alice.PublicKey(), AlgorithmRSAOAEP256)
	if err != nil {
		t.Fatalf("failed to wrap: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("fixed seed wrapped differently: %x != %x", first, second)
	}
	for _, random := range []io.Reader{nil, rnd.Secure()} {
		got, err := UnwrapKey(random, first, alice)
		if err != nil {
			t.Fatalf("failed to unwrap: %v", err)
		}
		if !bytes.Equal(got, cek) {
			t.Fatalf("key mismatch: have %x, want %x", got, cek)
		}
	}
	if _, err := WrapKey(rnd.NewBuffer(seed[:16], nil), cek, alice.PublicKey(), AlgorithmRSAOAEP256); !errors.Is(err, rsa.ErrRandomSource) {
		t.Fatalf("short seed: error = %v, want %v", err, rsa.ErrRandomSource)
	}
}

// Tests that parsing arbitrary data never panics.
func FuzzParse(f *testing.F) {
	alice, _ := generateKeys(f)

	f.Add(MarshalPublicKey(alice.PublicKey()))
	f.Add(MarshalSecretKey(alice))
	f.Add([]byte{0xa2, 0x01, 0x03, 0x01, 0x03})

	f.Fuzz(func(t *testing.T, data []byte) {
		ParsePublicKey(data)
		ParseSecretKey(data)
		Verify(data, nil, alice.PublicKey())
		UnwrapKey(nil, data, alice)
	})
}
