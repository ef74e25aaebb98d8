// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package digest provides the hash algorithms usable with OAEP and PSS
// padding, selected by value at call sites.
//
// https://datatracker.ietf.org/doc/html/rfc8017#appendix-B.1
// https://datatracker.ietf.org/doc/html/rfc8702
package digest

import (
	"crypto"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/cloudflare/circl/xof"
	"golang.org/x/crypto/md4"
	"golang.org/x/crypto/sha3"
)

// Algorithm identifies a hash function. The zero value is invalid.
type Algorithm int

// Supported hash algorithms. MD4 and MD5 are only here to check legacy test
// vectors, they must not be used for new keys.
const (
	MD4 Algorithm = iota + 1
	MD5
	SHA1
	SHA224
	SHA256
	SHA384
	SHA512
	SHA3_256
	SHA3_512
	SHAKE128 // 256 bit output, per RFC 8702
	SHAKE256 // 512 bit output, per RFC 8702
)

// ErrUnsupported is returned when a hash algorithm is unknown or deliberately
// not implemented (e.g. MD2).
var ErrUnsupported = errors.New("digest: unsupported hash algorithm")

// info is the static description of a single algorithm.
type info struct {
	name   string
	size   int
	crypto crypto.Hash
	new    func() hash.Hash
}

var infos = map[Algorithm]info{
	MD4:      {"MD4", md4.Size, crypto.MD4, md4.New},
	MD5:      {"MD5", md5.Size, crypto.MD5, md5.New},
	SHA1:     {"SHA-1", sha1.Size, crypto.SHA1, sha1.New},
	SHA224:   {"SHA-224", sha256.Size224, crypto.SHA224, sha256.New224},
	SHA256:   {"SHA-256", sha256.Size, crypto.SHA256, sha256.New},
	SHA384:   {"SHA-384", sha512.Size384, crypto.SHA384, sha512.New384},
	SHA512:   {"SHA-512", sha512.Size, crypto.SHA512, sha512.New},
	SHA3_256: {"SHA3-256", 32, crypto.SHA3_256, sha3.New256},
	SHA3_512: {"SHA3-512", 64, crypto.SHA3_512, sha3.New512},
	SHAKE128: {"SHAKE128", 32, 0, func() hash.Hash { return newShake(xof.SHAKE128, 32, 168) }},
	SHAKE256: {"SHAKE256", 64, 0, func() hash.Hash { return newShake(xof.SHAKE256, 64, 136) }},
}

// Available reports whether the algorithm is a known, implemented one.
func (a Algorithm) Available() bool {
	_, ok := infos[a]
	return ok
}

// Size returns the output length of the hash in bytes (hLen).
func (a Algorithm) Size() int {
	return a.info().size
}

// New returns a fresh hash.Hash computing the algorithm.
func (a Algorithm) New() hash.Hash {
	return a.info().new()
}

// Sum hashes the concatenation of all the given chunks.
func (a Algorithm) Sum(chunks ...[]byte) []byte {
	h := a.New()
	for _, chunk := range chunks {
		h.Write(chunk)
	}
	return h.Sum(nil)
}

// IsXOF reports whether the algorithm is an extendable-output function. For
// those, RFC 8702 replaces MGF1 by the XOF itself.
func (a Algorithm) IsXOF() bool {
	return a == SHAKE128 || a == SHAKE256
}

// Crypto returns the matching crypto.Hash, or 0 if there is none.
func (a Algorithm) Crypto() crypto.Hash {
	return a.info().crypto
}

// String returns the canonical name of the algorithm.
func (a Algorithm) String() string {
	if i, ok := infos[a]; ok {
		return i.name
	}
	return fmt.Sprintf("digest.Algorithm(%d)", int(a))
}

func (a Algorithm) info() info {
	i, ok := infos[a]
	if !ok {
		panic("digest: unknown algorithm " + a.String())
	}
	return i
}

// Parse looks up an algorithm by name. Matching ignores case and dashes, so
// "SHA-256", "sha256" and "Sha_256" all resolve to SHA256.
func Parse(name string) (Algorithm, error) {
	want := normalize(name)
	for a, i := range infos {
		if normalize(i.name) == want {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupported, name)
}

// FromCrypto maps a standard library hash identifier onto an algorithm.
func FromCrypto(h crypto.Hash) (Algorithm, error) {
	if h != 0 {
		for a, i := range infos {
			if i.crypto == h {
				return a, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrUnsupported, h)
}

func normalize(name string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(strings.ToUpper(name))
}

// shake adapts a SHAKE XOF into a fixed output length hash.Hash.
type shake struct {
	xof  xof.XOF
	size int
	rate int
}

func newShake(id xof.ID, size, rate int) *shake {
	return &shake{xof: id.New(), size: size, rate: rate}
}

func (s *shake) Write(p []byte) (int, error) { return s.xof.Write(p) }
func (s *shake) Reset()                      { s.xof.Reset() }
func (s *shake) Size() int                   { return s.size }
func (s *shake) BlockSize() int              { return s.rate }

// Sum squeezes the output from a clone, so the absorbing state stays writable.
func (s *shake) Sum(b []byte) []byte {
	out := make([]byte, s.size)
	if _, err := io.ReadFull(s.xof.Clone(), out); err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	return append(b, out...)
}
