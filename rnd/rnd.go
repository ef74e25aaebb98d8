// pkcs1-go: RSA PKCS#1 v2.1 encryption and signatures
// Copyright 2025 Dark Bio AG. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rnd provides the random sources handed to the rsa operations: the
// system CSPRNG for real use, and deterministic readers that reproduce fixed
// test vectors.
//
// Nothing but Secure may be used outside of tests.
package rnd

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/xtea"
)

// ErrExhausted is returned by a Buffer without fallback once it ran dry.
var ErrExhausted = errors.New("rnd: buffer exhausted")

// Secure returns the cryptographically secure source of the operating system.
func Secure() io.Reader {
	return secure{}
}

type secure struct{}

func (secure) Read(p []byte) (int, error) {
	return rand.Read(p)
}

// Zero returns a source producing nothing but zero bytes.
func Zero() io.Reader {
	return zero{}
}

type zero struct{}

func (zero) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// Buffer replays a fixed byte string, typically an OAEP seed or PSS salt taken
// from a test vector. Once the data is used up, reads are served by the
// fallback, or fail with ErrExhausted if there is none.
type Buffer struct {
	data     []byte
	fallback io.Reader
}

// NewBuffer creates a source replaying data, then reading from fallback.
func NewBuffer(data []byte, fallback io.Reader) *Buffer {
	return &Buffer{data: data, fallback: fallback}
}

// Read implements io.Reader.
func (b *Buffer) Read(p []byte) (int, error) {
	n := copy(p, b.data)
	b.data = b.data[n:]
	if n == len(p) {
		return n, nil
	}
	if b.fallback == nil {
		if n > 0 {
			return n, nil
		}
		return 0, ErrExhausted
	}
	m, err := io.ReadFull(b.fallback, p[n:])
	return n + m, err
}

// Pseudo is a deterministic keystream: a 64 bit state repeatedly encrypted in
// place with XTEA, emitting the big-endian first word of each block. A read
// that is not a multiple of four bytes discards the rest of its last word. It
// is not a secure generator, only a reproducible one.
type Pseudo struct {
	cipher *xtea.Cipher
	state  [8]byte
}

// NewPseudo creates a keystream from a 128 bit key and the initial state.
func NewPseudo(key [16]byte, v0, v1 uint32) *Pseudo {
	c, err := xtea.NewCipher(key[:])
	if err != nil {
		panic(err) // cannot fail, be loud if it does
	}
	p := &Pseudo{cipher: c}
	binary.BigEndian.PutUint32(p.state[0:4], v0)
	binary.BigEndian.PutUint32(p.state[4:8], v1)
	return p
}

// Read implements io.Reader. It never fails.
func (p *Pseudo) Read(out []byte) (int, error) {
	for done := 0; done < len(out); {
		p.cipher.Encrypt(p.state[:], p.state[:])
		done += copy(out[done:], p.state[0:4])
	}
	return len(out), nil
}
