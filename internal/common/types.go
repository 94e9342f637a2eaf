// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package common provides the fixed-size primitive types (addresses,
// hashes) shared by every PoAI component, plus their hex encodings.
package common

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressLength is the number of bytes in an Address.
const AddressLength = 20

// HashLength is the number of bytes in a Hash.
const HashLength = 32

// Address represents a 20-byte account identifier.
type Address [AddressLength]byte

// Hash represents a 32-byte digest.
type Hash [HashLength]byte

// BytesToAddress truncates/pads b into an Address, left-padding with
// zeroes when b is shorter than AddressLength.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// HexToAddress parses a "0x"-prefixed or bare hex string into an Address.
func HexToAddress(s string) Address {
	return BytesToAddress(fromHex(s))
}

// Hex returns the "0x"-prefixed lowercase hex encoding of a.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string { return a.Hex() }

// HexBare returns the lowercase hex encoding of a without the "0x" prefix,
// used in contexts (hash preimages, on-disk keys) that spec §6 defines in
// terms of bare hex rather than a "0x"-prefixed string.
func (a Address) HexBare() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == Address{} }

// Bytes returns a copy of a's underlying bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLength)
	copy(b, a[:])
	return b
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Hex())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = HexToAddress(s)
	return nil
}

// BytesToHash truncates/pads b into a Hash, left-padding with zeroes when
// b is shorter than HashLength.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HexToHash parses a "0x"-prefixed or bare hex string into a Hash.
func HexToHash(s string) Hash {
	return BytesToHash(fromHex(s))
}

// Hex returns the "0x"-prefixed lowercase hex encoding of h.
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string { return h.Hex() }

// HexBare returns the lowercase hex encoding of h without the "0x" prefix,
// matching spec §3/§6's bare-hex hash representation (e.g. the genesis
// previous_hash sentinel, 64 ASCII '0' characters).
func (h Hash) HexBare() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// Bytes returns a copy of h's underlying bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashLength)
	copy(b, h[:])
	return b
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*h = HexToHash(s)
	return nil
}

func fromHex(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// ZeroHash64 is the genesis previous-hash sentinel: 64 ASCII '0' characters.
var ZeroHash64 = strings.Repeat("0", 64)

// Errorf is a tiny helper kept for parity with the teacher's style of
// wrapping sentinel errors with call-site context.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
