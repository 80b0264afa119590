// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// OTPSize is the length, in bytes, of a derived one-time password.
const OTPSize = 32

// SaltSize is the length of the random per-derivation salt mixed into
// the HKDF expansion.
const SaltSize = 16

// otpInfo is the HKDF "info" context string, binding the derived key to
// its purpose so it cannot be confused with a key derived for another
// use of the same master secret.
const otpInfo = "distant-agent otp v1"

// DeriveOTP expands masterSecret and a freshly generated random salt into
// a new one-time password via HKDF-SHA256 (spec §4.2: "a key-exchange
// whose result is interpreted as the fresh OTP"). It returns the OTP and
// the salt, which must accompany the OTP wherever it is communicated
// (e.g. folded into the Connect/Reconnect control frame) so the peer can
// reproduce the same derivation.
func DeriveOTP(masterSecret []byte) (otp, salt []byte, err error) {
	salt = make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generating otp salt: %w", err)
	}
	otp, err = expand(masterSecret, salt)
	if err != nil {
		return nil, nil, err
	}
	return otp, salt, nil
}

// ExpandOTP reproduces the OTP derivation given a known salt, e.g. to
// verify a client-presented OTP server-side.
func ExpandOTP(masterSecret, salt []byte) ([]byte, error) {
	return expand(masterSecret, salt)
}

func expand(masterSecret, salt []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, masterSecret, salt, []byte(otpInfo))
	otp := make([]byte, OTPSize)
	if _, err := io.ReadFull(r, otp); err != nil {
		return nil, fmt.Errorf("expanding otp: %w", err)
	}
	return otp, nil
}
