// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package crypto

import (
	"bytes"
	"crypto/subtle"
	"testing"
)

func TestDeriveOTP_LengthAndSalt(t *testing.T) {
	master := []byte("a server master secret, not actually this short")

	otp, salt, err := DeriveOTP(master)
	if err != nil {
		t.Fatalf("DeriveOTP: %v", err)
	}
	if len(otp) != OTPSize {
		t.Fatalf("len(otp) = %d, want %d", len(otp), OTPSize)
	}
	if len(salt) != SaltSize {
		t.Fatalf("len(salt) = %d, want %d", len(salt), SaltSize)
	}
}

func TestExpandOTP_ReproducesSameOTPGivenSameSalt(t *testing.T) {
	master := []byte("shared master secret")

	otp1, salt, err := DeriveOTP(master)
	if err != nil {
		t.Fatalf("DeriveOTP: %v", err)
	}

	otp2, err := ExpandOTP(master, salt)
	if err != nil {
		t.Fatalf("ExpandOTP: %v", err)
	}

	if subtle.ConstantTimeCompare(otp1, otp2) != 1 {
		t.Fatalf("ExpandOTP did not reproduce DeriveOTP's result: %x vs %x", otp1, otp2)
	}
}

func TestDeriveOTP_DifferentCallsProduceDifferentSaltsAndOTPs(t *testing.T) {
	master := []byte("shared master secret")

	otp1, salt1, err := DeriveOTP(master)
	if err != nil {
		t.Fatalf("DeriveOTP: %v", err)
	}
	otp2, salt2, err := DeriveOTP(master)
	if err != nil {
		t.Fatalf("DeriveOTP: %v", err)
	}

	if bytes.Equal(salt1, salt2) {
		t.Fatalf("two DeriveOTP calls produced the same salt")
	}
	if bytes.Equal(otp1, otp2) {
		t.Fatalf("two DeriveOTP calls produced the same OTP")
	}
}
