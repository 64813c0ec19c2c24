package secret

import (
	"bytes"
	"testing"
)

func TestCipher_RoundTrip(t *testing.T) {
	cipher, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	plaintext := []byte("account-password")

	ciphertext, err := cipher.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	if bytes.Equal(ciphertext, plaintext) {
		t.Errorf("ciphertext equals the plaintext")
	}

	decrypted, err := cipher.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf(
			"unexpected decrypted payload\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			plaintext,
			decrypted,
		)
	}
}

func TestCipher_EncryptIsRandomized(t *testing.T) {
	cipher, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	first, err := cipher.Encrypt([]byte("account-password"))
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	second, err := cipher.Encrypt([]byte("account-password"))
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	// A fresh nonce per encryption means equal plaintexts never produce
	// equal blobs.
	if bytes.Equal(first, second) {
		t.Errorf("two encryptions of the same plaintext are equal")
	}
}

func TestCipher_DecryptRejectsTampering(t *testing.T) {
	cipher, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	ciphertext, err := cipher.Encrypt([]byte("account-password"))
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	ciphertext[len(ciphertext)-1] ^= 0xff

	if _, err := cipher.Decrypt(ciphertext); err == nil {
		t.Errorf("expected an error for a tampered ciphertext")
	}
}

func TestCipher_DecryptRejectsWrongPassphrase(t *testing.T) {
	cipher, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	ciphertext, err := cipher.Encrypt([]byte("account-password"))
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	otherCipher, err := NewCipher("another passphrase")
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	if _, err := otherCipher.Decrypt(ciphertext); err == nil {
		t.Errorf("expected an error for a wrong passphrase")
	}
}

func TestCipher_DecryptRejectsMalformedInput(t *testing.T) {
	cipher, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: [%v]", err)
	}

	if _, err := cipher.Decrypt([]byte("short")); err == nil {
		t.Errorf("expected an error for a malformed ciphertext")
	}
}

func TestNewCipher_RejectsEmptyPassphrase(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Errorf("expected an error for an empty passphrase")
	}
}
