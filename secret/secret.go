// Package secret guards account credentials at rest with AES-GCM. The
// cipher key is derived from a configured passphrase; ciphertexts embed
// their nonce so a blob is self-contained.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(passphrase string) (*Cipher, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("empty cipher passphrase")
	}

	key := sha256.Sum256([]byte(passphrase))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("could not create cipher: [%v]", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("could not create cipher mode: [%v]", err)
	}

	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("could not generate nonce: [%v]", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("malformed ciphertext")
	}

	plaintext, err := c.aead.Open(
		nil,
		ciphertext[:nonceSize],
		ciphertext[nonceSize:],
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt: [%v]", err)
	}

	return plaintext, nil
}
