package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptionSaltSize = 16
	encryptionKeySize  = 32
	encryptionKeyIters = 4096
)

// EncryptMessage encrypts plain text for at-rest storage with AES-256-GCM.
// The key is derived from the shared secret with PBKDF2 and a per-message
// salt; output is base64(salt || nonce || ciphertext). Empty input passes
// through unchanged.
func EncryptMessage(secret, plain string) (string, error) {
	if plain == "" {
		return plain, nil
	}

	salt := make([]byte, encryptionSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	gcm, err := messageCipher(secret, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plain), nil)

	packed := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	packed = append(packed, salt...)
	packed = append(packed, nonce...)
	packed = append(packed, sealed...)

	return base64.StdEncoding.EncodeToString(packed), nil
}

// DecryptMessage is total: malformed or legacy plaintext input is returned
// unchanged so old unencrypted messages remain readable.
func DecryptMessage(secret, cipherText string) string {
	if cipherText == "" {
		return cipherText
	}

	packed, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return cipherText
	}
	if len(packed) <= encryptionSaltSize {
		return cipherText
	}

	salt := packed[:encryptionSaltSize]
	gcm, err := messageCipher(secret, salt)
	if err != nil {
		return cipherText
	}
	if len(packed) <= encryptionSaltSize+gcm.NonceSize() {
		return cipherText
	}

	nonce := packed[encryptionSaltSize : encryptionSaltSize+gcm.NonceSize()]
	sealed := packed[encryptionSaltSize+gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return cipherText
	}

	return string(plain)
}

func messageCipher(secret string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(secret), salt, encryptionKeyIters, encryptionKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
