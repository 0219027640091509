package source

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// Envelope formats written by the upload service in front of the bucket.
const (
	FormatGCM       = "GCM3NCR0"
	FormatLegacyCBC = "3NCR0PTD"
	FormatLegacyGCM = "legacy_gcm"
)

const pbkdf2Iterations = 100000

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
}

// Decrypt opens an encrypted object, detecting the envelope by its magic number.
// It returns the plaintext and the detected format.
func Decrypt(data []byte, password string) ([]byte, string, error) {
	if len(data) < 8 {
		return nil, "", fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}

	switch string(data[:8]) {
	case FormatGCM:
		out, err := decryptGCM(data, password)
		return out, FormatGCM, err
	case FormatLegacyCBC:
		out, err := decryptLegacyCBC(data, password)
		return out, FormatLegacyCBC, err
	default:
		log.Debug().Msg("no magic number found, trying legacy GCM fallback")
		out, err := decryptLegacyGCM(data, password)
		return out, FormatLegacyGCM, err
	}
}

// magic(8) + salt(16) + nonce(12) + ciphertext + tag(16)
func decryptGCM(data []byte, password string) ([]byte, error) {
	if len(data) < 8+16+12+16 {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	return openGCM(deriveKey(password, data[8:24]), data[24:36], data[36:])
}

// salt(16) + nonce(12) + ciphertext
func decryptLegacyGCM(data []byte, password string) ([]byte, error) {
	if len(data) < 16+12 {
		return nil, fmt.Errorf("legacy GCM data too short: %d bytes", len(data))
	}
	return openGCM(deriveKey(password, data[:16]), data[16:28], data[28:])
}

func openGCM(key, nonce, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}

// magic(8) + sha256(32) + length(8) + salt(16) + iv(16) + ciphertext
func decryptLegacyCBC(data []byte, password string) ([]byte, error) {
	if len(data) < 8+32+8+16+16 {
		return nil, fmt.Errorf("legacy CBC data too short: %d bytes", len(data))
	}

	storedHash := data[8:40]
	length := binary.BigEndian.Uint64(data[40:48])
	encrypted := data[48:]
	if uint64(len(encrypted)) != length {
		return nil, fmt.Errorf("length mismatch: expected %d, got %d", length, len(encrypted))
	}
	sum := sha256.Sum256(encrypted)
	if !bytes.Equal(storedHash, sum[:]) {
		return nil, fmt.Errorf("hash verification failed - data corrupted")
	}

	salt, iv, ciphertext := encrypted[:16], encrypted[16:32], encrypted[32:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a multiple of block size")
	}

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := removePKCS7Padding(plaintext)
	if err != nil {
		log.Warn().Err(err).Msg("PKCS7 unpadding failed, using raw data (old format)")
		return plaintext, nil
	}
	return unpadded, nil
}

func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding length: %d", n)
	}
	for i := len(data) - n; i < len(data); i++ {
		if data[i] != byte(n) {
			return nil, fmt.Errorf("invalid padding at position %d", i)
		}
	}
	return data[:len(data)-n], nil
}
