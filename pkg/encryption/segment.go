package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalidIV indicates an IV of the wrong length.
	ErrInvalidIV = errors.New("iv must be 16 bytes")
	// ErrInvalidCiphertext indicates ciphertext that is not block-aligned.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
)

// DeriveIVFromMediaSequence builds the default HLS IV for a segment: the
// media sequence number big-endian in the last 8 bytes, zeros elsewhere.
func DeriveIVFromMediaSequence(mediaSequence uint64) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[8:], mediaSequence)
	return iv
}

// EncryptSegment encrypts a whole segment with AES-128-CBC and PKCS#7
// padding, the METHOD=AES-128 scheme.
func EncryptSegment(data, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrInvalidIV
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pkcs7Pad(data, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// DecryptSegment reverses EncryptSegment.
func DecryptSegment(data, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrInvalidIV
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return pkcs7Unpad(out, aes.BlockSize)
}

// EncryptSample encrypts one media sample with SAMPLE-AES framing: whole
// 16-byte blocks are AES-128-CBC encrypted and any trailing remainder is
// left in the clear, so container headers stay parseable.
func EncryptSample(sample, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrInvalidIV
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	out := make([]byte, len(sample))
	copy(out, sample)

	aligned := (len(sample) / aes.BlockSize) * aes.BlockSize
	if aligned > 0 {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[:aligned], out[:aligned])
	}
	return out, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, ErrInvalidCiphertext
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, ErrInvalidCiphertext
		}
	}
	return data[:len(data)-pad], nil
}
