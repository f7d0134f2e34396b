package encryption

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveIVFromMediaSequence(t *testing.T) {
	iv := DeriveIVFromMediaSequence(0x0102030405060708)
	require.Len(t, iv, 16)
	assert.Equal(t, make([]byte, 8), iv[:8])
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, iv[8:])
}

func TestEncryptDecryptSegmentRoundTrip(t *testing.T) {
	key, err := GenerateRandomBytes(KeySize)
	require.NoError(t, err)
	iv := DeriveIVFromMediaSequence(42)

	plaintext := []byte("not really an fmp4 segment, but bytes all the same")
	ciphertext, err := EncryptSegment(plaintext, key, iv)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)
	require.Zero(t, len(ciphertext)%16)

	decrypted, err := DecryptSegment(ciphertext, key, iv)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptSegmentRejectsBadKeyAndIV(t *testing.T) {
	_, err := EncryptSegment([]byte("data"), []byte("short"), make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = EncryptSegment([]byte("data"), make([]byte, 16), []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidIV)
}

func TestEncryptSampleLeavesRemainderClear(t *testing.T) {
	key := make([]byte, KeySize)
	iv := make([]byte, 16)

	sample := make([]byte, 20) // one whole block + 4 trailing bytes
	for i := range sample {
		sample[i] = byte(i)
	}

	out, err := EncryptSample(sample, key, iv)
	require.NoError(t, err)
	require.Len(t, out, 20)
	assert.False(t, bytes.Equal(sample[:16], out[:16]))
	assert.Equal(t, sample[16:], out[16:])
}

func TestKeyManagerRotateIfDue(t *testing.T) {
	km := NewKeyManager(3)
	_, err := km.GenerateKey("key-0", "keys/0")
	require.NoError(t, err)

	var rotations int
	km.SetRotationCallback(func(oldID, newID string) { rotations++ })

	for i := 1; i <= 6; i++ {
		id := "key-" + string(rune('0'+i))
		rotated, err := km.RotateIfDue(id, "keys/"+string(rune('0'+i)))
		require.NoError(t, err)
		if i%3 == 0 {
			assert.True(t, rotated, "segment %d should rotate", i)
		} else {
			assert.False(t, rotated, "segment %d should not rotate", i)
		}
	}
	assert.Equal(t, 2, rotations)

	current, err := km.CurrentKey()
	require.NoError(t, err)
	assert.Equal(t, "key-6", current.ID)
}

func TestKeyManagerCurrentKeyWithoutGenerate(t *testing.T) {
	km := NewKeyManager(0)
	_, err := km.CurrentKey()
	assert.ErrorIs(t, err, ErrNoCurrentKey)
}

func TestDeriveKeyFromPassphraseIsDeterministic(t *testing.T) {
	a := DeriveKeyFromPassphrase([]byte("passphrase"), []byte("salt"))
	b := DeriveKeyFromPassphrase([]byte("passphrase"), []byte("salt"))
	require.Len(t, a, KeySize)
	assert.Equal(t, a, b)
}
