package encryption

import (
	"crypto/ecdh"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test vector from RFC 8291 appendix A.
const (
	vectorPlaintext  = "When I grow up, I want to be a watermelon"
	vectorUAPrivate  = "q1dXpw3UpT5VOmu_cf_v6ih07Aems3njxI-JWgLcM94"
	vectorUAPublic   = "BCVxsr7N_eNgVRqvHtD0zTZsEc6-VV-JvLexhqUzORcxaOzi6-AYWXvTBHm4bjyPjs7Vd8pZGH6SRpkNtoIAiw4"
	vectorAuth       = "BTBZMqHH6r4Tts7J_aSIgg"
	vectorASPrivate  = "yfWPiYE-n46HLnH0KqZOF1fJJU3MYrct3AELtAQ-oRw"
	vectorSalt       = "DGv6ra1nlYgDCS1FRnbzlw"
	vectorCiphertext = "DGv6ra1nlYgDCS1FRnbzlwAAEABBBP4z9KsN6nGRTbVYI_c7VJSPQTBtkgcy27mlmlMoZIIgDll6e3vCYLocInmYWAmS6TlzAC8wEqKK6PBru3jl7A_yl95bQpu6cVPTpK4Mqgkf1CXztLVBSt2Ks3oZwbuwXPXLWyouBWLVWGNWQexSgSxsj_Qulcy4a-fN"
)

func vectorKeys(t *testing.T) *Keys {
	t.Helper()
	keys, err := ImportKeys(vectorUAPrivate, vectorAuth)
	require.NoError(t, err)
	return keys
}

func TestDecryptRFC8291Vector(t *testing.T) {
	keys := vectorKeys(t)
	assert.Equal(t, vectorUAPublic, keys.P256dh())
	assert.Equal(t, vectorAuth, keys.Auth())

	body, err := base64.RawURLEncoding.DecodeString(vectorCiphertext)
	require.NoError(t, err)

	plaintext, err := keys.Decrypt(body)
	require.NoError(t, err)
	assert.Equal(t, vectorPlaintext, string(plaintext))
}

func TestEncryptRFC8291Vector(t *testing.T) {
	rawSenderPriv, err := base64.RawURLEncoding.DecodeString(vectorASPrivate)
	require.NoError(t, err)
	sender, err := ecdh.P256().NewPrivateKey(rawSenderPriv)
	require.NoError(t, err)

	receiverPub, err := base64.RawURLEncoding.DecodeString(vectorUAPublic)
	require.NoError(t, err)
	authSecret, err := base64.RawURLEncoding.DecodeString(vectorAuth)
	require.NoError(t, err)
	salt, err := base64.RawURLEncoding.DecodeString(vectorSalt)
	require.NoError(t, err)

	body, err := encrypt([]byte(vectorPlaintext), receiverPub, authSecret, sender, salt)
	require.NoError(t, err)
	assert.Equal(t, vectorCiphertext, base64.RawURLEncoding.EncodeToString(body))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	message := []byte(`{"title":"SAT","body":"Tu RMA 123 fue actualizado","tag":"rma-123"}`)
	body, err := Encrypt(message, keys.P256dh(), keys.Auth())
	require.NoError(t, err)

	plaintext, err := keys.Decrypt(body)
	require.NoError(t, err)
	assert.Equal(t, message, plaintext)
}

func TestDecryptRejectsTamperedBody(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	body, err := Encrypt([]byte("hola"), keys.P256dh(), keys.Auth())
	require.NoError(t, err)
	body[len(body)-1] ^= 0xff

	_, err = keys.Decrypt(body)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecryptRejectsTruncatedBody(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	for _, size := range []int{0, 5, 20, 40} {
		_, err := keys.Decrypt(make([]byte, size))
		assert.Error(t, err, "size %d", size)
	}
}

func TestDecryptWrongKeys(t *testing.T) {
	sender, err := GenerateKeys()
	require.NoError(t, err)
	other, err := GenerateKeys()
	require.NoError(t, err)

	body, err := Encrypt([]byte("hola"), sender.P256dh(), sender.Auth())
	require.NoError(t, err)

	_, err = other.Decrypt(body)
	assert.Error(t, err)
}

func TestExportImportRoundTrip(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	privateKey, authSecret := keys.Export()
	restored, err := ImportKeys(privateKey, authSecret)
	require.NoError(t, err)

	assert.Equal(t, keys.P256dh(), restored.P256dh())
	assert.Equal(t, keys.Auth(), restored.Auth())
}

func TestImportKeysRejectsGarbage(t *testing.T) {
	_, err := ImportKeys("not-a-key", vectorAuth)
	assert.ErrorIs(t, err, ErrBadKey)

	_, err = ImportKeys(vectorUAPrivate, "short")
	assert.ErrorIs(t, err, ErrBadKey)
}

func TestDecodeKeyAcceptsPaddedAndUnpadded(t *testing.T) {
	unpadded, err := DecodeKey("AQID")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, unpadded)

	padded, err := DecodeKey("AQI=")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, padded)
}
