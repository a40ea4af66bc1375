// Package encryption implements the message encryption half of web push
// (RFC 8291, content coding aes128gcm from RFC 8188). The agent generates a
// P-256 key pair plus auth secret per subscription and decrypts incoming
// messages; the encrypt side exists for the dev relay and for tests.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	saltLength   = 16
	authLength   = 16
	keyLength    = 65 // uncompressed P-256 point
	recordSize   = 4096
	gcmTagLength = 16
)

var (
	ErrMalformedMessage = errors.New("malformed aes128gcm message")
	ErrBadKey           = errors.New("invalid subscription key material")
)

// Keys holds the client key material of a push subscription: the P-256 key
// pair whose public point is advertised as p256dh, and the auth secret.
type Keys struct {
	private *ecdh.PrivateKey
	auth    []byte
}

// GenerateKeys creates fresh subscription key material.
func GenerateKeys() (*Keys, error) {
	private, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	auth := make([]byte, authLength)
	if _, err := rand.Read(auth); err != nil {
		return nil, err
	}
	return &Keys{private: private, auth: auth}, nil
}

// ImportKeys rebuilds key material from its exported base64url form.
func ImportKeys(privateKey, authSecret string) (*Keys, error) {
	rawPriv, err := decode(privateKey)
	if err != nil {
		return nil, ErrBadKey
	}
	private, err := ecdh.P256().NewPrivateKey(rawPriv)
	if err != nil {
		return nil, ErrBadKey
	}
	auth, err := decode(authSecret)
	if err != nil || len(auth) != authLength {
		return nil, ErrBadKey
	}
	return &Keys{private: private, auth: auth}, nil
}

// Export returns the private scalar and auth secret, base64url encoded, for
// persisting the subscription across restarts.
func (k *Keys) Export() (privateKey, authSecret string) {
	return encode(k.private.Bytes()), encode(k.auth)
}

// P256dh is the public key in the form sent to the subscribe endpoint.
func (k *Keys) P256dh() string {
	return encode(k.private.PublicKey().Bytes())
}

// Auth is the auth secret in the form sent to the subscribe endpoint.
func (k *Keys) Auth() string {
	return encode(k.auth)
}

// Decrypt opens an aes128gcm message addressed to this subscription and
// returns the plaintext payload.
func (k *Keys) Decrypt(body []byte) ([]byte, error) {
	if len(body) < saltLength+4+1 {
		return nil, ErrMalformedMessage
	}
	salt := body[:saltLength]
	rs := binary.BigEndian.Uint32(body[saltLength : saltLength+4])
	idLen := int(body[saltLength+4])
	if rs < 18 || idLen != keyLength || len(body) < saltLength+5+idLen {
		return nil, ErrMalformedMessage
	}
	senderPubBytes := body[saltLength+5 : saltLength+5+idLen]
	record := body[saltLength+5+idLen:]
	if len(record) > int(rs) {
		// only single-record messages are valid for web push
		return nil, ErrMalformedMessage
	}

	senderPub, err := ecdh.P256().NewPublicKey(senderPubBytes)
	if err != nil {
		return nil, ErrMalformedMessage
	}
	shared, err := k.private.ECDH(senderPub)
	if err != nil {
		return nil, err
	}

	cek, nonce := deriveRecordKeys(shared, k.auth, salt, k.private.PublicKey().Bytes(), senderPubBytes)
	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	padded, err := gcm.Open(nil, nonce, record, nil)
	if err != nil {
		return nil, ErrMalformedMessage
	}
	return stripPadding(padded)
}

// Encrypt builds an aes128gcm message for the subscription identified by the
// p256dh/auth pair, using an ephemeral sender key and random salt.
func Encrypt(plaintext []byte, p256dh, auth string) ([]byte, error) {
	receiverPubBytes, err := decode(p256dh)
	if err != nil {
		return nil, ErrBadKey
	}
	authSecret, err := decode(auth)
	if err != nil || len(authSecret) != authLength {
		return nil, ErrBadKey
	}
	sender, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return encrypt(plaintext, receiverPubBytes, authSecret, sender, salt)
}

func encrypt(plaintext, receiverPubBytes, authSecret []byte, sender *ecdh.PrivateKey, salt []byte) ([]byte, error) {
	receiverPub, err := ecdh.P256().NewPublicKey(receiverPubBytes)
	if err != nil {
		return nil, ErrBadKey
	}
	shared, err := sender.ECDH(receiverPub)
	if err != nil {
		return nil, err
	}
	senderPubBytes := sender.PublicKey().Bytes()

	cek, nonce := deriveRecordKeys(shared, authSecret, salt, receiverPubBytes, senderPubBytes)
	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// single record: payload, delimiter 0x02, no extra padding
	padded := append(append([]byte{}, plaintext...), 0x02)

	header := make([]byte, saltLength+5, saltLength+5+keyLength)
	copy(header, salt)
	binary.BigEndian.PutUint32(header[saltLength:], recordSize)
	header[saltLength+4] = keyLength
	header = append(header, senderPubBytes...)

	return gcm.Seal(header, nonce, padded, nil), nil
}

// deriveRecordKeys runs the RFC 8291 key schedule and returns the content
// encryption key and nonce.
func deriveRecordKeys(sharedSecret, authSecret, salt, receiverPub, senderPub []byte) (cek, nonce []byte) {
	prkKey := hkdf.Extract(sha256.New, sharedSecret, authSecret)

	keyInfo := make([]byte, 0, 14+2*keyLength)
	keyInfo = append(keyInfo, []byte("WebPush: info\x00")...)
	keyInfo = append(keyInfo, receiverPub...)
	keyInfo = append(keyInfo, senderPub...)
	ikm := expand(prkKey, keyInfo, 32)

	prk := hkdf.Extract(sha256.New, ikm, salt)
	cek = expand(prk, []byte("Content-Encoding: aes128gcm\x00"), 16)
	nonce = expand(prk, []byte("Content-Encoding: nonce\x00"), 12)
	return cek, nonce
}

func expand(prk, info []byte, length int) []byte {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		// only reachable if length exceeds the HKDF output limit
		panic(err)
	}
	return out
}

// stripPadding removes the RFC 8188 delimiter and trailing zero padding of a
// last record. The delimiter for the final record is 0x02.
func stripPadding(padded []byte) ([]byte, error) {
	i := len(padded) - 1
	for i >= 0 && padded[i] == 0x00 {
		i--
	}
	if i < 0 || padded[i] != 0x02 {
		return nil, ErrMalformedMessage
	}
	return padded[:i], nil
}

// DecodeKey decodes base64url-encoded key material as served by
// /api/push/vapid-public, tolerating both padded and unpadded forms.
func DecodeKey(s string) ([]byte, error) {
	return decode(s)
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// decode accepts base64url with or without padding, matching what push
// services and browsers emit.
func decode(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
