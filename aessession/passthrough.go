package aessession

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/cryptoprim"
)

// encryptPassthrough encrypts plaintext for the securePassthrough envelope:
// base64(AES-128-CBC(key, iv, PKCS7(plaintext))).
func encryptPassthrough(key, iv []byte, plaintext string) (string, error) {
	cipher, err := cryptoprim.AESCBCEncrypt(key, iv, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("aessession: encrypt passthrough: %w", err)
	}
	return base64.StdEncoding.EncodeToString(cipher), nil
}

// decryptPassthrough decrypts a securePassthrough result.response string.
// Per spec §4.3: decrypt base64 -> AES-CBC -> UTF-8, expecting JSON. If
// decoding, decryption, or JSON parsing fails, fall back to parsing the
// response string directly as JSON, since some firmwares send unencrypted
// error frames through the same field.
func decryptPassthrough(key, iv []byte, response string) (string, error) {
	if raw, err := base64.StdEncoding.DecodeString(response); err == nil {
		if plain, err := cryptoprim.AESCBCDecrypt(key, iv, raw); err == nil && json.Valid(plain) {
			return string(plain), nil
		}
	}
	if json.Valid([]byte(response)) {
		return response, nil
	}
	return "", fmt.Errorf("%w: securePassthrough response is neither decryptable nor valid JSON", common.ErrProtocolError)
}
