package cryptoprim

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
)

// GenerateRSA1024 generates a 1024-bit RSA keypair and returns it as an
// SPKI public / PKCS8 private PEM pair, the encoding TP-Link-class devices
// expect inside the handshake's {"key": <pub PEM>} parameter.
func GenerateRSA1024() (pubPEM, privPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptoprim: generate RSA key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptoprim: marshal public key: %w", err)
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptoprim: marshal private key: %w", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	return pubPEM, privPEM, nil
}

// RSADecryptNoPadding performs raw RSA decryption (c^d mod n) with no
// padding scheme applied. Devices encrypt the handshake key material with
// PKCS#1 v1.5 but the padding must be stripped manually (see
// UnpadPKCS1v15) rather than through any high-level RSA-OAEP/PKCS1 helper,
// because those reject the malformed-by-spec padding some firmwares
// produce.
func RSADecryptNoPadding(privPEM, ciphertext []byte) ([]byte, error) {
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("cryptoprim: invalid private key PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cryptoprim: private key is not RSA")
	}

	c := new(big.Int).SetBytes(ciphertext)
	if c.Cmp(key.N) >= 0 {
		return nil, fmt.Errorf("cryptoprim: ciphertext representative out of range")
	}
	m := new(big.Int).Exp(c, key.D, key.N)

	size := (key.N.BitLen() + 7) / 8
	out := make([]byte, size)
	m.FillBytes(out)
	return out, nil
}

// UnpadPKCS1v15 strips PKCS#1 v1.5 type-2 padding from a raw RSA decryption
// block: it must begin 0x00 0x02, the first 0x00 separator byte must occur
// at index >= 10 (an 8-byte minimum random pad string plus the 2-byte
// prefix), and the tail after that separator is the returned key material.
// Any deviation is a HandshakeInvalid condition for the caller.
func UnpadPKCS1v15(block []byte) ([]byte, error) {
	if len(block) < 11 || block[0] != 0x00 || block[1] != 0x02 {
		return nil, fmt.Errorf("cryptoprim: malformed PKCS1v15 padding")
	}
	sep := -1
	for i := 2; i < len(block); i++ {
		if block[i] == 0x00 {
			sep = i
			break
		}
	}
	if sep < 10 {
		return nil, fmt.Errorf("cryptoprim: PKCS1v15 separator not found at required offset")
	}
	return block[sep+1:], nil
}
