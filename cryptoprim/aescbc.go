package cryptoprim

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// AESCBCEncrypt PKCS7-pads plain and encrypts it with AES-128-CBC under key/iv.
func AESCBCEncrypt(key, iv, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: new cipher: %w", err)
	}
	padded := pkcs7Pad(plain, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// AESCBCDecrypt decrypts ciphertext with AES-128-CBC under key/iv and
// removes the PKCS7 padding.
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: new cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("cryptoprim: ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("cryptoprim: cannot unpad empty data")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > n {
		return nil, fmt.Errorf("cryptoprim: invalid PKCS7 padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("cryptoprim: invalid PKCS7 padding")
		}
	}
	return data[:n-padLen], nil
}
