package aessession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/cryptoprim"
	"github.com/gokasa/kasa-core/transport"
)

const pathApp = "/app"

// envelope is the top-level shape of every AES-transport JSON response:
// error_code is always present; result varies by method.
type envelope struct {
	ErrorCode int             `json:"error_code"`
	Result    json.RawMessage `json:"result"`
}

// handshakeResult is envelope.Result's shape for method "handshake".
type handshakeResult struct {
	Key string `json:"key"`
}

// performHandshake generates an RSA-1024 keypair, POSTs it to the device,
// and derives the 16-byte AES key/iv pair from the returned encrypted
// block, per spec §4.3.
func performHandshake(ctx context.Context, host string, port, timeoutMS int) (key, iv []byte, sessionCookie string, timeout time.Duration, err error) {
	pubPEM, privPEM, err := cryptoprim.GenerateRSA1024()
	if err != nil {
		return nil, nil, "", 0, err
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"method": "handshake",
		"params": map[string]interface{}{"key": string(pubPEM)},
	})
	if err != nil {
		return nil, nil, "", 0, fmt.Errorf("aessession: marshal handshake request: %w", err)
	}

	resp, err := transport.Post(ctx, host, port, pathApp, reqBody, transport.PostOptions{
		ContentType: "application/json",
		Headers:     map[string]string{"requestByApp": "true", "Accept": "application/json"},
		TimeoutMS:   timeoutMS,
	})
	if err != nil {
		return nil, nil, "", 0, err
	}
	if resp.StatusCode != 200 {
		return nil, nil, "", 0, &common.HTTPError{Status: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, nil, "", 0, fmt.Errorf("%w: handshake response is not valid JSON: %v", common.ErrProtocolError, err)
	}
	if env.ErrorCode != 0 {
		return nil, nil, "", 0, &common.SmartError{Code: env.ErrorCode, Method: "handshake"}
	}

	var result handshakeResult
	if err := json.Unmarshal(env.Result, &result); err != nil || result.Key == "" {
		return nil, nil, "", 0, fmt.Errorf("%w: handshake result missing key", common.ErrHandshakeInvalid)
	}

	encrypted, err := base64.StdEncoding.DecodeString(result.Key)
	if err != nil {
		return nil, nil, "", 0, fmt.Errorf("%w: handshake key is not valid base64: %v", common.ErrHandshakeInvalid, err)
	}

	rawBlock, err := cryptoprim.RSADecryptNoPadding(privPEM, encrypted)
	if err != nil {
		return nil, nil, "", 0, fmt.Errorf("%w: RSA-decrypting handshake key: %v", common.ErrHandshakeInvalid, err)
	}
	material, err := cryptoprim.UnpadPKCS1v15(rawBlock)
	if err != nil {
		return nil, nil, "", 0, fmt.Errorf("%w: %v", common.ErrHandshakeInvalid, err)
	}
	if len(material) < 32 {
		return nil, nil, "", 0, fmt.Errorf("%w: handshake key material is %d bytes, want >= 32", common.ErrHandshakeInvalid, len(material))
	}

	cookie, timeout := transport.SessionCookie(resp.Header, "TP_SESSIONID", "SESSIONID")
	return material[0:16], material[16:32], cookie, timeout, nil
}
