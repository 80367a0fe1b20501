// Package device is the public façade over the KLAP and AES session
// engines: it owns a device's per-connection queue, terminal uuid, and
// merged credential view, and exposes the SMART operations a caller drives.
package device

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gokasa/kasa-core/aessession"
	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/klap"
	"github.com/gokasa/kasa-core/smart"
)

// Device is a single smart-home device reachable over KLAP or AES. All
// methods are safe for concurrent use: each Send is serialized through the
// device's own smart.Queue, per spec §4.5/§5.
type Device struct {
	host string
	port int

	logger common.Logger
	now    common.NowFunc

	queue        *smart.Queue
	transport    common.Transport
	terminalUUID string
}

// New validates cfg, merges its credentials over clientDefault, and builds
// the session engine cfg.Transport names. No network call happens until
// the first SendSmartCommand/SendSmartRequests.
func New(cfg Config, clientDefault credentials.Options) (*Device, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	view := credentials.Merge(
		credentials.Options{Credentials: cfg.Credentials, CredentialsHash: cfg.CredentialsHash},
		clientDefault,
	)

	var transport common.Transport
	switch cfg.Transport {
	case TransportKLAP:
		transport = klap.New(cfg.Host, cfg.Port, view, klap.Options{
			TimeoutMS: cfg.TimeoutMS,
			Logger:    cfg.Logger,
			Now:       cfg.Now,
		})
	case TransportAES:
		transport = aessession.New(cfg.Host, cfg.Port, view, aessession.Options{
			TimeoutMS: cfg.TimeoutMS,
			Logger:    cfg.Logger,
			Now:       cfg.Now,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported transport %q", common.ErrInvalidArgument, cfg.Transport)
	}

	return &Device{
		host:         cfg.Host,
		port:         cfg.Port,
		logger:       cfg.Logger,
		now:          cfg.Now,
		queue:        smart.NewQueue(),
		transport:    transport,
		terminalUUID: smart.NewTerminalUUID(),
	}, nil
}

// SendSmartCommand sends one SMART method call, optionally scoped to a
// single child device, and returns its result payload.
func (d *Device) SendSmartCommand(ctx context.Context, method string, params interface{}, childID string) (json.RawMessage, error) {
	var result json.RawMessage
	_, err := d.queue.Do(ctx, func(ctx context.Context) (string, error) {
		var body []byte
		var err error
		if childID != "" {
			body, err = smart.WrapChild(method, params, childID, d.terminalUUID, d.now())
		} else {
			body, err = smart.WrapSingle(method, params, d.terminalUUID, d.now())
		}
		if err != nil {
			return "", err
		}

		respStr, err := d.transport.Send(ctx, string(body))
		if err != nil {
			return "", err
		}

		if childID != "" {
			result, err = smart.UnwrapChild([]byte(respStr), method)
		} else {
			result, err = smart.UnwrapSingle([]byte(respStr), method)
		}
		return "", err
	})
	if err != nil {
		return nil, d.wrapErr(err)
	}
	return result, nil
}

// SendSmartRequests batches independent method calls into one
// multipleRequest, optionally scoped to a single child device, and returns
// a method -> result map.
func (d *Device) SendSmartRequests(ctx context.Context, requests []smart.Request, childID string) (map[string]json.RawMessage, error) {
	var result map[string]json.RawMessage
	_, err := d.queue.Do(ctx, func(ctx context.Context) (string, error) {
		var body []byte
		var err error
		if childID != "" {
			body, err = smart.WrapChild("multipleRequest", smart.BatchRequestParams(requests), childID, d.terminalUUID, d.now())
		} else {
			body, err = smart.WrapBatch(requests, d.terminalUUID, d.now())
		}
		if err != nil {
			return "", err
		}

		respStr, err := d.transport.Send(ctx, string(body))
		if err != nil {
			return "", err
		}

		if childID != "" {
			result, err = smart.UnwrapBatchChild([]byte(respStr))
		} else {
			result, err = smart.UnwrapBatch([]byte(respStr))
		}
		return "", err
	})
	if err != nil {
		return nil, d.wrapErr(err)
	}
	return result, nil
}

func (d *Device) wrapErr(err error) error {
	return common.WithHost(d.host, d.port, err)
}

// Close releases the device's session state. It is idempotent.
func (d *Device) Close() error {
	return d.transport.Close()
}
