// Package transport implements the HTTP request mechanics shared by the
// KLAP and AES session engines: a single POST operation with query
// parameters, cookie attachment, keep-alive, an explicit timeout, and
// HTTPS-with-verification-disabled selection by port.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gokasa/kasa-core/common"
)

// httpsPorts are the ports that select HTTPS with certificate verification
// disabled, because devices in this family use self-signed certificates.
var httpsPorts = map[int]struct{}{443: {}, 4433: {}}

// Response is the transport's result: the core interprets none of it —
// that is the session engines' job.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// PostOptions carries everything about a POST beyond path and body that a
// caller might need: query parameters, an already-formatted Cookie header
// value, extra headers, and the content type.
type PostOptions struct {
	Query       map[string]string
	Cookie      string
	Headers     map[string]string
	ContentType string
	TimeoutMS   int
}

// clientCache holds one *http.Client per scheme (HTTP or HTTPS), shared
// across all hosts and ports, so keep-alive connections are actually
// reused across calls instead of a
// fresh client (and its own connection pool) being built per request.
type clientCache struct {
	mu      sync.Mutex
	clients map[bool]*http.Client // keyed by "is https"
}

func newClientCache() *clientCache {
	return &clientCache{clients: make(map[bool]*http.Client)}
}

func (c *clientCache) get(https bool) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[https]; ok {
		return cl
	}
	tr := &http.Transport{
		DisableKeepAlives: false,
	}
	if https {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // devices are self-signed by design
	}
	cl := &http.Client{Transport: tr}
	c.clients[https] = cl
	return cl
}

var sharedClients = newClientCache()

// Post performs one HTTP POST to host:port+path, per spec.md §4.4: the
// scheme is chosen by port (443/4433 => HTTPS, verification disabled;
// otherwise HTTP), query parameters are appended, the Cookie header is
// attached if present, Connection: keep-alive and an explicit
// Content-Length are always sent, and the overall timeout is enforced via
// ctx — on expiry the call returns common.ErrTimeout and the connection is
// abandoned rather than reused.
func Post(ctx context.Context, host string, port int, path string, body []byte, opts PostOptions) (Response, error) {
	_, isHTTPS := httpsPorts[port]
	scheme := "http"
	if isHTTPS {
		scheme = "https"
	}

	u := &url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   path,
	}
	if len(opts.Query) > 0 {
		q := url.Values{}
		for k, v := range opts.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	if opts.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	if opts.Cookie != "" {
		req.Header.Set("Cookie", opts.Cookie)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	client := sharedClients.get(isHTTPS)
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			client.CloseIdleConnections()
			return Response{}, common.ErrTimeout
		}
		return Response{}, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: reading body: %v", common.ErrTransport, err)
	}

	return Response{StatusCode: resp.StatusCode, Body: respBody, Header: resp.Header}, nil
}
