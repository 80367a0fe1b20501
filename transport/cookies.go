package transport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gokasa/kasa-core/common"
)

// SessionCookie extracts the session id and TIMEOUT cookies from a
// handshake response's Set-Cookie headers. names lists the cookie names to
// try for the session id, in order (KLAP only ever uses TP_SESSIONID; AES
// tries TP_SESSIONID then falls back to SESSIONID). A missing or
// non-numeric TIMEOUT defaults to common.DefaultSessionTimeout.
func SessionCookie(header http.Header, names ...string) (sessionCookie string, timeout time.Duration) {
	timeout = common.DefaultSessionTimeout

	resp := http.Response{Header: header}
	cookies := resp.Cookies()

	for _, name := range names {
		for _, c := range cookies {
			if c.Name == name {
				sessionCookie = name + "=" + c.Value
				break
			}
		}
		if sessionCookie != "" {
			break
		}
	}

	for _, c := range cookies {
		if c.Name == "TIMEOUT" {
			if secs, err := strconv.Atoi(c.Value); err == nil {
				timeout = time.Duration(secs) * time.Second
			}
			break
		}
	}

	return sessionCookie, timeout
}
