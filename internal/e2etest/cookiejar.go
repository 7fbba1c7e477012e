package e2etest

import (
	"github.com/chatscope/chatscope/internal/errors"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
)

// loopbackJar keeps Secure cookies for loopback hosts even though test servers speak plain HTTP. Cookies of other
// hosts, e.g., a deployment under smoke test, keep their Secure flag.
type loopbackJar struct {
	*cookiejar.Jar
}

func newLoopbackJar() (*loopbackJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "new cookie jar")
	}
	return &loopbackJar{Jar: jar}, nil
}

func (j *loopbackJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if isLoopback(u.Hostname()) {
		for _, c := range cookies {
			c.Secure = false
		}
	}
	j.Jar.SetCookies(u, cookies)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
