package credentials

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// cookie is the subset of a Netscape cookies.txt record the store cares
// about: enough to tell whether a blob still holds usable session material.
type cookie struct {
	Domain  string
	Name    string
	Expires time.Time
}

func (c cookie) expired(now time.Time) bool {
	// A zero expiry marks a session cookie; treat it as live.
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

// parseNetscape reads a Netscape-format cookies.txt:
// domain flag path secure expiration name value
func parseNetscape(r io.Reader) ([]cookie, error) {
	var cookies []cookie
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}

		expiresUnix, _ := strconv.ParseInt(parts[4], 10, 64)
		c := cookie{
			Domain: parts[0],
			Name:   parts[5],
		}
		if expiresUnix > 0 {
			c.Expires = time.Unix(expiresUnix, 0)
		}
		cookies = append(cookies, c)
	}
	return cookies, scanner.Err()
}

// liveCookieCount reports how many cookies are not yet expired.
func liveCookieCount(cookies []cookie, now time.Time) int {
	n := 0
	for _, c := range cookies {
		if !c.expired(now) {
			n++
		}
	}
	return n
}
