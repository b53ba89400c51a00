package db

import (
	"net/url"
	"strings"
)

// Redact hides the password of a postgres URL DSN for logging. Key/value
// DSNs are reduced to their host and dbname.
func Redact(dsn string) string {
	if dsn == "" {
		return ""
	}
	if !strings.Contains(dsn, "://") {
		var kept []string
		for _, f := range strings.Fields(dsn) {
			if strings.HasPrefix(f, "host=") || strings.HasPrefix(f, "dbname=") {
				kept = append(kept, f)
			}
		}
		return strings.Join(kept, " ")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "invalid-dsn"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
