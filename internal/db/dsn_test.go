package db

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"postgres://bus:s3cret@db:5432/fares?sslmode=disable", "postgres://bus:xxxxx@db:5432/fares?sslmode=disable"},
		{"postgres://bus@db/fares", "postgres://bus@db/fares"},
		{"host=db user=bus password=s3cret dbname=fares", "host=db dbname=fares"},
		{"", ""},
	}
	for _, c := range cases {
		got := Redact(c.in)
		if got != c.want {
			t.Errorf("Redact(%q) = %q, want %q", c.in, got, c.want)
		}
		if strings.Contains(got, "s3cret") {
			t.Errorf("Redact(%q) leaked the password", c.in)
		}
	}
}
