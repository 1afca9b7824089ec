package ratelimit

import "testing"

func TestCheckUnlimitedAlwaysAllows(t *testing.T) {
	l := &Limiter{}
	d := l.CheckUnlimited()
	if !d.Allowed {
		t.Fatal("expected unlimited tier to always allow")
	}
}
