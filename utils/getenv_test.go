package utils

import (
	"testing"
	"time"
)

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("SOCKETCALC_TEST_VALUE", "")
	if got := GetEnvDefault("SOCKETCALC_TEST_VALUE", "fallback"); got != "fallback" {
		t.Errorf("GetEnvDefault = %q, want fallback", got)
	}
	t.Setenv("SOCKETCALC_TEST_VALUE", "set")
	if got := GetEnvDefault("SOCKETCALC_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("GetEnvDefault = %q, want set", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("SOCKETCALC_TEST_DURATION", "250ms")
	if got := GetEnvDuration("SOCKETCALC_TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Errorf("GetEnvDuration = %v, want 250ms", got)
	}
	t.Setenv("SOCKETCALC_TEST_DURATION", "soon")
	if got := GetEnvDuration("SOCKETCALC_TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration = %v, want fallback 1s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SOCKETCALC_TEST_INT", "12")
	if got := GetEnvInt("SOCKETCALC_TEST_INT", 3); got != 12 {
		t.Errorf("GetEnvInt = %d, want 12", got)
	}
	t.Setenv("SOCKETCALC_TEST_INT", "twelve")
	if got := GetEnvInt("SOCKETCALC_TEST_INT", 3); got != 3 {
		t.Errorf("GetEnvInt = %d, want fallback 3", got)
	}
}
