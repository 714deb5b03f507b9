package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"off", false},
		{"", true},      // unset falls back to the default
		{"maybe", true}, // invalid falls back to the default
	}
	for _, c := range cases {
		t.Setenv("TEST_BOOL", c.value)
		if got := ParseBoolEnv("TEST_BOOL", true); got != c.want {
			t.Errorf("ParseBoolEnv(%q) = %v, want %v", c.value, got, c.want)
		}
	}
	if ParseBoolEnv("TEST_BOOL_MISSING", false) {
		t.Error("missing variable must return the default")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("TEST_INT", " 42 ")
	if got := ParseIntEnv("TEST_INT", 7); got != 42 {
		t.Errorf("ParseIntEnv = %d, want 42", got)
	}
	t.Setenv("TEST_INT", "forty-two")
	if got := ParseIntEnv("TEST_INT", 7); got != 7 {
		t.Errorf("invalid value must return the default, got %d", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("TEST_FLOAT", "2.5")
	if got := ParseFloatEnv("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("ParseFloatEnv = %v, want 2.5", got)
	}
	t.Setenv("TEST_FLOAT", "fast")
	if got := ParseFloatEnv("TEST_FLOAT", 1); got != 1 {
		t.Errorf("invalid value must return the default, got %v", got)
	}
}
