package natsstore

import "testing"

func TestSubject(t *testing.T) {
	cases := map[string]string{
		"location_test":    "bustracker.location_test",
		"location/08:00 A": "bustracker.location.08:00_A",
		"/location/x/":     "bustracker.location.x",
		"":                 "bustracker",
		"location/a*b>c":   "bustracker.location.a_b_c",
	}
	for key, want := range cases {
		if got := Subject(DefaultPrefix, key); got != want {
			t.Errorf("Subject(%q) = %q, want %q", key, got, want)
		}
	}
}
