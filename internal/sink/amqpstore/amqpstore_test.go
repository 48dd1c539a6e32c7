package amqpstore

import "testing"

func TestRoutingKey(t *testing.T) {
	cases := map[string]string{
		"location_test":  "location_test",
		"location/08:00": "location.08:00",
		"/location/a b/": "location.a_b",
		"location/#x*":   "location._x_",
	}
	for key, want := range cases {
		if got := RoutingKey(key); got != want {
			t.Errorf("RoutingKey(%q) = %q, want %q", key, got, want)
		}
	}
}
