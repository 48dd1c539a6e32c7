package logstore

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"nuha.dev/bustracker/internal/sink"
)

func TestPutWritesLine(t *testing.T) {
	var buf bytes.Buffer
	st := New(&buf)
	if err := st.Put(context.Background(), "location_test", sink.Record{Latitude: 40, Longitude: -3}); err != nil {
		t.Fatal(err)
	}
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid log line %q: %v", buf.String(), err)
	}
	if line["key"] != "location_test" || line["latitude"] != 40.0 || line["longitude"] != -3.0 {
		t.Errorf("unexpected line %v", line)
	}
}
