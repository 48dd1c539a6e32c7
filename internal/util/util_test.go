package util

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestToken(t *testing.T) {
	tok := GenRandomString(24)
	if len(tok) != 32 {
		t.Errorf("unexpected token length %d", len(tok))
	}
	hash, err := CryptToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if !CheckToken(hash, tok) {
		t.Error("token should match its hash")
	}
	if CheckToken(hash, tok+"x") || CheckToken("not a hash", tok) {
		t.Error("mismatched token accepted")
	}
}

func TestJsonWrite(t *testing.T) {
	w := httptest.NewRecorder()
	JsonWrite(w, map[string]int{"a": 1})
	if w.Header().Get("Content-Type") != "application/json" || strings.TrimSpace(w.Body.String()) != `{"a":1}` {
		t.Errorf("unexpected response %q", w.Body.String())
	}
}
