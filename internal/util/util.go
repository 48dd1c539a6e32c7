package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// GenRandomString returns a URL-safe, base64 encoded string of n securely
// generated random bytes.
func GenRandomString(n int) string {
	return encode(GenRandomBytes(n))
}

// GenRandomBytes panics if the system's secure random number generator
// fails, in which case the caller should not continue anyway.
func GenRandomBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return b
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func JsonWrite(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		panic(err)
	}
}

func CryptToken(token string) (string, error) {
	x, err := bcrypt.GenerateFromPassword([]byte(token), 12)
	if err != nil {
		return "", err
	}
	return string(x), nil
}

func CheckToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

func GenUUID() string {
	x, err := uuid.NewRandom()
	if err != nil {
		panic(err)
	}
	return x.String()
}
