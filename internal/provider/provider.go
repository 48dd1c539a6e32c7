package provider

import (
	"strings"

	"nuha.dev/bustracker/internal/location"
)

type Authorization int

const (
	AuthNone Authorization = iota
	AuthCoarse
	AuthFine
)

func (a Authorization) String() string {
	switch a {
	case AuthFine:
		return "fine"
	case AuthCoarse:
		return "coarse"
	default:
		return "none"
	}
}

func (a Authorization) Granted() bool {
	return a == AuthFine || a == AuthCoarse
}

func ParseAuthorization(s string) Authorization {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fine":
		return AuthFine
	case "coarse":
		return AuthCoarse
	default:
		return AuthNone
	}
}

type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
	StatusInit     Status = "init"
)

type Listener interface {
	OnLocation(s location.Sample)
	OnProviderStatus(st Status)
}

type Subscription interface {
	// Remove stops delivery. Calling it more than once is a no-op.
	Remove()
}

type Provider interface {
	Name() string
	Authorization() Authorization
	RequestUpdates(p location.Policy, l Listener) (Subscription, error)
}
