package tracking

import (
	"github.com/phuslu/log"
)

// Request holds the parameters of one tracking session as supplied by the
// UI layer. Every field is optional and empty strings are valid.
type Request struct {
	Origin         string `json:"origin" validate:"max=1024"`
	Destination    string `json:"destination" validate:"max=1024"`
	Schedule       string `json:"schedule" validate:"max=1024"`
	PreOriginCoord string `json:"preOriginCoord" validate:"max=1024"`
}

func (r Request) MarshalObject(e *log.Entry) {
	e.Str("origin", r.Origin).Str("destination", r.Destination).Str("schedule", r.Schedule).Str("pre_origin_coord", r.PreOriginCoord)
}

// Params returns the named parameter bundle handed to the service manager.
func (r Request) Params() map[string]string {
	return map[string]string{
		"origin":         r.Origin,
		"destination":    r.Destination,
		"schedule":       r.Schedule,
		"preOriginCoord": r.PreOriginCoord,
	}
}

// FromParams is the inverse of Params. Missing keys become empty strings.
func FromParams(p map[string]string) Request {
	return Request{
		Origin:         p["origin"],
		Destination:    p["destination"],
		Schedule:       p["schedule"],
		PreOriginCoord: p["preOriginCoord"],
	}
}
