package reporter

import (
	"fmt"
	"strings"

	"github.com/speps/go-hashids/v2"

	"nuha.dev/bustracker/internal/tracking"
)

const DefaultPath = "location_test"

// KeyMode decides under which key the records of a session are written.
type KeyMode string

const (
	// KeyFixed writes every record to the configured path.
	KeyFixed KeyMode = "fixed"
	// KeySchedule writes to path/schedule, with whitespace removed from the schedule.
	KeySchedule KeyMode = "schedule"
	// KeySession writes to path/<hashid of the session sequence>.
	KeySession KeyMode = "session"
)

func ParseKeyMode(s string) (KeyMode, error) {
	switch m := KeyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return KeyFixed, nil
	case KeyFixed, KeySchedule, KeySession:
		return m, nil
	default:
		return "", fmt.Errorf("unknown key mode %q", s)
	}
}

type Keyer struct {
	path string
	mode KeyMode
	h    *hashids.HashID
}

func NewKeyer(path string, mode KeyMode, salt string) (*Keyer, error) {
	if path == "" {
		path = DefaultPath
	}
	if mode == "" {
		mode = KeyFixed
	}
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 8
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, err
	}
	return &Keyer{path: strings.TrimRight(path, "/"), mode: mode, h: h}, nil
}

func (k *Keyer) Mode() KeyMode {
	return k.mode
}

func (k *Keyer) Key(r tracking.Request, seq uint64) (string, error) {
	switch k.mode {
	case KeySchedule:
		schedule := strings.Join(strings.Fields(r.Schedule), "")
		if schedule == "" {
			return k.path, nil
		}
		return k.path + "/" + schedule, nil
	case KeySession:
		id, err := k.h.EncodeInt64([]int64{int64(seq)})
		if err != nil {
			return "", fmt.Errorf("encode session key: %w", err)
		}
		return k.path + "/" + id, nil
	default:
		return k.path, nil
	}
}

// SessionID decodes the sequence number out of a session key segment.
func (k *Keyer) SessionID(id string) (uint64, error) {
	nums, err := k.h.DecodeInt64WithError(id)
	if err != nil {
		return 0, err
	}
	if len(nums) != 1 || nums[0] < 0 {
		return 0, fmt.Errorf("invalid session id %q", id)
	}
	return uint64(nums[0]), nil
}

// SessionKey returns the record key of the session id, the last segment of
// a session-mode key.
func (k *Keyer) SessionKey(id string) (string, error) {
	if k.mode != KeySession {
		return "", fmt.Errorf("key mode %s has no session keys", k.mode)
	}
	if _, err := k.SessionID(id); err != nil {
		return "", err
	}
	return k.path + "/" + id, nil
}
