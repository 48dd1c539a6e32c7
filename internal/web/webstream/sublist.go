package webstream

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"
)

// AllKeys is the sublist every client joins after login.
const AllKeys = "*"

type Subscriber interface {
	// Push hands data to the subscriber and reports whether it is closed.
	Push(key string, data []byte) bool
}

type SublistMap struct {
	mu   *sync.Mutex
	list map[string]*Sublist
}

type Sublist struct {
	key  string
	list map[Subscriber]bool
	data []byte
	mu   *sync.Mutex
}

func NewSublistMap() *SublistMap {
	m := SublistMap{}
	m.mu = &sync.Mutex{}
	m.list = map[string]*Sublist{}
	return &m
}

func (s *SublistMap) GetSublist(key string, create bool) (*Sublist, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.list[key]
	if ok {
		return l, true
	}
	if !create {
		return nil, false
	}
	m := &Sublist{}
	m.list = make(map[Subscriber]bool)
	m.key = key
	m.mu = &sync.Mutex{}
	s.list[key] = m
	return m, true
}

// Send pushes a location once to every subscriber of key or of AllKeys.
// Per-key lists are only created by subscriptions, so keys nobody asked for
// do not accumulate.
func (s *SublistMap) Send(key string, lat, lon float64, server_time time.Time) {
	data := encode_location(key, lat, lon, server_time)
	sent := make(map[Subscriber]bool)
	if l, ok := s.GetSublist(key, false); ok {
		l.send(data, sent)
	}
	if key != AllKeys {
		all, _ := s.GetSublist(AllKeys, true)
		all.send(data, sent)
	}
}

func (s *SublistMap) Unsubscribe(sub Subscriber) {
	s.mu.Lock()
	lists := make([]*Sublist, 0, len(s.list))
	for _, l := range s.list {
		lists = append(lists, l)
	}
	s.mu.Unlock()
	for _, l := range lists {
		l.Unsubscribe(sub)
	}
}

// Subscribe adds sub and replays the last location of the list, if any.
func (s *Sublist) Subscribe(sub Subscriber) {
	s.mu.Lock()
	s.list[sub] = true
	if s.data != nil {
		sub.Push(s.key, s.data)
	}
	s.mu.Unlock()
}

func (s *Sublist) Unsubscribe(sub Subscriber) {
	s.mu.Lock()
	delete(s.list, sub)
	s.mu.Unlock()
}

func (s *Sublist) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

// send skips subscribers already in sent and adds the ones it pushes to.
func (s *Sublist) send(data []byte, sent map[Subscriber]bool) {
	s.mu.Lock()
	s.data = data
	for sub := range s.list {
		if sent[sub] {
			continue
		}
		sent[sub] = true
		closed := sub.Push(s.key, data)
		if closed {
			delete(s.list, sub)
		}
	}
	s.mu.Unlock()
}

// Location frame: 0x00 | key length (LE uint16) | key | lat (LE float64) |
// lon (LE float64) | server time in ms (LE uint64)
func encode_location(key string, lat, lon float64, server_time time.Time) []byte {
	if len(key) > math.MaxUint16 {
		key = key[:math.MaxUint16]
	}
	n := len(key)
	buf := make([]byte, 3+n+24)
	buf[0] = 0x00
	binary.LittleEndian.PutUint16(buf[1:], uint16(n))
	copy(buf[3:], key)
	binary.LittleEndian.PutUint64(buf[3+n:], math.Float64bits(lat))
	binary.LittleEndian.PutUint64(buf[11+n:], math.Float64bits(lon))
	binary.LittleEndian.PutUint64(buf[19+n:], uint64(server_time.UnixMilli()))
	return buf
}

var errBadFrame = errors.New("bad location frame")

type Location struct {
	Key        string
	Latitude   float64
	Longitude  float64
	ServerTime time.Time
}

func DecodeLocation(b []byte) (Location, error) {
	var l Location
	if len(b) < 3 || b[0] != 0x00 {
		return l, errBadFrame
	}
	n := int(binary.LittleEndian.Uint16(b[1:]))
	if len(b) != 3+n+24 {
		return l, errBadFrame
	}
	l.Key = string(b[3 : 3+n])
	l.Latitude = math.Float64frombits(binary.LittleEndian.Uint64(b[3+n:]))
	l.Longitude = math.Float64frombits(binary.LittleEndian.Uint64(b[11+n:]))
	l.ServerTime = time.UnixMilli(int64(binary.LittleEndian.Uint64(b[19+n:]))).UTC()
	return l, nil
}
