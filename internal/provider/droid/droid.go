// Package droid is a location provider fed by handheld devices over TCP.
// A device logs in, then streams location and status frames; the latest
// status frame decides the location authorization of the provider.
package droid

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/phuslu/log"
	proxyproto "github.com/pires/go-proxyproto"

	"nuha.dev/bustracker/internal/location"
	"nuha.dev/bustracker/internal/provider"
)

const (
	NEW_CONNECTION      string = "new_connection"
	LOGIN_MESSAGE       string = "login_message"
	LOGIN_MESSAGE_ERROR string = "login_message_error"
	CONNECTION_REPLACED string = "connection_replaced"
	PERMISSION_CHANGED  string = "permission_changed"
)

type Config struct {
	ListenerAddr string
	// Authorization in effect until a device reports its own permission.
	Authorization provider.Authorization
	LoginTimeout  time.Duration
}

type Server struct {
	mu          sync.Mutex
	log         log.Logger
	config      *Config
	cid_counter uint64
	listener    net.Listener
	auth        provider.Authorization
	devices     map[string]*Conn
	hub         *provider.Hub
}

func NewServer(config *Config) *Server {
	s := &Server{}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "droid-provider").Value()
	s.config = config
	if s.config.LoginTimeout == 0 {
		s.config.LoginTimeout = 2 * time.Second
	}
	s.auth = config.Authorization
	s.devices = make(map[string]*Conn)
	s.hub = provider.NewHub()
	return s
}

func (s *Server) Name() string {
	return "droid"
}

func (s *Server) Authorization() provider.Authorization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *Server) RequestUpdates(p location.Policy, l provider.Listener) (provider.Subscription, error) {
	return s.hub.Add(p, l), nil
}

// Listen binds the listener; Run accepts on it until ctx is done.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.ListenerAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = &proxyproto.Listener{Listener: ln}
	s.mu.Unlock()
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Run(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			s.log.Error().Err(err).Msg("unable to listen")
			return err
		}
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	s.log.Info().Msgf("starting droid provider on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		_c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				return nil
			}
			s.log.Error().Err(err).Msg("failed to accept new connection")
			return err
		}
		s.mu.Lock()
		s.cid_counter = s.cid_counter + 1
		cid := s.cid_counter
		s.mu.Unlock()
		go s.accept(_c, cid)
	}
}

// accept wraps the raw connection off the accept loop; resolving the
// addresses may block on the PROXY header.
func (s *Server) accept(_c net.Conn, cid uint64) {
	_ = _c.SetReadDeadline(time.Now().Add(s.config.LoginTimeout))
	c := NewConn(_c, cid)
	s.log.Info().Str("event", NEW_CONNECTION).EmbedObject(c).Msg("")
	s.handle(c)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for serial, c := range s.devices {
		c.Close()
		delete(s.devices, serial)
	}
}

func (s *Server) handle(c *Conn) {
	defer c.Close()
	msg := FrameMessage{Buffer: make([]byte, maxPayload+5)}

	b, err := c.Peek(1)
	if err != nil || b[0] != START {
		s.log.Error().Err(err).Str("event", LOGIN_MESSAGE_ERROR).EmbedObject(c).Msg("not a droid frame, will close")
		return
	}
	err = ReadMessage(c, &msg)
	if err != nil {
		s.log.Error().Err(err).Str("event", LOGIN_MESSAGE_ERROR).EmbedObject(c).Msg("error reading login message")
		return
	}
	if msg.Protocol != LOGIN {
		s.log.Error().EmbedObject(c).Str("event", LOGIN_MESSAGE_ERROR).Msgf("message type is not login,type : %x", msg.Protocol)
		return
	}
	login := LoginMessage{}
	err = json.Unmarshal(msg.Payload, &login)
	if err != nil || login.Serial == "" {
		s.log.Error().Err(err).Str("event", LOGIN_MESSAGE_ERROR).EmbedObject(c).Msg("error parsing login message")
		return
	}
	_ = c.SetReadDeadline(time.Time{})
	s.log.Info().Str("event", LOGIN_MESSAGE).EmbedObject(c).Str("serial", login.Serial).Str("device_type", login.DeviceType).Msg("")
	s.attach(login.Serial, c)
	defer s.detach(login.Serial, c)

	s.run(c, &msg)
}

func (s *Server) attach(serial string, c *Conn) {
	s.mu.Lock()
	old, ok := s.devices[serial]
	s.devices[serial] = c
	s.mu.Unlock()
	if ok {
		s.log.Info().Str("event", CONNECTION_REPLACED).EmbedObject(old).Str("serial", serial).Msg("")
		old.Close()
	}
}

func (s *Server) detach(serial string, c *Conn) {
	s.mu.Lock()
	if s.devices[serial] == c {
		delete(s.devices, serial)
	}
	s.mu.Unlock()
}

func (s *Server) setAuthorization(a provider.Authorization) {
	s.mu.Lock()
	changed := s.auth != a
	s.auth = a
	s.mu.Unlock()
	if changed {
		s.log.Info().Str("event", PERMISSION_CHANGED).Str("authorization", a.String()).Msg("")
	}
}

func (s *Server) run(c *Conn, msg *FrameMessage) {
	for {
		err := ReadMessage(c, msg)
		if err != nil {
			s.log.Debug().Err(err).EmbedObject(c).Msg("connection closed")
			return
		}
		switch msg.Protocol {
		case LOCATION_UPDATE:
			var loc LocationMessage
			err = json.Unmarshal(msg.Payload, &loc)
			if err != nil || !location.Valid(loc.Latitude, loc.Longitude) {
				s.log.Error().Err(err).EmbedObject(c).Msg("error parsing location data")
				continue
			}
			t := loc.GpsTime
			if t.IsZero() {
				t = time.Now().UTC()
			}
			sample := location.Sample{Latitude: loc.Latitude, Longitude: loc.Longitude, Time: t}
			n := s.hub.Deliver(sample)
			s.log.Trace().EmbedObject(c).EmbedObject(sample).Int("delivered", n).Msg("location update")

		case STATUS:
			var status StatusMessage
			err = json.Unmarshal(msg.Payload, &status)
			if err != nil {
				s.log.Error().Err(err).EmbedObject(c).Msg("error parsing status data")
				continue
			}
			s.setAuthorization(provider.ParseAuthorization(status.Permission))
			if status.GpsStatus {
				s.hub.Status(provider.StatusEnabled)
			} else {
				s.hub.Status(provider.StatusDisabled)
			}

		case GPS_ERROR:
			s.hub.Status(provider.StatusError)

		case GPS_INIT:
			s.hub.Status(provider.StatusInit)

		default:
			s.log.Debug().EmbedObject(c).Msgf("ignoring message type %x", msg.Protocol)
		}
	}
}
