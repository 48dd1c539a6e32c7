package droid

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Frame layout: 0x99 | protocol | payload length (LE uint16) | payload | '\n'

const (
	START byte = 0x99

	LOGIN           byte = 0x01
	LOCATION_UPDATE byte = 0x02
	GPS_ERROR       byte = 0x04
	GPS_INIT        byte = 0x05
	STATUS          byte = 0x06
)

const maxPayload = 0xffff

var errBadFrame = errors.New("Bad frame")

type FrameMessage struct {
	Length   int
	Protocol byte
	Payload  []byte
	Buffer   []byte
}

type LoginMessage struct {
	SnType     string `json:"sn_type"`
	Serial     string `json:"serial"`
	DeviceType string `json:"device_type"`
}

type LocationMessage struct {
	GpsTime   time.Time `json:"gps_time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float32   `json:"accuracy,omitempty"`
	Speed     float32   `json:"speed,omitempty"`
}

type StatusMessage struct {
	GpsStatus  bool   `json:"gps_status"`
	Permission string `json:"permission"`
}

func ReadMessage(r io.Reader, msg *FrameMessage) error {
	var length int

	if len(msg.Buffer) < 5 {
		return fmt.Errorf("buffer too small")
	}

	_, err := io.ReadFull(r, msg.Buffer[:4])
	if err != nil {
		return err
	}
	if msg.Buffer[0] != START {
		return errBadFrame
	}
	length = int(binary.LittleEndian.Uint16(msg.Buffer[2:4]))
	msg.Protocol = msg.Buffer[1]
	msg.Length = length + 5

	if len(msg.Buffer) < msg.Length {
		return fmt.Errorf("buffer too small")
	}

	_, err = io.ReadFull(r, msg.Buffer[4:msg.Length])
	if err != nil {
		return err
	}
	if msg.Buffer[msg.Length-1] != '\n' {
		return errBadFrame
	}
	msg.Payload = msg.Buffer[4 : msg.Length-1]
	return nil
}

func EncodeFrame(protocol byte, payload []byte) ([]byte, error) {
	if len(payload) > maxPayload {
		return nil, fmt.Errorf("payload too large: %d", len(payload))
	}
	buf := make([]byte, len(payload)+5)
	buf[0] = START
	buf[1] = protocol
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[4:], payload)
	buf[len(buf)-1] = '\n'
	return buf, nil
}

// WriteMessage marshals v as JSON and writes it as a single frame.
func WriteMessage(w io.Writer, protocol byte, v interface{}) error {
	var payload []byte
	if v != nil {
		var err error
		payload, err = json.Marshal(v)
		if err != nil {
			return err
		}
	}
	frame, err := EncodeFrame(protocol, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
