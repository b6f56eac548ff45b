package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Stream framing used on TCP sessions: a 2 byte big-endian payload length
// followed by the payload bytes, which are passed through untouched.
const (
	FrameHeaderLen = 2
	MaxFrameLen    = 1<<16 - 1
)

var ErrEmptyFrame = errors.New("empty frame")

func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) > MaxFrameLen {
		return fmt.Errorf("frame of %d bytes: %w", len(payload), ErrFieldTooLong)
	}
	buf := make([]byte, FrameHeaderLen+len(payload))
	binary.BigEndian.PutUint16(buf[0:FrameHeaderLen], uint16(len(payload)))
	copy(buf[FrameHeaderLen:], payload)
	_, err := w.Write(buf)
	return err
}

func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(header[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
