package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// headerSize is the size of the frame header (payload length)
	headerSize = 4

	// DefaultMaxFrameSize is used if the configuration does not set a limit
	DefaultMaxFrameSize = 16 * 1024 * 1024 // 16 MB
)

// ErrFrameTooLarge is returned for frames exceeding the configured limit
var ErrFrameTooLarge = errors.New("transport: frame too large")

// writeFrame writes a frame to the connection with the format:
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, data []byte) error {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from r. The header is read into header (which must
// hold at least headerSize bytes), the payload is always read into a fresh
// slice so that it can be handed to the caller.
func readFrame(r io.Reader, header []byte, maxSize int) ([]byte, error) {
	// Read header
	if _, err := io.ReadFull(r, header[:headerSize]); err != nil {
		return nil, err
	}

	contentLength := binary.BigEndian.Uint32(header[:headerSize])
	if int64(contentLength) > int64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, contentLength, maxSize)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		return []byte{}, nil
	}

	// Read data
	data := make([]byte, contentLength)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
