package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	recordFormatVersionCurrent = 1

	maxIdentityBytes = math.MaxUint8
	maxTokenBytes    = 64 << 10
)

// ErrCorrupt marks a stored blob that cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// Encode serializes r in the current format.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}
	if len(r.Identity) > maxIdentityBytes {
		return nil, errors.New("identity too long")
	}
	if len(r.Token) > maxTokenBytes {
		return nil, errors.New("token too long")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 1 + len(r.Identity) + 4 + len(r.Token) + 16)

	buf.WriteByte(recordFormatVersionCurrent)

	buf.WriteByte(byte(len(r.Identity)))
	buf.WriteString(r.Identity)

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(r.Token))); err != nil {
		return nil, err
	}
	buf.WriteString(r.Token)

	if err := binary.Write(&buf, binary.BigEndian, r.SavedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode]. Errors wrap [ErrCorrupt].
func Decode(data []byte) (*Record, error) {
	r, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return r, nil
}

func decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	r := &Record{}

	identityLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	identity := make([]byte, identityLen)
	if _, err := io.ReadFull(reader, identity); err != nil {
		return nil, err
	}
	r.Identity = string(identity)

	var tokenLen uint32
	if err := binary.Read(reader, binary.BigEndian, &tokenLen); err != nil {
		return nil, err
	}
	if tokenLen > maxTokenBytes || int(tokenLen) > reader.Len() {
		return nil, errors.New("token length out of range")
	}
	token := make([]byte, tokenLen)
	if _, err := io.ReadFull(reader, token); err != nil {
		return nil, err
	}
	r.Token = string(token)

	if err := binary.Read(reader, binary.BigEndian, &r.SavedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes")
	}

	return r, nil
}
