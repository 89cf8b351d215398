package session

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"

	"github.com/google/uuid"
)

const (
	sessionFormatVersionCurrent = 2
	sessionFormatVersionV1      = 1
)

// Encode serializes a session into the current persisted format.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}

	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if err := writeString16(&buf, s.AccessToken, "access token too long"); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, s.RefreshToken, "refresh token too long"); err != nil {
		return nil, err
	}

	if len(s.TokenType) > 255 {
		return nil, errors.New("token type too long")
	}
	buf.WriteByte(byte(len(s.TokenType)))
	buf.WriteString(s.TokenType)

	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	if s.ExpiresIn < 0 || s.ExpiresIn > math.MaxInt32 {
		return nil, errors.New("expires_in out of range")
	}
	if err := binary.Write(&buf, binary.BigEndian, int32(s.ExpiresIn)); err != nil {
		return nil, err
	}

	id := s.UserID()
	buf.Write(id[:])

	var userJSON []byte
	if s.User != nil {
		data, err := json.Marshal(s.User)
		if err != nil {
			return nil, err
		}
		userJSON = data
	}
	if len(userJSON) > math.MaxUint32 {
		return nil, errors.New("user record too large")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(userJSON))); err != nil {
		return nil, err
	}
	buf.Write(userJSON)

	return buf.Bytes(), nil
}

// Decode parses a persisted session blob. Older versions are migrated forward:
// a v1 blob yields a user carrying only its ID.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent && version != sessionFormatVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	if s.AccessToken, err = readString16(reader); err != nil {
		return nil, err
	}
	if s.RefreshToken, err = readString16(reader); err != nil {
		return nil, err
	}

	typeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	tokenType := make([]byte, typeLen)
	if _, err := io.ReadFull(reader, tokenType); err != nil {
		return nil, err
	}
	s.TokenType = string(tokenType)

	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	var expiresIn int32
	if err := binary.Read(reader, binary.BigEndian, &expiresIn); err != nil {
		return nil, err
	}
	s.ExpiresIn = int(expiresIn)

	var id uuid.UUID
	if _, err := io.ReadFull(reader, id[:]); err != nil {
		return nil, err
	}

	if version == sessionFormatVersionCurrent {
		var userLen uint32
		if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
			return nil, err
		}
		if int64(userLen) > int64(reader.Len()) {
			return nil, io.ErrUnexpectedEOF
		}
		if userLen > 0 {
			userJSON := make([]byte, userLen)
			if _, err := io.ReadFull(reader, userJSON); err != nil {
				return nil, err
			}
			var u User
			if err := json.Unmarshal(userJSON, &u); err != nil {
				return nil, err
			}
			u.ID = id
			s.User = &u
		}
	}

	if s.User == nil && id != uuid.Nil {
		s.User = &User{ID: id}
	}

	return s, nil
}

func writeString16(buf *bytes.Buffer, v, tooLong string) error {
	if len(v) > math.MaxUint16 {
		return errors.New(tooLong)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", err
	}
	return string(out), nil
}
