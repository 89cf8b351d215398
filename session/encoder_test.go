package session

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testSession() *Session {
	return &Session{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User: &User{
			ID:           uuid.MustParse("4b7c0e0e-7d1f-4a7e-9d55-2f8f3f1c6a11"),
			Email:        "instructor@school.test",
			Role:         "authenticated",
			UserMetadata: map[string]any{"full_name": "Dana Reyes"},
			CreatedAt:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func encodeLegacyV1Session(t *testing.T, s *Session) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersionV1)
	for _, v := range []string{s.AccessToken, s.RefreshToken} {
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(v))); err != nil {
			t.Fatalf("write length: %v", err)
		}
		buf.WriteString(v)
	}
	buf.WriteByte(byte(len(s.TokenType)))
	buf.WriteString(s.TokenType)
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		t.Fatalf("write expires_at: %v", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, int32(s.ExpiresIn)); err != nil {
		t.Fatalf("write expires_in: %v", err)
	}
	id := s.UserID()
	buf.Write(id[:])
	return buf.Bytes()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := testSession()

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if out.AccessToken != in.AccessToken || out.RefreshToken != in.RefreshToken || out.TokenType != in.TokenType {
		t.Fatalf("token mismatch: %+v", out)
	}
	if out.ExpiresAt != in.ExpiresAt || out.ExpiresIn != in.ExpiresIn {
		t.Fatalf("expiry mismatch: got %d/%d want %d/%d", out.ExpiresAt, out.ExpiresIn, in.ExpiresAt, in.ExpiresIn)
	}
	if out.UserID() != in.UserID() {
		t.Fatalf("user id mismatch: got %s want %s", out.UserID(), in.UserID())
	}
	if out.User.Email != in.User.Email || !out.User.CreatedAt.Equal(in.User.CreatedAt) {
		t.Fatalf("user record mismatch: %+v", out.User)
	}
	if got := out.User.UserMetadata["full_name"]; got != "Dana Reyes" {
		t.Fatalf("expected user metadata to survive, got %v", got)
	}
}

func TestEncodeSessionWithoutUser(t *testing.T) {
	in := testSession()
	in.User = nil

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User != nil {
		t.Fatalf("expected nil user, got %+v", out.User)
	}
}

func TestDecodeMigratesV1Blob(t *testing.T) {
	legacy := testSession()

	out, err := Decode(encodeLegacyV1Session(t, legacy))
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	if out.AccessToken != legacy.AccessToken || out.ExpiresAt != legacy.ExpiresAt {
		t.Fatalf("v1 fields not preserved: %+v", out)
	}
	if out.User == nil || out.User.ID != legacy.User.ID {
		t.Fatalf("expected user id from v1 blob, got %+v", out.User)
	}
	if out.User.Email != "" {
		t.Fatalf("v1 blob carries no user record, got email %q", out.User.Email)
	}

	reencoded, err := Encode(out)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if reencoded[0] != sessionFormatVersionCurrent {
		t.Fatalf("expected re-encode to current version, got %d", reencoded[0])
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte{99})
	if err == nil || !strings.Contains(err.Error(), "invalid session version") {
		t.Fatalf("expected invalid version error, got %v", err)
	}
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	data, err := Encode(testSession())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, n := range []int{1, 5, 20, len(data) - 1} {
		if _, err := Decode(data[:n]); err == nil {
			t.Fatalf("expected error for blob truncated at %d", n)
		}
	}
}

func TestEncodeRejectsNilSession(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Fatal("expected error for nil session")
	}
}

func TestExpiresWithin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &Session{ExpiresAt: now.Add(60 * time.Second).Unix()}

	if !s.ExpiresWithin(now, 90*time.Second) {
		t.Fatal("expected session to expire within margin")
	}
	if s.ExpiresWithin(now, 30*time.Second) {
		t.Fatal("expected session outside margin")
	}
	if (&Session{}).ExpiresWithin(now, time.Hour) {
		t.Fatal("unknown expiry must not report expiry")
	}
}

func TestCloneIsDeep(t *testing.T) {
	in := testSession()
	out := in.Clone()
	out.User.UserMetadata["full_name"] = "changed"
	out.AccessToken = "other"

	if in.User.UserMetadata["full_name"] != "Dana Reyes" || in.AccessToken != "access-token" {
		t.Fatal("clone shares state with original")
	}
}
