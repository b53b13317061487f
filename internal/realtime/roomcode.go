package realtime

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

const (
	maxRoomCodeLen = 64
	roomCodeLen    = 6
	// no 0/O or 1/I so codes survive being read aloud
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var roomCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateRoomCode checks a code as given; it is never trimmed or case folded.
func ValidateRoomCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRoom)
	}
	if len(code) > maxRoomCodeLen || !roomCodePattern.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, code)
	}
	return nil
}

// NewRoomCode returns a random six character code such as "K7QX2M".
func NewRoomCode() (string, error) {
	buf := make([]byte, roomCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}
