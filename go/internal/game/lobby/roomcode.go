package lobby

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	RoomCodeLength   = 6
	maxRoomCodeTries = 10
)

// GenerateRoomCode returns a random 6 character code over [A-Z0-9]
func GenerateRoomCode() (string, error) {
	var b strings.Builder
	b.Grow(RoomCodeLength)
	limit := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := 0; i < RoomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		b.WriteByte(roomCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeRoomCode upper-cases and trims user input, then checks the format
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != RoomCodeLength {
		return "", ErrInvalidRoomCode
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(roomCodeAlphabet, code[i]) < 0 {
			return "", ErrInvalidRoomCode
		}
	}
	return code, nil
}
