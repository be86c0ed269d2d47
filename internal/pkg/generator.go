package pkg

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Room codes are 6 characters from a 36-symbol alphabet, a space of 36^6
// (~2.2 billion) codes. Collisions are handled by regenerating on create.
const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	RoomCodeLength   = 6
)

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// GenerateRoomCode returns a fresh 6-character room code.
func GenerateRoomCode() string {
	var builder strings.Builder
	builder.Grow(RoomCodeLength)

	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := 0; i < RoomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		builder.WriteByte(roomCodeAlphabet[n.Int64()])
	}

	return builder.String()
}

// NormalizeRoomCode uppercases and trims a client-supplied code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidRoomCode reports whether a normalized code matches the 6-character
// alphanumeric format. Checked before any store access.
func IsValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

// GenerateClientID returns a fresh opaque client identity token. It is a
// stable key into a room's player map, never an authentication credential.
func GenerateClientID() string {
	return uuid.NewString()
}
