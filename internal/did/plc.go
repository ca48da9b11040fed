package did

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
)

// plcEncoding is lowercase base32 without padding, the alphabet did:plc uses.
var plcEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// plcIDLength is the number of characters in a did:plc method-specific id.
const plcIDLength = 24

// GeneratePLC allocates a fresh did:plc identifier with 24 base32 characters
// drawn from 15 random bytes.
func GeneratePLC() (string, error) {
	buf := make([]byte, 15)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return "did:plc:" + plcEncoding.EncodeToString(buf)[:plcIDLength], nil
}
