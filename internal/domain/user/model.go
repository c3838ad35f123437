package user

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/codepulse/codepulse/internal/domain/accounting"
)

// User is the identity a heartbeat stream and its summaries belong to.
type User struct {
	ID                      string    `json:"id"`
	APIKeyHash              string    `json:"-"`
	KeystrokeTimeoutMinutes int       `json:"keystroke_timeout_minutes"`
	CreatedAt               time.Time `json:"created_at"`
}

// IdleGap returns the user's idle threshold, falling back to the system
// default when unset.
func (u *User) IdleGap() time.Duration {
	if u == nil || u.KeystrokeTimeoutMinutes <= 0 {
		return accounting.DefaultIdleGap
	}
	return time.Duration(u.KeystrokeTimeoutMinutes) * time.Minute
}

// HashAPIKey derives the stored lookup hash for an API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
