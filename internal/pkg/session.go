package pkg

import "github.com/google/uuid"

// GenerateNewSessionID - returns a random session identifier.
func GenerateNewSessionID() string {
	return uuid.NewString()
}

// IsValidSessionID - reports whether id could have come from GenerateNewSessionID.
func IsValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
