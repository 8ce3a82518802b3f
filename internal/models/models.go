package models

import "time"

// SessionStatus tracks where a presentation session sits in its lifecycle.
// Sessions move strictly forward: pending, then active, then inactive.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusInactive SessionStatus = "inactive"
)

// Valid reports whether the status is one of the three known states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusActive, SessionStatusInactive:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is a presentation session. StartTime is nil until the owner starts
// the session and is retained after the session ends.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	OwnerID   string        `json:"ownerId"`
	StartTime *time.Time    `json:"startTime,omitempty"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// SlideTypeImage is the only slide type currently produced; every rasterized
// page and every direct image upload is stored as an image slide.
const SlideTypeImage = "image"

// Slide is an append-only child of a session. IDs ascend in insertion order,
// so listing slides ordered by ID reproduces page order.
type Slide struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Type      string    `json:"type"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
}
