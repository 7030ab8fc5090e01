package database

import (
	"time"

	"github.com/kozaktomas/cornea/internal/names"
)

// Person is a known identity. ID is the tag the recognizer predicts.
type Person struct {
	ID        int       `json:"tag"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Name returns the display name.
func (p Person) Name() string {
	return names.Full(p.FirstName, p.LastName)
}

// Face is one stored training image labeled with a person tag.
type Face struct {
	ID        int64
	Tag       int
	Data      []byte
	CreatedAt time.Time
}

// FaceCount is the number of stored faces per tag.
type FaceCount struct {
	Tag   int `json:"tag"`
	Count int `json:"count"`
}
