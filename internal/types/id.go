// README: Shared identifier and geo value objects used across modules.
package types

import "github.com/google/uuid"

type ID string

// NewID returns a random UUIDv4 identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// Place is a human-readable location plus its coordinate.
type Place struct {
	Text  string `json:"text"`
	Point Point  `json:"point"`
}
