package core

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

type ID string

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

func NewID() (ID, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate new ID: %w", err)
	}
	return ID(id.String()), nil
}

func MustNewID() ID {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}
