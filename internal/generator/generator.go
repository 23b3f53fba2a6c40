// Package generator produces identifiers for blobs, soundcrons and
// interaction flows.
package generator

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator yields a new value on every call to Next.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator produces random UUID strings.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuid: %w", err)
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// Sequence produces prefix-1, prefix-2, and so on. It is safe for
// concurrent use and gives tests predictable identifiers.
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

func (s *Sequence) Next() (string, error) {
	return fmt.Sprintf("%s-%d", s.Prefix, s.n.Add(1)), nil
}

var _ Generator[string] = &Sequence{}
