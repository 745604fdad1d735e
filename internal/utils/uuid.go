// Package utils provides small general-purpose helpers shared across the
// agent: id generation and context plumbing.
package utils

import "github.com/google/uuid"

// UUIDGenerator produces ids for mutations and conflict records. V7 ids are
// time-ordered, which keeps freshly enqueued rows roughly clustered in the
// log table.
type UUIDGenerator struct {
}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) Generate() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return v7.String()
}
