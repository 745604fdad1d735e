// Package adapter contains the client-side transport for talking to the
// authoritative sync server: the [ServerAdapter] interface consumed by the
// sync engine and its HTTP implementation.
package adapter

import (
	"context"

	"github.com/mkarpov/go-list-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/server_adapter_mock.go -package=mock

// ServerAdapter is the transport the sync engine submits mutations through.
//
// Submit returns a nil error for both outcomes of a well-formed submission:
// applied (Applied true) and contested (Conflict set). Errors are reserved
// for the transport taxonomy: [ErrTransientNetwork], [ErrAuthExpired],
// [ErrPermissionDenied], [ErrValidation].
//
// The server treats Mutation.ID idempotently, so resubmitting after a lost
// response is safe.
type ServerAdapter interface {
	// Session obtains a fresh bearer token for the client identity.
	Session(ctx context.Context, clientID string) error

	// Submit sends one mutation and returns the server's verdict.
	Submit(ctx context.Context, req models.SubmitRequest) (models.SubmitResponse, error)

	// Fetch returns the authoritative state of the requested items
	// (all items of the list when req.ItemIDs is empty).
	Fetch(ctx context.Context, req models.FetchRequest) ([]models.Item, error)
}
