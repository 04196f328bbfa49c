package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Actor is an authenticated admin console operator.
type Actor struct {
	ID   snowflake.ID
	Role string
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object, action string) error
}
