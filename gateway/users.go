// Package gateway holds the operation services the HTTP surface calls. Each
// service issues exactly one backend command per call and translates the
// reply into a value, a *NotFoundError, or an *InfrastructureError.
package gateway

import (
	"context"

	"relaygate/protocol"
	"relaygate/transport"
)

type User = protocol.User

const resourceUser = "User"

// UserService issues user commands to the users backend.
type UserService struct {
	t transport.Transport
}

func NewUserService(t transport.Transport) *UserService {
	return &UserService{t: t}
}

func (s *UserService) Create(ctx context.Context, in protocol.CreateUserInput) (*User, error) {
	var u User
	if err := dispatch(ctx, s.t, protocol.CreateUser, resourceUser, 0, in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindAll returns every user. An absent reply is an empty list.
func (s *UserService) FindAll(ctx context.Context) ([]User, error) {
	users := []User{}
	if err := dispatch(ctx, s.t, protocol.FindAllUsers, resourceUser, 0, protocol.Empty{}, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

func (s *UserService) FindOne(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := dispatch(ctx, s.t, protocol.FindOneUser, resourceUser, id, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserService) Update(ctx context.Context, id int64, patch protocol.UserPatch) (*User, error) {
	var u User
	req := protocol.UpdateUserRequest{ID: id, Patch: patch}
	if err := dispatch(ctx, s.t, protocol.UpdateUser, resourceUser, id, req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Remove deletes a user. Removing a user that does not exist succeeds.
func (s *UserService) Remove(ctx context.Context, id int64) error {
	return dispatch(ctx, s.t, protocol.RemoveUser, resourceUser, id, id, nil)
}
