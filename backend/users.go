package backend

import (
	"context"
	"errors"
	"log"

	"relaygate/cache"
	"relaygate/protocol"
	"relaygate/store"
)

type users struct {
	db    *store.DB
	cache *cache.RedisStore
}

func userOut(u *store.User) protocol.User {
	return protocol.User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *users) create(ctx context.Context, in protocol.CreateUserInput) (any, error) {
	u := &store.User{Name: in.Name, Email: in.Email, IsActive: true}
	if err := h.db.CreateUser(u); err != nil {
		return nil, err
	}
	out := userOut(u)
	h.remember(ctx, out)
	audit(ctx, h.db, protocol.DomainUsers, out.ID, actionCreate, nil, out)
	return out, nil
}

func (h *users) findAll(ctx context.Context, _ protocol.Empty) (any, error) {
	version, err := h.cache.ListVersion(ctx, protocol.DomainUsers)
	cached := err == nil
	if err != nil {
		log.Printf("backend: cache version users: %v", err)
	}
	if cached {
		var list []protocol.User
		if ok, err := h.cache.GetList(ctx, protocol.DomainUsers, version, &list); err != nil {
			log.Printf("backend: cache get users: %v", err)
		} else if ok {
			return list, nil
		}
	}

	rows, err := h.db.ListUsers()
	if err != nil {
		return nil, err
	}
	out := make([]protocol.User, 0, len(rows))
	for _, u := range rows {
		out = append(out, userOut(u))
	}
	if cached {
		if err := h.cache.SetList(ctx, protocol.DomainUsers, version, out); err != nil {
			log.Printf("backend: cache set users: %v", err)
		}
	}
	return out, nil
}

func (h *users) findOne(ctx context.Context, id int64) (any, error) {
	var cached protocol.User
	if ok, err := h.cache.Get(ctx, protocol.DomainUsers, id, &cached); err != nil {
		log.Printf("backend: cache get user %d: %v", id, err)
	} else if ok {
		return cached, nil
	}

	u, err := h.load(id)
	if err != nil {
		return nil, err
	}
	out := userOut(u)
	if err := h.cache.Put(ctx, protocol.DomainUsers, id, out); err != nil {
		log.Printf("backend: cache put user %d: %v", id, err)
	}
	return out, nil
}

// update loads the row, applies the fields present in the patch, and saves.
func (h *users) update(ctx context.Context, req protocol.UpdateUserRequest) (any, error) {
	u, err := h.load(req.ID)
	if err != nil {
		return nil, err
	}
	before := userOut(u)
	if req.Patch.Name != nil {
		u.Name = *req.Patch.Name
	}
	if req.Patch.Email != nil {
		u.Email = *req.Patch.Email
	}
	if req.Patch.IsActive != nil {
		u.IsActive = *req.Patch.IsActive
	}
	if err := h.db.SaveUser(u); err != nil {
		return nil, h.missing(req.ID, err)
	}
	saved, err := h.load(req.ID)
	if err != nil {
		return nil, err
	}
	out := userOut(saved)
	h.remember(ctx, out)
	audit(ctx, h.db, protocol.DomainUsers, out.ID, actionUpdate, before, out)
	return out, nil
}

func (h *users) remove(ctx context.Context, id int64) (any, error) {
	removed, err := h.db.DeleteUser(id)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, &NotFoundError{Resource: "User", ID: id}
	}
	if err := h.cache.Invalidate(ctx, protocol.DomainUsers, id); err != nil {
		log.Printf("backend: cache invalidate user %d: %v", id, err)
	}
	audit(ctx, h.db, protocol.DomainUsers, id, actionRemove, nil, nil)
	return nil, nil
}

func (h *users) load(id int64) (*store.User, error) {
	u, err := h.db.GetUser(id)
	if err != nil {
		return nil, h.missing(id, err)
	}
	return u, nil
}

func (h *users) missing(id int64, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Resource: "User", ID: id}
	}
	return err
}

func (h *users) remember(ctx context.Context, u protocol.User) {
	if err := h.cache.Set(ctx, protocol.DomainUsers, u.ID, u); err != nil {
		log.Printf("backend: cache set user %d: %v", u.ID, err)
	}
}
