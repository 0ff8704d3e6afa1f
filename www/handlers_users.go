package www

import "net/http"

func (h *Handlers) createUser(r *http.Request) (any, error) {
	var body createUserBody
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	return h.users.Create(r.Context(), body.input())
}

func (h *Handlers) listUsers(r *http.Request) (any, error) {
	return h.users.FindAll(r.Context())
}

func (h *Handlers) getUser(r *http.Request) (any, error) {
	id, err := parseID(r)
	if err != nil {
		return nil, err
	}
	return h.users.FindOne(r.Context(), id)
}

func (h *Handlers) updateUser(r *http.Request) (any, error) {
	id, err := parseID(r)
	if err != nil {
		return nil, err
	}
	var body userPatchBody
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	return h.users.Update(r.Context(), id, body.patch())
}

func (h *Handlers) removeUser(r *http.Request) (any, error) {
	id, err := parseID(r)
	if err != nil {
		return nil, err
	}
	return nil, h.users.Remove(r.Context(), id)
}
