package www

import "net/http"

func (h *Handlers) createProduct(r *http.Request) (any, error) {
	var body createProductBody
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	return h.products.Create(r.Context(), body.input())
}

func (h *Handlers) listProducts(r *http.Request) (any, error) {
	return h.products.FindAll(r.Context())
}

func (h *Handlers) getProduct(r *http.Request) (any, error) {
	id, err := parseID(r)
	if err != nil {
		return nil, err
	}
	return h.products.FindOne(r.Context(), id)
}

func (h *Handlers) updateProduct(r *http.Request) (any, error) {
	id, err := parseID(r)
	if err != nil {
		return nil, err
	}
	var body productPatchBody
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	return h.products.Update(r.Context(), id, body.patch())
}

func (h *Handlers) updateProductStock(r *http.Request) (any, error) {
	id, err := parseID(r)
	if err != nil {
		return nil, err
	}
	var body stockBody
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	return h.products.UpdateStock(r.Context(), id, body.patch())
}

func (h *Handlers) removeProduct(r *http.Request) (any, error) {
	id, err := parseID(r)
	if err != nil {
		return nil, err
	}
	return nil, h.products.Remove(r.Context(), id)
}
