package backend

import (
	"context"
	"errors"
	"log"

	"relaygate/cache"
	"relaygate/protocol"
	"relaygate/store"
)

type products struct {
	db    *store.DB
	cache *cache.RedisStore
}

func productOut(p *store.Product) protocol.Product {
	return protocol.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (h *products) create(ctx context.Context, in protocol.CreateProductInput) (any, error) {
	p := &store.Product{Name: in.Name, Description: in.Description, Price: in.Price, Stock: in.Stock}
	if err := h.db.CreateProduct(p); err != nil {
		return nil, err
	}
	out := productOut(p)
	h.remember(ctx, out)
	audit(ctx, h.db, protocol.DomainProducts, out.ID, actionCreate, nil, out)
	return out, nil
}

func (h *products) findAll(ctx context.Context, _ protocol.Empty) (any, error) {
	version, err := h.cache.ListVersion(ctx, protocol.DomainProducts)
	cached := err == nil
	if err != nil {
		log.Printf("backend: cache version products: %v", err)
	}
	if cached {
		var list []protocol.Product
		if ok, err := h.cache.GetList(ctx, protocol.DomainProducts, version, &list); err != nil {
			log.Printf("backend: cache get products: %v", err)
		} else if ok {
			return list, nil
		}
	}

	rows, err := h.db.ListProducts()
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Product, 0, len(rows))
	for _, p := range rows {
		out = append(out, productOut(p))
	}
	if cached {
		if err := h.cache.SetList(ctx, protocol.DomainProducts, version, out); err != nil {
			log.Printf("backend: cache set products: %v", err)
		}
	}
	return out, nil
}

func (h *products) findOne(ctx context.Context, id int64) (any, error) {
	var cached protocol.Product
	if ok, err := h.cache.Get(ctx, protocol.DomainProducts, id, &cached); err != nil {
		log.Printf("backend: cache get product %d: %v", id, err)
	} else if ok {
		return cached, nil
	}

	p, err := h.load(id)
	if err != nil {
		return nil, err
	}
	out := productOut(p)
	if err := h.cache.Put(ctx, protocol.DomainProducts, id, out); err != nil {
		log.Printf("backend: cache put product %d: %v", id, err)
	}
	return out, nil
}

func (h *products) update(ctx context.Context, req protocol.UpdateProductRequest) (any, error) {
	return h.modify(ctx, req.ID, func(p *store.Product) {
		if req.Patch.Name != nil {
			p.Name = *req.Patch.Name
		}
		if req.Patch.Description != nil {
			p.Description = *req.Patch.Description
		}
		if req.Patch.Price != nil {
			p.Price = *req.Patch.Price
		}
		if req.Patch.Stock != nil {
			p.Stock = *req.Patch.Stock
		}
	})
}

func (h *products) updateStock(ctx context.Context, req protocol.UpdateStockRequest) (any, error) {
	return h.modify(ctx, req.ID, func(p *store.Product) {
		p.Stock = req.Patch.Stock
	})
}

// modify loads the row, applies apply, saves, and returns the stored result.
func (h *products) modify(ctx context.Context, id int64, apply func(*store.Product)) (any, error) {
	p, err := h.load(id)
	if err != nil {
		return nil, err
	}
	before := productOut(p)
	apply(p)
	if err := h.db.SaveProduct(p); err != nil {
		return nil, h.missing(id, err)
	}
	saved, err := h.load(id)
	if err != nil {
		return nil, err
	}
	out := productOut(saved)
	h.remember(ctx, out)
	audit(ctx, h.db, protocol.DomainProducts, id, actionUpdate, before, out)
	return out, nil
}

func (h *products) remove(ctx context.Context, id int64) (any, error) {
	removed, err := h.db.DeleteProduct(id)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, &NotFoundError{Resource: "Product", ID: id}
	}
	if err := h.cache.Invalidate(ctx, protocol.DomainProducts, id); err != nil {
		log.Printf("backend: cache invalidate product %d: %v", id, err)
	}
	audit(ctx, h.db, protocol.DomainProducts, id, actionRemove, nil, nil)
	return nil, nil
}

func (h *products) load(id int64) (*store.Product, error) {
	p, err := h.db.GetProduct(id)
	if err != nil {
		return nil, h.missing(id, err)
	}
	return p, nil
}

func (h *products) missing(id int64, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Resource: "Product", ID: id}
	}
	return err
}

func (h *products) remember(ctx context.Context, p protocol.Product) {
	if err := h.cache.Set(ctx, protocol.DomainProducts, p.ID, p); err != nil {
		log.Printf("backend: cache set product %d: %v", p.ID, err)
	}
}
