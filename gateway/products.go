package gateway

import (
	"context"

	"relaygate/protocol"
	"relaygate/transport"
)

type Product = protocol.Product

const resourceProduct = "Product"

// ProductService issues product commands to the products backend.
type ProductService struct {
	t transport.Transport
}

func NewProductService(t transport.Transport) *ProductService {
	return &ProductService{t: t}
}

func (s *ProductService) Create(ctx context.Context, in protocol.CreateProductInput) (*Product, error) {
	var p Product
	if err := dispatch(ctx, s.t, protocol.CreateProduct, resourceProduct, 0, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProductService) FindAll(ctx context.Context) ([]Product, error) {
	products := []Product{}
	if err := dispatch(ctx, s.t, protocol.FindAllProducts, resourceProduct, 0, protocol.Empty{}, &products); err != nil {
		return nil, err
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

func (s *ProductService) FindOne(ctx context.Context, id int64) (*Product, error) {
	var p Product
	if err := dispatch(ctx, s.t, protocol.FindOneProduct, resourceProduct, id, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProductService) Update(ctx context.Context, id int64, patch protocol.ProductPatch) (*Product, error) {
	var p Product
	req := protocol.UpdateProductRequest{ID: id, Patch: patch}
	if err := dispatch(ctx, s.t, protocol.UpdateProduct, resourceProduct, id, req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateStock sets the stock level of one product.
func (s *ProductService) UpdateStock(ctx context.Context, id int64, patch protocol.StockPatch) (*Product, error) {
	var p Product
	req := protocol.UpdateStockRequest{ID: id, Patch: patch}
	if err := dispatch(ctx, s.t, protocol.UpdateProductStock, resourceProduct, id, req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProductService) Remove(ctx context.Context, id int64) error {
	return dispatch(ctx, s.t, protocol.RemoveProduct, resourceProduct, id, id, nil)
}
