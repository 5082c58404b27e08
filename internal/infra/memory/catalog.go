package memory

import (
	"context"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"

	"gorm.io/gorm"
)

type catalogRepo struct {
	s *Store
}

func (r *catalogRepo) CreateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.nextID("products")
	now := r.s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.s.products[p.ID] = p
	return p, nil
}

func (r *catalogRepo) FindProduct(ctx context.Context, id int64) (model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.productView(id, nil)
	if !ok || p.DeletedAt.Valid {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r *catalogRepo) UpdateProduct(ctx context.Context, p model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.products[p.ID]
	if !ok || cur.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	now := r.s.now()
	apply := func(row model.Product) model.Product {
		row.Name = p.Name
		row.Price = p.Price
		row.UpdatedAt = now
		return row
	}
	r.s.products[p.ID] = apply(cur)
	r.s.patchShadow(productKey(p.ID), func(row any) any { return apply(row.(model.Product)) })
	return nil
}

func (r *catalogRepo) SoftDeleteProduct(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.products[id]
	if !ok || cur.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	deleted := gorm.DeletedAt{Time: r.s.now(), Valid: true}
	cur.DeletedAt = deleted
	r.s.products[id] = cur
	r.s.patchShadow(productKey(id), func(row any) any {
		p := row.(model.Product)
		p.DeletedAt = deleted
		return p
	})
	return nil
}

func (r *catalogRepo) EnsureCart(ctx context.Context, userID int64) (model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.carts {
		if c.UserID == userID {
			return c, nil
		}
	}
	now := r.s.now()
	c := model.Cart{ID: r.s.nextID("carts"), UserID: userID, CreatedAt: now, UpdatedAt: now}
	r.s.carts[c.ID] = c
	return c, nil
}

func (r *catalogRepo) AddCartItem(ctx context.Context, cartID, productID, quantity int64) (model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.carts[cartID]; !ok {
		return model.CartItem{}, repo.ErrNotFound
	}
	now := r.s.now()
	it := model.CartItem{
		ID:        r.s.nextID("cart_items"),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.cartItems[it.ID] = it
	return it, nil
}
