package repository

import (
	"context"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CatalogGormRepository struct {
	db *gorm.DB
}

// DI
func NewCatalogGormRepository(db *gorm.DB) *CatalogGormRepository {
	return &CatalogGormRepository{db: db}
}

// 商品の作成
func (r *CatalogGormRepository) CreateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, translateError(err)
	}
	return p, nil
}

// IDで商品を取得
func (r *CatalogGormRepository) FindProduct(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return model.Product{}, translateError(err)
	}
	return p, nil
}

// 商品の更新
func (r *CatalogGormRepository) UpdateProduct(ctx context.Context, p model.Product) error {
	res := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"name":  p.Name,
		"price": p.Price,
	})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 商品削除
func (r *CatalogGormRepository) SoftDeleteProduct(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CatalogGormRepository) EnsureCart(ctx context.Context, userID int64) (model.Cart, error) {
	cart := model.Cart{UserID: userID}

	//同時に作られても user_id の一意制約で1つに収まる
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&cart).Error; err != nil {
		return model.Cart{}, translateError(err)
	}

	var found model.Cart
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&found).Error; err != nil {
		return model.Cart{}, translateError(err)
	}
	return found, nil
}

func (r *CatalogGormRepository) AddCartItem(ctx context.Context, cartID, productID, quantity int64) (model.CartItem, error) {
	item := model.CartItem{CartID: cartID, ProductID: productID, Quantity: quantity}
	if err := r.db.WithContext(ctx).Create(&item).Error; err != nil {
		return model.CartItem{}, translateError(err)
	}
	return item, nil
}
