// Package seed はローカル確認用の初期データ。
package seed

import (
	"context"
	"errors"
	"log/slog"

	"ordercore/internal/domain/model"
	repo "ordercore/internal/repository"

	"github.com/shopspring/decimal"
)

type demoLine struct {
	product  int
	quantity int64
}

var demoProducts = []model.Product{
	{Name: "Drip Coffee Set", Price: decimal.RequireFromString("1280.00"), Stock: 20},
	{Name: "Ceramic Mug", Price: decimal.RequireFromString("950.00"), Stock: 5},
	{Name: "Paper Filter 100p", Price: decimal.RequireFromString("330.00"), Stock: 2},
}

// ユーザーID -> カート明細（demoProducts の添字）
var demoCarts = map[int64][]demoLine{
	1: {{product: 0, quantity: 1}, {product: 1, quantity: 2}},
	2: {{product: 2, quantity: 2}},
}

// 商品が既にあれば何もしない
func Demo(ctx context.Context, catalog repo.CatalogRepository, log *slog.Logger) error {
	if _, err := catalog.FindProduct(ctx, 1); err == nil {
		log.Info("demo seed skipped, catalog not empty")
		return nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	ids := make([]int64, 0, len(demoProducts))
	for _, p := range demoProducts {
		created, err := catalog.CreateProduct(ctx, p)
		if err != nil {
			return err
		}
		ids = append(ids, created.ID)
	}

	for userID, lines := range demoCarts {
		cart, err := catalog.EnsureCart(ctx, userID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := catalog.AddCartItem(ctx, cart.ID, ids[l.product], l.quantity); err != nil {
				return err
			}
		}
	}

	log.Info("demo seed loaded", "products", len(ids), "carts", len(demoCarts))
	return nil
}
