package seed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"ordercore/internal/infra/memory"
	repo "ordercore/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemo_LoadsOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New(time.Second)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, Demo(ctx, s.Catalog(), log))
	require.NoError(t, Demo(ctx, s.Catalog(), log))

	p, err := s.Catalog().FindProduct(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Ceramic Mug", p.Name)

	_, err = s.Catalog().FindProduct(ctx, 4)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	err = s.WithinTx(ctx, func(r repo.TxRepos) error {
		c, err := r.Carts().LockByUserID(ctx, 1)
		if err != nil {
			return err
		}
		items, err := r.Carts().ListItems(ctx, c.ID)
		assert.Len(t, items, 2)
		return err
	})
	require.NoError(t, err)
}
