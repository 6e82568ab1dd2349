package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookhub-api/internal/models"
)

func seedProduct(t *testing.T, repo *CatalogRepository, slug string, price int64, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: slug, Slug: slug, PriceCents: price, Stock: stock, IsActive: true}
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}

func TestCheckoutSQLite(t *testing.T) {
	db := newSQLite(t)
	seedUser(t, db, "u1")
	catalog := NewCatalogRepository(db)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	book := seedProduct(t, catalog, "dune", 1500, 3)
	atlas := seedProduct(t, catalog, "atlas", 4000, 1)

	require.NoError(t, repo.AddCartItem(ctx, &models.CartItem{UserID: "u1", ProductID: book.ID, Quantity: 1, PriceCents: 1500}))
	require.NoError(t, repo.AddCartItem(ctx, &models.CartItem{UserID: "u1", ProductID: book.ID, Quantity: 1, PriceCents: 1500}))
	require.NoError(t, repo.AddCartItem(ctx, &models.CartItem{UserID: "u1", ProductID: atlas.ID, Quantity: 1, PriceCents: 4000}))

	items, err := repo.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	order, err := repo.Checkout(ctx, "u1", "1 Library Way")
	require.NoError(t, err)
	assert.Equal(t, int64(2*1500+4000), order.TotalCents)
	assert.Len(t, order.Items, 2)

	items, err = repo.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	stored, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, models.OrderStatusPending, stored.Status)

	restocked, err := catalog.FindProductByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, restocked.Stock)

	_, err = repo.Checkout(ctx, "u1", "")
	assert.ErrorIs(t, err, ErrCartEmpty)
}

func TestCheckoutRollsBackOnShortStock(t *testing.T) {
	db := newSQLite(t)
	seedUser(t, db, "u1")
	catalog := NewCatalogRepository(db)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	plenty := seedProduct(t, catalog, "plenty", 100, 10)
	scarce := seedProduct(t, catalog, "scarce", 100, 1)
	require.NoError(t, repo.AddCartItem(ctx, &models.CartItem{UserID: "u1", ProductID: plenty.ID, Quantity: 2, PriceCents: 100}))
	require.NoError(t, repo.AddCartItem(ctx, &models.CartItem{UserID: "u1", ProductID: scarce.ID, Quantity: 5, PriceCents: 100}))

	_, err := repo.Checkout(ctx, "u1", "")
	assert.ErrorIs(t, err, ErrOutOfStock)

	items, err := repo.ListCartItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 2, "cart survives a failed checkout")

	orders, total, err := repo.ListOrders(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Zero(t, total)

	p, err := catalog.FindProductByID(ctx, plenty.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock, "stock reservation is rolled back")
}

func TestReviewsSQLite(t *testing.T) {
	db := newSQLite(t)
	seedUser(t, db, "u1")
	catalog := NewCatalogRepository(db)
	repo := NewReviewRepository(db)
	ctx := context.Background()

	book := seedProduct(t, catalog, "emma", 900, 1)
	review := &models.Review{ProductID: book.ID, UserID: "u1", Rating: 4, Comment: "good"}
	require.NoError(t, repo.Create(ctx, review))
	require.Error(t, repo.Create(ctx, &models.Review{ProductID: book.ID, UserID: "u1", Rating: 1}))

	review.Rating = 5
	require.NoError(t, repo.Update(ctx, review))
	list, err := repo.ListByProduct(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Rating)

	require.NoError(t, repo.Delete(ctx, review.ID))
	_, err = repo.FindByID(ctx, review.ID)
	assert.Error(t, err)
}
