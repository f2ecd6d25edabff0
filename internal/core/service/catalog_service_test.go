package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/shophub/internal/adapter/storage/memstore"
	"github.com/rl1809/shophub/internal/core/domain"
)

type mockImageStore struct {
	keys []string
	body string
	err  error
}

func (m *mockImageStore) PutImage(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.keys = append(m.keys, key)
	m.body = string(b)
	return "https://cdn.example.com/" + key, nil
}

func validInput() domain.ProductInput {
	return domain.ProductInput{
		Name:        "Mechanical Keyboard",
		Description: "Hot-swappable switches with RGB backlight",
		Price:       decimal.RequireFromString("89.90"),
		Stock:       15,
		ImageURL:    "https://images.example.com/keyboard.png",
	}
}

func TestCatalog_CreateAndList(t *testing.T) {
	store := memstore.New()
	svc := NewCatalogService(store, nil)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, alice, validInput())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	p, err := svc.CreateProduct(ctx, admin, validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "89.9", p.Price.String())

	list, err := svc.ListProducts(ctx, "keyboard")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	list, err = svc.ListProducts(ctx, "mouse")
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Stock)
}

func TestCatalog_Validation(t *testing.T) {
	svc := NewCatalogService(memstore.New(), nil)
	ctx := context.Background()

	cases := map[string]func(*domain.ProductInput){
		"missing name":      func(in *domain.ProductInput) { in.Name = "  " },
		"short description": func(in *domain.ProductInput) { in.Description = "too short" },
		"zero price":        func(in *domain.ProductInput) { in.Price = decimal.Zero },
		"negative stock":    func(in *domain.ProductInput) { in.Stock = -1 },
		"bad image url":     func(in *domain.ProductInput) { in.ImageURL = "not a url" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := svc.CreateProduct(ctx, admin, in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestCatalog_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.store, nil)
	ctx := context.Background()

	in := validInput()
	in.Name = "Wireless Headphones Pro"
	in.Stock = 70
	updated, err := svc.UpdateProduct(ctx, admin, f.headphones.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Wireless Headphones Pro", updated.Name)
	assert.Equal(t, 70, f.stock(t, f.headphones))

	_, err = svc.UpdateProduct(ctx, admin, "missing", in)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.add(t, alice, f.headphones, 1)
	_, err = f.orders.Checkout(ctx, alice)
	require.NoError(t, err)

	err = svc.DeleteProduct(ctx, admin, f.headphones.ID)
	assert.ErrorIs(t, err, domain.ErrProductInUse)

	assert.ErrorIs(t, svc.DeleteProduct(ctx, bob, f.chargerPad.ID), domain.ErrUnauthorized)
	require.NoError(t, svc.DeleteProduct(ctx, admin, f.chargerPad.ID))
	_, err = svc.GetProduct(ctx, f.chargerPad.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalog_UploadProductImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := NewCatalogService(f.store, nil).UploadProductImage(ctx, admin, f.headphones.ID, "a.png", "image/png", strings.NewReader("png"))
	assert.ErrorIs(t, err, domain.ErrImageStoreUnavailable)

	images := &mockImageStore{}
	svc := NewCatalogService(f.store, images)

	_, err = svc.UploadProductImage(ctx, admin, f.headphones.ID, "notes.txt", "text/plain", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	p, err := svc.UploadProductImage(ctx, admin, f.headphones.ID, "front.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.Len(t, images.keys, 1)
	assert.True(t, strings.HasPrefix(images.keys[0], "products/"+f.headphones.ID+"/"))
	assert.True(t, strings.HasSuffix(images.keys[0], ".png"))
	assert.Equal(t, "png-bytes", images.body)
	assert.Equal(t, "https://cdn.example.com/"+images.keys[0], p.ImageURL)

	images.err = errors.New("s3 down")
	_, err = svc.UploadProductImage(ctx, admin, f.headphones.ID, "back.png", "image/png", strings.NewReader("png"))
	assert.Error(t, err)

	got, err := svc.GetProduct(ctx, f.headphones.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ImageURL, got.ImageURL)
}

// slowImageStore runs during before finishing the upload, as a checkout
// committing while the object is still in flight would.
type slowImageStore struct {
	during func()
}

func (s slowImageStore) PutImage(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	s.during()
	return "https://cdn.example.com/" + key, nil
}

func TestCatalog_UploadProductImageKeepsStockSoldMeanwhile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 5)
	svc := NewCatalogService(f.store, slowImageStore{during: func() {
		_, err := f.orders.Checkout(ctx, alice)
		require.NoError(t, err)
	}})

	p, err := svc.UploadProductImage(ctx, admin, f.headphones.ID, "side.jpg", "image/jpeg", strings.NewReader("jpg"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p.ImageURL, ".jpg"))
	assert.Equal(t, 45, p.Stock)
	assert.Equal(t, 45, f.stock(t, f.headphones))
}

func TestCatalog_CreateWithoutImage(t *testing.T) {
	svc := NewCatalogService(memstore.New(), nil)

	in := validInput()
	in.ImageURL = ""
	p, err := svc.CreateProduct(context.Background(), admin, in)
	require.NoError(t, err)
	assert.Empty(t, p.ImageURL)
}
