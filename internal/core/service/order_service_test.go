package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/shophub/internal/adapter/storage/memstore"
	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/port"
)

var (
	alice = domain.Identity{UserID: "user-alice", Role: domain.RoleUser}
	bob   = domain.Identity{UserID: "user-bob", Role: domain.RoleUser}
	admin = domain.Identity{UserID: "user-admin", Role: domain.RoleAdmin}
)

type fixture struct {
	store      *memstore.Store
	orders     *OrderService
	carts      *CartService
	headphones domain.Product
	chargerPad domain.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	f := &fixture{
		store:      store,
		orders:     NewOrderService(store, store, 100, zerolog.Nop()),
		carts:      NewCartService(store, store),
		headphones: seedProduct(t, store, "Wireless Headphones", "129.99", 50),
		chargerPad: seedProduct(t, store, "Wireless Charging Pad", "29.99", 200),
	}
	t.Cleanup(f.orders.Close)
	return f
}

func seedProduct(t *testing.T, repo port.ProductRepository, name, price string, stock int) domain.Product {
	t.Helper()

	p := domain.Product{
		ID:          "prod-" + name,
		Name:        name,
		Description: name + " for everyday use",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) add(t *testing.T, id domain.Identity, p domain.Product, qty int) {
	t.Helper()
	_, err := f.carts.AddToCart(context.Background(), id, p.ID, qty)
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, p domain.Product) int {
	t.Helper()
	got, err := f.store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	return got.Stock
}

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 1)
	f.add(t, alice, f.chargerPad, 2)

	order, err := f.orders.Checkout(ctx, alice)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, alice.UserID, order.UserID)
	assert.True(t, decimal.RequireFromString("189.97").Equal(order.Total), "total = %s", order.Total)
	require.Len(t, order.Items, 2)
	assert.True(t, f.headphones.Price.Equal(order.Items[0].Price))
	assert.Equal(t, 1, order.Items[0].Quantity)
	assert.True(t, f.chargerPad.Price.Equal(order.Items[1].Price))
	assert.Equal(t, 2, order.Items[1].Quantity)

	assert.Equal(t, 49, f.stock(t, f.headphones))
	assert.Equal(t, 198, f.stock(t, f.chargerPad))

	cart, err := f.carts.GetCart(ctx, alice)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	stored, err := f.orders.GetOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)

	select {
	case ev := <-f.orders.GetEventQueue():
		assert.Equal(t, domain.OrderEventPlaced, ev.Type)
		assert.Equal(t, order.ID, ev.OrderID)
	default:
		t.Fatal("expected an OrderPlaced event")
	}
}

func TestCheckout_Unauthorized(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.Checkout(context.Background(), domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// no cart at all
	_, err := f.orders.Checkout(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	// existing cart without lines
	_, err = f.carts.GetCart(ctx, alice)
	require.NoError(t, err)
	_, err = f.orders.Checkout(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	orders, err := f.orders.ListOrders(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.chargerPad, 1)
	f.add(t, alice, f.headphones, 5)
	f.store.SetStock(f.headphones.ID, 3)

	_, err := f.orders.Checkout(ctx, alice)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Wireless Headphones", stockErr.ProductName)

	assert.Equal(t, 3, f.stock(t, f.headphones))
	assert.Equal(t, 200, f.stock(t, f.chargerPad))

	cart, err := f.carts.GetCart(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestCheckout_RollbackOnStockUpdateFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 1)
	f.add(t, alice, f.chargerPad, 2)
	f.store.FailStockUpdate(f.chargerPad.ID, errors.New("lock wait timeout"))

	_, err := f.orders.Checkout(ctx, alice)
	require.ErrorIs(t, err, domain.ErrCheckoutFailed)

	assert.Equal(t, 50, f.stock(t, f.headphones))
	assert.Equal(t, 200, f.stock(t, f.chargerPad))

	cart, err := f.carts.GetCart(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)

	orders, err := f.orders.ListOrders(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, orders)

	select {
	case ev := <-f.orders.GetEventQueue():
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

// hookedCarts runs afterFind once the cart has been read, standing in for
// whatever else touches the cart or stock while a checkout is in flight.
type hookedCarts struct {
	port.CartRepository
	afterFind func()
}

func (h hookedCarts) FindCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := h.CartRepository.FindCart(ctx, userID)
	h.afterFind()
	return cart, err
}

func (f *fixture) serviceWith(t *testing.T, afterFind func()) *OrderService {
	t.Helper()
	svc := NewOrderService(hookedCarts{CartRepository: f.store, afterFind: afterFind}, f.store, 10, zerolog.Nop())
	t.Cleanup(svc.Close)
	return svc
}

func TestCheckout_StockTakenAfterPreCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 2)

	svc := f.serviceWith(t, func() { f.store.SetStock(f.headphones.ID, 0) })

	_, err := svc.Checkout(ctx, alice)
	require.ErrorIs(t, err, domain.ErrCheckoutFailed)
	assert.Equal(t, 0, f.stock(t, f.headphones))
}

func TestCheckout_DoubleSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 1)

	// Both submissions read the same cart before either commits.
	var read sync.WaitGroup
	read.Add(2)
	svc := f.serviceWith(t, func() {
		read.Done()
		read.Wait()
	})

	errs := make([]error, 2)
	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			_, errs[i] = svc.Checkout(ctx, alice)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var placed, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			placed++
		case errors.Is(err, domain.ErrCheckoutFailed):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, placed)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 49, f.stock(t, f.headphones))

	orders, err := f.orders.ListOrders(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckout_LineAddedDuringCheckoutStaysInCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 1)
	svc := f.serviceWith(t, func() {
		_, err := f.carts.AddToCart(ctx, alice, f.chargerPad.ID, 3)
		require.NoError(t, err)
	})

	order, err := svc.Checkout(ctx, alice)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, f.headphones.ID, order.Items[0].ProductID)

	cart, err := f.carts.GetCart(ctx, alice)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, f.chargerPad.ID, cart.Items[0].ProductID)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	assert.Equal(t, 49, f.stock(t, f.headphones))
	assert.Equal(t, 200, f.stock(t, f.chargerPad))
}

func TestCheckout_QuantityEditedDuringCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 1)
	svc := f.serviceWith(t, func() {
		f.add(t, alice, f.headphones, 2)
	})

	_, err := svc.Checkout(ctx, alice)
	require.ErrorIs(t, err, domain.ErrCheckoutFailed)
	assert.Contains(t, err.Error(), memstore.ErrCartChanged.Error())

	assert.Equal(t, 50, f.stock(t, f.headphones))
	cart, err := f.carts.GetCart(ctx, alice)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	orders, err := f.orders.ListOrders(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckout_PriceSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 1)
	order, err := f.orders.Checkout(ctx, alice)
	require.NoError(t, err)

	repriced := f.headphones
	repriced.Price = decimal.RequireFromString("99.00")
	require.NoError(t, f.store.UpdateProduct(ctx, repriced))

	stored, err := f.orders.GetOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, decimal.RequireFromString("129.99").Equal(stored.Items[0].Price))
	assert.True(t, decimal.RequireFromString("129.99").Equal(stored.Total))
}

func TestCheckout_Concurrent(t *testing.T) {
	initialStock := 20
	buyers := 50

	f := newFixture(t)
	limited := seedProduct(t, f.store, "Limited Edition Speaker", "59.50", buyers)

	ids := make([]domain.Identity, buyers)
	for i := range ids {
		ids[i] = domain.Identity{UserID: fmt.Sprintf("buyer-%d", i), Role: domain.RoleUser}
		f.add(t, ids[i], limited, 1)
	}
	f.store.SetStock(limited.ID, initialStock)

	go func() {
		for range f.orders.GetEventQueue() {
		}
	}()

	var success, failed atomic.Int32
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			_, err := f.orders.Checkout(context.Background(), id)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrCheckoutFailed):
				failed.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(initialStock), success.Load())
	assert.Equal(t, int32(buyers-initialStock), failed.Load())
	assert.Equal(t, 0, f.stock(t, limited))
}

func TestGetOrder_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 1)
	order, err := f.orders.Checkout(ctx, alice)
	require.NoError(t, err)

	_, err = f.orders.GetOrder(ctx, bob, order.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err := f.orders.GetOrder(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.orders.GetOrder(ctx, alice, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 1)
	_, err := f.orders.Checkout(ctx, alice)
	require.NoError(t, err)
	f.add(t, bob, f.chargerPad, 3)
	_, err = f.orders.Checkout(ctx, bob)
	require.NoError(t, err)

	mine, err := f.orders.ListOrders(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, alice.UserID, mine[0].UserID)

	_, err = f.orders.ListAllOrders(ctx, alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	all, err := f.orders.ListAllOrders(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, alice, f.headphones, 1)
	order, err := f.orders.Checkout(ctx, alice)
	require.NoError(t, err)
	<-f.orders.GetEventQueue()

	_, err = f.orders.UpdateOrderStatus(ctx, alice, order.ID, domain.OrderStatusShipped)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.orders.UpdateOrderStatus(ctx, admin, order.ID, domain.OrderStatus("LOST"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.orders.UpdateOrderStatus(ctx, admin, "missing", domain.OrderStatusShipped)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	updated, err := f.orders.UpdateOrderStatus(ctx, admin, order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)

	ev := <-f.orders.GetEventQueue()
	assert.Equal(t, domain.OrderEventStatusChanged, ev.Type)
	assert.Equal(t, domain.OrderStatusShipped, ev.Status)

	stored, err := f.orders.GetOrder(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, stored.Status)
	assert.True(t, decimal.RequireFromString("129.99").Equal(stored.Total))
}

func TestOrderService_CloseStopsEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orders.Close()
	f.orders.Close()

	f.add(t, alice, f.headphones, 1)
	_, err := f.orders.Checkout(ctx, alice)
	require.NoError(t, err)

	_, open := <-f.orders.GetEventQueue()
	assert.False(t, open)
}

func TestOrderService_FullQueueDoesNotBlock(t *testing.T) {
	store := memstore.New()
	svc := NewOrderService(store, store, 1, zerolog.Nop())
	defer svc.Close()
	carts := NewCartService(store, store)
	p := seedProduct(t, store, "Desk Lamp", "15.00", 10)

	for _, id := range []domain.Identity{alice, bob} {
		_, err := carts.AddToCart(context.Background(), id, p.ID, 1)
		require.NoError(t, err)
		_, err = svc.Checkout(context.Background(), id)
		require.NoError(t, err)
	}
	assert.Len(t, svc.GetEventQueue(), 1)
}
