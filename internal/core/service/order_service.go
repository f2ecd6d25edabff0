package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/port"
)

type OrderService struct {
	carts  port.CartRepository
	orders port.OrderRepository
	logger zerolog.Logger

	mu         sync.RWMutex
	closed     bool
	eventQueue chan domain.OrderEvent
}

func NewOrderService(carts port.CartRepository, orders port.OrderRepository, queueSize int, logger zerolog.Logger) *OrderService {
	return &OrderService{
		carts:      carts,
		orders:     orders,
		logger:     logger.With().Str("component", "order_service").Logger(),
		eventQueue: make(chan domain.OrderEvent, queueSize),
	}
}

// Checkout converts the caller's cart into a PENDING order. Stock is
// verified up front and decremented conditionally inside the order
// transaction, so a lost race fails the whole checkout.
func (s *OrderService) Checkout(ctx context.Context, id domain.Identity) (domain.Order, error) {
	if !id.Authenticated() {
		return domain.Order{}, domain.ErrUnauthorized
	}

	cart, err := s.carts.FindCart(ctx, id.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, domain.ErrEmptyCart
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: load cart: %v", domain.ErrCheckoutFailed, err)
	}
	if cart.IsEmpty() {
		return domain.Order{}, domain.ErrEmptyCart
	}

	for _, item := range cart.Items {
		if item.ProductStock < item.Quantity {
			return domain.Order{}, &domain.InsufficientStockError{ProductName: item.ProductName}
		}
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    id.UserID,
		Status:    domain.OrderStatusPending,
		Total:     decimal.Zero,
		Items:     make([]domain.OrderItem, 0, len(cart.Items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, item := range cart.Items {
		order.Total = order.Total.Add(item.ProductPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		order.Items = append(order.Items, domain.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.ProductPrice,
		})
	}

	if err := s.orders.CreateOrder(ctx, order, cart); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrCheckoutFailed, err)
	}

	s.enqueue(domain.NewOrderEvent(domain.OrderEventPlaced, order))

	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, id domain.Identity) ([]domain.Order, error) {
	if !id.Authenticated() {
		return nil, domain.ErrUnauthorized
	}

	orders, err := s.orders.ListOrdersByUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder is visible to the order's owner and to admins.
func (s *OrderService) GetOrder(ctx context.Context, id domain.Identity, orderID string) (domain.Order, error) {
	if !id.Authenticated() {
		return domain.Order{}, domain.ErrUnauthorized
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if order.UserID != id.UserID && !id.IsAdmin() {
		return domain.Order{}, domain.ErrUnauthorized
	}
	return order, nil
}

func (s *OrderService) ListAllOrders(ctx context.Context, id domain.Identity) ([]domain.Order, error) {
	if !id.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}

	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) UpdateOrderStatus(ctx context.Context, id domain.Identity, orderID string, status domain.OrderStatus) (domain.Order, error) {
	if !id.IsAdmin() {
		return domain.Order{}, domain.ErrUnauthorized
	}
	if !status.Valid() {
		return domain.Order{}, domain.InvalidInput("unknown order status %q", status)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}

	if err := s.orders.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}

	changed := order.Status != status
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	if changed {
		s.enqueue(domain.NewOrderEvent(domain.OrderEventStatusChanged, order))
	}

	return order, nil
}

// enqueue never blocks the request path; events are dropped when the
// queue is full or already closed.
func (s *OrderService) enqueue(event domain.OrderEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn().Str("order_id", event.OrderID).Msg("event queue closed, dropping event")
		return
	}

	select {
	case s.eventQueue <- event:
	default:
		s.logger.Warn().
			Str("order_id", event.OrderID).
			Str("type", string(event.Type)).
			Msg("event queue full, dropping event")
	}
}

func (s *OrderService) GetEventQueue() <-chan domain.OrderEvent {
	return s.eventQueue
}

func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.eventQueue)
}
