// Package memstore keeps every repository in process memory behind one
// mutex. Each call is atomic, so CreateOrder behaves like the MySQL
// transaction: it applies fully or not at all.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/port"
)

var (
	ErrStockConflict = errors.New("stock changed during checkout")
	ErrCartChanged   = errors.New("cart changed during checkout")
)

type cartRow struct {
	domain.Cart
	seq int
}

type cartItemRow struct {
	id        string
	cartID    string
	productID string
	quantity  int
	seq       int
}

type otpEntry struct {
	code      string
	expiresAt time.Time
}

type Store struct {
	mu  sync.Mutex
	seq int

	products   map[string]domain.Product
	carts      map[string]*cartRow
	cartByUser map[string]string
	cartItems  map[string]*cartItemRow
	orders     map[string]domain.Order
	users      map[string]domain.User
	otps       map[string]otpEntry
	cooldowns  map[string]time.Time

	faults map[string]error
	now    func() time.Time
}

func New() *Store {
	return &Store{
		products:   make(map[string]domain.Product),
		carts:      make(map[string]*cartRow),
		cartByUser: make(map[string]string),
		cartItems:  make(map[string]*cartItemRow),
		orders:     make(map[string]domain.Order),
		users:      make(map[string]domain.User),
		otps:       make(map[string]otpEntry),
		cooldowns:  make(map[string]time.Time),
		faults:     make(map[string]error),
		now:        time.Now,
	}
}

// SetClock replaces the time source used for OTP expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailStockUpdate makes CreateOrder fail with err when it reaches the
// stock update for productID.
func (s *Store) FailStockUpdate(productID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[productID] = err
}

// SetStock overwrites a product's stock.
func (s *Store) SetStock(productID string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.Stock = stock
		s.products[productID] = p
	}
}

func (s *Store) nextSeq() int {
	s.seq++
	return s.seq
}

// products

func (s *Store) ListProducts(ctx context.Context, query string) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; ok {
		return fmt.Errorf("product %s already exists", product.ID)
	}
	s.products[product.ID] = product
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return domain.ErrNotFound
	}
	s.products[product.ID] = product
	return nil
}

func (s *Store) SetProductImage(ctx context.Context, id, imageURL string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.ImageURL = imageURL
	p.UpdatedAt = updatedAt
	s.products[id] = p
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return domain.ErrNotFound
	}
	for _, o := range s.orders {
		for _, item := range o.Items {
			if item.ProductID == id {
				return domain.ErrProductInUse
			}
		}
	}
	for itemID, row := range s.cartItems {
		if row.productID == id {
			delete(s.cartItems, itemID)
		}
	}
	delete(s.products, id)
	return nil
}

// carts

func (s *Store) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cartID, ok := s.cartByUser[userID]; ok {
		return s.loadCart(cartID), nil
	}

	now := s.now().UTC()
	row := &cartRow{
		Cart: domain.Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now},
		seq:  s.nextSeq(),
	}
	s.carts[row.ID] = row
	s.cartByUser[userID] = row.ID
	return s.loadCart(row.ID), nil
}

func (s *Store) FindCart(ctx context.Context, userID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cartID, ok := s.cartByUser[userID]
	if !ok {
		return domain.Cart{}, domain.ErrNotFound
	}
	return s.loadCart(cartID), nil
}

func (s *Store) loadCart(cartID string) domain.Cart {
	row := s.carts[cartID]
	cart := row.Cart
	cart.Items = []domain.CartItem{}

	rows := make([]*cartItemRow, 0)
	for _, item := range s.cartItems {
		if item.cartID == cartID {
			rows = append(rows, item)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	for _, item := range rows {
		cart.Items = append(cart.Items, s.joinItem(item))
	}
	return cart
}

func (s *Store) joinItem(row *cartItemRow) domain.CartItem {
	p := s.products[row.productID]
	return domain.CartItem{
		ID:           row.id,
		CartID:       row.cartID,
		ProductID:    row.productID,
		Quantity:     row.quantity,
		ProductName:  p.Name,
		ProductPrice: p.Price,
		ProductStock: p.Stock,
		ImageURL:     p.ImageURL,
	}
}

func (s *Store) GetCartItem(ctx context.Context, itemID string) (domain.CartItem, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.cartItems[itemID]
	if !ok {
		return domain.CartItem{}, "", domain.ErrNotFound
	}
	return s.joinItem(row), s.carts[row.cartID].UserID, nil
}

func (s *Store) SaveCartItem(ctx context.Context, item domain.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[item.CartID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := s.products[item.ProductID]; !ok {
		return domain.ErrNotFound
	}
	for _, row := range s.cartItems {
		if row.cartID == item.CartID && row.productID == item.ProductID {
			row.quantity = item.Quantity
			return nil
		}
	}
	s.cartItems[item.ID] = &cartItemRow{
		id:        item.ID,
		cartID:    item.CartID,
		productID: item.ProductID,
		quantity:  item.Quantity,
		seq:       s.nextSeq(),
	}
	return nil
}

func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.cartItems[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	row.quantity = quantity
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cartItems[itemID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.cartItems, itemID)
	return nil
}

func (s *Store) ClearCart(ctx context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearCartLocked(cartID)
	return nil
}

func (s *Store) clearCartLocked(cartID string) {
	for id, row := range s.cartItems {
		if row.cartID == cartID {
			delete(s.cartItems, id)
		}
	}
}

// orders

func (s *Store) CreateOrder(ctx context.Context, order domain.Order, cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists", order.ID)
	}

	// Validate every step before mutating so a failure leaves no trace.
	for _, line := range cart.Items {
		row, ok := s.cartItems[line.ID]
		if !ok || row.cartID != cart.ID || row.productID != line.ProductID || row.quantity != line.Quantity {
			return fmt.Errorf("%w: line %s", ErrCartChanged, line.ID)
		}
	}

	remaining := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return fmt.Errorf("product %s: %w", item.ProductID, domain.ErrNotFound)
		}
		if err, ok := s.faults[item.ProductID]; ok {
			return fmt.Errorf("update stock for %s: %w", item.ProductID, err)
		}
		stock, seen := remaining[item.ProductID]
		if !seen {
			stock = p.Stock
		}
		if stock < item.Quantity {
			return ErrStockConflict
		}
		remaining[item.ProductID] = stock - item.Quantity
	}

	for productID, stock := range remaining {
		p := s.products[productID]
		p.Stock = stock
		s.products[productID] = p
	}

	stored := order
	stored.Items = append([]domain.OrderItem(nil), order.Items...)
	s.orders[order.ID] = stored
	for _, line := range cart.Items {
		delete(s.cartItems, line.ID)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return s.withNames(o), nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listOrders(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listOrders(func(domain.Order) bool { return true }), nil
}

func (s *Store) listOrders(keep func(domain.Order) bool) []domain.Order {
	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, s.withNames(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) withNames(o domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	for i, item := range o.Items {
		if p, ok := s.products[item.ProductID]; ok {
			item.ProductName = p.Name
		}
		items[i] = item
	}
	o.Items = items
	return o
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = s.now().UTC()
	s.orders[id] = o
	return nil
}

// users

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrEmailTaken
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	now := s.now().UTC()
	u.EmailVerifiedAt = &now
	s.users[userID] = u
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, userID)
	return nil
}

// verification codes

func (s *Store) SaveOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.otps[email] = otpEntry{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) ConsumeOTP(ctx context.Context, email, code string) (port.OTPResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.otps[email]
	if !ok || !s.now().Before(entry.expiresAt) {
		delete(s.otps, email)
		return port.OTPMissing, nil
	}
	if entry.code != code {
		return port.OTPMismatch, nil
	}
	delete(s.otps, email)
	return port.OTPMatched, nil
}

func (s *Store) AcquireResendSlot(ctx context.Context, email string, cooldown time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.cooldowns[email]; ok && now.Before(until) {
		return false, nil
	}
	s.cooldowns[email] = now.Add(cooldown)
	return true, nil
}

func (s *Store) DeleteOTP(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.otps, email)
	return nil
}

var (
	_ port.ProductRepository = (*Store)(nil)
	_ port.CartRepository    = (*Store)(nil)
	_ port.OrderRepository   = (*Store)(nil)
	_ port.UserRepository    = (*Store)(nil)
	_ port.OTPStore          = (*Store)(nil)
)
