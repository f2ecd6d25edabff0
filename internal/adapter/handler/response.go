package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rl1809/shophub/internal/core/domain"
)

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type ProductResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type CartItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       string `json:"price"`
	Quantity    int    `json:"quantity"`
	Stock       int    `json:"stock"`
	ImageURL    string `json:"image_url"`
}

type CartResponse struct {
	ID       string             `json:"id"`
	Items    []CartItemResponse `json:"items"`
	Subtotal string             `json:"subtotal"`
}

type OrderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
}

type OrderResponse struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	Status    string              `json:"status"`
	Total     string              `json:"total"`
	Items     []OrderItemResponse `json:"items"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt,
	}
}

func toCartResponse(c domain.Cart) CartResponse {
	resp := CartResponse{ID: c.ID, Items: make([]CartItemResponse, 0, len(c.Items)), Subtotal: c.Subtotal().StringFixed(2)}
	for _, item := range c.Items {
		resp.Items = append(resp.Items, CartItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.ProductPrice.StringFixed(2),
			Quantity:    item.Quantity,
			Stock:       item.ProductStock,
			ImageURL:    item.ImageURL,
		})
	}
	return resp
}

func toOrderResponse(o domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    string(o.Status),
		Total:     o.Total.StringFixed(2),
		Items:     make([]OrderItemResponse, 0, len(o.Items)),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price.StringFixed(2),
		})
	}
	return resp
}

func toOrderResponses(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

// httpStatus maps service errors to a status and a message that is safe
// to show to clients.
func httpStatus(err error) (int, string) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return http.StatusConflict, stockErr.Error()
	case errors.Is(err, domain.ErrCheckoutFailed):
		return http.StatusConflict, domain.ErrCheckoutFailed.Error()
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest, domain.ErrEmptyCart.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, domain.ErrUnauthorized.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.ErrNotFound.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrEmailTaken):
		return http.StatusConflict, domain.ErrEmailTaken.Error()
	case errors.Is(err, domain.ErrAlreadyVerified):
		return http.StatusConflict, domain.ErrAlreadyVerified.Error()
	case errors.Is(err, domain.ErrEmailNotVerified):
		return http.StatusForbidden, domain.ErrEmailNotVerified.Error()
	case errors.Is(err, domain.ErrProductInUse):
		return http.StatusConflict, domain.ErrProductInUse.Error()
	case errors.Is(err, domain.ErrOTPInvalid):
		return http.StatusBadRequest, domain.ErrOTPInvalid.Error()
	case errors.Is(err, domain.ErrOTPExpired):
		return http.StatusBadRequest, domain.ErrOTPExpired.Error()
	case errors.Is(err, domain.ErrOTPCooldown):
		return http.StatusTooManyRequests, domain.ErrOTPCooldown.Error()
	case errors.Is(err, domain.ErrImageStoreUnavailable):
		return http.StatusServiceUnavailable, domain.ErrImageStoreUnavailable.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image"`
	Role  string `json:"role"`
}

func toUserResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, Image: u.Image, Role: string(u.Role)}
}
