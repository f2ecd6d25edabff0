package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrCheckoutFailed        = errors.New("checkout failed")
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrEmailTaken            = errors.New("email already registered")
	ErrAlreadyVerified       = errors.New("email already verified")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrOTPInvalid            = errors.New("invalid verification code")
	ErrOTPExpired            = errors.New("verification code expired")
	ErrOTPCooldown           = errors.New("verification code requested too recently")
	ErrProductInUse          = errors.New("product is referenced by orders")
	ErrImageStoreUnavailable = errors.New("image store unavailable")
)

// InsufficientStockError names the product whose stock cannot cover the
// requested quantity.
type InsufficientStockError struct {
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
