package port

import (
	"context"
	"io"

	"github.com/rl1809/shophub/internal/core/domain"
)

type Mailer interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
}

type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

type ImageStore interface {
	// PutImage uploads the object and returns its public URL
	PutImage(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}
