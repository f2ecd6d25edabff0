package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/shophub/internal/adapter/auth"
	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/core/service"
)

const checkoutServiceName = "shophub.v1.CheckoutService"

// CheckoutServer is the server API for shophub.v1.CheckoutService.
type CheckoutServer interface {
	Checkout(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	UpdateOrderStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var CheckoutServiceDesc = grpc.ServiceDesc{
	ServiceName: checkoutServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Checkout", Handler: checkoutHandler},
		{MethodName: "UpdateOrderStatus", Handler: updateOrderStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shophub/v1/checkout.proto",
}

func RegisterCheckoutServer(s grpc.ServiceRegistrar, srv CheckoutServer) {
	s.RegisterService(&CheckoutServiceDesc, srv)
}

func checkoutHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServer).Checkout(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + checkoutServiceName + "/Checkout"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServer).Checkout(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func updateOrderStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServer).UpdateOrderStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + checkoutServiceName + "/UpdateOrderStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CheckoutServer).UpdateOrderStatus(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type GRPCHandler struct {
	orderService *service.OrderService
}

func NewGRPCHandler(orderService *service.OrderService) *GRPCHandler {
	return &GRPCHandler{orderService: orderService}
}

func (h *GRPCHandler) Checkout(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, _ := identityFromContext(ctx)
	order, err := h.orderService.Checkout(ctx, id)
	if err != nil {
		return nil, grpcError(err, id.Authenticated())
	}
	return orderStruct(order)
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, _ := identityFromContext(ctx)

	fields := req.GetFields()
	orderID := fields["order_id"].GetStringValue()
	next := fields["status"].GetStringValue()
	if orderID == "" || next == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id and status are required")
	}

	order, err := h.orderService.UpdateOrderStatus(ctx, id, orderID, domain.OrderStatus(next))
	if err != nil {
		return nil, grpcError(err, id.Authenticated())
	}
	return orderStruct(order)
}

func orderStruct(o domain.Order) (*structpb.Struct, error) {
	items := make([]any, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, map[string]any{
			"product_id":   item.ProductID,
			"product_name": item.ProductName,
			"quantity":     item.Quantity,
			"price":        item.Price.StringFixed(2),
		})
	}

	s, err := structpb.NewStruct(map[string]any{
		"id":         o.ID,
		"user_id":    o.UserID,
		"status":     string(o.Status),
		"total":      o.Total.StringFixed(2),
		"items":      items,
		"created_at": o.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return s, nil
}

func grpcError(err error, authenticated bool) error {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return status.Error(codes.FailedPrecondition, stockErr.Error())
	case errors.Is(err, domain.ErrEmptyCart):
		return status.Error(codes.FailedPrecondition, domain.ErrEmptyCart.Error())
	case errors.Is(err, domain.ErrCheckoutFailed):
		return status.Error(codes.Aborted, domain.ErrCheckoutFailed.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		if authenticated {
			return status.Error(codes.PermissionDenied, "forbidden")
		}
		return status.Error(codes.Unauthenticated, domain.ErrUnauthorized.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, domain.ErrNotFound.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

type identityCtxKey struct{}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(domain.Identity)
	return id, ok
}

// AuthInterceptor resolves the bearer token in the "authorization" metadata.
// Calls without a valid token are rejected before reaching the handler.
func AuthInterceptor(verifier TokenVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		id, err := verifier.Verify(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(context.WithValue(ctx, identityCtxKey{}, id), req)
	}
}

func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		event := logger.Info()
		if code == codes.Internal || code == codes.Unknown {
			event = logger.Error().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("rpc completed")
		return resp, err
	}
}

// NewGRPCServer builds a server with logging and auth interceptors and the
// checkout service registered.
func NewGRPCServer(h *GRPCHandler, verifier TokenVerifier, logger zerolog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(logger), AuthInterceptor(verifier)))
	s := grpc.NewServer(opts...)
	RegisterCheckoutServer(s, h)
	return s
}
