package handler

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/shophub/internal/core/domain"
)

func dialCheckout(t *testing.T, ts *testServer) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewGRPCHandler(ts.orders), verifier, zerolog.Nop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func callCheckout(ctx context.Context, conn *grpc.ClientConn) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := conn.Invoke(ctx, "/"+checkoutServiceName+"/Checkout", &emptypb.Empty{}, out)
	return out, err
}

func callUpdateStatus(ctx context.Context, conn *grpc.ClientConn, orderID, next string) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"order_id": orderID, "status": next})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+checkoutServiceName+"/UpdateOrderStatus", in, out)
	return out, err
}

func TestGRPC_Checkout(t *testing.T) {
	ts := newTestServer(t)
	conn := dialCheckout(t, ts)

	_, err := callCheckout(context.Background(), conn)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = callCheckout(withToken(aliceToken), conn)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	ts.do(t, "POST", "/api/cart/items", aliceToken, map[string]any{"product_id": ts.headphones.ID, "quantity": 1})
	ts.do(t, "POST", "/api/cart/items", aliceToken, map[string]any{"product_id": ts.chargerPad.ID, "quantity": 2})

	out, err := callCheckout(withToken(aliceToken), conn)
	require.NoError(t, err)
	fields := out.GetFields()
	assert.Equal(t, "189.97", fields["total"].GetStringValue())
	assert.Equal(t, string(domain.OrderStatusPending), fields["status"].GetStringValue())
	assert.Len(t, fields["items"].GetListValue().GetValues(), 2)
	assert.Equal(t, 49, ts.stock(t, ts.headphones.ID))
}

func TestGRPC_UpdateOrderStatus(t *testing.T) {
	ts := newTestServer(t)
	conn := dialCheckout(t, ts)

	ts.do(t, "POST", "/api/cart/items", aliceToken, map[string]any{"product_id": ts.headphones.ID, "quantity": 1})
	placed, err := callCheckout(withToken(aliceToken), conn)
	require.NoError(t, err)
	orderID := placed.GetFields()["id"].GetStringValue()

	_, err = callUpdateStatus(withToken(aliceToken), conn, orderID, "SHIPPED")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = callUpdateStatus(withToken(adminToken), conn, orderID, "LOST")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = callUpdateStatus(withToken(adminToken), conn, "missing", "SHIPPED")
	assert.Equal(t, codes.NotFound, status.Code(err))

	out, err := callUpdateStatus(withToken(adminToken), conn, orderID, "SHIPPED")
	require.NoError(t, err)
	assert.Equal(t, "SHIPPED", out.GetFields()["status"].GetStringValue())
}

func TestGRPCError(t *testing.T) {
	assert.Equal(t, codes.Aborted, status.Code(grpcError(domain.ErrCheckoutFailed, true)))
	assert.Equal(t, codes.FailedPrecondition, status.Code(grpcError(&domain.InsufficientStockError{ProductName: "Mouse"}, true)))
	assert.Equal(t, codes.Unauthenticated, status.Code(grpcError(domain.ErrUnauthorized, false)))
	assert.Equal(t, codes.Internal, status.Code(grpcError(assert.AnError, true)))
}

var _ CheckoutServer = (*GRPCHandler)(nil)
