package middleware

import (
	"context"
	"fmt"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor creates a gRPC unary server interceptor that
// rejects calls while the activation is not valid
func (g *ActivationGuard) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	// Perform startup validation
	g.startupValidation()

	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if err := g.check(ctx); err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

// StreamServerInterceptor creates a gRPC stream server interceptor that
// rejects streams while the activation is not valid
func (g *ActivationGuard) StreamServerInterceptor() grpc.StreamServerInterceptor {
	// Perform startup validation
	g.startupValidation()

	return func(
		srv any,
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := g.check(ss.Context()); err != nil {
			return err
		}

		return handler(srv, ss)
	}
}

func (g *ActivationGuard) check(ctx context.Context) error {
	if g == nil || g.coordinator == nil {
		return nil
	}

	v := g.coordinator.CurrentVerdict(ctx)
	if v.Valid {
		return nil
	}

	g.coordinator.Logger().Errorf("Call rejected (code %s): %s", v.Code, v.Reason)

	return status.Error(grpcCode(v), fmt.Sprintf("%s - %s", v.Code, v.Reason))
}

// grpcCode reports Unavailable when the verdict could not be established
// and PermissionDenied when the activation is definitively not valid.
func grpcCode(v model.Verdict) codes.Code {
	switch v.Code {
	case cn.ErrOnlineVerification.Error(), cn.ErrNotInitialized.Error(), cn.ErrStoreUnavailable.Error():
		return codes.Unavailable
	}

	return codes.PermissionDenied
}
