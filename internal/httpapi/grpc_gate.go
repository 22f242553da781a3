package httpapi

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"duka.app/internal/audit"
	"duka.app/internal/auth"
)

// UnaryGateInterceptor applies the gate to unary RPCs, using the full
// method name as the path.
func UnaryGateInterceptor(gate *auth.Gate) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authorizeRPC(ctx, gate, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamGateInterceptor applies the gate to streaming RPCs.
func StreamGateInterceptor(gate *auth.Gate) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authorizeRPC(ss.Context(), gate, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &gatedStream{ServerStream: ss, ctx: ctx})
	}
}

// ServiceExemptions exempts every method of the named services, e.g.
// "grpc.health.v1.Health".
func ServiceExemptions(services ...string) auth.ExemptionFunc {
	prefixes := make([]string, 0, len(services))
	for _, s := range services {
		prefixes = append(prefixes, "/"+strings.Trim(s, "/")+"/")
	}
	return func(method string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(method, p) {
				return true
			}
		}
		return false
	}
}

type gatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *gatedStream) Context() context.Context { return s.ctx }

func authorizeRPC(ctx context.Context, gate *auth.Gate, method string) (context.Context, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
	}
	out := gate.Authorize(ctx, auth.Request{Path: method, Authorization: header})
	if out.Principal != nil {
		ctx = auth.ContextWithPrincipal(ctx, *out.Principal)
	}
	if out.Proceed() {
		return ctx, nil
	}
	_ = audit.LogEvent(ctx, "authz.reject", map[string]any{
		"method":   method,
		"decision": string(out.Decision),
		"status":   out.Status,
	})
	return ctx, outcomeStatus(out).Err()
}

// outcomeStatus maps a rejection onto a gRPC status carrying the HTTP
// envelope as a Struct detail.
func outcomeStatus(out auth.Outcome) *status.Status {
	msg := out.Message
	if s, ok := out.Payload.(string); ok && s != "" {
		msg += ": " + s
	}
	st := status.New(grpcCode(out.Status), msg)

	payload := normalizePayload(out.Payload)
	if _, ok := payload.(string); !ok {
		payload = []any{}
	}
	detail, err := structpb.NewStruct(map[string]any{
		"Status":  out.Status,
		"Message": out.Message,
		"Payload": payload,
	})
	if err != nil {
		return st
	}
	if withDetail, err := st.WithDetails(detail); err == nil {
		return withDetail
	}
	return st
}

func grpcCode(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusForbidden, http.StatusRequestEntityTooLarge:
		return codes.PermissionDenied
	case http.StatusBadGateway:
		return codes.FailedPrecondition
	case http.StatusInternalServerError:
		return codes.Internal
	}
	switch {
	case httpStatus >= 500:
		return codes.Internal
	case httpStatus >= 400:
		return codes.PermissionDenied
	}
	return codes.Unknown
}
