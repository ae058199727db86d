package grpc

import (
	"context"
	"log/slog"

	secrets "github.com/panyam/secrets"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InterceptorConfig configures the gate interceptors.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Gate resolves session tokens. Required.
	Gate *secrets.AccessGate

	// RequireAuth when true rejects calls without a valid session.
	// When false, calls proceed but IdentityIDFromContext returns "".
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires a session for every
// method except publicMethods.
func NewInterceptorConfig(gate *secrets.AccessGate, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        DefaultConfig(),
		Gate:          gate,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows calls without a session.
func OptionalAuthConfig(gate *secrets.AccessGate) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Gate:          gate,
		PublicMethods: make(map[string]bool),
	}
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// UnaryGateInterceptor returns a gRPC unary interceptor that runs the access gate.
func UnaryGateInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authorize(ctx, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamGateInterceptor returns a gRPC stream interceptor that runs the access gate.
func StreamGateInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authorize(ss.Context(), config, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &gatedStream{ServerStream: ss, ctx: ctx})
	}
}

// authorize resolves the session token, if any, and decides whether the call
// may go ahead. The returned context carries the identity id when allowed.
func authorize(ctx context.Context, config *InterceptorConfig, method string) (context.Context, error) {
	required := config.RequireAuth && !config.PublicMethods[method]

	token := SessionTokenFromContext(ctx, config.Config)
	if token == "" {
		if required {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}

	decision, err := config.Gate.Authorize(ctx, token, secrets.CapabilityAuthenticated)
	if err != nil {
		slog.Error("grpc access check failed", "method", method, "err", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	if !decision.Allowed {
		if required {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	return secrets.ContextWithIdentityID(ctx, decision.IdentityID), nil
}

// gatedStream overrides the stream context with the one carrying the identity.
type gatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *gatedStream) Context() context.Context {
	return s.ctx
}
