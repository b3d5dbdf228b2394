// Package remote implements the pipeline stages that delegate to the
// sibling audio, asr and alignment services over gRPC, plus the loader
// that resolves remote step names.
package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/voxalys/voxalys/internal/config"
	"github.com/voxalys/voxalys/internal/rpc"
	"github.com/voxalys/voxalys/pkg/asr"
)

// Connection retry at construction time. Steady-state calls never retry.
const (
	dialAttempts = 20
	dialBackoff  = 50 * time.Millisecond
)

// Conn is one established client connection to a sibling service, carrying
// the per-RPC timeout and the service name used in error reporting.
type Conn struct {
	service string
	cc      *grpc.ClientConn
	timeout time.Duration
}

// Dial connects to the endpoint, retrying for roughly one second before
// giving up so freshly started sibling services have time to bind.
func Dial(ctx context.Context, service string, ep config.EndpointConfig) (*Conn, error) {
	creds := insecure.NewCredentials()
	if ep.TLSEnabled {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(defaultCallOptions(ep)...),
	}

	target := ep.Target()
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, ep.ConnectTimeout())
		cc, err := grpc.DialContext(dialCtx, target, opts...)
		cancel()
		if err == nil {
			return &Conn{service: service, cc: cc, timeout: ep.RequestTimeout()}, nil
		}
		lastErr = err
		slog.Debug("service not reachable yet, retrying",
			"service", service, "target", target, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, asr.ExternalService(service, fmt.Sprintf("connect to %s cancelled: %v", target, ctx.Err()))
		case <-time.After(dialBackoff):
		}
	}
	return nil, asr.ExternalService(service, fmt.Sprintf("failed to connect to %s: %v", target, lastErr))
}

func defaultCallOptions(ep config.EndpointConfig) []grpc.CallOption {
	opts := []grpc.CallOption{grpc.CallContentSubtype(rpc.CodecName)}
	if ep.MaxDecodingMessageBytes > 0 {
		opts = append(opts, grpc.MaxCallRecvMsgSize(ep.MaxDecodingMessageBytes))
	}
	if ep.MaxEncodingMessageBytes > 0 {
		opts = append(opts, grpc.MaxCallSendMsgSize(ep.MaxEncodingMessageBytes))
	}
	return opts
}

// NewConn wraps a pre-established client connection. Callers must have set
// the JSON content subtype on the connection's default call options, or
// pass it per call.
func NewConn(service string, cc *grpc.ClientConn, timeout time.Duration) *Conn {
	return &Conn{service: service, cc: cc, timeout: timeout}
}

// Close tears down the underlying connection.
func (c *Conn) Close() error {
	if c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// invoke performs one unary call under the per-RPC timeout and maps
// transport failures onto external-service domain errors.
func (c *Conn) invoke(ctx context.Context, method string, in, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.cc.Invoke(callCtx, method, in, out)
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.DeadlineExceeded {
		return asr.ExternalService(c.service, "gRPC request timed out")
	}
	return asr.ExternalService(c.service, fmt.Sprintf("gRPC call failed: %v", status.Convert(err).Message()))
}
