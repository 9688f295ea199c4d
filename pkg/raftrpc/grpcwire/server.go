// Package grpcwire is the Coordination RPC transport: a hand-registered gRPC
// service serving RequestVote and AppendEntries over a JSON codec, no
// protoc step required. Grounded file-for-file on the teacher's
// pkg/transport/grpc/{server,client,connmgr,jsoncodec}.go, narrowed from five
// management RPCs down to the two spec.md §6 names.
package grpcwire

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/amirimatin/graphraft/pkg/observability/tracing"
	"github.com/amirimatin/graphraft/pkg/raft"
)

// coordinationServer is the subset of *raft.Server the gRPC handlers invoke.
type coordinationServer interface {
	RequestVote(ctx context.Context, req raft.RequestVoteReq) (raft.RequestVoteRes, error)
	AppendEntries(ctx context.Context, req raft.AppendEntriesReq) (raft.AppendEntriesRes, error)
}

// Server exposes one local raft.Server as a Coordination service over gRPC.
type Server struct {
	bind   string
	local  coordinationServer
	tlsCfg *tls.Config

	lis net.Listener
	srv *grpc.Server
}

// NewServer returns a Server that will serve local's RequestVote/
// AppendEntries handlers once Start is called.
func NewServer(bind string, local coordinationServer) *Server {
	return &Server{bind: bind, local: local}
}

// UseTLS enables mutual TLS using cfg (see security/tlsconfig).
func (s *Server) UseTLS(cfg *tls.Config) *Server {
	s.tlsCfg = cfg
	return s
}

var coordinationServiceDesc = grpc.ServiceDesc{
	ServiceName: "graphraft.v1.Coordination",
	HandlerType: (*coordinationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestVote", Handler: requestVoteHandler},
		{MethodName: "AppendEntries", Handler: appendEntriesHandler},
	},
}

func requestVoteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(raft.RequestVoteReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(coordinationServer).RequestVote(ctx, *in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphraft.v1.Coordination/RequestVote"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(coordinationServer).RequestVote(ctx, *req.(*raft.RequestVoteReq))
	}
	return interceptor(ctx, in, info, handler)
}

func appendEntriesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(raft.AppendEntriesReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(coordinationServer).AppendEntries(ctx, *in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphraft.v1.Coordination/AppendEntries"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(coordinationServer).AppendEntries(ctx, *req.(*raft.AppendEntriesReq))
	}
	return interceptor(ctx, in, info, handler)
}

// coordinationImpl adapts coordinationServer to traces each inbound RPC
// before delegating, matching the teacher's mgmtImpl tracing.StartSpan call
// sites.
type coordinationImpl struct {
	local coordinationServer
}

func (c *coordinationImpl) RequestVote(ctx context.Context, req raft.RequestVoteReq) (raft.RequestVoteRes, error) {
	ctx, end := tracing.StartSpan(ctx, "grpcwire.request_vote")
	defer end()
	return c.local.RequestVote(ctx, req)
}

func (c *coordinationImpl) AppendEntries(ctx context.Context, req raft.AppendEntriesReq) (raft.AppendEntriesRes, error) {
	ctx, end := tracing.StartSpan(ctx, "grpcwire.append_entries")
	defer end()
	return c.local.AppendEntries(ctx, req)
}

// Start binds the listener and begins serving in the background. Returns
// once the listener is open.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	s.lis = lis

	var opts []grpc.ServerOption
	opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
	opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
	opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
	if s.tlsCfg != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg)))
	}

	srv := grpc.NewServer(opts...)
	s.srv = srv

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	srv.RegisterService(&coordinationServiceDesc, &coordinationImpl{local: s.local})

	go func() { _ = srv.Serve(lis) }()
	return nil
}

// Addr returns the configured bind address.
func (s *Server) Addr() string { return s.bind }

// Stop gracefully shuts the gRPC server down, falling back to a hard stop if
// graceful shutdown does not complete within 2s.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ch := make(chan struct{})
	go func() { s.srv.GracefulStop(); close(ch) }()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		s.srv.Stop()
	}
	s.srv = nil
}
