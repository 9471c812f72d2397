package rpc

import (
	"context"
	"errors"
	"net"

	"github.com/bytedance/sonic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wfunc/gonu/logger"
	"github.com/wfunc/gonu/models"
	"github.com/wfunc/gonu/persistence"
	"github.com/wfunc/gonu/services"
)

const ServiceName = "gonu.admin.Admin"

const (
	methodGetSession     = "/" + ServiceName + "/GetSession"
	methodGetPlayerStats = "/" + ServiceName + "/GetPlayerStats"
)

// jsonCodec carries the admin messages as JSON instead of protobuf.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return sonic.ConfigStd.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return sonic.ConfigStd.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

type GetSessionRequest struct {
	GameID string `json:"gameId"`
}

type GetSessionReply struct {
	Session *models.GameSession `json:"session"`
}

type GetPlayerStatsRequest struct {
	UserID string `json:"userId"`
}

type GetPlayerStatsReply struct {
	Stats *models.PlayerStats `json:"stats"`
}

// AdminServer is the admin service contract.
type AdminServer interface {
	GetSession(ctx context.Context, req *GetSessionRequest) (*GetSessionReply, error)
	GetPlayerStats(ctx context.Context, req *GetPlayerStatsRequest) (*GetPlayerStatsReply, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSession", Handler: getSessionHandler},
		{MethodName: "GetPlayerStats", Handler: getPlayerStatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gonu/admin",
}

func getSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetSessionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetSession}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).GetSession(ctx, req.(*GetSessionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getPlayerStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetPlayerStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetPlayerStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetPlayerStats}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).GetPlayerStats(ctx, req.(*GetPlayerStatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AdminService reads sessions from the shared store and stats from the archive.
type AdminService struct {
	store   persistence.Store
	matches *services.MatchService
}

func NewAdminService(store persistence.Store, matches *services.MatchService) *AdminService {
	return &AdminService{store: store, matches: matches}
}

func (a *AdminService) GetSession(ctx context.Context, req *GetSessionRequest) (*GetSessionReply, error) {
	if req.GameID == "" {
		return nil, status.Error(codes.InvalidArgument, "gameId is required")
	}
	sess, err := a.store.Read(ctx, req.GameID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "game %s not found", req.GameID)
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &GetSessionReply{Session: sess}, nil
}

func (a *AdminService) GetPlayerStats(ctx context.Context, req *GetPlayerStatsRequest) (*GetPlayerStatsReply, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}
	stats, err := a.matches.PlayerStats(ctx, req.UserID)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &GetPlayerStatsReply{Stats: stats}, nil
}

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	grpc     *grpc.Server
}

// NewServer serves admin on lis.
func NewServer(lis net.Listener, admin AdminServer) *Server {
	s := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	s.RegisterService(&ServiceDesc, admin)
	return &Server{listener: lis, grpc: s}
}

// Listen creates a TCP listener on addr and a server on it.
func Listen(addr string, admin AdminServer) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewServer(lis, admin), nil
}

// Start blocks serving requests until Stop.
func (s *Server) Start() error {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	logger.Log.Info("Stopping RPC server.")
	s.grpc.GracefulStop()
}

// AdminClient calls the admin service over conn.
type AdminClient struct {
	conn grpc.ClientConnInterface
}

func NewAdminClient(conn grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{conn: conn}
}

func (c *AdminClient) GetSession(ctx context.Context, gameID string) (*models.GameSession, error) {
	out := new(GetSessionReply)
	if err := c.conn.Invoke(ctx, methodGetSession, &GetSessionRequest{GameID: gameID}, out, grpc.ForceCodec(jsonCodec{})); err != nil {
		return nil, err
	}
	return out.Session, nil
}

func (c *AdminClient) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	out := new(GetPlayerStatsReply)
	if err := c.conn.Invoke(ctx, methodGetPlayerStats, &GetPlayerStatsRequest{UserID: userID}, out, grpc.ForceCodec(jsonCodec{})); err != nil {
		return nil, err
	}
	return out.Stats, nil
}
