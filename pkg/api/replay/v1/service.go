package replayv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "cartridge.replay.v1.Replay"

const (
	Replay_StoreTransition_FullMethodName  = "/" + ServiceName + "/StoreTransition"
	Replay_StoreBatch_FullMethodName       = "/" + ServiceName + "/StoreBatch"
	Replay_Sample_FullMethodName           = "/" + ServiceName + "/Sample"
	Replay_UpdatePriorities_FullMethodName = "/" + ServiceName + "/UpdatePriorities"
	Replay_KeepPriorities_FullMethodName   = "/" + ServiceName + "/KeepPriorities"
	Replay_DrainNew_FullMethodName         = "/" + ServiceName + "/DrainNew"
	Replay_GetStats_FullMethodName         = "/" + ServiceName + "/GetStats"
	Replay_Clear_FullMethodName            = "/" + ServiceName + "/Clear"
)

// ReplayServer is the server API for the Replay service.
type ReplayServer interface {
	StoreTransition(context.Context, *StoreTransitionRequest) (*StoreTransitionResponse, error)
	StoreBatch(context.Context, *StoreBatchRequest) (*StoreBatchResponse, error)
	Sample(context.Context, *SampleRequest) (*SampleResponse, error)
	UpdatePriorities(context.Context, *UpdatePrioritiesRequest) (*UpdatePrioritiesResponse, error)
	KeepPriorities(context.Context, *KeepPrioritiesRequest) (*KeepPrioritiesResponse, error)
	DrainNew(context.Context, *DrainNewRequest) (*DrainNewResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error)
	Clear(context.Context, *ClearRequest) (*ClearResponse, error)
}

// UnimplementedReplayServer can be embedded to have forward compatible implementations.
type UnimplementedReplayServer struct{}

func (UnimplementedReplayServer) StoreTransition(context.Context, *StoreTransitionRequest) (*StoreTransitionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StoreTransition not implemented")
}
func (UnimplementedReplayServer) StoreBatch(context.Context, *StoreBatchRequest) (*StoreBatchResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StoreBatch not implemented")
}
func (UnimplementedReplayServer) Sample(context.Context, *SampleRequest) (*SampleResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Sample not implemented")
}
func (UnimplementedReplayServer) UpdatePriorities(context.Context, *UpdatePrioritiesRequest) (*UpdatePrioritiesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdatePriorities not implemented")
}
func (UnimplementedReplayServer) KeepPriorities(context.Context, *KeepPrioritiesRequest) (*KeepPrioritiesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method KeepPriorities not implemented")
}
func (UnimplementedReplayServer) DrainNew(context.Context, *DrainNewRequest) (*DrainNewResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DrainNew not implemented")
}
func (UnimplementedReplayServer) GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStats not implemented")
}
func (UnimplementedReplayServer) Clear(context.Context, *ClearRequest) (*ClearResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Clear not implemented")
}

// RegisterReplayServer registers srv with s.
func RegisterReplayServer(s grpc.ServiceRegistrar, srv ReplayServer) {
	s.RegisterService(&Replay_ServiceDesc, srv)
}

// methodHandler has the shape of grpc.MethodDesc.Handler.
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

// unaryHandler adapts a typed ReplayServer method to a grpc.MethodDesc handler.
func unaryHandler[Req, Resp any](fullMethod string, call func(ReplayServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReplayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ReplayServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Replay_ServiceDesc is the grpc.ServiceDesc for the Replay service.
var Replay_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReplayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StoreTransition", Handler: unaryHandler(Replay_StoreTransition_FullMethodName, ReplayServer.StoreTransition)},
		{MethodName: "StoreBatch", Handler: unaryHandler(Replay_StoreBatch_FullMethodName, ReplayServer.StoreBatch)},
		{MethodName: "Sample", Handler: unaryHandler(Replay_Sample_FullMethodName, ReplayServer.Sample)},
		{MethodName: "UpdatePriorities", Handler: unaryHandler(Replay_UpdatePriorities_FullMethodName, ReplayServer.UpdatePriorities)},
		{MethodName: "KeepPriorities", Handler: unaryHandler(Replay_KeepPriorities_FullMethodName, ReplayServer.KeepPriorities)},
		{MethodName: "DrainNew", Handler: unaryHandler(Replay_DrainNew_FullMethodName, ReplayServer.DrainNew)},
		{MethodName: "GetStats", Handler: unaryHandler(Replay_GetStats_FullMethodName, ReplayServer.GetStats)},
		{MethodName: "Clear", Handler: unaryHandler(Replay_Clear_FullMethodName, ReplayServer.Clear)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cartridge/replay/v1/replay.json",
}

// ReplayClient is the client API for the Replay service.
type ReplayClient interface {
	StoreTransition(ctx context.Context, in *StoreTransitionRequest, opts ...grpc.CallOption) (*StoreTransitionResponse, error)
	StoreBatch(ctx context.Context, in *StoreBatchRequest, opts ...grpc.CallOption) (*StoreBatchResponse, error)
	Sample(ctx context.Context, in *SampleRequest, opts ...grpc.CallOption) (*SampleResponse, error)
	UpdatePriorities(ctx context.Context, in *UpdatePrioritiesRequest, opts ...grpc.CallOption) (*UpdatePrioritiesResponse, error)
	KeepPriorities(ctx context.Context, in *KeepPrioritiesRequest, opts ...grpc.CallOption) (*KeepPrioritiesResponse, error)
	DrainNew(ctx context.Context, in *DrainNewRequest, opts ...grpc.CallOption) (*DrainNewResponse, error)
	GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*StatsResponse, error)
	Clear(ctx context.Context, in *ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error)
}

type replayClient struct {
	cc grpc.ClientConnInterface
}

// NewReplayClient returns a client whose calls use the JSON codec.
func NewReplayClient(cc grpc.ClientConnInterface) ReplayClient {
	return &replayClient{cc}
}

func (c *replayClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	callOpts := make([]grpc.CallOption, 0, len(opts)+1)
	callOpts = append(callOpts, CallOption())
	callOpts = append(callOpts, opts...)
	return c.cc.Invoke(ctx, method, in, out, callOpts...)
}

func (c *replayClient) StoreTransition(ctx context.Context, in *StoreTransitionRequest, opts ...grpc.CallOption) (*StoreTransitionResponse, error) {
	out := new(StoreTransitionResponse)
	if err := c.invoke(ctx, Replay_StoreTransition_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) StoreBatch(ctx context.Context, in *StoreBatchRequest, opts ...grpc.CallOption) (*StoreBatchResponse, error) {
	out := new(StoreBatchResponse)
	if err := c.invoke(ctx, Replay_StoreBatch_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) Sample(ctx context.Context, in *SampleRequest, opts ...grpc.CallOption) (*SampleResponse, error) {
	out := new(SampleResponse)
	if err := c.invoke(ctx, Replay_Sample_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) UpdatePriorities(ctx context.Context, in *UpdatePrioritiesRequest, opts ...grpc.CallOption) (*UpdatePrioritiesResponse, error) {
	out := new(UpdatePrioritiesResponse)
	if err := c.invoke(ctx, Replay_UpdatePriorities_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) KeepPriorities(ctx context.Context, in *KeepPrioritiesRequest, opts ...grpc.CallOption) (*KeepPrioritiesResponse, error) {
	out := new(KeepPrioritiesResponse)
	if err := c.invoke(ctx, Replay_KeepPriorities_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) DrainNew(ctx context.Context, in *DrainNewRequest, opts ...grpc.CallOption) (*DrainNewResponse, error) {
	out := new(DrainNewResponse)
	if err := c.invoke(ctx, Replay_DrainNew_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	out := new(StatsResponse)
	if err := c.invoke(ctx, Replay_GetStats_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) Clear(ctx context.Context, in *ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error) {
	out := new(ClearResponse)
	if err := c.invoke(ctx, Replay_Clear_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
