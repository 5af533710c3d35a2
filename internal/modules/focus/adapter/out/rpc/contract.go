package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	PluginMapKey            = "notifier"
	serviceName             = "pledge.notifier.v1.Notifier"
	jsonCodecName           = "json"
	methodPermission        = "/" + serviceName + "/Permission"
	methodRequestPermission = "/" + serviceName + "/RequestPermission"
	methodNotify            = "/" + serviceName + "/Notify"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PLEDGE_NOTIFIER",
	MagicCookieValue: "pledge",
}

// jsonCodec lets the plugin speak gRPC without generated protobuf types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

type PermissionResponse struct {
	Permission string `json:"permission"`
}

type NotifyRequest struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

type NotifyResponse struct {
	Delivered bool `json:"delivered"`
}

type NotifierServer interface {
	Permission(ctx context.Context, in *Empty) (*PermissionResponse, error)
	RequestPermission(ctx context.Context, in *Empty) (*PermissionResponse, error)
	Notify(ctx context.Context, in *NotifyRequest) (*NotifyResponse, error)
}

type NotifierClient interface {
	Permission(ctx context.Context) (*PermissionResponse, error)
	RequestPermission(ctx context.Context) (*PermissionResponse, error)
	Notify(ctx context.Context, in *NotifyRequest) (*NotifyResponse, error)
}

type notifierClient struct {
	conn *grpc.ClientConn
}

func NewNotifierClient(conn *grpc.ClientConn) NotifierClient {
	return &notifierClient{conn: conn}
}

func (c *notifierClient) Permission(ctx context.Context) (*PermissionResponse, error) {
	out := &PermissionResponse{}
	if err := c.conn.Invoke(ctx, methodPermission, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *notifierClient) RequestPermission(ctx context.Context) (*PermissionResponse, error) {
	out := &PermissionResponse{}
	if err := c.conn.Invoke(ctx, methodRequestPermission, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *notifierClient) Notify(ctx context.Context, in *NotifyRequest) (*NotifyResponse, error) {
	out := &NotifyResponse{}
	if err := c.conn.Invoke(ctx, methodNotify, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterNotifierServer(server grpc.ServiceRegistrar, impl NotifierServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*NotifierServer)(nil),
		Methods: []grpc.MethodDesc{
			unary("Permission", func(ctx context.Context, in *Empty) (any, error) { return impl.Permission(ctx, in) }),
			unary("RequestPermission", func(ctx context.Context, in *Empty) (any, error) { return impl.RequestPermission(ctx, in) }),
			unary("Notify", func(ctx context.Context, in *NotifyRequest) (any, error) { return impl.Notify(ctx, in) }),
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "schemas/notifier-rpc-v1.proto",
	}, impl)
}

// unary builds a method descriptor that decodes Req and dispatches to call,
// honouring any server interceptor.
func unary[Req any](name string, call func(context.Context, *Req) (any, error)) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				typed, ok := req.(*Req)
				if !ok {
					return nil, fmt.Errorf("invalid request type for %s", name)
				}
				return call(ctx, typed)
			})
		},
	}
}

type GRPCPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl NotifierServer
}

func (p *GRPCPlugin) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterNotifierServer(server, p.Impl)
	return nil
}

func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewNotifierClient(conn), nil
}

func PluginMap(impl NotifierServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginMapKey: &GRPCPlugin{Impl: impl},
	}
}
