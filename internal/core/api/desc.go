package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * Service descriptor for formkeeper.v1.RuleEngine.
 *
 * Every method takes and returns a google.protobuf.Struct whose fields follow
 * the JSON shape of internal/types (the same shape bundle files use), so no
 * generated stubs are needed and form renderers can speak it from any
 * language with a Struct-capable client. Request and response fields are
 * documented on the handlers in service.go.
 */

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "formkeeper.v1.RuleEngine"

// Method names, also used as the method label on request metrics.
const (
	MethodEvaluate    = "/" + ServiceName + "/Evaluate"
	MethodIsVisible   = "/" + ServiceName + "/IsVisible"
	MethodExplainRule = "/" + ServiceName + "/ExplainRule"
	MethodListRules   = "/" + ServiceName + "/ListRules"
	MethodUpsertRule  = "/" + ServiceName + "/UpsertRule"
	MethodToggleRule  = "/" + ServiceName + "/ToggleRule"
	MethodDeleteRule  = "/" + ServiceName + "/DeleteRule"
)

// RuleEngineServer is the server API for formkeeper.v1.RuleEngine.
type RuleEngineServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IsVisible(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExplainRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpsertRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(RuleEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RuleEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RuleEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RuleEngineServiceDesc describes formkeeper.v1.RuleEngine for grpc.Server.RegisterService.
var RuleEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuleEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: unaryHandler(MethodEvaluate, RuleEngineServer.Evaluate)},
		{MethodName: "IsVisible", Handler: unaryHandler(MethodIsVisible, RuleEngineServer.IsVisible)},
		{MethodName: "ExplainRule", Handler: unaryHandler(MethodExplainRule, RuleEngineServer.ExplainRule)},
		{MethodName: "ListRules", Handler: unaryHandler(MethodListRules, RuleEngineServer.ListRules)},
		{MethodName: "UpsertRule", Handler: unaryHandler(MethodUpsertRule, RuleEngineServer.UpsertRule)},
		{MethodName: "ToggleRule", Handler: unaryHandler(MethodToggleRule, RuleEngineServer.ToggleRule)},
		{MethodName: "DeleteRule", Handler: unaryHandler(MethodDeleteRule, RuleEngineServer.DeleteRule)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "formkeeper/v1/rule_engine.proto",
}

// RegisterRuleEngineServer attaches srv to s.
func RegisterRuleEngineServer(s grpc.ServiceRegistrar, srv RuleEngineServer) {
	s.RegisterService(&RuleEngineServiceDesc, srv)
}

// RuleEngineClient calls formkeeper.v1.RuleEngine over a client connection.
type RuleEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewRuleEngineClient wraps cc.
func NewRuleEngineClient(cc grpc.ClientConnInterface) *RuleEngineClient {
	return &RuleEngineClient{cc: cc}
}

// Call invokes one of the Method* names with a Struct request.
func (c *RuleEngineClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
