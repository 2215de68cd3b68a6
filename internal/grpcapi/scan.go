// Package grpcapi serves the gate scan operation over gRPC for tablets that
// keep a long-lived connection.
//
// The service is described by hand rather than generated: requests are
// google.protobuf.StringValue (the QR payload) and responses are
// google.protobuf.Struct mirroring the JSON scan response.
//
//	service GateScan {
//	  rpc Scan(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	}
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/BrandonDHaskell/gatepass/server/internal/gatepass/types"
)

const (
	ServiceName    = "gatepass.v1.GateScan"
	ScanFullMethod = "/" + ServiceName + "/Scan"
)

// GateScanServer is implemented by Server.
type GateScanServer interface {
	Scan(ctx context.Context, payload *wrapperspb.StringValue) (*structpb.Struct, error)
}

func scanHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GateScanServer).Scan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ScanFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GateScanServer).Scan(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var gateScanServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GateScanServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Scan", Handler: scanHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gatepass/v1/scan.proto",
}

// RegisterGateScanServer registers srv on s.
func RegisterGateScanServer(s grpc.ServiceRegistrar, srv GateScanServer) {
	s.RegisterService(&gateScanServiceDesc, srv)
}

// GateScanClient calls the Scan method. The caller supplies the gate's
// bearer token as "authorization" metadata.
type GateScanClient struct {
	cc grpc.ClientConnInterface
}

func NewGateScanClient(cc grpc.ClientConnInterface) *GateScanClient {
	return &GateScanClient{cc: cc}
}

func (c *GateScanClient) Scan(ctx context.Context, payload string, opts ...grpc.CallOption) (types.ScanResponse, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ScanFullMethod, wrapperspb.String(payload), out, opts...); err != nil {
		return types.ScanResponse{}, err
	}
	return scanResponseFromStruct(out), nil
}

// ── Struct conversion ────────────────────────────────────────────────────────

func scanResponseToStruct(r types.ScanResponse) (*structpb.Struct, error) {
	m := map[string]any{"result": r.Result}
	if r.Reason != "" {
		m["reason"] = r.Reason
	}
	if r.Code != "" {
		m["code"] = r.Code
	}
	if r.Message != "" {
		m["message"] = r.Message
	}
	if d := r.PassDetails; d != nil {
		m["pass_details"] = map[string]any{
			"pass_id": d.PassID,
			"user":    d.UserID,
			"site":    d.SiteID,
			"purpose": d.PurposeID,
		}
	}
	return structpb.NewStruct(m)
}

func scanResponseFromStruct(s *structpb.Struct) types.ScanResponse {
	f := s.GetFields()
	resp := types.ScanResponse{
		Result:  f["result"].GetStringValue(),
		Reason:  f["reason"].GetStringValue(),
		Code:    f["code"].GetStringValue(),
		Message: f["message"].GetStringValue(),
	}
	if d := f["pass_details"].GetStructValue(); d != nil {
		df := d.GetFields()
		resp.PassDetails = &types.PassDetails{
			PassID:    df["pass_id"].GetStringValue(),
			UserID:    df["user"].GetStringValue(),
			SiteID:    df["site"].GetStringValue(),
			PurposeID: df["purpose"].GetStringValue(),
		}
	}
	return resp
}
