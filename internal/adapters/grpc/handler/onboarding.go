package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ogurasousui/codex-onboarding/internal/core/onboarding"
)

// OnboardingServiceName は公開する gRPC サービス名です。
const OnboardingServiceName = "onboarding.v1.OnboardingService"

// OnboardingServiceServer は OnboardingService の各 RPC を表します。
// リクエストとレスポンスは google.protobuf.Struct で表現します。
type OnboardingServiceServer interface {
	CreateCase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetCase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateTaskStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CancelCase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// OnboardingServiceDesc は OnboardingService の grpc.ServiceDesc です。
var OnboardingServiceDesc = grpc.ServiceDesc{
	ServiceName: OnboardingServiceName,
	HandlerType: (*OnboardingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateCase", Handler: unaryHandler("CreateCase", OnboardingServiceServer.CreateCase)},
		{MethodName: "GetCase", Handler: unaryHandler("GetCase", OnboardingServiceServer.GetCase)},
		{MethodName: "UpdateTaskStatus", Handler: unaryHandler("UpdateTaskStatus", OnboardingServiceServer.UpdateTaskStatus)},
		{MethodName: "CancelCase", Handler: unaryHandler("CancelCase", OnboardingServiceServer.CancelCase)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "onboarding/v1/onboarding.proto",
}

// RegisterOnboardingServiceServer は OnboardingService をサーバーへ登録します。
func RegisterOnboardingServiceServer(s grpc.ServiceRegistrar, srv OnboardingServiceServer) {
	s.RegisterService(&OnboardingServiceDesc, srv)
}

// FullMethodName は RPC 名からフルメソッド名を組み立てます。
func FullMethodName(method string) string {
	return "/" + OnboardingServiceName + "/" + method
}

type unaryCall func(OnboardingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	fullMethod := FullMethodName(method)
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OnboardingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(OnboardingServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OnboardingGrpcHandler は OnboardingService の gRPC 実装です。
type OnboardingGrpcHandler struct {
	svc onboarding.UseCase
}

var _ OnboardingServiceServer = (*OnboardingGrpcHandler)(nil)

// NewOnboardingGrpcHandler は OnboardingGrpcHandler を生成します。
func NewOnboardingGrpcHandler(svc onboarding.UseCase) *OnboardingGrpcHandler {
	return &OnboardingGrpcHandler{svc: svc}
}

// CreateCase はケースを作成します。
func (h *OnboardingGrpcHandler) CreateCase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	in, err := toCreateCaseInput(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	created, err := h.svc.CreateCase(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toCaseResponse(created)
}

// GetCase はケースを取得します。
func (h *OnboardingGrpcHandler) GetCase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	found, err := h.svc.GetCase(ctx, onboarding.GetCaseInput{CaseID: stringField(req, "case_id")})
	if err != nil {
		return nil, toStatusError(err)
	}
	return toCaseResponse(found)
}

// UpdateTaskStatus はタスクの状態を更新します。
func (h *OnboardingGrpcHandler) UpdateTaskStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	completedBy, err := optionalStringField(req, "completed_by")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	updated, err := h.svc.UpdateTaskStatus(ctx, onboarding.UpdateTaskStatusInput{
		CaseID:      stringField(req, "case_id"),
		TaskID:      stringField(req, "task_id"),
		Status:      onboarding.TaskStatus(stringField(req, "status")),
		CompletedBy: completedBy,
	})
	if err != nil {
		return nil, toStatusError(err)
	}
	return toCaseResponse(updated)
}

// CancelCase はケースを中止します。
func (h *OnboardingGrpcHandler) CancelCase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	cancelled, err := h.svc.CancelCase(ctx, onboarding.CancelCaseInput{CaseID: stringField(req, "case_id")})
	if err != nil {
		return nil, toStatusError(err)
	}
	return toCaseResponse(cancelled)
}
