package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ogurasousui/codex-onboarding/internal/platform/logger"
)

// RPCRecorder は RPC 1 件ごとの結果を記録します。
type RPCRecorder interface {
	RecordRPC(method, code string, elapsed time.Duration)
}

// UnaryInterceptor はメトリクス記録とアクセスログを行う interceptor を返します。
func UnaryInterceptor(rec RPCRecorder, log *logger.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = logger.Nop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		if rec != nil {
			rec.RecordRPC(info.FullMethod, code.String(), elapsed)
		}

		switch code {
		case codes.OK:
			log.Debug("rpc handled", "method", info.FullMethod, "elapsed", elapsed)
		case codes.Internal, codes.Unknown, codes.Unavailable, codes.Aborted:
			log.Error("rpc failed", "method", info.FullMethod, "code", code.String(), "error", err, "elapsed", elapsed)
		default:
			log.Info("rpc rejected", "method", info.FullMethod, "code", code.String(), "error", err)
		}
		return resp, err
	}
}
