package employee

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ogurasousui/codex-onboarding/internal/core/onboarding"
)

// ExistsMethod は社員ディレクトリの存在確認 RPC のフルメソッド名です。
const ExistsMethod = "/employee.v1.EmployeeDirectory/Exists"

// Client は社員ディレクトリ gRPC サービスを用いて社員 ID を検証します。
type Client struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

var _ onboarding.EmployeeValidator = (*Client)(nil)

// NewClient は既存のコネクションから Client を生成します。timeout が 0 以下なら呼び出し元の期限のみに従います。
func NewClient(conn grpc.ClientConnInterface, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout}
}

// Dial は addr への平文コネクションを作成します。
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("employee directory: dial %s: %w", addr, err)
	}
	return conn, nil
}

// Exists は社員 ID が登録済みかを問い合わせます。NotFound は false として扱い、その他の失敗は ErrDependencyUnavailable です。
func (c *Client) Exists(ctx context.Context, employeeID string) (bool, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := &wrapperspb.BoolValue{}
	err := c.conn.Invoke(ctx, ExistsMethod, wrapperspb.String(employeeID), out)
	if err == nil {
		return out.GetValue(), nil
	}

	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	return false, fmt.Errorf("%w: employee directory: %v", onboarding.ErrDependencyUnavailable, err)
}
