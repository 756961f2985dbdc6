package ports

import (
	"context"
	"net/http"

	"github.com/bizobs/journeysim/pkg/domain"
)

// Caller issues the synchronous HTTP call to a worker. Implementations
// never return a Go error: every failure mode resolves into a CallResult
// with status "failed" and a populated error kind.
type Caller interface {
	Call(ctx context.Context, owner domain.OwnerKey, port int, payload map[string]any, inbound http.Header) domain.CallResult
}
