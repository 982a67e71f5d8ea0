package store

import (
	"context"

	"github.com/pashagolub/pgxmock/v4"
)

// setupMockContext places the mock where conn() looks for an active
// transaction, so store methods run against the mock without a pool.
func setupMockContext(mock pgxmock.PgxPoolIface) context.Context {
	return context.WithValue(context.Background(), txKey{}, mock)
}
