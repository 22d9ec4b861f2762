package store_test

import (
	"github.com/pashagolub/pgxmock/v2"

	"vortex.app/relay/core/db"
)

func newMockDB(mock pgxmock.PgxPoolIface) *db.DB {
	return db.NewWithConn(mock)
}
