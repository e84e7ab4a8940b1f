package run_test

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/quartz/cmd/run"
	"github.com/jonesrussell/quartz/internal/store/sqlstore"
)

// Every driver name config validation accepts must be registered, or a
// valid configuration could never connect.
func TestRegisteredDrivers(t *testing.T) {
	t.Parallel()

	drivers := sql.Drivers()
	assert.Contains(t, drivers, "postgres")
	assert.Contains(t, drivers, "sqlserver")
}

func TestDialect(t *testing.T) {
	t.Parallel()

	assert.IsType(t, sqlstore.SQLServerDialect{}, run.Dialect("sqlserver"))
	assert.IsType(t, sqlstore.PostgresDialect{}, run.Dialect("postgres"))
	assert.IsType(t, sqlstore.PostgresDialect{}, run.Dialect(""))
}
