package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Equal(t, "0001_core", migrations[0].Version)

	core := migrations[0].SQL
	for _, constraint := range []string{
		"orders_source_invoice_key",
		"payments_source_invoice_key",
		"shipments_order_key",
		"accounting_entries_reference_key",
		"PRIMARY KEY (company_id, kind, bucket)",
	} {
		require.True(t, strings.Contains(core, constraint), "missing %s", constraint)
	}
}

func TestMigrationsSorted(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	for i := 1; i < len(migrations); i++ {
		require.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
}
