package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactDSN(t *testing.T) {
	redacted := redactDSN("postgres://gate:s3cret@db:5432/gatepass?sslmode=disable")
	assert.NotContains(t, redacted, "s3cret")
	assert.Contains(t, redacted, "gate:")
	assert.Contains(t, redacted, "@db:5432/gatepass?sslmode=disable")
	assert.Equal(t, "postgres://db:5432/gatepass", redactDSN("postgres://db:5432/gatepass"))
	assert.Equal(t, "(invalid DATABASE_URL)", redactDSN("postgres://%zz"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}
