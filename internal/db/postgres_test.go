package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ricirt/pigeonpost/internal/db"
)

func TestMigrationURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/pigeon":   "pgx5://u:p@localhost:5432/pigeon",
		"postgresql://u:p@localhost:5432/pigeon": "pgx5://u:p@localhost:5432/pigeon",
		"u:p@localhost/pigeon":                   "pgx5://u:p@localhost/pigeon",
	}
	for in, want := range tests {
		assert.Equal(t, want, db.MigrationURL(in), in)
	}
}
