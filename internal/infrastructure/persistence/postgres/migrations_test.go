package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := GetMigrations()

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, strings.TrimSpace(m.UpSQL), "migration %d has no up SQL", m.Version)
		assert.NotEmpty(t, strings.TrimSpace(m.DownSQL), "migration %d has no down SQL", m.Version)
	}
}

func TestMigrations_StatusConstraintsMatchDomain(t *testing.T) {
	up := migration003Up
	for _, status := range []string{"not_eligible", "pending", "auto_approved", "approved", "rejected"} {
		assert.Contains(t, up, "'"+status+"'")
	}
	assert.Contains(t, migration002Up, "'active', 'paused', 'completed'")
}
