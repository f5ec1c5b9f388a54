package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostgresDialect(t *testing.T) {
	d := NewPostgresDialect()
	q := d.UpsertSQL("cycle_trace", []string{"cycle_id", "frame"}, "cycle_id", []string{"frame"})
	assert.Equal(t, "INSERT INTO cycle_trace (cycle_id, frame) VALUES (:cycle_id, :frame) ON CONFLICT (cycle_id) DO UPDATE SET frame = EXCLUDED.frame", q)

	ddl := d.CreateTableSQL("started_at DATETIME NOT NULL, incomplete INTEGER NOT NULL DEFAULT 0, task_count INTEGER NOT NULL")
	assert.True(t, strings.Contains(ddl, "started_at TIMESTAMP NOT NULL"))
	assert.True(t, strings.Contains(ddl, "incomplete BOOLEAN NOT NULL DEFAULT FALSE"))
	assert.True(t, strings.Contains(ddl, "task_count INTEGER NOT NULL"))
}
