package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildmembers/migrations"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Initialize(filepath.Join(t.TempDir(), "members.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS))
	return db
}

func TestRunMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	db := openTestDB(t)

	tables := []string{
		"sites", "users", "emails", "phones", "members", "member_emails", "member_phones",
		"memberships", "membership_tags", "payments", "temporary_members",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	var domain string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT domain FROM sites WHERE id = 1").Scan(&domain))
	assert.Equal(t, "example.com", domain)

	// a second run is a no-op
	require.NoError(t, db.RunMigrations(ctx, migrations.FS))
	var runs int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&runs))
	assert.Equal(t, 1, runs)
}

func TestWithTx(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	db := openTestDB(t)

	countEmails := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM emails").Scan(&n))
		return n
	}

	t.Run("commit", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *Tx) error {
			id, err := tx.ExecReturningID(ctx, "INSERT INTO emails (email) VALUES (?)", "kept@guild.test")
			assert.Positive(t, id)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countEmails())
	})

	t.Run("rollback returns the callback error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO emails (email) VALUES (?)", "lost@guild.test"); err != nil {
				return err
			}
			return boom
		})
		assert.Same(t, boom, err)
		assert.Equal(t, 1, countEmails())
	})
}

func TestForeignKeysEnforced(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db := openTestDB(t)

	_, err := db.ExecContext(context.Background(), "INSERT INTO member_emails (member_id, email_id) VALUES (?, ?)", 999, 999)
	assert.Error(t, err)
}

func TestUniqueViolationFromDriver(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, "INSERT INTO users (username) VALUES (?)", "1")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO users (username) VALUES (?)", "1")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(db, err))
}
