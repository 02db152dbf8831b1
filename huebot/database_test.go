package huebot

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t testing.TB) DBI {
	t.Helper()
	db, err := CreateDB(
		context.Background(),
		dbTypeSQLite,
		filepath.Join(t.TempDir(), "huebot_test.sqlite3"),
		DefaultDatabaseLogLevel,
		DefaultDatabaseSlowThreshold,
	)
	require.NoError(t, err)
	t.Cleanup(
		func() {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				_ = sqlDB.Close()
			}
		},
	)
	return NewDatabase(db, nil, false)
}

func TestCreateDBMigrations(t *testing.T) {
	t.Parallel()
	db := testDB(t)

	migrator := db.DB().Migrator()
	assert.True(t, migrator.HasTable(&RoleChange{}))
	assert.True(t, migrator.HasTable(&InteractionLog{}))
}

func TestCreateDBUnknownType(t *testing.T) {
	t.Parallel()
	_, err := CreateDB(
		context.Background(),
		"mongodb",
		"whatever",
		DefaultDatabaseLogLevel,
		DefaultDatabaseSlowThreshold,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database type")
}

func TestCreateDBLoggerConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	logLevel := &slog.LevelVar{}
	logLevel.Set(slog.LevelError)
	slowThreshold := 5 * time.Second

	db, err := CreateDB(
		ctx,
		dbTypeSQLite,
		filepath.Join(t.TempDir(), "huebot_test.sqlite3"),
		logLevel,
		slowThreshold,
	)
	require.NoError(t, err)
	t.Cleanup(
		func() {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				_ = sqlDB.Close()
			}
		},
	)

	gormLogger, ok := db.Config.Logger.(*gormStructuredLogger)
	require.True(t, ok)
	assert.Equal(t, slowThreshold, gormLogger.SlowThreshold)
	assert.True(t, gormLogger.handler.Enabled(ctx, slog.LevelError))
	assert.False(t, gormLogger.handler.Enabled(ctx, slog.LevelInfo))
}

func TestRecentRoleChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)

	for i, change := range []RoleChange{
		{
			GuildID:  "guild-1",
			UserID:   "user-1",
			Username: "somebody",
			RoleName: "Crimson",
			Action:   RoleChangeAdd,
			Source:   RoleChangeSourceCommand,
		},
		{
			GuildID:  "guild-1",
			UserID:   "user-1",
			Username: "somebody",
			RoleName: "Teal",
			Action:   RoleChangeAdd,
			Source:   RoleChangeSourceCommand,
		},
		{
			GuildID:  "guild-2",
			UserID:   "user-2",
			Username: "other",
			RoleName: "Slate",
			Action:   RoleChangeRemove,
			Source:   RoleChangeSourceGateway,
		},
	} {
		// stagger timestamps so ordering is deterministic
		change.CreatedAt = int64(1700000000000 + i)
		rows, err := db.Create(ctx, &change)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)
	}

	changes, err := db.RecentRoleChanges(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	// newest first
	assert.Equal(t, "Slate", changes[0].RoleName)
	assert.Equal(t, "Crimson", changes[2].RoleName)

	changes, err = db.RecentRoleChanges(ctx, "guild-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, change := range changes {
		assert.Equal(t, "guild-1", change.GuildID)
	}

	changes, err = db.RecentRoleChanges(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "Teal", changes[0].RoleName)
}

func TestInteractionLogCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)

	i := commandInteraction("guild-1", DiscordSlashCommandColor)
	interactionLog, err := newInteractionLog(i, getDiscordUser(i))
	require.NoError(t, err)

	rows, err := db.Create(ctx, interactionLog)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	var saved InteractionLog
	require.NoError(t, db.DB().First(&saved).Error)
	assert.Equal(t, "interaction-1", saved.InteractionID)
	assert.Equal(t, "user-1", saved.UserID)
	assert.Equal(t, "guild-1", saved.GuildID)
	assert.NotEmpty(t, saved.Payload)
	assert.Positive(t, saved.CreatedAt)
}

func TestRoleChangeCreatedAt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testDB(t)

	change := RoleChange{
		GuildID:  "guild-1",
		UserID:   "user-1",
		RoleName: "Crimson",
		Action:   RoleChangeAdd,
		Source:   RoleChangeSourceCommand,
	}
	_, err := db.Create(ctx, &change)
	require.NoError(t, err)

	var saved RoleChange
	require.NoError(t, db.DB().First(&saved).Error)
	assert.Positive(t, saved.CreatedAt)
}
