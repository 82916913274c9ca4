package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/crosspost/crosspost/internal/models"
)

// dryRun returns a session that builds statements without a server
func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=crosspost dbname=crosspost sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return conn
}

func TestInsertKeepsUnadaptedFlag(t *testing.T) {
	entry := models.AdaptedContent{
		ID:            "e1",
		PostID:        "p1",
		Platform:      models.PlatformReddit,
		Content:       "original text",
		Adapted:       false,
		PublishStatus: models.PublishPending,
	}

	stmt := dryRun(t).Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Statement
	require.NoError(t, stmt.Error)

	assert.False(t, entry.Adapted)
	assert.False(t, entry.IsApproved)
	assert.Contains(t, stmt.SQL.String(), `"adapted"`)
	assert.NotContains(t, stmt.Vars, true)
}

func TestInsertKeepsInactiveAccount(t *testing.T) {
	acc := models.SocialAccount{
		ID:          "a1",
		UserID:      "u1",
		Platform:    models.PlatformReddit,
		ExternalID:  "t2_1",
		Username:    "gopher",
		AccessToken: "at",
		IsActive:    false,
	}

	stmt := dryRun(t).Clauses(clause.OnConflict{UpdateAll: true}).Create(&acc).Statement
	require.NoError(t, stmt.Error)

	assert.False(t, acc.IsActive)
	assert.Contains(t, stmt.SQL.String(), `"is_active"`)
	assert.NotContains(t, stmt.Vars, true)
}
