package database

import (
	"testing"

	"insureconnect/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}

	err = configurePool(db, cfg)
	assert.NoError(t, err)
}

func TestSchemaPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      *config.Config
		wantSQL  bool
		wantAuto bool
		wantErr  bool
	}{
		{
			name:     "hybrid in development",
			cfg:      &config.Config{DBSchemaMode: "hybrid", Env: "development"},
			wantSQL:  true,
			wantAuto: true,
		},
		{
			name:     "hybrid in production",
			cfg:      &config.Config{DBSchemaMode: "hybrid", Env: "production"},
			wantSQL:  true,
			wantAuto: false,
		},
		{
			name:     "sql only",
			cfg:      &config.Config{DBSchemaMode: "sql", Env: "production"},
			wantSQL:  true,
			wantAuto: false,
		},
		{
			name:    "auto refused in production",
			cfg:     &config.Config{DBSchemaMode: "auto", Env: "production"},
			wantErr: true,
		},
		{
			name:     "auto allowed in development",
			cfg:      &config.Config{DBSchemaMode: "auto", Env: "development"},
			wantSQL:  false,
			wantAuto: true,
		},
		{
			name:    "unknown mode",
			cfg:     &config.Config{DBSchemaMode: "yolo", Env: "development"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runSQL, runAuto, err := schemaPolicy(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, runSQL)
			assert.Equal(t, tt.wantAuto, runAuto)
		})
	}
}

func TestMigrationsRegistered(t *testing.T) {
	t.Parallel()

	ms := GetMigrations()
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "init", ms[0].Name)
	assert.Contains(t, ms[0].UpScript, "token_transactions")
	assert.Contains(t, ms[0].DownScript, "DROP TABLE")
}
