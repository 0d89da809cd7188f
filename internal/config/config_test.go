package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "sqlite", cfg.Database.Backend)
	assert.Equal(t, 10, cfg.Scanner.SimilarityThreshold)
	assert.Contains(t, cfg.Scanner.ImageExtensions, ".jpg")
	assert.Equal(t, 256, cfg.Thumbnail.Size)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CLEPHO_CONFIG", filepath.Join(t.TempDir(), "does-not-exist.toml"))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Backend)
}

func TestLoadOverlaysTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	const doc = `
[database]
backend = "postgresql"
postgresql_url = "postgres://example/db"

[scanner]
similarity_threshold = 20
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv("CLEPHO_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgresql", cfg.Database.Backend)
	assert.Equal(t, "postgres://example/db", cfg.Database.PostgreSQLURL)
	assert.Equal(t, 20, cfg.Scanner.SimilarityThreshold)
	// Defaults not present in the TOML overlay survive untouched.
	assert.Equal(t, 256, cfg.Thumbnail.Size)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Backend = "mongodb"
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresPostgresURL(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Backend = "postgresql"
	cfg.Database.PostgreSQLURL = ""
	assert.Error(t, cfg.Validate())
}

func TestGetModelPricingFallsBackToZero(t *testing.T) {
	cfg := Defaults()
	cfg.Prices = PricesConfig{Models: map[string]ModelPricing{
		"known": {Standard: RequestPricing{Input: 1, Output: 2}},
	}}
	assert.Equal(t, 1.0, cfg.GetModelPricing("known").Standard.Input)
	assert.Equal(t, ModelPricing{}, cfg.GetModelPricing("unknown"))
}
