package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMinerConfigFillsBaselineValues(t *testing.T) {
	cfg := DefaultMinerConfig()
	assert.Equal(t, 1, cfg.Dias)
	assert.Equal(t, 1, cfg.Paginas)
	assert.Equal(t, 50, cfg.Tamanho)
	assert.Equal(t, 10000, cfg.MaxPrimaryRows)
	assert.Equal(t, "configs/taxonomy.yaml", cfg.TaxonomyPath)
}

func TestValidateRejectsMissingDatabaseURL(t *testing.T) {
	cfg := DefaultMinerConfig()
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateAcceptsFullyResolvedConfig(t *testing.T) {
	cfg := DefaultMinerConfig()
	cfg.DatabaseURL = "postgres://localhost/achesucatas"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsTamanhoAboveMax(t *testing.T) {
	cfg := DefaultMinerConfig()
	cfg.DatabaseURL = "postgres://localhost/achesucatas"
	cfg.Tamanho = 501
	assert.Error(t, cfg.Validate())
}

func TestLoadEnvLayersOverDefaultsWithoutOverwritingUnsetVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MAX_PRIMARY_ROWS", "500")

	cfg := DefaultMinerConfig()
	cfg.LoadEnv()

	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, 500, cfg.MaxPrimaryRows)
	assert.Equal(t, "editais-pdfs", cfg.StorageBucket, "unset env var must not clobber the default")
}

func TestLoadEnvLayersRedisURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg := DefaultMinerConfig()
	cfg.LoadEnv()

	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoadEnvSplitsMultipleSearchTerms(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("PNCP_SEARCH_TERMS", "sucata|leilao de veiculos")

	cfg := DefaultMinerConfig()
	cfg.LoadEnv()

	assert.Equal(t, []string{"sucata", "leilao de veiculos"}, cfg.PNCPSearchTerms)
}

func TestLoadSourcesParsesAndValidatesEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: pncp
    kind: pncp
    base_url: https://pncp.gov.br/api/search
    termo: sucata
  - name: sodresantoro
    kind: sitemap
    base_url: https://www.sodresantoro.com.br/sitemap.xml
    lot_url_pattern: '/leilao/(\d+)/lote/(\d+)'
    category_keywords: ["veiculos"]
`), 0o644))

	sources, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, SourceKindPNCP, sources[0].Kind)
	assert.Equal(t, SourceKindSitemap, sources[1].Kind)
}

func TestLoadSourcesRejectsInvalidKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: bad
    kind: carrier-pigeon
    base_url: https://example.com
`), 0o644))

	_, err := LoadSources(path)
	assert.Error(t, err)
}

func TestLoadSourcesRejectsMissingBaseURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: bad
    kind: pncp
`), 0o644))

	_, err := LoadSources(path)
	assert.Error(t, err)
}

func TestLoadSourcesErrorsOnMissingFile(t *testing.T) {
	_, err := LoadSources(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
