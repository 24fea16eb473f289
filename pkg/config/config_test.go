package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminadata/schemagraph/pkg/apperrors"
)

func writeClientYAML(t *testing.T, dir, clientID, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, clientID+".yaml"), []byte(body), 0o644))
}

func TestLoadClient_ResolvesCredentialsFromEnv(t *testing.T) {
	dir := t.TempDir()
	writeClientYAML(t, dir, "acme", `
client_id: acme
host: db.internal
port: 5433
database: acme_prod
user_env: ACME_DB_USER
password_env: ACME_DB_PASSWORD
`)
	t.Setenv("ACME_DB_USER", "readonly")
	t.Setenv("ACME_DB_PASSWORD", "s3cret")

	cc, err := LoadClient(dir, "acme")
	require.NoError(t, err)

	assert.Equal(t, "acme", cc.ClientID)
	assert.Equal(t, "readonly", cc.User)
	assert.Equal(t, "s3cret", cc.Password)
	assert.Contains(t, cc.ConnectionString(), "host=db.internal")
	assert.Contains(t, cc.ConnectionString(), "port=5433")
	assert.Contains(t, cc.ConnectionString(), "dbname=acme_prod")
}

func TestLoadClient_MissingCredentialEnvFails(t *testing.T) {
	dir := t.TempDir()
	writeClientYAML(t, dir, "acme", `
client_id: acme
host: db.internal
database: acme_prod
user_env: ACME_MISSING_USER
password_env: ACME_MISSING_PASSWORD
`)
	os.Unsetenv("ACME_MISSING_USER")
	os.Unsetenv("ACME_MISSING_PASSWORD")

	_, err := LoadClient(dir, "acme")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfigMissing, apperrors.KindOf(err))
}

func TestLoadClient_MissingFileFails(t *testing.T) {
	_, err := LoadClient(t.TempDir(), "nobody")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfigMissing, apperrors.KindOf(err))
}

func TestLoadClient_MissingEnvNamesFail(t *testing.T) {
	dir := t.TempDir()
	writeClientYAML(t, dir, "acme", `
client_id: acme
host: db.internal
database: acme_prod
`)
	_, err := LoadClient(dir, "acme")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfigMissing, apperrors.KindOf(err))
}

func TestScaffoldClient_RoundTripsThroughLoadClient(t *testing.T) {
	dir := t.TempDir()

	path, err := ScaffoldClient(dir, "acme-prod")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "acme-prod.yaml"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password:")

	t.Setenv("ACME_PROD_DB_USER", "readonly")
	t.Setenv("ACME_PROD_DB_PASSWORD", "s3cret")

	cc, err := LoadClient(dir, "acme-prod")
	require.NoError(t, err)
	assert.Equal(t, "acme-prod", cc.ClientID)
	assert.Equal(t, "readonly", cc.User)
	assert.Equal(t, 5432, cc.Port)
}

func TestScaffoldClient_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	_, err := ScaffoldClient(dir, "acme")
	require.NoError(t, err)

	_, err = ScaffoldClient(dir, "acme")
	assert.Error(t, err)
}

func TestListClients(t *testing.T) {
	dir := t.TempDir()
	writeClientYAML(t, dir, "globex", "client_id: globex\n")
	writeClientYAML(t, dir, "acme", "client_id: acme\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))

	ids, err := ListClients(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, ids)
}

func TestRedisConfig_Addr(t *testing.T) {
	r := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", r.Addr())
}
