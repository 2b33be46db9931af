package parser

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"port-policy-auditor/internal/model"
)

var schema = []string{
	"DROP TABLE IF EXISTS inv_server",
	"DROP TABLE IF EXISTS inv_role",
	`CREATE TABLE inv_role (
		priority INT NOT NULL,
		role_name VARCHAR(64) NOT NULL,
		services TEXT NULL
	)`,
	`CREATE TABLE inv_server (
		role_name VARCHAR(64) NOT NULL,
		server_name VARCHAR(255) NOT NULL,
		position INT NOT NULL
	)`,
}

func setupSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, stmt := range schema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func seedInventory(t *testing.T, db *sql.DB) {
	t.Helper()
	inserts := []struct {
		query string
		args  []any
	}{
		{"INSERT INTO inv_role (priority, role_name, services) VALUES (?, ?, ?)", []any{20, "db", `{"postgresql": true, "ssh": false}`}},
		{"INSERT INTO inv_role (priority, role_name, services) VALUES (?, ?, ?)", []any{10, "web", `{"http": true, "https": true, "other": {"8080": false}}`}},
		{"INSERT INTO inv_role (priority, role_name, services) VALUES (?, ?, ?)", []any{30, "bastion", nil}},
		{"INSERT INTO inv_server (role_name, server_name, position) VALUES (?, ?, ?)", []any{"web", "web2", 2}},
		{"INSERT INTO inv_server (role_name, server_name, position) VALUES (?, ?, ?)", []any{"web", "web1", 1}},
		{"INSERT INTO inv_server (role_name, server_name, position) VALUES (?, ?, ?)", []any{"db", "db1", 1}},
		{"INSERT INTO inv_server (role_name, server_name, position) VALUES (?, ?, ?)", []any{"orphan", "lost1", 1}},
	}
	for _, ins := range inserts {
		_, err := db.Exec(ins.query, ins.args...)
		require.NoError(t, err)
	}
}

func assertSeededRoles(t *testing.T, roles []model.Role) {
	t.Helper()
	require.Len(t, roles, 3)

	assert.Equal(t, "web", roles[0].Name)
	assert.Equal(t, []string{"web1", "web2"}, roles[0].Servers)
	assert.Equal(t, model.PortPolicy{80: true, 443: true, 8080: false}, roles[0].Policy())

	assert.Equal(t, "db", roles[1].Name)
	assert.Equal(t, []string{"db1"}, roles[1].Servers)
	assert.Equal(t, model.PortPolicy{22: false, 5432: true}, roles[1].Policy())

	assert.Equal(t, "bastion", roles[2].Name)
	assert.Empty(t, roles[2].Servers)
	assert.Empty(t, roles[2].Policy())
}

func newSQLiteFile(t *testing.T) (string, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	setupSchema(t, db)
	return path, db
}

func TestSQLiteInventoryParse(t *testing.T) {
	path, db := newSQLiteFile(t)
	seedInventory(t, db)

	p, err := NewSQLiteInventory(path)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Parse())
	assertSeededRoles(t, p.Roles)
}

func TestSQLiteInventoryRejectsInvalidServicesJSON(t *testing.T) {
	path, db := newSQLiteFile(t)
	_, err := db.Exec("INSERT INTO inv_role (priority, role_name, services) VALUES (1, 'web', '{not json')")
	require.NoError(t, err)

	p, err := NewSQLiteInventory(path)
	require.NoError(t, err)
	defer p.Close()

	err = p.Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid services")
}

func TestSQLiteInventoryMissingTables(t *testing.T) {
	p, err := NewSQLiteInventory(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer p.Close()

	assert.Error(t, p.Parse())
}

func TestMariaDBInventoryParse(t *testing.T) {
	dsn := os.Getenv("PORTAUDIT_TEST_MARIADB_DSN")
	if dsn == "" {
		dsn = "root:static@tcp(127.0.0.1:3306)/inventory"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("failed to connect to MariaDB: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Skipf("MariaDB not reachable: %v", err)
	}

	setupSchema(t, db)
	seedInventory(t, db)

	p, err := NewMariaDBInventory(dsn)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Parse())
	assertSeededRoles(t, p.Roles)
}

func TestNewMariaDBInventoryErrors(t *testing.T) {
	_, err := NewMariaDBInventory("invalid-dsn")
	assert.Error(t, err)
}
