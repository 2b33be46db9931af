package parser

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"port-policy-auditor/internal/model"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// SQLInventory loads roles from the inv_role and inv_server tables. The same
// queries run against MariaDB and SQLite.
type SQLInventory struct {
	db *sql.DB

	Roles []model.Role
}

func NewSQLInventory(driver, dsn string) (*SQLInventory, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLInventory{db: db}, nil
}

func NewMariaDBInventory(dsn string) (*SQLInventory, error) {
	return NewSQLInventory("mysql", dsn)
}

func NewSQLiteInventory(path string) (*SQLInventory, error) {
	return NewSQLInventory("sqlite", path)
}

func (p *SQLInventory) Close() {
	p.db.Close()
}

func (p *SQLInventory) Parse() error {
	if err := p.loadRoles(); err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}
	if err := p.loadServers(); err != nil {
		return fmt.Errorf("failed to load servers: %w", err)
	}
	return validateRoles(p.Roles)
}

func (p *SQLInventory) loadRoles() error {
	rows, err := p.db.Query("SELECT role_name, services FROM inv_role ORDER BY priority ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var role model.Role
		var servicesJSON sql.NullString
		if err := rows.Scan(&role.Name, &servicesJSON); err != nil {
			return err
		}
		if servicesJSON.Valid && servicesJSON.String != "" {
			if err := json.Unmarshal([]byte(servicesJSON.String), &role.Services); err != nil {
				return fmt.Errorf("role '%s': invalid services: %w", role.Name, err)
			}
		}
		p.Roles = append(p.Roles, role)
	}
	return rows.Err()
}

func (p *SQLInventory) loadServers() error {
	rows, err := p.db.Query("SELECT role_name, server_name FROM inv_server ORDER BY position ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	index := make(map[string]int, len(p.Roles))
	for i, role := range p.Roles {
		index[role.Name] = i
	}

	for rows.Next() {
		var roleName, serverName string
		if err := rows.Scan(&roleName, &serverName); err != nil {
			return err
		}
		i, ok := index[roleName]
		if !ok {
			slog.Warn("Skipping server of unknown role", "role", roleName, "server", serverName)
			continue
		}
		p.Roles[i].Servers = append(p.Roles[i].Servers, serverName)
	}
	return rows.Err()
}
