package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Query names a statement whose text depends on the engine.
type Query int

const (
	AllPages Query = iota
	AllPagesData
	GetPage
	GetPageByID
	CreatePage
	SavePage
	DeletePage
	GetUser
	CreateUser
	AddUserRole
	UserRoles
	UserPermissions
	SeedRolePermission
)

// Dialect holds the schema and statements for one database engine.
type Dialect struct {
	Name   string
	Schema []string
	// Returning is set when CreatePage yields the new id as a row.
	Returning bool
	queries   map[Query]string
}

// SQL returns the statement text for q.
func (d Dialect) SQL(q Query) string {
	return d.queries[q]
}

// DialectFor returns the dialect matching a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return sqliteDialect, nil
	case "postgres", "pgx":
		return postgresDialect, nil
	case "mysql":
		return mysqlDialect, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q (supported: sqlite3, postgres, pgx, mysql)", driver)
	}
}

var baseQueries = map[Query]string{
	AllPages:        "SELECT name FROM pages ORDER BY name",
	AllPagesData:    "SELECT id, name, content FROM pages ORDER BY name",
	GetPage:         "SELECT id, content FROM pages WHERE name = ?",
	GetPageByID:     "SELECT id, name, content FROM pages WHERE id = ?",
	CreatePage:      "INSERT INTO pages (name, content) VALUES (?, ?)",
	SavePage:        "UPDATE pages SET content = ? WHERE id = ?",
	DeletePage:      "DELETE FROM pages WHERE id = ?",
	GetUser:         "SELECT id, username, password_hash FROM users WHERE username = ?",
	CreateUser:      "INSERT INTO users (username, password_hash) VALUES (?, ?)",
	AddUserRole:     "INSERT INTO user_roles (username, role) VALUES (?, ?)",
	UserRoles:       "SELECT role FROM user_roles WHERE username = ? ORDER BY role",
	UserPermissions: "SELECT DISTINCT rp.perm FROM roles_perms rp JOIN user_roles ur ON ur.role = rp.role WHERE ur.username = ? ORDER BY rp.perm",
}

var sqliteDialect = Dialect{
	Name: "sqlite3",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    content TEXT NOT NULL DEFAULT ''
)`,
		`CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS user_roles (
    username TEXT NOT NULL,
    role TEXT NOT NULL,
    PRIMARY KEY (username, role)
)`,
		`CREATE TABLE IF NOT EXISTS roles_perms (
    role TEXT NOT NULL,
    perm TEXT NOT NULL,
    PRIMARY KEY (role, perm)
)`,
	},
	Returning: true,
	queries: with(baseQueries, map[Query]string{
		CreatePage:         "INSERT INTO pages (name, content) VALUES (?, ?) RETURNING id",
		SeedRolePermission: "INSERT OR IGNORE INTO roles_perms (role, perm) VALUES (?, ?)",
	}, false),
}

var postgresDialect = Dialect{
	Name: "postgres",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS pages (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) UNIQUE NOT NULL,
    content TEXT NOT NULL DEFAULT ''
)`,
		`CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    username VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS user_roles (
    username VARCHAR(255) NOT NULL,
    role VARCHAR(64) NOT NULL,
    PRIMARY KEY (username, role)
)`,
		`CREATE TABLE IF NOT EXISTS roles_perms (
    role VARCHAR(64) NOT NULL,
    perm VARCHAR(64) NOT NULL,
    PRIMARY KEY (role, perm)
)`,
	},
	Returning: true,
	queries: with(baseQueries, map[Query]string{
		CreatePage:         "INSERT INTO pages (name, content) VALUES (?, ?) RETURNING id",
		SeedRolePermission: "INSERT INTO roles_perms (role, perm) VALUES (?, ?) ON CONFLICT DO NOTHING",
	}, true),
}

var mysqlDialect = Dialect{
	Name: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS pages (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE,
    content LONGTEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    username VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS user_roles (
    username VARCHAR(255) NOT NULL,
    role VARCHAR(64) NOT NULL,
    PRIMARY KEY (username, role)
)`,
		`CREATE TABLE IF NOT EXISTS roles_perms (
    role VARCHAR(64) NOT NULL,
    perm VARCHAR(64) NOT NULL,
    PRIMARY KEY (role, perm)
)`,
	},
	queries: with(baseQueries, map[Query]string{
		SeedRolePermission: "INSERT IGNORE INTO roles_perms (role, perm) VALUES (?, ?)",
	}, false),
}

// with merges overrides into base, rewriting ? placeholders to $n when
// numbered is set.
func with(base, overrides map[Query]string, numbered bool) map[Query]string {
	out := make(map[Query]string, len(base)+len(overrides))
	for q, s := range base {
		out[q] = s
	}
	for q, s := range overrides {
		out[q] = s
	}
	if numbered {
		for q, s := range out {
			out[q] = rebind(s)
		}
	}
	return out
}

func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
