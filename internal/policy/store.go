package policy

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codefionn/sandkasten/internal/logger"
)

// Store provides read access to stored profiles and rules and write access
// for violation records. Profiles and rules are edited by external tooling;
// this store never mutates them beyond first-run seeding.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if necessary creates) the policy database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := s.seedDefaultProfile(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed default profile: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sandbox_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 0,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sandbox_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id INTEGER NOT NULL,
		operation_type TEXT NOT NULL,
		pattern_type TEXT NOT NULL,
		pattern_value TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		platform_support TEXT,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (profile_id) REFERENCES sandbox_profiles(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sandbox_violations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id INTEGER,
		agent_id INTEGER,
		run_id TEXT,
		operation_type TEXT NOT NULL,
		pattern_value TEXT,
		process_name TEXT,
		pid INTEGER,
		denied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (profile_id) REFERENCES sandbox_profiles(id) ON DELETE CASCADE
	);

	CREATE TRIGGER IF NOT EXISTS update_sandbox_profile_timestamp
	AFTER UPDATE ON sandbox_profiles
	FOR EACH ROW
	BEGIN
		UPDATE sandbox_profiles SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END;

	CREATE INDEX IF NOT EXISTS idx_sandbox_violations_denied_at
	ON sandbox_violations(denied_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// seedDefaultProfile inserts the built-in "standard" profile on first run:
// project read plus outbound network plus system info. Does nothing when any
// profile already exists.
func (s *Store) seedDefaultProfile() error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sandbox_profiles").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO sandbox_profiles (name, description, is_active, is_default) VALUES (?, ?, 1, 1)",
		"standard",
		"Project file read, outbound network, and system info",
	)
	if err != nil {
		return err
	}
	profileID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	seed := []struct {
		op      OperationType
		pattern PatternType
		value   string
	}{
		{OpFileReadAll, PatternSubpath, "{{PROJECT_PATH}}"},
		{OpNetworkOutbound, PatternAddress, "all"},
		{OpSystemInfoRead, PatternNone, ""},
	}
	for _, r := range seed {
		if _, err := tx.Exec(
			"INSERT INTO sandbox_rules (profile_id, operation_type, pattern_type, pattern_value, enabled) VALUES (?, ?, ?, ?, 1)",
			profileID, string(r.op), string(r.pattern), r.value,
		); err != nil {
			return err
		}
	}

	logger.Info("seeded default sandbox profile %q (id=%d)", "standard", profileID)
	return tx.Commit()
}

const profileColumns = "id, name, COALESCE(description, ''), is_active, is_default, created_at, updated_at"

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.IsActive, &p.IsDefault, &created, &updated); err != nil {
		return Profile{}, err
	}
	p.CreatedAt = parseTimestamp(created)
	p.UpdatedAt = parseTimestamp(updated)
	return p, nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// GetActiveProfile returns the profile marked active, or nil when none is.
func (s *Store) GetActiveProfile() (*Profile, error) {
	row := s.db.QueryRow("SELECT " + profileColumns + " FROM sandbox_profiles WHERE is_active = 1 LIMIT 1")
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active profile: %w", err)
	}
	return &p, nil
}

// GetProfile returns the profile with the given id.
func (s *Store) GetProfile(id int64) (*Profile, error) {
	row := s.db.QueryRow("SELECT "+profileColumns+" FROM sandbox_profiles WHERE id = ?", id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query profile %d: %w", id, err)
	}
	return &p, nil
}

// ListProfiles returns all stored profiles ordered by name.
func (s *Store) ListProfiles() ([]Profile, error) {
	rows, err := s.db.Query("SELECT " + profileColumns + " FROM sandbox_profiles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ListRules returns the rules of a profile in insertion order. Order is
// preserved because some primitives evaluate rules first-match-wins.
func (s *Store) ListRules(profileID int64) ([]Rule, error) {
	rows, err := s.db.Query(
		`SELECT id, profile_id, operation_type, pattern_type, pattern_value, enabled,
		        COALESCE(platform_support, ''), created_at
		 FROM sandbox_rules WHERE profile_id = ? ORDER BY id`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list rules for profile %d: %w", profileID, err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		var opType, patType, created string
		if err := rows.Scan(&r.ID, &r.ProfileID, &opType, &patType, &r.PatternValue,
			&r.Enabled, &r.PlatformSupport, &created); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.OperationType = OperationType(opType)
		r.PatternType = PatternType(patType)
		r.CreatedAt = parseTimestamp(created)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// RecordViolation stores a denial reported by the OS primitive. This is the
// violation audit sink surface.
func (s *Store) RecordViolation(v Violation) error {
	deniedAt := v.DeniedAt
	if deniedAt.IsZero() {
		deniedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO sandbox_violations
		 (profile_id, agent_id, run_id, operation_type, pattern_value, process_name, pid, denied_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ProfileID, v.AgentID, v.RunID, v.OperationType, v.PatternValue,
		v.ProcessName, v.PID, deniedAt.Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("record violation: %w", err)
	}
	return nil
}

// ListViolations returns up to limit violations, most recent first.
func (s *Store) ListViolations(limit int) ([]Violation, error) {
	rows, err := s.db.Query(
		`SELECT id, profile_id, agent_id, run_id, operation_type, pattern_value, process_name, pid, denied_at
		 FROM sandbox_violations ORDER BY denied_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	var violations []Violation
	for rows.Next() {
		var v Violation
		var deniedAt string
		if err := rows.Scan(&v.ID, &v.ProfileID, &v.AgentID, &v.RunID,
			&v.OperationType, &v.PatternValue, &v.ProcessName, &v.PID, &deniedAt); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.DeniedAt = parseTimestamp(deniedAt)
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
