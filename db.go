package main

import (
	"database/sql"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Store interface for persisted state: profiles plus refresh credentials.
// Lookup methods return nil, nil when no row matches.
type Store interface {
	Init() error
	// Profile operations
	CreateProfile(p *Profile) error
	GetProfile(id string) (*Profile, error)
	SaveProfile(p *Profile) error
	RankOf(firehearts int) (int, error)
	SampleProfiles(n int) ([]*Profile, error)
	TopProfiles(n int) ([]*Profile, error)
	// Refresh credential operations
	CreateRefreshCredential(token, userID string) error
	GetRefreshCredential(token string) (*RefreshCredential, error)
	DeleteRefreshCredentialsForUser(userID string) error
}

// Memory store
type MemDB struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	creds    map[string]*RefreshCredential
}

func NewMemoryDB() *MemDB {
	return &MemDB{profiles: map[string]*Profile{}, creds: map[string]*RefreshCredential{}}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) CreateProfile(p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return errors.New("profile already exists")
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *MemDB) GetProfile(id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) SaveProfile(p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; !ok {
		return errors.New("profile not found")
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *MemDB) RankOf(firehearts int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rank := 1
	for _, p := range m.profiles {
		if p.Firehearts > firehearts {
			rank++
		}
	}
	return rank, nil
}

func (m *MemDB) SampleProfiles(n int) ([]*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		all = append(all, &cp)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

func (m *MemDB) TopProfiles(n int) ([]*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		all = append(all, &cp)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Firehearts != all[j].Firehearts {
			return all[i].Firehearts > all[j].Firehearts
		}
		return all[i].LastEdited.Before(all[j].LastEdited)
	})
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

func (m *MemDB) CreateRefreshCredential(token, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[token] = &RefreshCredential{Token: token, UserID: userID, CreatedAt: time.Now()}
	return nil
}

func (m *MemDB) GetRefreshCredential(token string) (*RefreshCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.creds[token]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) DeleteRefreshCredentialsForUser(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, c := range m.creds {
		if c.UserID == userID {
			delete(m.creds, token)
		}
	}
	return nil
}

// SQLite store
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			internal_id TEXT PRIMARY KEY,
			id TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			firehearts INTEGER NOT NULL DEFAULT 600,
			image_url TEXT NOT NULL DEFAULT '',
			image_blurhash TEXT NOT NULL DEFAULT '',
			last_edited INTEGER NOT NULL,
			year_of_study INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS refresh_credentials (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_credentials_user ON refresh_credentials (user_id);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) CreateProfile(p *Profile) error {
	_, err := s.db.Exec(
		`INSERT INTO profiles(internal_id,id,name,email,firehearts,image_url,image_blurhash,last_edited,year_of_study) VALUES(?,?,?,?,?,?,?,?,?)`,
		p.InternalID, p.ID, p.Name, p.Email, p.Firehearts, p.Image.URL, p.Image.Blurhash, p.LastEdited.UnixMilli(), p.YearOfStudy)
	return err
}

func (s *SQLiteDB) GetProfile(id string) (*Profile, error) {
	row := s.db.QueryRow(`SELECT internal_id,id,name,email,firehearts,image_url,image_blurhash,last_edited,year_of_study FROM profiles WHERE id = ?`, id)
	return scanSQLiteProfile(row)
}

func scanSQLiteProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	var edited int64
	if err := row.Scan(&p.InternalID, &p.ID, &p.Name, &p.Email, &p.Firehearts, &p.Image.URL, &p.Image.Blurhash, &edited, &p.YearOfStudy); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.LastEdited = time.UnixMilli(edited)
	return &p, nil
}

func (s *SQLiteDB) SaveProfile(p *Profile) error {
	res, err := s.db.Exec(
		`UPDATE profiles SET name = ?, email = ?, firehearts = ?, image_url = ?, image_blurhash = ?, last_edited = ?, year_of_study = ? WHERE id = ?`,
		p.Name, p.Email, p.Firehearts, p.Image.URL, p.Image.Blurhash, p.LastEdited.UnixMilli(), p.YearOfStudy, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("profile not found")
	}
	return nil
}

func (s *SQLiteDB) RankOf(firehearts int) (int, error) {
	var higher int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM profiles WHERE firehearts > ?`, firehearts).Scan(&higher); err != nil {
		return 0, err
	}
	return higher + 1, nil
}

func (s *SQLiteDB) SampleProfiles(n int) ([]*Profile, error) {
	rows, err := s.db.Query(`SELECT internal_id,id,name,email,firehearts,image_url,image_blurhash,last_edited,year_of_study FROM profiles ORDER BY RANDOM() LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	return collectProfiles(rows)
}

func (s *SQLiteDB) TopProfiles(n int) ([]*Profile, error) {
	rows, err := s.db.Query(`SELECT internal_id,id,name,email,firehearts,image_url,image_blurhash,last_edited,year_of_study FROM profiles ORDER BY firehearts DESC, last_edited ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	return collectProfiles(rows)
}

func collectProfiles(rows *sql.Rows) ([]*Profile, error) {
	defer rows.Close()
	var out []*Profile
	for rows.Next() {
		var p Profile
		var edited int64
		if err := rows.Scan(&p.InternalID, &p.ID, &p.Name, &p.Email, &p.Firehearts, &p.Image.URL, &p.Image.Blurhash, &edited, &p.YearOfStudy); err != nil {
			return nil, err
		}
		p.LastEdited = time.UnixMilli(edited)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) CreateRefreshCredential(token, userID string) error {
	_, err := s.db.Exec(`INSERT INTO refresh_credentials(token,user_id,created_at) VALUES(?,?,?)`, token, userID, time.Now().UnixMilli())
	return err
}

func (s *SQLiteDB) GetRefreshCredential(token string) (*RefreshCredential, error) {
	row := s.db.QueryRow(`SELECT token,user_id,created_at FROM refresh_credentials WHERE token = ?`, token)
	var c RefreshCredential
	var created int64
	if err := row.Scan(&c.Token, &c.UserID, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(created)
	return &c, nil
}

func (s *SQLiteDB) DeleteRefreshCredentialsForUser(userID string) error {
	_, err := s.db.Exec(`DELETE FROM refresh_credentials WHERE user_id = ?`, userID)
	return err
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
