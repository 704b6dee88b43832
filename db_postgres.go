package main

import (
	"database/sql"
	"errors"

	_ "github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	if err := p.db.Ping(); err != nil {
		return err
	}
	return nil
}

const pgProfileColumns = `internal_id,id,name,email,firehearts,image_url,image_blurhash,last_edited,year_of_study`

func (p *PostgresDB) CreateProfile(pr *Profile) error {
	_, err := p.db.Exec(
		`INSERT INTO profiles(internal_id,id,name,email,firehearts,image_url,image_blurhash,last_edited,year_of_study) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		pr.InternalID, pr.ID, pr.Name, pr.Email, pr.Firehearts, pr.Image.URL, pr.Image.Blurhash, pr.LastEdited, pr.YearOfStudy)
	return err
}

func (p *PostgresDB) GetProfile(id string) (*Profile, error) {
	row := p.db.QueryRow(`SELECT `+pgProfileColumns+` FROM profiles WHERE id = $1`, id)
	var pr Profile
	if err := row.Scan(&pr.InternalID, &pr.ID, &pr.Name, &pr.Email, &pr.Firehearts, &pr.Image.URL, &pr.Image.Blurhash, &pr.LastEdited, &pr.YearOfStudy); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &pr, nil
}

func (p *PostgresDB) SaveProfile(pr *Profile) error {
	res, err := p.db.Exec(
		`UPDATE profiles SET name = $1, email = $2, firehearts = $3, image_url = $4, image_blurhash = $5, last_edited = $6, year_of_study = $7 WHERE id = $8`,
		pr.Name, pr.Email, pr.Firehearts, pr.Image.URL, pr.Image.Blurhash, pr.LastEdited, pr.YearOfStudy, pr.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("not found")
	}
	return nil
}

func (p *PostgresDB) RankOf(firehearts int) (int, error) {
	var higher int
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM profiles WHERE firehearts > $1`, firehearts).Scan(&higher); err != nil {
		return 0, err
	}
	return higher + 1, nil
}

func (p *PostgresDB) SampleProfiles(n int) ([]*Profile, error) {
	rows, err := p.db.Query(`SELECT `+pgProfileColumns+` FROM profiles ORDER BY random() LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	return p.collect(rows)
}

func (p *PostgresDB) TopProfiles(n int) ([]*Profile, error) {
	rows, err := p.db.Query(`SELECT `+pgProfileColumns+` FROM profiles ORDER BY firehearts DESC, last_edited ASC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	return p.collect(rows)
}

func (p *PostgresDB) collect(rows *sql.Rows) ([]*Profile, error) {
	defer rows.Close()
	var out []*Profile
	for rows.Next() {
		var pr Profile
		if err := rows.Scan(&pr.InternalID, &pr.ID, &pr.Name, &pr.Email, &pr.Firehearts, &pr.Image.URL, &pr.Image.Blurhash, &pr.LastEdited, &pr.YearOfStudy); err != nil {
			return nil, err
		}
		out = append(out, &pr)
	}
	return out, rows.Err()
}

func (p *PostgresDB) CreateRefreshCredential(token, userID string) error {
	_, err := p.db.Exec(`INSERT INTO refresh_credentials(token,user_id,created_at) VALUES($1,$2,now())`, token, userID)
	return err
}

func (p *PostgresDB) GetRefreshCredential(token string) (*RefreshCredential, error) {
	row := p.db.QueryRow(`SELECT token,user_id,created_at FROM refresh_credentials WHERE token = $1`, token)
	var c RefreshCredential
	if err := row.Scan(&c.Token, &c.UserID, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (p *PostgresDB) DeleteRefreshCredentialsForUser(userID string) error {
	_, err := p.db.Exec(`DELETE FROM refresh_credentials WHERE user_id = $1`, userID)
	return err
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
