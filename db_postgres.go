package main

import (
	"database/sql"
	"strings"
	"time"

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
	return p.db.Ping()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}

func (p *PostgresDB) CreateUser(email, password string) (*User, error) {
	var id int64
	var created time.Time
	err := p.db.QueryRow(`INSERT INTO users(email,password,created_at) VALUES($1,$2,now()) RETURNING id,created_at`, email, password).Scan(&id, &created)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return &User{ID: id, Email: email, Password: password, CreatedAt: created}, nil
}

func (p *PostgresDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var completed sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &completed, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if completed.Valid {
		at := completed.Time
		u.ProfileCompletedAt = &at
	}
	return &u, nil
}

func (p *PostgresDB) GetUserByEmail(email string) (*User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT id,email,password,profile_completed_at,created_at FROM users WHERE email = $1`, email))
}

func (p *PostgresDB) GetUserByID(id int64) (*User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT id,email,password,profile_completed_at,created_at FROM users WHERE id = $1`, id))
}

func (p *PostgresDB) CompleteProfile(userID int64, at time.Time) error {
	res, err := p.db.Exec(`UPDATE users SET profile_completed_at = $1 WHERE id = $2`, at, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (p *PostgresDB) CreateMCPToken(t *MCPToken) error {
	_, err := p.db.Exec(`INSERT INTO mcp_tokens(id,user_id,token,name,scopes,created_at,expires_at) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.UserID, t.Token, t.Name, strings.Join(t.Scopes, " "), t.CreatedAt, t.ExpiresAt)
	if isUniqueViolation(err) {
		return ErrDuplicateToken
	}
	return err
}

func (p *PostgresDB) GetMCPTokenByValue(token string) (*MCPToken, error) {
	row := p.db.QueryRow(`SELECT id,user_id,token,name,scopes,created_at,expires_at FROM mcp_tokens WHERE token = $1`, token)
	var t MCPToken
	var scopes string
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.Name, &scopes, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t.Scopes = strings.Fields(scopes)
	return &t, nil
}

func (p *PostgresDB) ListMCPTokensByUser(userID int64) ([]*MCPToken, error) {
	// token column deliberately omitted: metadata only after creation
	rows, err := p.db.Query(`SELECT id,user_id,name,scopes,created_at,expires_at FROM mcp_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*MCPToken
	for rows.Next() {
		var t MCPToken
		var scopes string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &scopes, &t.CreatedAt, &t.ExpiresAt); err != nil {
			return nil, err
		}
		t.Scopes = strings.Fields(scopes)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (p *PostgresDB) DeleteMCPTokenForUser(id string, userID int64) (int64, error) {
	res, err := p.db.Exec(`DELETE FROM mcp_tokens WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PostgresDB) CreateHospital(h *Hospital) error {
	_, err := p.db.Exec(`INSERT INTO hospitals(id,name,city,address,phone_number,created_at) VALUES($1,$2,$3,$4,$5,$6)`,
		h.ID, h.Name, h.City, h.Address, h.PhoneNumber, h.CreatedAt)
	return err
}

func (p *PostgresDB) GetHospitalByID(id string) (*Hospital, error) {
	row := p.db.QueryRow(`SELECT id,name,city,address,phone_number,created_at FROM hospitals WHERE id = $1`, id)
	var h Hospital
	if err := row.Scan(&h.ID, &h.Name, &h.City, &h.Address, &h.PhoneNumber, &h.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

func (p *PostgresDB) ListHospitals() ([]*Hospital, error) {
	rows, err := p.db.Query(`SELECT id,name,city,address,phone_number,created_at FROM hospitals ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Hospital
	for rows.Next() {
		var h Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.City, &h.Address, &h.PhoneNumber, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (p *PostgresDB) CreateAppointment(appt *Appointment) error {
	_, err := p.db.Exec(`INSERT INTO appointments(id,user_id,hospital_id,description,date_time,created_at) VALUES($1,$2,$3,$4,$5,$6)`,
		appt.ID, appt.UserID, appt.HospitalID, appt.Description, appt.DateTime, appt.CreatedAt)
	return err
}

func (p *PostgresDB) ListAppointmentsByUser(userID int64) ([]*Appointment, error) {
	rows, err := p.db.Query(`SELECT id,user_id,hospital_id,description,date_time,created_at FROM appointments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.UserID, &a.HospitalID, &a.Description, &a.DateTime, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
