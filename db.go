package main

import (
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"
)

// DB is the persistence collaborator for the auth core: user credentials,
// the MCP token registry and the minimal booking records the MCP-protected
// endpoints serve.
type DB interface {
	Init() error
	// User operations
	CreateUser(email, password string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByID(id int64) (*User, error)
	CompleteProfile(userID int64, at time.Time) error
	// MCP token registry. Records are independent per row; deletion is a
	// hard delete and is the authoritative revocation.
	CreateMCPToken(t *MCPToken) error
	GetMCPTokenByValue(token string) (*MCPToken, error)
	ListMCPTokensByUser(userID int64) ([]*MCPToken, error)
	DeleteMCPTokenForUser(id string, userID int64) (int64, error)
	// Booking collaborators
	CreateHospital(h *Hospital) error
	GetHospitalByID(id string) (*Hospital, error)
	ListHospitals() ([]*Hospital, error)
	CreateAppointment(appt *Appointment) error
	ListAppointmentsByUser(userID int64) ([]*Appointment, error)
}

// Memory DB
type MemDB struct {
	mu           sync.Mutex
	users        map[string]*User
	tokens       map[string]*MCPToken // keyed by raw token value
	hospitals    map[string]*Hospital
	appointments []*Appointment
	seq          int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		users:     map[string]*User{},
		tokens:    map[string]*MCPToken{},
		hospitals: map[string]*Hospital{},
		seq:       1,
	}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) CreateUser(email, password string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, ErrDuplicateEmail
	}
	u := &User{ID: m.seq, Email: email, Password: password, CreatedAt: time.Now()}
	m.seq++
	m.users[email] = u
	return u, nil
}

func (m *MemDB) GetUserByEmail(email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) CompleteProfile(userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == userID {
			u.ProfileCompletedAt = &at
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *MemDB) CreateMCPToken(t *MCPToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.Token]; ok {
		return ErrDuplicateToken
	}
	cp := *t
	m.tokens[t.Token] = &cp
	return nil
}

func (m *MemDB) GetMCPTokenByValue(token string) (*MCPToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[token]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) ListMCPTokensByUser(userID int64) ([]*MCPToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*MCPToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			cp := *t
			cp.Token = "" // metadata only
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemDB) DeleteMCPTokenForUser(id string, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for raw, t := range m.tokens {
		if t.ID == id && t.UserID == userID {
			delete(m.tokens, raw)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *MemDB) CreateHospital(h *Hospital) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.hospitals[h.ID] = &cp
	return nil
}

func (m *MemDB) GetHospitalByID(id string) (*Hospital, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.hospitals[id]; ok {
		cp := *h
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) ListHospitals() ([]*Hospital, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Hospital
	for _, h := range m.hospitals {
		cp := *h
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemDB) CreateAppointment(appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *appt
	m.appointments = append(m.appointments, &cp)
	return nil
}

func (m *MemDB) ListAppointmentsByUser(userID int64) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appointments {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

// SQLite DB
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
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY AUTOINCREMENT, email TEXT UNIQUE, password TEXT, profile_completed_at TEXT, created_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS mcp_tokens (id TEXT PRIMARY KEY, user_id INTEGER, token TEXT UNIQUE, name TEXT, scopes TEXT, created_at TEXT, expires_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS hospitals (id TEXT PRIMARY KEY, name TEXT, city TEXT, address TEXT, phone_number TEXT, created_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS appointments (id TEXT PRIMARY KEY, user_id INTEGER, hospital_id TEXT, description TEXT, date_time TEXT, created_at TEXT);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const sqliteTime = "2006-01-02T15:04:05Z07:00"

func (s *SQLiteDB) CreateUser(email, password string) (*User, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO users(email,password,created_at) VALUES(?,?,?)`, email, password, now.Format(sqliteTime))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Email: email, Password: password, CreatedAt: now}, nil
}

func (s *SQLiteDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var completed sql.NullString
	var created string
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &completed, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if completed.Valid {
		if at, err := time.Parse(sqliteTime, completed.String); err == nil {
			u.ProfileCompletedAt = &at
		}
	}
	if at, err := time.Parse(sqliteTime, created); err == nil {
		u.CreatedAt = at
	}
	return &u, nil
}

func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,email,password,profile_completed_at,created_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteDB) GetUserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id,email,password,profile_completed_at,created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteDB) CompleteProfile(userID int64, at time.Time) error {
	res, err := s.db.Exec(`UPDATE users SET profile_completed_at = ? WHERE id = ?`, at.UTC().Format(sqliteTime), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteDB) CreateMCPToken(t *MCPToken) error {
	_, err := s.db.Exec(`INSERT INTO mcp_tokens(id,user_id,token,name,scopes,created_at,expires_at) VALUES(?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Token, t.Name, strings.Join(t.Scopes, " "),
		t.CreatedAt.UTC().Format(sqliteTime), t.ExpiresAt.UTC().Format(sqliteTime))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrDuplicateToken
	}
	return err
}

func (s *SQLiteDB) GetMCPTokenByValue(token string) (*MCPToken, error) {
	row := s.db.QueryRow(`SELECT id,user_id,token,name,scopes,created_at,expires_at FROM mcp_tokens WHERE token = ?`, token)
	var t MCPToken
	var scopes, created, expires string
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.Name, &scopes, &created, &expires); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t.Scopes = strings.Fields(scopes)
	t.CreatedAt, _ = time.Parse(sqliteTime, created)
	t.ExpiresAt, _ = time.Parse(sqliteTime, expires)
	return &t, nil
}

func (s *SQLiteDB) ListMCPTokensByUser(userID int64) ([]*MCPToken, error) {
	// token column deliberately omitted: metadata only after creation
	rows, err := s.db.Query(`SELECT id,user_id,name,scopes,created_at,expires_at FROM mcp_tokens WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*MCPToken
	for rows.Next() {
		var t MCPToken
		var scopes, created, expires string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &scopes, &created, &expires); err != nil {
			return nil, err
		}
		t.Scopes = strings.Fields(scopes)
		t.CreatedAt, _ = time.Parse(sqliteTime, created)
		t.ExpiresAt, _ = time.Parse(sqliteTime, expires)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) DeleteMCPTokenForUser(id string, userID int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM mcp_tokens WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteDB) CreateHospital(h *Hospital) error {
	_, err := s.db.Exec(`INSERT INTO hospitals(id,name,city,address,phone_number,created_at) VALUES(?,?,?,?,?,?)`,
		h.ID, h.Name, h.City, h.Address, h.PhoneNumber, h.CreatedAt.UTC().Format(sqliteTime))
	return err
}

func (s *SQLiteDB) GetHospitalByID(id string) (*Hospital, error) {
	row := s.db.QueryRow(`SELECT id,name,city,address,phone_number,created_at FROM hospitals WHERE id = ?`, id)
	var h Hospital
	var created string
	if err := row.Scan(&h.ID, &h.Name, &h.City, &h.Address, &h.PhoneNumber, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	h.CreatedAt, _ = time.Parse(sqliteTime, created)
	return &h, nil
}

func (s *SQLiteDB) ListHospitals() ([]*Hospital, error) {
	rows, err := s.db.Query(`SELECT id,name,city,address,phone_number,created_at FROM hospitals ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Hospital
	for rows.Next() {
		var h Hospital
		var created string
		if err := rows.Scan(&h.ID, &h.Name, &h.City, &h.Address, &h.PhoneNumber, &created); err != nil {
			return nil, err
		}
		h.CreatedAt, _ = time.Parse(sqliteTime, created)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) CreateAppointment(appt *Appointment) error {
	_, err := s.db.Exec(`INSERT INTO appointments(id,user_id,hospital_id,description,date_time,created_at) VALUES(?,?,?,?,?,?)`,
		appt.ID, appt.UserID, appt.HospitalID, appt.Description, appt.DateTime, appt.CreatedAt.UTC().Format(sqliteTime))
	return err
}

func (s *SQLiteDB) ListAppointmentsByUser(userID int64) ([]*Appointment, error) {
	rows, err := s.db.Query(`SELECT id,user_id,hospital_id,description,date_time,created_at FROM appointments WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		var a Appointment
		var created string
		if err := rows.Scan(&a.ID, &a.UserID, &a.HospitalID, &a.Description, &a.DateTime, &created); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(sqliteTime, created)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
