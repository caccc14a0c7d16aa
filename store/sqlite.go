package store

import (
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"expiry-server/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db *sql.DB

	watchMu     sync.Mutex
	watchers    map[int64]chan []models.Product
	nextWatchID int64
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &Store{
		db:       db,
		watchers: make(map[int64]chan []models.Product),
	}
	if err := store.init(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_name TEXT NOT NULL,
		expiration_date INTEGER NOT NULL,
		reminder_time TEXT NOT NULL DEFAULT '09:00',
		days_to_remind_before INTEGER NOT NULL DEFAULT 0,
		reminder_method TEXT NOT NULL DEFAULT 'NOTIFICATION',
		calendar_event_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_products_expiration ON products(expiration_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Product operations

func (s *Store) CreateProduct(p models.Product) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO products (product_name, expiration_date, reminder_time, days_to_remind_before, reminder_method, calendar_event_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ProductName, p.ExpirationDate, p.ReminderTime, p.DaysToRemindBefore, string(p.ReminderMethod), nullableID(p.CalendarEventID))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.notifyWatchers()
	return id, nil
}

func (s *Store) GetProduct(id int64) (*models.Product, error) {
	row := s.db.QueryRow(`
		SELECT id, product_name, expiration_date, reminder_time, days_to_remind_before, reminder_method, calendar_event_id, created_at
		FROM products WHERE id = ?
	`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProducts returns every product ordered by expiration date ascending.
func (s *Store) ListProducts() ([]models.Product, error) {
	rows, err := s.db.Query(`
		SELECT id, product_name, expiration_date, reminder_time, days_to_remind_before, reminder_method, calendar_event_id, created_at
		FROM products ORDER BY expiration_date ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(p models.Product) error {
	res, err := s.db.Exec(`
		UPDATE products
		SET product_name = ?, expiration_date = ?, reminder_time = ?, days_to_remind_before = ?, reminder_method = ?, calendar_event_id = ?
		WHERE id = ?
	`, p.ProductName, p.ExpirationDate, p.ReminderTime, p.DaysToRemindBefore, string(p.ReminderMethod), nullableID(p.CalendarEventID), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notifyWatchers()
	return nil
}

// SetCalendarEventID persists the mirror event id for a product. An empty
// eventID clears it.
func (s *Store) SetCalendarEventID(id int64, eventID string) error {
	res, err := s.db.Exec(`UPDATE products SET calendar_event_id = ? WHERE id = ?`, nullableID(eventID), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notifyWatchers()
	return nil
}

func (s *Store) DeleteProduct(id int64) error {
	res, err := s.db.Exec(`DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.notifyWatchers()
	return nil
}

// Watch returns a channel that receives the full expiration-ordered product
// list after every committed mutation, plus a cancel func. A slow subscriber
// only ever sees the latest snapshot; intermediate ones are coalesced.
func (s *Store) Watch() (<-chan []models.Product, func()) {
	ch := make(chan []models.Product, 1)

	s.watchMu.Lock()
	s.nextWatchID++
	id := s.nextWatchID
	s.watchers[id] = ch
	s.watchMu.Unlock()

	cancel := func() {
		s.watchMu.Lock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
		s.watchMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notifyWatchers() {
	products, err := s.ListProducts()
	if err != nil {
		log.Printf("[STORE] watch snapshot failed: %v", err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		// Replace a pending stale snapshot with the latest one.
		select {
		case ch <- products:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- products:
			default:
			}
		}
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var method string
	var eventID sql.NullString
	err := row.Scan(&p.ID, &p.ProductName, &p.ExpirationDate, &p.ReminderTime, &p.DaysToRemindBefore, &method, &eventID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ReminderMethod = models.ReminderMethod(method)
	if eventID.Valid {
		p.CalendarEventID = eventID.String
	}
	return &p, nil
}

func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}

// User operations

func (s *Store) CreateUser(username, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	_, err = s.db.Exec(`
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	row := s.db.QueryRow(`
		SELECT id, username, password_hash, created_at FROM users WHERE username = ?
	`, username)

	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(id string) (*models.User, error) {
	row := s.db.QueryRow(`
		SELECT id, username, password_hash, created_at FROM users WHERE id = ?
	`, id)

	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ValidatePassword(user *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}
