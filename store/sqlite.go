package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pair-engine-go/pairs"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ PairStore = (*SQLiteStore)(nil)

// SQLiteStore implements PairStore backed by an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS order_pairs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	type          TEXT NOT NULL CHECK (type IN ('OCO','OAO')),
	status        TEXT NOT NULL DEFAULT 'ACTIVE',
	leg1_order_id TEXT NOT NULL,
	leg1_status   TEXT NOT NULL,
	leg1_error    TEXT NOT NULL DEFAULT '',
	leg1_details  TEXT NOT NULL,
	leg2_order_id TEXT NOT NULL,
	leg2_status   TEXT NOT NULL,
	leg2_error    TEXT NOT NULL DEFAULT '',
	leg2_details  TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_pairs_status ON order_pairs(status);
`

// NewSQLiteStore opens (or creates) the database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite 串行化写入，单连接即可
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListPairs returns all pairs with the given lifecycle status.
func (s *SQLiteStore) ListPairs(ctx context.Context, status pairs.PairStatus) ([]pairs.OrderPair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, status,
		        leg1_order_id, leg1_status, leg1_error, leg1_details,
		        leg2_order_id, leg2_status, leg2_error, leg2_details,
		        created_at, updated_at
		   FROM order_pairs WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	defer rows.Close()

	var out []pairs.OrderPair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreatePair inserts a new pair and returns its assigned id.
func (s *SQLiteStore) CreatePair(ctx context.Context, p *pairs.OrderPair) (int64, error) {
	if p.Status == "" {
		p.Status = pairs.PairActive
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	d1, err := json.Marshal(p.Leg1.Details)
	if err != nil {
		return 0, fmt.Errorf("marshal leg1 details: %w", err)
	}
	d2, err := json.Marshal(p.Leg2.Details)
	if err != nil {
		return 0, fmt.Errorf("marshal leg2 details: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO order_pairs
		   (type, status, leg1_order_id, leg1_status, leg1_error, leg1_details,
		    leg2_order_id, leg2_status, leg2_error, leg2_details, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.Type), string(p.Status),
		p.Leg1.OrderID, string(p.Leg1.Details.Status), p.Leg1.Details.Error, string(d1),
		p.Leg2.OrderID, string(p.Leg2.Details.Status), p.Leg2.Details.Error, string(d2),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert pair: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// GetPair retrieves a single pair by id.
func (s *SQLiteStore) GetPair(ctx context.Context, id int64) (*pairs.OrderPair, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, status,
		        leg1_order_id, leg1_status, leg1_error, leg1_details,
		        leg2_order_id, leg2_status, leg2_error, leg2_details,
		        created_at, updated_at
		   FROM order_pairs WHERE id = ?`, id)
	p, err := scanPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPairNotFound
	}
	return p, err
}

// UpdatePair applies only the fields carried by the delta. Moving a COMPLETED
// pair back to ACTIVE is rejected: pair status is monotonic.
func (s *SQLiteStore) UpdatePair(ctx context.Context, id int64, d pairs.Delta) error {
	if d.Empty() {
		return nil
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}
	add := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if d.Leg1Status != nil {
		add("leg1_status", string(*d.Leg1Status))
	}
	if d.Leg2Status != nil {
		add("leg2_status", string(*d.Leg2Status))
	}
	if d.Leg1OrderID != nil {
		add("leg1_order_id", *d.Leg1OrderID)
	}
	if d.Leg2OrderID != nil {
		add("leg2_order_id", *d.Leg2OrderID)
	}
	if d.Leg1Error != nil {
		add("leg1_error", *d.Leg1Error)
	}
	if d.Leg2Error != nil {
		add("leg2_error", *d.Leg2Error)
	}

	where := "id = ?"
	if d.PairStatus != nil {
		add("status", string(*d.PairStatus))
		if *d.PairStatus == pairs.PairActive {
			// 单向状态：已 COMPLETED 的行不接受回 ACTIVE 的写
			where += " AND status != 'COMPLETED'"
		}
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE order_pairs SET "+strings.Join(sets, ", ")+" WHERE "+where, args...)
	if err != nil {
		return fmt.Errorf("update pair %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// 行不存在，或被单向状态约束挡下
		if _, getErr := s.GetPair(ctx, id); getErr != nil {
			return getErr
		}
		return ErrPairCompleted
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPair(sc scanner) (*pairs.OrderPair, error) {
	var (
		p                  pairs.OrderPair
		typ, status        string
		l1Status, l2Status string
		l1Error, l2Error   string
		d1, d2             string
	)
	err := sc.Scan(&p.ID, &typ, &status,
		&p.Leg1.OrderID, &l1Status, &l1Error, &d1,
		&p.Leg2.OrderID, &l2Status, &l2Error, &d2,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(d1), &p.Leg1.Details); err != nil {
		return nil, fmt.Errorf("unmarshal leg1 details: %w", err)
	}
	if err := json.Unmarshal([]byte(d2), &p.Leg2.Details); err != nil {
		return nil, fmt.Errorf("unmarshal leg2 details: %w", err)
	}
	// 状态/错误列为准（details JSON 里的是创建时的快照）
	p.Type = pairs.PairType(typ)
	p.Status = pairs.PairStatus(status)
	p.Leg1.Details.Status = pairs.LegStatus(l1Status)
	p.Leg2.Details.Status = pairs.LegStatus(l2Status)
	p.Leg1.Details.Error = l1Error
	p.Leg2.Details.Error = l2Error
	return &p, nil
}
