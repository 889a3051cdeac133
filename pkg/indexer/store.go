// Package indexer persists chain logs to Postgres for off-chain queries.
package indexer

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/phenomenon0/betchain/pkg/chain"
)

const defaultListLimit = 100

const schema = `
	CREATE TABLE IF NOT EXISTS chain_logs (
		id         UUID PRIMARY KEY,
		log_index  BIGINT NOT NULL UNIQUE,
		tx_hash    TEXT NOT NULL,
		address    TEXT NOT NULL,
		contract   TEXT NOT NULL,
		name       TEXT NOT NULL,
		fields     JSONB NOT NULL,
		block_time TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS chain_logs_contract_name_idx ON chain_logs (contract, name);
`

// Record is a stored log.
type Record struct {
	ID  uuid.UUID `json:"id"`
	Log chain.Log `json:"log"`
}

// Filter narrows ListLogs. Zero values match everything.
type Filter struct {
	Contract  string
	Names     []string
	FromIndex uint64
	Limit     int
}

// Store reads and writes chain_logs.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewStore(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate chain_logs: %w", err)
	}
	return nil
}

// SaveLog inserts a log. Logs already stored under the same index are ignored.
func (s *Store) SaveLog(ctx context.Context, l chain.Log) error {
	fields, err := json.Marshal(l.Fields)
	if err != nil {
		return fmt.Errorf("marshaling fields of %s: %w", l.Name, err)
	}

	query := `
		INSERT INTO chain_logs (id, log_index, tx_hash, address, contract, name, fields, block_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (log_index) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(),
		int64(l.Index),
		l.TxHash.Hex(),
		l.Address.Hex(),
		l.Contract,
		l.Name,
		string(fields),
		l.BlockTime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log %d: %w", l.Index, err)
	}
	return nil
}

// ListLogs returns stored logs in emission order.
func (s *Store) ListLogs(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []interface{}
	)
	args = append(args, int64(f.FromIndex))
	where = append(where, fmt.Sprintf("log_index >= $%d", len(args)))
	if f.Contract != "" {
		args = append(args, f.Contract)
		where = append(where, fmt.Sprintf("contract = $%d", len(args)))
	}
	if len(f.Names) > 0 {
		args = append(args, pq.Array(f.Names))
		where = append(where, fmt.Sprintf("name = ANY($%d)", len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, log_index, tx_hash, address, contract, name, fields, block_time
		FROM chain_logs
		WHERE %s
		ORDER BY log_index
		LIMIT $%d
	`, strings.Join(where, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chain_logs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			id, txHash, address string
			index               int64
			fields              []byte
			rec                 Record
		)
		if err := rows.Scan(&id, &index, &txHash, &address, &rec.Log.Contract, &rec.Log.Name, &fields, &rec.Log.BlockTime); err != nil {
			return nil, fmt.Errorf("scan chain_logs: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse id %q: %w", id, err)
		}
		rec.Log.Index = uint64(index)
		rec.Log.TxHash = common.HexToHash(txHash)
		rec.Log.Address = common.HexToAddress(address)

		dec := json.NewDecoder(bytes.NewReader(fields))
		dec.UseNumber()
		if err := dec.Decode(&rec.Log.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of log %d: %w", index, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
