// Package kvdb is a transactional key-value store kept in a SQLite database
// file. Values are grouped into named stores, each keyed by an auto-assigned
// integer, and every call to DB.Exec runs in exactly one transaction.
//
// The set of stores is defined by an upgrade function given to New. It is run
// once, inside its own transaction, when Connect finds that the schema version
// recorded in the file is older than the version the DB was created with.
//
// Values are encoded with REZI, so anything REZI can encode (including types
// that implement encoding.BinaryMarshaler) can be stored.
package kvdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/dekarrin/jelstore/serr"
	"github.com/dekarrin/rezi/v2"
	"modernc.org/sqlite"
)

const storageType = "sqlite"

var storeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Mode is the access mode of a transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// UpgradeFunc sets up the stores of a DB. oldVersion is the schema version
// found in the file, 0 for a new file.
type UpgradeFunc func(ctx context.Context, up *Upgrader, oldVersion int) error

// DB is a key-value database kept in a single SQLite file. It starts out
// disconnected; Connect must be called before any other operation. Once
// closed, a DB cannot be connected again.
//
// The zero value is not usable; call New to create a DB.
type DB struct {
	file    string
	version int
	upgrade UpgradeFunc

	mtx    sync.RWMutex
	db     *sql.DB
	closed bool
}

// New creates a new disconnected DB that will be kept in the given file.
// version is the schema version the stores created by upgrade correspond to;
// it is raised to 1 if lower.
func New(file string, version int, upgrade UpgradeFunc) *DB {
	if version < 1 {
		version = 1
	}
	return &DB{
		file:    file,
		version: version,
		upgrade: upgrade,
	}
}

// File returns the path to the database file.
func (d *DB) File() string {
	return d.file
}

// Connect opens the database file, creating it and its parent directory if
// needed, and upgrades its stores. Calling Connect on a DB that is already
// connected does nothing. Failure to open the file is a Storage-kind error
// that matches serr.ErrConnection.
func (d *DB) Connect(ctx context.Context) error {
	if d.Connected() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(d.file), 0770); err != nil {
		return connectionError(fmt.Errorf("create data dir: %w", err), d.file)
	}

	sqlDB, err := sql.Open("sqlite", d.file)
	if err != nil {
		return connectionError(err, d.file)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return connectionError(err, d.file)
	}

	if err := d.ConnectDB(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return err
	}
	return nil
}

// ConnectDB is like Connect but uses an already-open database handle instead
// of opening the file. The DB takes ownership of sqlDB.
func (d *DB) ConnectDB(ctx context.Context, sqlDB *sql.DB) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.closed {
		return connectionError(errors.New("database has been closed"), d.file)
	}
	if d.db != nil {
		return nil
	}

	// a single connection means transactions on the store run one at a time
	sqlDB.SetMaxOpenConns(1)

	if err := d.runUpgrade(ctx, sqlDB); err != nil {
		return connectionError(err, d.file)
	}

	d.db = sqlDB
	return nil
}

// Connected returns whether the DB is connected and not yet closed.
func (d *DB) Connected() bool {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return d.db != nil
}

// Close closes the database. Operations after Close fail with
// serr.ErrNotConnected.
func (d *DB) Close() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.closed = true
	if d.db == nil {
		return nil
	}

	err := d.db.Close()
	d.db = nil
	if err != nil {
		return wrapDBError(err, "close", "")
	}
	return nil
}

func (d *DB) runUpgrade(ctx context.Context, sqlDB *sql.DB) error {
	var cur int
	if err := sqlDB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", convertDBError(err))
	}
	if cur >= d.version {
		return nil
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upgrade: %w", convertDBError(err))
	}

	if d.upgrade != nil {
		up := &Upgrader{tx: tx}
		if err := d.upgrade(ctx, up, cur); err != nil {
			tx.Rollback()
			return fmt.Errorf("upgrade from version %d: %w", cur, err)
		}
	}

	// PRAGMA does not accept bound parameters
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", d.version)); err != nil {
		tx.Rollback()
		return fmt.Errorf("set schema version: %w", convertDBError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upgrade: %w", convertDBError(err))
	}
	return nil
}

// Exec runs fn in a single transaction on the named store. If fn returns an
// error, the transaction is rolled back and that error is returned unchanged;
// otherwise the transaction is committed. Write methods of the Store fail
// when mode is ReadOnly.
func (d *DB) Exec(ctx context.Context, storeName string, mode Mode, fn func(s *Store) error) error {
	if !storeNamePattern.MatchString(storeName) {
		return serr.NewValidation(serr.CtxStoreName, storeName, "store name must be a plain identifier")
	}

	d.mtx.RLock()
	defer d.mtx.RUnlock()

	if d.db == nil {
		return wrapDBError(serr.ErrNotConnected, "exec", storeName)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError(err, "begin transaction", storeName)
	}

	s := &Store{tx: tx, name: storeName, mode: mode}
	if err := fn(s); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError(err, "commit transaction", storeName)
	}
	return nil
}

// Upgrader creates stores during an upgrade. It is only valid for the
// duration of the UpgradeFunc it is passed to.
type Upgrader struct {
	tx *sql.Tx
}

// CreateStore creates a new empty store with an auto-incrementing key. It is
// an error if the store already exists.
func (up *Upgrader) CreateStore(ctx context.Context, name string) error {
	if !storeNamePattern.MatchString(name) {
		return serr.NewValidation(serr.CtxStoreName, name, "store name must be a plain identifier")
	}

	stmt := fmt.Sprintf(`CREATE TABLE "%s" (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data BLOB NOT NULL
	);`, name)

	if _, err := up.tx.ExecContext(ctx, stmt); err != nil {
		return wrapDBError(err, "create store", name)
	}
	return nil
}

// HasStore returns whether a store with the given name exists.
func (up *Upgrader) HasStore(ctx context.Context, name string) (bool, error) {
	var count int
	row := up.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?;`, name)
	if err := row.Scan(&count); err != nil {
		return false, wrapDBError(err, "check store", name)
	}
	return count > 0, nil
}

// Store gives access to one store within a transaction. It is only valid
// inside the function passed to DB.Exec.
type Store struct {
	tx   *sql.Tx
	name string
	mode Mode
}

// Name returns the name of the store.
func (s *Store) Name() string {
	return s.name
}

func (s *Store) checkWritable(op string) error {
	if s.mode != ReadWrite {
		return wrapDBError(errors.New("transaction is read-only"), op, s.name)
	}
	return nil
}

// Add stores v under key and returns the key. If key is 0 or less, a new key
// one greater than any previously used is assigned. Adding a key that already
// exists fails with an error matching serr.ErrConstraintViolation.
func (s *Store) Add(ctx context.Context, key int64, v any) (int64, error) {
	const op = "add"
	if err := s.checkWritable(op); err != nil {
		return 0, err
	}

	data, err := rezi.Enc(v)
	if err != nil {
		return 0, wrapDBError(fmt.Errorf("encode: %w", err), op, s.name)
	}

	if key > 0 {
		stmt := fmt.Sprintf(`INSERT INTO "%s" (id, data) VALUES (?, ?);`, s.name)
		if _, err := s.tx.ExecContext(ctx, stmt, key, data); err != nil {
			return 0, wrapDBError(err, op, s.name).With(serr.CtxID, key)
		}
		return key, nil
	}

	stmt := fmt.Sprintf(`INSERT INTO "%s" (data) VALUES (?);`, s.name)
	res, err := s.tx.ExecContext(ctx, stmt, data)
	if err != nil {
		return 0, wrapDBError(err, op, s.name)
	}
	newKey, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError(err, op, s.name)
	}
	return newKey, nil
}

// Put stores v under key, replacing any existing value.
func (s *Store) Put(ctx context.Context, key int64, v any) error {
	const op = "put"
	if err := s.checkWritable(op); err != nil {
		return err
	}
	if key < 1 {
		return serr.NewValidation(serr.CtxID, key, "key must be positive").With(serr.CtxOperation, op)
	}

	data, err := rezi.Enc(v)
	if err != nil {
		return wrapDBError(fmt.Errorf("encode: %w", err), op, s.name)
	}

	stmt := fmt.Sprintf(`INSERT INTO "%s" (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data=excluded.data;`, s.name)
	if _, err := s.tx.ExecContext(ctx, stmt, key, data); err != nil {
		return wrapDBError(err, op, s.name).With(serr.CtxID, key)
	}
	return nil
}

// Get decodes the value stored under key into v, which must be a pointer. If
// there is no such key, found is false and v is left alone.
func (s *Store) Get(ctx context.Context, key int64, v any) (found bool, err error) {
	const op = "get"

	var data []byte
	stmt := fmt.Sprintf(`SELECT data FROM "%s" WHERE id = ?;`, s.name)
	err = s.tx.QueryRowContext(ctx, stmt, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, wrapDBError(err, op, s.name).With(serr.CtxID, key)
	}

	if _, err := rezi.Dec(data, v); err != nil {
		return false, wrapDBError(fmt.Errorf("%w: %w", serr.ErrDecodingFailure, err), op, s.name).With(serr.CtxID, key)
	}
	return true, nil
}

// Delete removes the value stored under key. Deleting a key that does not
// exist is not an error.
func (s *Store) Delete(ctx context.Context, key int64) error {
	const op = "delete"
	if err := s.checkWritable(op); err != nil {
		return err
	}

	stmt := fmt.Sprintf(`DELETE FROM "%s" WHERE id = ?;`, s.name)
	if _, err := s.tx.ExecContext(ctx, stmt, key); err != nil {
		return wrapDBError(err, op, s.name).With(serr.CtxID, key)
	}
	return nil
}

// Keys returns every key in the store in ascending order. An empty store
// gives an empty slice.
func (s *Store) Keys(ctx context.Context) ([]int64, error) {
	const op = "keys"

	stmt := fmt.Sprintf(`SELECT id FROM "%s" ORDER BY id;`, s.name)
	rows, err := s.tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, wrapDBError(err, op, s.name)
	}
	defer rows.Close()

	keys := []int64{}
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, wrapDBError(err, op, s.name)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, op, s.name)
	}

	return keys, nil
}

// GetAll decodes every value in the store into an E, in ascending key order.
// An empty store gives an empty slice.
func GetAll[E any](ctx context.Context, s *Store) ([]E, error) {
	const op = "get all"

	stmt := fmt.Sprintf(`SELECT id, data FROM "%s" ORDER BY id;`, s.name)
	rows, err := s.tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, wrapDBError(err, op, s.name)
	}
	defer rows.Close()

	all := []E{}
	for rows.Next() {
		var key int64
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, wrapDBError(err, op, s.name)
		}

		var e E
		if _, err := rezi.Dec(data, &e); err != nil {
			return nil, wrapDBError(fmt.Errorf("%w: %w", serr.ErrDecodingFailure, err), op, s.name).With(serr.CtxID, key)
		}
		all = append(all, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, op, s.name)
	}

	return all, nil
}

func convertDBError(err error) error {
	sqliteErr := &sqlite.Error{}
	if errors.As(err, &sqliteErr) {
		primaryCode := sqliteErr.Code() & 0xff
		if primaryCode == 19 {
			// preserve the error message for constraints violations
			return fmt.Errorf("%w: %s", serr.ErrConstraintViolation, err.Error())
		} else if primaryCode == 1 {
			// 1 is a generic error and thus the string is not descriptive, so
			// do not use the error code string
			return err
		}

		return errors.New(sqlite.ErrorCodeString[sqliteErr.Code()])
	}

	return err
}

// wrapDBError converts err if it came from the SQLite engine and wraps it as
// a Storage-kind error for operation op on the given store.
func wrapDBError(err error, op string, storeName string) serr.Error {
	e := serr.WrapStorage(convertDBError(err), storageType, op)
	if storeName != "" {
		e = e.With(serr.CtxStoreName, storeName)
	}
	return e
}

func connectionError(err error, file string) serr.Error {
	return serr.WrapStorage(fmt.Errorf("%w: %w", serr.ErrConnection, convertDBError(err)), storageType, "connect").
		With(serr.CtxPath, file)
}
