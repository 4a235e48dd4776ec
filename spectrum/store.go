// Package spectrum stores magnon spectra in SQLite.
package spectrum

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/fumin/magnons/lswt"
)

const (
	tableOmega = "omega"
	tableDelta = "delta"
)

// ErrNotFound is returned by Get for a k point index that was never stored.
var ErrNotFound = errors.New("k point not found")

// Row is the stored solution at one k point.
// Failed diagonalizations read back with NaN energies.
type Row struct {
	I      int
	K      r3.Vec
	Omegas []float64
	Delta  float64
}

// Store holds the solutions of a k point scan, indexed by the position of the
// k point in the scan.
type Store struct {
	Path string

	db *sql.DB
}

// Open opens the database at path, creating the tables if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, fmt.Sprintf("db %s", path))
	}
	return &Store{Path: path, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores the solution d at the k point with index i, replacing any
// previous one.
func (s *Store) Put(ctx context.Context, i int, k r3.Vec, d lswt.Diagonalization) error {
	return s.PutScan(ctx, i, []r3.Vec{k}, []lswt.Diagonalization{d})
}

// PutScan stores the solutions of a scan in a single transaction, the first
// one at index offset.
func (s *Store) PutScan(ctx context.Context, offset int, ks []r3.Vec, ds []lswt.Diagonalization) error {
	if len(ks) != len(ds) {
		return errors.Errorf("%d k points for %d solutions", len(ks), len(ds))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for n, d := range ds {
		if err := putItem(ctx, tx, offset+n, ks[n], d); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Get returns the solution stored at index i.
func (s *Store) Get(ctx context.Context, i int) (Row, error) {
	row := Row{I: i}
	var delta sql.NullFloat64
	sqlStr := fmt.Sprintf(`SELECT delta FROM %s WHERE i=?`, tableDelta)
	err := s.db.QueryRowContext(ctx, sqlStr, i).Scan(&delta)
	switch {
	case err == sql.ErrNoRows:
		return Row{}, errors.Wrapf(ErrNotFound, "%d", i)
	case err != nil:
		return Row{}, errors.Wrap(err, "")
	}
	row.Delta = fromNull(delta)

	sqlStr = fmt.Sprintf(`SELECT kx, ky, kz, omega FROM %s WHERE i=? ORDER BY branch`, tableOmega)
	rows, err := s.db.QueryContext(ctx, sqlStr, i)
	if err != nil {
		return Row{}, errors.Wrap(err, "")
	}
	defer rows.Close()
	for rows.Next() {
		var omega sql.NullFloat64
		if err := rows.Scan(&row.K.X, &row.K.Y, &row.K.Z, &omega); err != nil {
			return Row{}, errors.Wrap(err, "")
		}
		row.Omegas = append(row.Omegas, fromNull(omega))
	}
	if err := rows.Err(); err != nil {
		return Row{}, errors.Wrap(err, "")
	}
	return row, nil
}

// Len returns the number of stored k points.
func (s *Store) Len(ctx context.Context) (int, error) {
	sqlStr := fmt.Sprintf("SELECT count(1) FROM %s", tableDelta)
	var n int
	if err := s.db.QueryRowContext(ctx, sqlStr).Scan(&n); err != nil {
		return -1, errors.Wrap(err, "")
	}
	return n, nil
}

// WriteCSV writes one line per stored k point and branch, ordered by index:
// i, kx, ky, kz, branch, omega, delta. NaNs are written as "nan".
func (s *Store) WriteCSV(ctx context.Context, out io.Writer) error {
	sqlStr := fmt.Sprintf(`SELECT o.i, o.kx, o.ky, o.kz, o.branch, o.omega, d.delta FROM %s o JOIN %s d ON o.i = d.i ORDER BY o.i, o.branch`, tableOmega, tableDelta)
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer rows.Close()

	w := csv.NewWriter(out)
	if err := w.Write([]string{"i", "kx", "ky", "kz", "branch", "omega", "delta"}); err != nil {
		return errors.Wrap(err, "")
	}
	for rows.Next() {
		var i, branch int
		var k r3.Vec
		var omega, delta sql.NullFloat64
		if err := rows.Scan(&i, &k.X, &k.Y, &k.Z, &branch, &omega, &delta); err != nil {
			return errors.Wrap(err, "")
		}
		record := []string{
			strconv.Itoa(i), formatFloat(k.X), formatFloat(k.Y), formatFloat(k.Z),
			strconv.Itoa(branch), formatFloat(fromNull(omega)), formatFloat(fromNull(delta)),
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func putItem(ctx context.Context, tx *sql.Tx, i int, k r3.Vec, d lswt.Diagonalization) error {
	sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE i=?`, tableOmega)
	if _, err := tx.ExecContext(ctx, sqlStr, i); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %d", sqlStr, i))
	}
	sqlStr = fmt.Sprintf(`INSERT INTO %s (i, kx, ky, kz, branch, omega) VALUES (?, ?, ?, ?, ?, ?)`, tableOmega)
	for branch, omega := range d.Omegas {
		args := []any{i, k.X, k.Y, k.Z, branch, toNull(omega)}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
		}
	}
	sqlStr = fmt.Sprintf(`INSERT OR REPLACE INTO %s (i, delta) VALUES (?, ?)`, tableDelta)
	if _, err := tx.ExecContext(ctx, sqlStr, i, toNull(d.Delta)); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %d", sqlStr, i))
	}
	return nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (i INTEGER, kx REAL, ky REAL, kz REAL, branch INTEGER, omega REAL, PRIMARY KEY (i, branch)) STRICT`, tableOmega)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (i INTEGER PRIMARY KEY, delta REAL) STRICT`, tableDelta)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// SQLite stores NaN as NULL.
func toNull(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
