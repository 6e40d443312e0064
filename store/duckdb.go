package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Summary aggregates the files a Sink wrote.
type Summary struct {
	Episodes      int64
	Steps         int64
	AvgTurns      float64
	MaxTurns      int64
	TruncatedFrac float64
	// AvgReturn is the mean over controlled snakes of their episode return.
	AvgReturn float64
	Wins      map[string]int64
	Deaths    map[string]int64
}

// Summarize reads outDir/episodes and outDir/steps with DuckDB.
func Summarize(ctx context.Context, outDir string) (Summary, error) {
	sum := Summary{Wins: map[string]int64{}, Deaths: map[string]int64{}}

	episodes, err := parquetGlob(outDir, EpisodesDir)
	if err != nil {
		return sum, err
	}
	steps, err := parquetGlob(outDir, StepsDir)
	if err != nil {
		return sum, err
	}
	if episodes == "" && steps == "" {
		return sum, fmt.Errorf("no parquet files under %s", outDir)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return sum, err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, "PRAGMA threads=4"); err != nil {
		return sum, fmt.Errorf("configure duckdb: %w", err)
	}

	if steps != "" {
		q := "SELECT COUNT(*) FROM read_parquet(" + steps + ", union_by_name=true)"
		if err := db.QueryRowContext(ctx, q).Scan(&sum.Steps); err != nil {
			return sum, fmt.Errorf("count steps: %w", err)
		}
	}
	if episodes == "" {
		return sum, nil
	}

	src := "read_parquet(" + episodes + ", union_by_name=true)"
	q := `SELECT COUNT(*),
			COALESCE(AVG(turns), 0),
			COALESCE(MAX(turns), 0),
			COALESCE(AVG(CASE WHEN truncated THEN 1.0 ELSE 0.0 END), 0)
		FROM ` + src
	if err := db.QueryRowContext(ctx, q).Scan(&sum.Episodes, &sum.AvgTurns, &sum.MaxTurns, &sum.TruncatedFrac); err != nil {
		return sum, fmt.Errorf("episode totals: %w", err)
	}

	q = `SELECT COALESCE(AVG(r), 0) FROM (SELECT unnest(returns) AS r FROM ` + src + `)`
	if err := db.QueryRowContext(ctx, q).Scan(&sum.AvgReturn); err != nil {
		return sum, fmt.Errorf("average return: %w", err)
	}

	q = `SELECT winner, COUNT(*) FROM ` + src + ` WHERE winner <> '' GROUP BY winner`
	if err := countInto(ctx, db, q, sum.Wins); err != nil {
		return sum, fmt.Errorf("wins: %w", err)
	}
	q = `SELECT d, COUNT(*) FROM (SELECT unnest(deaths) AS d FROM ` + src + `) WHERE d <> '' GROUP BY d`
	if err := countInto(ctx, db, q, sum.Deaths); err != nil {
		return sum, fmt.Errorf("deaths: %w", err)
	}
	return sum, nil
}

func countInto(ctx context.Context, db *sql.DB, q string, dst map[string]int64) error {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}

// parquetGlob returns a quoted DuckDB glob for outDir/sub, or "" when the
// directory holds no published files. tmp/ is not matched.
func parquetGlob(outDir, sub string) (string, error) {
	dir := filepath.Join(outDir, sub)
	matches, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		if _, err := os.Stat(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		return "", nil
	}
	return "'" + escapeSQLString(filepath.Join(dir, "*.parquet")) + "'", nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
