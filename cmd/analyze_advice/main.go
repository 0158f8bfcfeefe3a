// analyze_advice summarizes persisted advisory results: decision counts per
// confidence level and horizon, plus per-symbol conflict rates. It reads the
// same advisory_results table the service writes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type bucket struct {
	Timeframe  string
	Confidence string
	Decision   string
	Count      int64
}

func main() {
	days := flag.Int("days", 7, "analysis window in days")
	flag.Parse()

	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "postgres")
	dbName := getEnv("DB_NAME", "futures_advisor")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPass, dbHost, dbPort, dbName)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	since := time.Now().AddDate(0, 0, -*days)

	fmt.Println("================================================================================")
	fmt.Printf("ADVISORY RESULT ANALYSIS (last %d days)\n", *days)
	fmt.Println("================================================================================")

	var total int64
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM advisory_results WHERE evaluated_at >= $1`, since,
	).Scan(&total); err != nil {
		fmt.Printf("Count query failed: %v\n", err)
		os.Exit(1)
	}
	if total == 0 {
		fmt.Println("\nNo advisory results in the window.")
		fmt.Println("Check that the service runs with the database enabled.")
		return
	}
	fmt.Printf("\nAnalyzing %d results...\n\n", total)

	buckets, err := queryBuckets(ctx, pool, since)
	if err != nil {
		fmt.Printf("Bucket query failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("┌─────────────┬────────────┬───────────┬────────┐")
	fmt.Println("│ Timeframe   │ Confidence │ Decision  │ Count  │")
	fmt.Println("├─────────────┼────────────┼───────────┼────────┤")
	for _, b := range buckets {
		fmt.Printf("│ %-11s │ %-10s │ %-9s │ %6d │\n",
			b.Timeframe, b.Confidence, b.Decision, b.Count)
	}
	fmt.Println("└─────────────┴────────────┴───────────┴────────┘")

	rates, err := queryConflictRates(ctx, pool, since)
	if err != nil {
		fmt.Printf("Conflict query failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nCross-horizon conflict rate per symbol:")
	symbols := make([]string, 0, len(rates))
	for s := range rates {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		fmt.Printf("  %-12s %5.1f%%\n", s, rates[s]*100)
	}
}

func queryBuckets(ctx context.Context, pool *pgxpool.Pool, since time.Time) ([]bucket, error) {
	query := `
		SELECT 'short_term' AS timeframe, short_confidence, short_decision, COUNT(*)
		FROM advisory_results
		WHERE evaluated_at >= $1
		GROUP BY short_confidence, short_decision
		UNION ALL
		SELECT 'medium_term' AS timeframe, medium_confidence, medium_decision, COUNT(*)
		FROM advisory_results
		WHERE evaluated_at >= $1
		GROUP BY medium_confidence, medium_decision
		ORDER BY timeframe, short_confidence, short_decision
	`
	rows, err := pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []bucket
	for rows.Next() {
		var b bucket
		if err := rows.Scan(&b.Timeframe, &b.Confidence, &b.Decision, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func queryConflictRates(ctx context.Context, pool *pgxpool.Pool, since time.Time) (map[string]float64, error) {
	query := `
		SELECT symbol,
		       COUNT(*) FILTER (WHERE has_conflict)::float / COUNT(*) AS rate
		FROM advisory_results
		WHERE evaluated_at >= $1
		GROUP BY symbol
	`
	rows, err := pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var rate float64
		if err := rows.Scan(&symbol, &rate); err != nil {
			return nil, err
		}
		rates[symbol] = rate
	}
	return rates, rows.Err()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
