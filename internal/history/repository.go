package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"futures-advisor/internal/advisor"
)

// Record is one persisted advisory result row. The flattened columns serve
// the analysis queries; the payload column keeps the full result for
// replay and audit.
type Record struct {
	ID                  string    `json:"id"`
	Symbol              string    `json:"symbol"`
	EvaluatedAt         time.Time `json:"evaluated_at"`
	ThresholdsVersion   string    `json:"thresholds_version"`
	FeatureVersion      string    `json:"feature_version"`
	ShortDecision       string    `json:"short_decision"`
	ShortConfidence     string    `json:"short_confidence"`
	ShortExecutable     bool      `json:"short_executable"`
	MediumDecision      string    `json:"medium_decision"`
	MediumConfidence    string    `json:"medium_confidence"`
	MediumExecutable    bool      `json:"medium_executable"`
	AlignmentType       string    `json:"alignment_type"`
	HasConflict         bool      `json:"has_conflict"`
	RiskExposureAllowed bool      `json:"risk_exposure_allowed"`
	Payload             []byte    `json:"-"`
}

// NewRecord flattens an engine result into a row
func NewRecord(res *advisor.DualTimeframeResult) (*Record, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal result payload: %w", err)
	}
	return &Record{
		ID:                  res.ID,
		Symbol:              res.Symbol,
		EvaluatedAt:         res.Timestamp,
		ThresholdsVersion:   res.ThresholdsVersion,
		FeatureVersion:      res.FeatureVersion,
		ShortDecision:       string(res.ShortTerm.Decision),
		ShortConfidence:     string(res.ShortTerm.Confidence),
		ShortExecutable:     res.ShortTerm.Executable,
		MediumDecision:      string(res.MediumTerm.Decision),
		MediumConfidence:    string(res.MediumTerm.Confidence),
		MediumExecutable:    res.MediumTerm.Executable,
		AlignmentType:       string(res.Alignment.AlignmentType),
		HasConflict:         res.Alignment.HasConflict,
		RiskExposureAllowed: res.RiskExposureAllowed,
		Payload:             payload,
	}, nil
}

// Repository provides data access for advisory results
type Repository struct {
	db *DB
}

// NewRepository creates a repository over the pool
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck reports whether the backing pool answers a ping
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// InsertResult persists one evaluated result
func (r *Repository) InsertResult(ctx context.Context, res *advisor.DualTimeframeResult) error {
	rec, err := NewRecord(res)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO advisory_results (
			id, symbol, evaluated_at, thresholds_version, feature_version,
			short_decision, short_confidence, short_executable,
			medium_decision, medium_confidence, medium_executable,
			alignment_type, has_conflict, risk_exposure_allowed, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.Pool.Exec(
		ctx, query,
		rec.ID, rec.Symbol, rec.EvaluatedAt, rec.ThresholdsVersion, rec.FeatureVersion,
		rec.ShortDecision, rec.ShortConfidence, rec.ShortExecutable,
		rec.MediumDecision, rec.MediumConfidence, rec.MediumExecutable,
		rec.AlignmentType, rec.HasConflict, rec.RiskExposureAllowed, rec.Payload,
	)
	return err
}

// RecentBySymbol retrieves the newest results for one symbol
func (r *Repository) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]*Record, error) {
	query := `
		SELECT id, symbol, evaluated_at, thresholds_version, feature_version,
		       short_decision, short_confidence, short_executable,
		       medium_decision, medium_confidence, medium_executable,
		       alignment_type, has_conflict, risk_exposure_allowed, payload
		FROM advisory_results
		WHERE symbol = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Recent retrieves the newest results across all symbols
func (r *Repository) Recent(ctx context.Context, limit int) ([]*Record, error) {
	query := `
		SELECT id, symbol, evaluated_at, thresholds_version, feature_version,
		       short_decision, short_confidence, short_executable,
		       medium_decision, medium_confidence, medium_executable,
		       alignment_type, has_conflict, risk_exposure_allowed, payload
		FROM advisory_results
		ORDER BY evaluated_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(
			&rec.ID, &rec.Symbol, &rec.EvaluatedAt, &rec.ThresholdsVersion, &rec.FeatureVersion,
			&rec.ShortDecision, &rec.ShortConfidence, &rec.ShortExecutable,
			&rec.MediumDecision, &rec.MediumConfidence, &rec.MediumExecutable,
			&rec.AlignmentType, &rec.HasConflict, &rec.RiskExposureAllowed, &rec.Payload,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ConfidenceBucket aggregates decision counts per horizon and confidence
type ConfidenceBucket struct {
	Timeframe  string `json:"timeframe"`
	Confidence string `json:"confidence"`
	Decision   string `json:"decision"`
	Count      int64  `json:"count"`
}

// ConfidenceBuckets aggregates the decision distribution per confidence
// level over the window, for both horizons. Used by the analysis CLI to
// answer whether HIGH confidence advice behaves differently from LOW.
func (r *Repository) ConfidenceBuckets(ctx context.Context, since time.Time) ([]ConfidenceBucket, error) {
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
	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []ConfidenceBucket
	for rows.Next() {
		var b ConfidenceBucket
		if err := rows.Scan(&b.Timeframe, &b.Confidence, &b.Decision, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// ConflictRate returns the share of results with a cross-horizon conflict
// per symbol over the window.
func (r *Repository) ConflictRate(ctx context.Context, since time.Time) (map[string]float64, error) {
	query := `
		SELECT symbol,
		       COUNT(*) FILTER (WHERE has_conflict)::float / COUNT(*) AS rate
		FROM advisory_results
		WHERE evaluated_at >= $1
		GROUP BY symbol
	`
	rows, err := r.db.Pool.Query(ctx, query, since)
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

// PruneOlderThan deletes rows older than the cutoff and returns the count
func (r *Repository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM advisory_results WHERE evaluated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
