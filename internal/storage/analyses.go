package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/service"
)

// SaveAnalysis stores or replaces the analysis record for one email. This is
// the persistent cache tier: re-analyzing an email overwrites its entry.
func (s *SQLiteStorage) SaveAnalysis(ctx context.Context, analysis *model.StoredAnalysis) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAnalysis(analysis); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveAnalysisTx(ctx, tx, analysis); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) saveAnalysisTx(ctx context.Context, tx *sql.Tx, analysis *model.StoredAnalysis) error {
	if analysis.AnalyzedAt.IsZero() {
		analysis.AnalyzedAt = time.Now().UTC()
	}

	var resultJSON sql.NullString
	if analysis.Result != nil {
		data, err := json.Marshal(analysis.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal analysis result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO email_analyses (
			email_id, user_id, sender, subject, result,
			was_filtered, filter_reason, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, email_id) DO UPDATE SET
			sender = excluded.sender,
			subject = excluded.subject,
			result = excluded.result,
			was_filtered = excluded.was_filtered,
			filter_reason = excluded.filter_reason,
			analyzed_at = excluded.analyzed_at
	`, analysis.EmailID, analysis.UserID, analysis.From, analysis.Subject, resultJSON,
		analysis.WasFiltered, analysis.FilterReason, analysis.AnalyzedAt)

	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

// GetAnalysis retrieves the stored analysis for one email. Freshness is the
// caller's concern; records are returned regardless of age.
func (s *SQLiteStorage) GetAnalysis(ctx context.Context, userID, emailID string) (*model.StoredAnalysis, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return nil, err
	}
	return s.getAnalysisTx(ctx, s.db, userID, emailID)
}

func (s *SQLiteStorage) getAnalysisTx(ctx context.Context, q queryable, userID, emailID string) (*model.StoredAnalysis, error) {
	var analysis model.StoredAnalysis
	var resultJSON sql.NullString

	err := q.QueryRowContext(ctx, `
		SELECT email_id, user_id, sender, subject, result,
		       was_filtered, filter_reason, analyzed_at
		FROM email_analyses
		WHERE user_id = ? AND email_id = ?
	`, userID, emailID).Scan(
		&analysis.EmailID,
		&analysis.UserID,
		&analysis.From,
		&analysis.Subject,
		&resultJSON,
		&analysis.WasFiltered,
		&analysis.FilterReason,
		&analysis.AnalyzedAt,
	)

	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows // Not an error, just not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if resultJSON.Valid && resultJSON.String != "" {
		var result model.AnalysisResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to parse analysis result: %w", err)
		}
		analysis.Result = &result
	}

	return &analysis, nil
}

// PruneAnalyses deletes analysis records older than the cutoff and returns how
// many were removed.
func (s *SQLiteStorage) PruneAnalyses(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return s.pruneAnalysesTx(ctx, s.db, olderThan)
}

func (s *SQLiteStorage) pruneAnalysesTx(ctx context.Context, q queryable, olderThan time.Time) (int64, error) {
	result, err := q.ExecContext(ctx, `
		DELETE FROM email_analyses WHERE analyzed_at < ?
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune analyses: %w", err)
	}

	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return pruned, nil
}

// GetAnalysisStats summarizes the analysis cache for one user. Records newer
// than the freshness window count as fresh, the rest as stale.
func (s *SQLiteStorage) GetAnalysisStats(ctx context.Context, userID string, freshness time.Duration) (*service.AnalysisStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-freshness)

	var stats service.AnalysisStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN analyzed_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN analyzed_at < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN was_filtered THEN 1 ELSE 0 END), 0)
		FROM email_analyses
		WHERE user_id = ?
	`, cutoff, cutoff, userID).Scan(
		&stats.Total,
		&stats.Fresh,
		&stats.Stale,
		&stats.Filtered,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis stats: %w", err)
	}

	return &stats, nil
}
