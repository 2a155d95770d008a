package store

import (
	"context"
	"fmt"
	"time"
)

// PatternQuery filters cross-population patterns during enrichment.
type PatternQuery struct {
	Industry      string
	CompanySize   string
	MinSuccess    float64
	MinConfidence float64
	Limit         int
}

// InsertPattern stores one aggregated pattern. Normally written by the
// aggregation job; exposed here for seeding and tests.
func (s *Store) InsertPattern(ctx context.Context, p *CrossPopulationPattern) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	rawData, err := marshalDoc(p.PatternData)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cross_population_patterns
			(pattern_type, industry, company_size, pattern_data, success_rate, sample_size, confidence_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PatternType, p.Industry, p.CompanySize, rawData, p.SuccessRate,
		p.SampleSize, p.ConfidenceScore, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("%w: inserting pattern: %w", ErrUnavailable, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		p.ID = id
	}
	return nil
}

// QueryPatterns returns patterns matching the segment descriptors, best
// first (success rate descending, then confidence descending).
func (s *Store) QueryPatterns(ctx context.Context, q PatternQuery) ([]*CrossPopulationPattern, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern_type, industry, company_size, pattern_data,
		       success_rate, sample_size, confidence_score, created_at
		FROM cross_population_patterns
		WHERE industry = ? AND company_size = ?
		  AND success_rate >= ? AND confidence_score >= ?
		ORDER BY success_rate DESC, confidence_score DESC
		LIMIT ?`,
		q.Industry, q.CompanySize, q.MinSuccess, q.MinConfidence, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying patterns: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var patterns []*CrossPopulationPattern
	for rows.Next() {
		var (
			p       CrossPopulationPattern
			rawData string
			created string
		)
		if err := rows.Scan(&p.ID, &p.PatternType, &p.Industry, &p.CompanySize, &rawData,
			&p.SuccessRate, &p.SampleSize, &p.ConfidenceScore, &created); err != nil {
			return nil, fmt.Errorf("%w: scanning pattern: %w", ErrUnavailable, err)
		}
		if p.PatternData, err = unmarshalDoc(rawData); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(created)
		patterns = append(patterns, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating patterns: %w", ErrUnavailable, err)
	}
	return patterns, nil
}
