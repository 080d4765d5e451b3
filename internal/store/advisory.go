// ABOUTME: Persistence for crop recommendations, yield predictions and guidance
// ABOUTME: Enrichment documents are stored as JSON text next to their inputs

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveCropRecommendation stores r and fills in its ID and CreatedAt.
func (s *SQLiteStore) SaveCropRecommendation(ctx context.Context, r *CropRecommendation) error {
	inputs, err := encodeJSON(r.Inputs)
	if err != nil {
		return err
	}
	details, err := encodeJSON(r.Details)
	if err != nil {
		return err
	}

	r.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO crop_recommendations (user_id, predicted_crop, inputs_json, details_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.UserID, r.PredictedCrop, inputs, details, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting crop recommendation: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// ListCropRecommendations returns a user's recommendations, newest first.
func (s *SQLiteStore) ListCropRecommendations(ctx context.Context, userID int64) ([]*CropRecommendation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, predicted_crop, inputs_json, details_json, created_at
		FROM crop_recommendations
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying crop recommendations: %w", err)
	}
	defer rows.Close()

	var out []*CropRecommendation
	for rows.Next() {
		var r CropRecommendation
		var inputs, details, createdAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.PredictedCrop, &inputs, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning crop recommendation: %w", err)
		}
		if err := json.Unmarshal([]byte(inputs), &r.Inputs); err != nil {
			return nil, fmt.Errorf("decoding inputs of recommendation %d: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
			return nil, fmt.Errorf("decoding details of recommendation %d: %w", r.ID, err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SaveYieldPrediction stores p and fills in its ID and CreatedAt.
func (s *SQLiteStore) SaveYieldPrediction(ctx context.Context, p *YieldPrediction) error {
	details, err := encodeJSON(p.Details)
	if err != nil {
		return err
	}
	if p.Unit == "" {
		p.Unit = "hg/ha"
	}

	p.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO yield_predictions (user_id, item, area, year, predicted_yield, unit, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.UserID, p.Item, p.Area, p.Year, p.PredictedYield, p.Unit, details, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting yield prediction: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// ListYieldPredictions returns a user's yield predictions, newest first.
func (s *SQLiteStore) ListYieldPredictions(ctx context.Context, userID int64) ([]*YieldPrediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, item, area, year, predicted_yield, unit, details_json, created_at
		FROM yield_predictions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying yield predictions: %w", err)
	}
	defer rows.Close()

	var out []*YieldPrediction
	for rows.Next() {
		var p YieldPrediction
		var details, createdAt string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Item, &p.Area, &p.Year, &p.PredictedYield, &p.Unit, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning yield prediction: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &p.Details); err != nil {
			return nil, fmt.Errorf("decoding details of yield prediction %d: %w", p.ID, err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SaveCropGuidance stores g and fills in its ID and CreatedAt.
func (s *SQLiteStore) SaveCropGuidance(ctx context.Context, g *CropGuidance) error {
	guidance, err := encodeJSON(g.Guidance)
	if err != nil {
		return err
	}
	var fertilizer any
	if g.Fertilizer != nil {
		data, err := json.Marshal(g.Fertilizer)
		if err != nil {
			return fmt.Errorf("encoding fertilizer: %w", err)
		}
		fertilizer = string(data)
	}

	g.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO crop_guidance (
			user_id, crop_name, land_size, soil_type, location, irrigation_method,
			fertilizer_json, equipment, planting_date, growing_season, guidance_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.UserID, g.CropName, g.LandSize, g.SoilType, g.Location, g.IrrigationMethod,
		fertilizer, nullString(g.Equipment), nullString(g.PlantingDate), nullString(g.GrowingSeason),
		guidance, formatTime(g.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting crop guidance: %w", err)
	}
	g.ID, err = res.LastInsertId()
	return err
}

// ListCropGuidance returns a user's guidance documents, newest first.
func (s *SQLiteStore) ListCropGuidance(ctx context.Context, userID int64) ([]*CropGuidance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, crop_name, land_size, soil_type, location, irrigation_method,
		       fertilizer_json, equipment, planting_date, growing_season, guidance_json, created_at
		FROM crop_guidance
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying crop guidance: %w", err)
	}
	defer rows.Close()

	var out []*CropGuidance
	for rows.Next() {
		var g CropGuidance
		var fertilizer, equipment, plantingDate, season sql.NullString
		var guidance, createdAt string
		if err := rows.Scan(
			&g.ID, &g.UserID, &g.CropName, &g.LandSize, &g.SoilType, &g.Location, &g.IrrigationMethod,
			&fertilizer, &equipment, &plantingDate, &season, &guidance, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning crop guidance: %w", err)
		}
		if fertilizer.Valid {
			g.Fertilizer = &Fertilizer{}
			if err := json.Unmarshal([]byte(fertilizer.String), g.Fertilizer); err != nil {
				return nil, fmt.Errorf("decoding fertilizer of guidance %d: %w", g.ID, err)
			}
		}
		if err := json.Unmarshal([]byte(guidance), &g.Guidance); err != nil {
			return nil, fmt.Errorf("decoding guidance %d: %w", g.ID, err)
		}
		g.Equipment = equipment.String
		g.PlantingDate = plantingDate.String
		g.GrowingSeason = season.String
		if g.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}
