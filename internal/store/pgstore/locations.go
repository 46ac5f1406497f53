package pgstore

import (
	"context"
	"time"

	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/models"
	"github.com/sudo-init-do/workerlly/internal/store"
)

const locationColumns = `job_id, seeker_id, provider_id, seeker_lat, seeker_lon, provider_lat, provider_lon,
	status, last_updated, created_at`

func scanLocation(row scanner) (*models.ActiveJobLocation, error) {
	var l models.ActiveJobLocation
	var seekerLat, seekerLon *float64
	var status string
	err := row.Scan(&l.JobID, &l.SeekerID, &l.ProviderID, &seekerLat, &seekerLon,
		&l.ProviderLocation.Lat, &l.ProviderLocation.Lon, &status, &l.LastUpdated, &l.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if seekerLat != nil && seekerLon != nil {
		l.SeekerLocation = &geo.Point{Lat: *seekerLat, Lon: *seekerLon}
	}
	l.Status = models.LocationStatus(status)
	return &l, nil
}

func (q *queries) UpsertActiveLocation(ctx context.Context, l *models.ActiveJobLocation) error {
	var seekerLat, seekerLon *float64
	if l.SeekerLocation != nil {
		seekerLat, seekerLon = &l.SeekerLocation.Lat, &l.SeekerLocation.Lon
	}
	_, err := q.q.Exec(ctx, `
		INSERT INTO active_job_locations (`+locationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (job_id) DO UPDATE SET
			seeker_id = EXCLUDED.seeker_id,
			provider_id = EXCLUDED.provider_id,
			seeker_lat = EXCLUDED.seeker_lat,
			seeker_lon = EXCLUDED.seeker_lon,
			provider_lat = EXCLUDED.provider_lat,
			provider_lon = EXCLUDED.provider_lon,
			status = EXCLUDED.status,
			last_updated = EXCLUDED.last_updated`,
		l.JobID, l.SeekerID, l.ProviderID, seekerLat, seekerLon,
		l.ProviderLocation.Lat, l.ProviderLocation.Lon, string(l.Status), l.LastUpdated, l.CreatedAt,
	)
	return mapErr(err)
}

func (q *queries) GetActiveLocation(ctx context.Context, jobID string) (*models.ActiveJobLocation, error) {
	return scanLocation(q.q.QueryRow(ctx,
		`SELECT `+locationColumns+` FROM active_job_locations WHERE job_id = $1`, jobID))
}

func (q *queries) UpdateSeekerLocation(ctx context.Context, seekerID string, p geo.Point, at time.Time) (*models.ActiveJobLocation, error) {
	return scanLocation(q.q.QueryRow(ctx, `
		UPDATE active_job_locations
		SET seeker_lat = $2, seeker_lon = $3, last_updated = $4
		WHERE job_id = (
			SELECT job_id FROM active_job_locations
			WHERE seeker_id = $1 AND status = 'active'
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING `+locationColumns,
		seekerID, p.Lat, p.Lon, at,
	))
}

func (q *queries) CloseActiveLocation(ctx context.Context, jobID string, at time.Time) error {
	tag, err := q.q.Exec(ctx,
		`UPDATE active_job_locations SET status = 'closed', last_updated = $2 WHERE job_id = $1`,
		jobID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
