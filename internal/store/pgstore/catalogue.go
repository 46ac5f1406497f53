package pgstore

import (
	"context"

	"github.com/sudo-init-do/workerlly/internal/models"
)

func (q *queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := q.q.QueryRow(ctx, `SELECT id, name, mobile, roles FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Mobile, &u.Roles)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (q *queries) GetAddress(ctx context.Context, id string) (*models.Address, error) {
	var a models.Address
	err := q.q.QueryRow(ctx, `
		SELECT id, user_id, address_line1, address_line2, apartment, landmark, label, type, city_id, lat, lon
		FROM addresses WHERE id = $1`, id,
	).Scan(&a.ID, &a.UserID, &a.AddressLine1, &a.AddressLine2, &a.Apartment, &a.Landmark, &a.Label, &a.Type,
		&a.CityID, &a.Location.Lat, &a.Location.Lon)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (q *queries) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var c models.Category
	var parent *string
	err := q.q.QueryRow(ctx, `SELECT id, name, parent_id, is_active FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &parent, &c.IsActive)
	if err != nil {
		return nil, mapErr(err)
	}
	if parent != nil {
		c.ParentID = *parent
	}
	return &c, nil
}

func (q *queries) GetCity(ctx context.Context, id string) (*models.City, error) {
	var c models.City
	err := q.q.QueryRow(ctx, `SELECT id, name, is_active FROM cities WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.IsActive)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (q *queries) GetRate(ctx context.Context, cityID, categoryID string) (*models.Rate, error) {
	var r models.Rate
	err := q.q.QueryRow(ctx, `
		SELECT id, city_id, category_id, min_hourly_rate, max_hourly_rate
		FROM rates WHERE city_id = $1 AND category_id = $2`, cityID, categoryID,
	).Scan(&r.ID, &r.CityID, &r.CategoryID, &r.MinHourlyRate, &r.MaxHourlyRate)
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

// GrantRole adds role to the user with the given mobile number. It reports whether a
// user matched.
func (s *Store) GrantRole(ctx context.Context, mobile, role string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET roles = array_append(roles, $2::text)
		WHERE mobile = $1 AND NOT ($2::text = ANY(roles))`, mobile, role)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE mobile = $1)`, mobile).Scan(&exists)
	return exists, err
}
