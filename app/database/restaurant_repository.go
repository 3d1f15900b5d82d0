package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var _ RestaurantRepository = (*SQLRestaurantRepository)(nil)

// SQLRestaurantRepository persists filtered extraction output.
type SQLRestaurantRepository struct {
	db *DB
}

// NewRestaurantRepository creates a new restaurant repository
func NewRestaurantRepository(db *DB) *SQLRestaurantRepository {
	return &SQLRestaurantRepository{db: db}
}

const restaurantColumns = `id, queue_item_id, video_id, name_he, name_en, cuisine, city,
	neighborhood, price_range, host_opinion, host_comments, menu_items, special_features,
	google_name, confidence, recommendation, created_at`

func (r *SQLRestaurantRepository) Insert(ctx context.Context, rest *Restaurant) error {
	menuItems, err := json.Marshal(orEmpty(rest.MenuItems))
	if err != nil {
		return fmt.Errorf("failed to marshal menu items: %w", err)
	}
	specialFeatures, err := json.Marshal(orEmpty(rest.SpecialFeatures))
	if err != nil {
		return fmt.Errorf("failed to marshal special features: %w", err)
	}

	now := time.Now().UTC()
	rest.CreatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO restaurants (id, queue_item_id, video_id, name_he, name_en, cuisine,
			city, neighborhood, price_range, host_opinion, host_comments, menu_items,
			special_features, google_name, confidence, recommendation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rest.ID, nullableString(rest.QueueItemID), rest.VideoID, rest.NameHe, rest.NameEn,
		rest.Cuisine, rest.City, rest.Neighborhood, rest.PriceRange, rest.HostOpinion,
		rest.HostComments, string(menuItems), string(specialFeatures), rest.GoogleName,
		rest.Confidence, rest.Recommendation, formatTime(now))

	if err != nil {
		return fmt.Errorf("failed to insert restaurant: %w", err)
	}

	return nil
}

func (r *SQLRestaurantRepository) ExistsForVideo(ctx context.Context, videoID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM restaurants WHERE video_id = ? LIMIT 1`, videoID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check restaurants for video: %w", err)
	}
	return true, nil
}

func (r *SQLRestaurantRepository) List(ctx context.Context, limit, offset int) ([]Restaurant, int, error) {
	total, err := r.CountAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+restaurantColumns+` FROM restaurants
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list restaurants: %w", err)
	}
	defer rows.Close()

	var restaurants []Restaurant
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan restaurant row: %w", err)
		}
		restaurants = append(restaurants, *rest)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating restaurant rows: %w", err)
	}

	return restaurants, total, nil
}

func (r *SQLRestaurantRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM restaurants`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count restaurants: %w", err)
	}
	return count, nil
}

func scanRestaurant(scanner interface{ Scan(dest ...any) error }) (*Restaurant, error) {
	var (
		rest            Restaurant
		queueItemID     sql.NullString
		menuItems       string
		specialFeatures string
		createdRaw      string
	)

	if err := scanner.Scan(
		&rest.ID, &queueItemID, &rest.VideoID, &rest.NameHe, &rest.NameEn, &rest.Cuisine,
		&rest.City, &rest.Neighborhood, &rest.PriceRange, &rest.HostOpinion,
		&rest.HostComments, &menuItems, &specialFeatures, &rest.GoogleName,
		&rest.Confidence, &rest.Recommendation, &createdRaw,
	); err != nil {
		return nil, err
	}

	rest.QueueItemID = queueItemID.String

	if err := json.Unmarshal([]byte(menuItems), &rest.MenuItems); err != nil {
		rest.MenuItems = nil
	}
	if err := json.Unmarshal([]byte(specialFeatures), &rest.SpecialFeatures); err != nil {
		rest.SpecialFeatures = nil
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		rest.CreatedAt = t
	}

	return &rest, nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
