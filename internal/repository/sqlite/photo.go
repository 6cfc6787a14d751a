package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/repository"
)

var _ repository.PhotoRepository = (*DB)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Listing queries LEFT JOIN users: the owner link is a plain reference and a
// missing user must not hide the photo.
const photoSelect = `
	SELECT p.id, p.user_id, COALESCE(u.username, ''), p.title, p.description,
	       p.image_url, p.thumbnail_url, p.created_at, p.updated_at
	FROM photos p
	LEFT JOIN users u ON u.id = p.user_id`

// CreatePhoto inserts the photo and its tags in one transaction.
func (db *DB) CreatePhoto(ctx context.Context, photo *model.Photo) error {
	now := time.Now()
	id := xid.New().String()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO photos (id, user_id, title, description, image_url, thumbnail_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		photo.UserID,
		photo.Title,
		photo.Description,
		photo.ImageURL,
		photo.ThumbnailURL,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting photo: %w", err)
	}

	if err := insertTags(ctx, tx, id, photo.Tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing photo %s: %w", id, err)
	}

	photo.ID = id
	photo.CreatedAt = now
	photo.UpdatedAt = now
	if photo.Tags == nil {
		photo.Tags = []string{}
	}
	return nil
}

// GetPhotoByID retrieves a single photo with its tags.
func (db *DB) GetPhotoByID(ctx context.Context, id string) (*model.Photo, error) {
	photos, err := db.queryPhotos(ctx, photoSelect+` WHERE p.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting photo %s: %w", id, err)
	}
	if len(photos) == 0 {
		return nil, apperror.NotFound("photo", id)
	}
	return &photos[0], nil
}

// ListPhotosByOwner returns the owner's photos in the order they were created.
func (db *DB) ListPhotosByOwner(ctx context.Context, ownerID string) ([]model.Photo, error) {
	photos, err := db.queryPhotos(ctx,
		photoSelect+` WHERE p.user_id = ? ORDER BY p.rowid ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing photos for %s: %w", ownerID, err)
	}
	return photos, nil
}

// ListPhotos returns every photo in creation order.
func (db *DB) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	photos, err := db.queryPhotos(ctx, photoSelect+` ORDER BY p.rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing photos: %w", err)
	}
	return photos, nil
}

// SearchPhotos matches each token as a case-insensitive substring against the
// title, the description and every tag. A photo is returned when any token
// matches. No tokens means no results.
//
// HOW A QUERY IS BUILT
//
// "sun Beach" arrives as tokens ["sun", "Beach"] and becomes
//
//	WHERE (fold(title) LIKE '%sun%' OR fold(description) LIKE '%sun%' OR <tag>)
//	   OR (fold(title) LIKE '%beach%' OR ...)
//
// Both sides are folded with the same Unicode lowering, so the match never
// depends on the case of either side. % and _ in a token are escaped and match
// themselves. There is no ranking: results come back in creation order, which
// is what the listing pages use too.
func (db *DB) SearchPhotos(ctx context.Context, tokens []string) ([]model.Photo, error) {
	if len(tokens) == 0 {
		return []model.Photo{}, nil
	}

	conds := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens)*3)
	for _, tok := range tokens {
		pattern := "%" + escapeLike(strings.ToLower(tok)) + "%"
		conds = append(conds, `(fold(p.title) LIKE ? ESCAPE '\'
			OR fold(p.description) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM photo_tags t WHERE t.photo_id = p.id AND fold(t.tag) LIKE ? ESCAPE '\'))`)
		args = append(args, pattern, pattern, pattern)
	}

	query := photoSelect + ` WHERE ` + strings.Join(conds, " OR ") + ` ORDER BY p.rowid ASC`
	photos, err := db.queryPhotos(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching photos: %w", err)
	}
	return photos, nil
}

// UpdatePhoto rewrites title, description and tags. user_id, image_url and
// created_at are never touched.
func (db *DB) UpdatePhoto(ctx context.Context, photo *model.Photo) error {
	now := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE photos SET title = ?, description = ?, updated_at = ? WHERE id = ?`,
		photo.Title,
		photo.Description,
		now,
		photo.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating photo %s: %w", photo.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("photo", photo.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM photo_tags WHERE photo_id = ?`, photo.ID); err != nil {
		return fmt.Errorf("sqlite: clearing tags for %s: %w", photo.ID, err)
	}
	if err := insertTags(ctx, tx, photo.ID, photo.Tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing photo %s: %w", photo.ID, err)
	}

	photo.UpdatedAt = now
	return nil
}

// DeletePhoto removes a photo and its tags.
func (db *DB) DeletePhoto(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM photo_tags WHERE photo_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting tags for %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting photo %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("photo", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of %s: %w", id, err)
	}
	return nil
}

// insertTags writes tags with their position in the input. Tags are a list,
// not a set: "beach, sunset" and "sunset, beach" are stored and shown in the
// order typed, and a duplicate tag is kept. attachTags reads them back
// ORDER BY position so the round trip is exact.
func insertTags(ctx context.Context, q queryer, photoID string, tags []string) error {
	for i, tag := range tags {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO photo_tags (photo_id, position, tag) VALUES (?, ?, ?)`,
			photoID, i, tag,
		); err != nil {
			return fmt.Errorf("sqlite: inserting tag %q for %s: %w", tag, photoID, err)
		}
	}
	return nil
}

// queryPhotos runs a photoSelect query and attaches tags to every row.
func (db *DB) queryPhotos(ctx context.Context, query string, args ...any) ([]model.Photo, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := []model.Photo{}
	for rows.Next() {
		var p model.Photo
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.OwnerUsername, &p.Title, &p.Description,
			&p.ImageURL, &p.ThumbnailURL, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning photo row: %w", err)
		}
		p.Tags = []string{}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating photos: %w", err)
	}
	// Close before the tag query: an in-memory database has a single connection.
	rows.Close()

	if err := db.attachTags(ctx, photos); err != nil {
		return nil, err
	}
	return photos, nil
}

func (db *DB) attachTags(ctx context.Context, photos []model.Photo) error {
	if len(photos) == 0 {
		return nil
	}

	index := make(map[string]int, len(photos))
	placeholders := make([]string, len(photos))
	args := make([]any, len(photos))
	for i, p := range photos {
		index[p.ID] = i
		placeholders[i] = "?"
		args[i] = p.ID
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT photo_id, tag FROM photo_tags
		 WHERE photo_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY photo_id, position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var photoID, tag string
		if err := rows.Scan(&photoID, &tag); err != nil {
			return fmt.Errorf("scanning tag row: %w", err)
		}
		if i, ok := index[photoID]; ok {
			photos[i].Tags = append(photos[i].Tags, tag)
		}
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("iterating tags: %w", err)
	}
	return nil
}
