package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/okdomo/catapult/types"

	_ "modernc.org/sqlite"
)

// PixivUtil2 resolves metadata from a PixivUtil2 database. Its downloads
// carry the illust ID as the leading digit run of the filename.
type PixivUtil2 struct {
	db *sql.DB
	// translationTypes filters which tag translations join the tag list.
	translationTypes map[string]struct{}
}

// OpenPixivUtil2 opens the downloader's database. translationTypes defaults
// to just "en" when empty.
func OpenPixivUtil2(path string, translationTypes ...string) (*PixivUtil2, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("pixivutil2 db: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open pixivutil2 db %s: %w", path, err)
	}
	return NewPixivUtil2(db, translationTypes...), nil
}

// NewPixivUtil2 wraps an already open database. Used by tests.
func NewPixivUtil2(db *sql.DB, translationTypes ...string) *PixivUtil2 {
	if len(translationTypes) == 0 {
		translationTypes = []string{"en"}
	}
	allowed := make(map[string]struct{}, len(translationTypes))
	for _, t := range translationTypes {
		allowed[t] = struct{}{}
	}
	return &PixivUtil2{db: db, translationTypes: allowed}
}

// Close releases the database handle.
func (p *PixivUtil2) Close() error {
	return p.db.Close()
}

// Identifier returns the illust ID: the digit run leading the filename.
func (p *PixivUtil2) Identifier(filename string) (string, error) {
	end := 0
	for end < len(filename) && filename[end] >= '0' && filename[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", fmt.Errorf("%w: %q does not start with an illust id", ErrNoIdentifier, filename)
	}
	return filename[:end], nil
}

// Metadata assembles title, tags (with allowed translations), artist
// attribution and caption for an illust ID.
func (p *PixivUtil2) Metadata(ctx context.Context, id string) (types.ArchiveMetadata, error) {
	var meta types.ArchiveMetadata

	var caption sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT title, caption FROM pixiv_master_image WHERE image_id = ?`, id).
		Scan(&meta.Title, &caption)
	if errors.Is(err, sql.ErrNoRows) {
		return meta, fmt.Errorf("illust %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return meta, fmt.Errorf("illust %s: %w", id, err)
	}
	meta.Summary = caption.String

	var tags []string
	rows, err := p.db.QueryContext(ctx, `
		SELECT tag_id FROM pixiv_image_to_tag WHERE image_id = ? ORDER BY tag_id`, id)
	if err != nil {
		return meta, fmt.Errorf("illust %s tags: %w", id, err)
	}
	defer rows.Close()
	var tagIDs []string
	for rows.Next() {
		var tagID string
		if err := rows.Scan(&tagID); err != nil {
			return meta, fmt.Errorf("illust %s tags: %w", id, err)
		}
		tagIDs = append(tagIDs, tagID)
	}
	if err := rows.Err(); err != nil {
		return meta, fmt.Errorf("illust %s tags: %w", id, err)
	}

	for _, tagID := range tagIDs {
		tags = append(tags, tagID)
		translations, err := p.translations(ctx, tagID)
		if err != nil {
			return meta, err
		}
		tags = append(tags, translations...)
	}

	rows, err = p.db.QueryContext(ctx, `
		SELECT pixiv_master_member.member_id, pixiv_master_member.name
		FROM pixiv_master_member
		JOIN pixiv_master_image ON pixiv_master_member.member_id = pixiv_master_image.member_id
		WHERE pixiv_master_image.image_id = ?`, id)
	if err != nil {
		return meta, fmt.Errorf("illust %s artist: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var memberID, name string
		if err := rows.Scan(&memberID, &name); err != nil {
			return meta, fmt.Errorf("illust %s artist: %w", id, err)
		}
		tags = append(tags, "artist:"+name, "pixiv_user_id:"+memberID)
	}
	if err := rows.Err(); err != nil {
		return meta, fmt.Errorf("illust %s artist: %w", id, err)
	}

	tags = append(tags, "source:https://pixiv.net/artworks/"+id)

	kept := tags[:0]
	for _, tag := range tags {
		if !strings.Contains(tag, ",") {
			kept = append(kept, tag)
		}
	}
	meta.Tags = strings.Join(kept, ",")
	return meta, nil
}

func (p *PixivUtil2) translations(ctx context.Context, tagID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT translation_type, translation FROM pixiv_tag_translation
		WHERE tag_id = ? ORDER BY translation_type`, tagID)
	if err != nil {
		return nil, fmt.Errorf("tag %s translations: %w", tagID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var typ, text string
		if err := rows.Scan(&typ, &text); err != nil {
			return nil, fmt.Errorf("tag %s translations: %w", tagID, err)
		}
		if _, ok := p.translationTypes[typ]; ok {
			out = append(out, text)
		}
	}
	return out, rows.Err()
}
