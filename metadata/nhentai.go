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

// NhentaiArchivist resolves metadata from an nhentai-archivist database.
// Its downloads are named "<numeric id> <title>.<ext>".
type NhentaiArchivist struct {
	db *sql.DB
}

// OpenNhentaiArchivist opens the downloader's database read-only. The file
// must already exist; a downloader database is never created here.
func OpenNhentaiArchivist(path string) (*NhentaiArchivist, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("nhentai-archivist db: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open nhentai-archivist db %s: %w", path, err)
	}
	return &NhentaiArchivist{db: db}, nil
}

// NewNhentaiArchivist wraps an already open database. Used by tests.
func NewNhentaiArchivist(db *sql.DB) *NhentaiArchivist {
	return &NhentaiArchivist{db: db}
}

// Close releases the database handle.
func (n *NhentaiArchivist) Close() error {
	return n.db.Close()
}

// Identifier returns the numeric gallery ID leading the filename.
func (n *NhentaiArchivist) Identifier(filename string) (string, error) {
	fields := strings.Fields(filename)
	if len(fields) == 0 {
		return "", ErrNoIdentifier
	}
	id := fields[0]
	if !allDigits(id) {
		return "", fmt.Errorf("%w: %q does not start with a gallery id", ErrNoIdentifier, filename)
	}
	return id, nil
}

// Tag namespaces in the downloader's database, in the order the assembled
// tag string lists them. Plain "tag" entries carry no namespace prefix.
var nhentaiTagTypes = []string{"tag", "character", "parody", "language", "category", "artist", "group"}

// Metadata assembles title and namespaced tags for a gallery ID.
func (n *NhentaiArchivist) Metadata(ctx context.Context, id string) (types.ArchiveMetadata, error) {
	var meta types.ArchiveMetadata

	err := n.db.QueryRowContext(ctx,
		`SELECT title_pretty FROM Hentai WHERE id = ?`, id).Scan(&meta.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return meta, fmt.Errorf("gallery %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return meta, fmt.Errorf("gallery %s title: %w", id, err)
	}

	byType := make(map[string][]string, len(nhentaiTagTypes))
	rows, err := n.db.QueryContext(ctx, `
		SELECT tag.type, tag.name FROM hentai_tag
		JOIN tag ON hentai_tag.tag_id = tag.id
		WHERE hentai_tag.hentai_id = ?
		ORDER BY tag.name`, id)
	if err != nil {
		return meta, fmt.Errorf("gallery %s tags: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ, name string
		if err := rows.Scan(&typ, &name); err != nil {
			return meta, fmt.Errorf("gallery %s tags: %w", id, err)
		}
		byType[typ] = append(byType[typ], name)
	}
	if err := rows.Err(); err != nil {
		return meta, fmt.Errorf("gallery %s tags: %w", id, err)
	}

	var tags []string
	for _, typ := range nhentaiTagTypes {
		for _, name := range byType[typ] {
			// A comma would split the tag downstream; drop such entries.
			if strings.Contains(name, ",") {
				continue
			}
			if typ == "tag" {
				tags = append(tags, name)
			} else {
				tags = append(tags, typ+":"+name)
			}
		}
	}
	tags = append(tags, "source:nhentai.net/g/"+id)

	meta.Tags = strings.Join(tags, ",")
	return meta, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
