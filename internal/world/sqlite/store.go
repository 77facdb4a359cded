// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite is a world.Store backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
	// Register the modernc "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/holomush/simcore/internal/world"
)

// Store persists world state in SQLite.
type Store struct {
	db *sql.DB
}

var _ world.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (creating if needed) the database at path and applies migrations.
// The path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, oops.Code(world.CodeValidation).Errorf("sqlite path is required")
	}

	memory := path == ":memory:"
	if !memory {
		path = filepath.Clean(path)
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code(world.CodeStoreError).With("path", path).Wrap(err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code(world.CodeStoreError).With("path", path).With("operation", "ping").Wrap(err)
	}

	migrator, err := NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	defer migrator.Close() //nolint:errcheck // source close failure is not actionable
	if err := migrator.Up(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func storeErr(op string, err error) error {
	return oops.Code(world.CodeStoreError).With("operation", op).Wrap(err)
}

const characterColumns = `id, name, health, sanity, stress, COALESCE(scene_id, ''), created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row scanner) (*world.Character, error) {
	var (
		c       world.Character
		created int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Health, &c.Mental.Sanity, &c.Mental.Stress, &c.SceneID, &created); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

// GetCharacterByID implements world.CharacterStore.
func (s *Store) GetCharacterByID(ctx context.Context, id string) (*world.Character, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	c, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get character", err)
	}
	return c, nil
}

// CreateCharacter implements world.CharacterStore.
func (s *Store) CreateCharacter(ctx context.Context, c *world.Character) error {
	if err := c.Validate(); err != nil {
		return world.Invalid(world.TypeCharacter, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (id, name, health, sanity, stress, scene_id, created_at)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`,
		c.ID, c.Name, c.Health, c.Mental.Sanity, c.Mental.Stress, c.SceneID, toMillis(c.CreatedAt))
	if err != nil {
		return storeErr("create character", err)
	}
	return nil
}

// UpdateCharacterHealth implements world.CharacterStore.
func (s *Store) UpdateCharacterHealth(ctx context.Context, id string, health int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE characters SET health = ? WHERE id = ?`, world.ClampStat(health), id)
	if err != nil {
		return storeErr("update character health", err)
	}
	return requireRow(res, world.TypeCharacter, id)
}

// UpdateCharacterMentalState implements world.CharacterStore.
func (s *Store) UpdateCharacterMentalState(ctx context.Context, id string, mental world.Mental) error {
	res, err := s.db.ExecContext(ctx, `UPDATE characters SET sanity = ?, stress = ? WHERE id = ?`,
		world.ClampStat(mental.Sanity), world.ClampStat(mental.Stress), id)
	if err != nil {
		return storeErr("update character mental state", err)
	}
	return requireRow(res, world.TypeCharacter, id)
}

// ListCharacters implements world.CharacterStore.
func (s *Store) ListCharacters(ctx context.Context) ([]*world.Character, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+characterColumns+` FROM characters ORDER BY name, id`)
	if err != nil {
		return nil, storeErr("list characters", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	out := make([]*world.Character, 0)
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, storeErr("scan character", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list characters", err)
	}
	return out, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return world.NotFound(kind, id)
	}
	return nil
}

const itemColumns = `id, name, template, COALESCE(owner_id, ''), created_at`

func scanItem(row scanner) (*world.Item, error) {
	var (
		item    world.Item
		created int64
	)
	if err := row.Scan(&item.ID, &item.Name, &item.Template, &item.OwnerID, &created); err != nil {
		return nil, err
	}
	item.CreatedAt = fromMillis(created)
	return &item, nil
}

// GetItemByID implements world.ItemStore.
func (s *Store) GetItemByID(ctx context.Context, id string) (*world.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get item", err)
	}
	return item, nil
}

// CreateItem implements world.ItemStore.
func (s *Store) CreateItem(ctx context.Context, item *world.Item) error {
	if err := world.ValidateName(item.Name); err != nil {
		return world.Invalid(world.TypeItem, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, name, template, owner_id, created_at) VALUES (?, ?, ?, NULLIF(?, ''), ?)`,
		item.ID, item.Name, item.Template, item.OwnerID, toMillis(item.CreatedAt))
	if err != nil {
		return storeErr("create item", err)
	}
	return nil
}

// DeleteItem implements world.ItemStore.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete item", err)
	}
	return requireRow(res, world.TypeItem, id)
}

// ListItemsByOwner implements world.ItemStore.
func (s *Store) ListItemsByOwner(ctx context.Context, ownerID string) ([]*world.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, storeErr("list items", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	out := make([]*world.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storeErr("scan item", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list items", err)
	}
	return out, nil
}

// GetSceneByID implements world.SceneStore.
func (s *Store) GetSceneByID(ctx context.Context, id string) (*world.Scene, error) {
	var (
		scene   world.Scene
		created int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description, created_at FROM scenes WHERE id = ?`, id).
		Scan(&scene.ID, &scene.Name, &scene.Description, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get scene", err)
	}
	scene.CreatedAt = fromMillis(created)
	return &scene, nil
}

// CreateScene implements world.SceneStore.
func (s *Store) CreateScene(ctx context.Context, scene *world.Scene) error {
	if err := world.ValidateName(scene.Name); err != nil {
		return world.Invalid(world.TypeScene, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scenes (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		scene.ID, scene.Name, scene.Description, toMillis(scene.CreatedAt))
	if err != nil {
		return storeErr("create scene", err)
	}
	return nil
}

// MoveCharacter implements world.SceneStore.
func (s *Store) MoveCharacter(ctx context.Context, characterID, sceneID string) error {
	scene, err := s.GetSceneByID(ctx, sceneID)
	if err != nil {
		return err
	}
	if scene == nil {
		return world.NotFound(world.TypeScene, sceneID)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE characters SET scene_id = ? WHERE id = ?`, sceneID, characterID)
	if err != nil {
		return storeErr("move character", err)
	}
	return requireRow(res, world.TypeCharacter, characterID)
}

// AddActionMemory implements world.MemoryService.
func (s *Store) AddActionMemory(ctx context.Context, characterID, content string) (*world.Memory, error) {
	return s.addMemory(ctx, characterID, world.MemoryAction, content)
}

// AddLongMemory implements world.MemoryService.
func (s *Store) AddLongMemory(ctx context.Context, characterID, content string) (*world.Memory, error) {
	return s.addMemory(ctx, characterID, world.MemoryLong, content)
}

func (s *Store) addMemory(ctx context.Context, characterID string, kind world.MemoryKind, content string) (*world.Memory, error) {
	m, err := world.NewMemory(characterID, kind, content)
	if err != nil {
		return nil, world.Invalid("memory", err)
	}
	c, err := s.GetCharacterByID(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, world.NotFound(world.TypeCharacter, characterID)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, character_id, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.CharacterID, string(m.Kind), m.Content, toMillis(m.CreatedAt))
	if err != nil {
		return nil, storeErr("add memory", err)
	}
	return m, nil
}

// ListMemories implements world.MemoryService.
func (s *Store) ListMemories(ctx context.Context, characterID string, limit int) ([]*world.Memory, error) {
	query := `SELECT id, character_id, kind, content, created_at FROM memories
	          WHERE character_id = ? ORDER BY seq DESC`
	args := []any{characterID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list memories", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	out := make([]*world.Memory, 0)
	for rows.Next() {
		var (
			m       world.Memory
			kind    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.CharacterID, &kind, &m.Content, &created); err != nil {
			return nil, storeErr("scan memory", err)
		}
		m.Kind = world.MemoryKind(kind)
		m.CreatedAt = fromMillis(created)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list memories", err)
	}
	return out, nil
}
