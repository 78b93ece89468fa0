package prompt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the prompts, tags, prompt_tags and prompt_logs tables.
// The pool is owned by the caller.
type PostgresStore struct {
	pool *pgxpool.Pool

	prompts    string
	tags       string
	promptTags string
	logs       string
}

// NewPostgresStore creates a store for the tables in schema (default "public").
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("prompt: nil pool")
	}
	if schema == "" {
		schema = "public"
	}
	return &PostgresStore{
		pool:       pool,
		prompts:    pgx.Identifier{schema, "prompts"}.Sanitize(),
		tags:       pgx.Identifier{schema, "tags"}.Sanitize(),
		promptTags: pgx.Identifier{schema, "prompt_tags"}.Sanitize(),
		logs:       pgx.Identifier{schema, "prompt_logs"}.Sanitize(),
	}, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) CreatePrompt(ctx context.Context, p Prompt, tagIDs []string) (Prompt, error) {
	tagIDs = uniqueIDs(tagIDs)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Prompt{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO `+s.prompts+` (id, owner_id, title, content, is_public, is_favorite, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.OwnerID, p.Title, p.Content, p.IsPublic, p.IsFavorite, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return Prompt{}, err
	}
	if err := s.linkTags(ctx, tx, p.ID, tagIDs); err != nil {
		return Prompt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Prompt{}, err
	}

	out := []Prompt{p}
	if err := s.loadTags(ctx, s.pool, out); err != nil {
		return Prompt{}, err
	}
	return out[0], nil
}

func (s *PostgresStore) GetPrompt(ctx context.Context, ownerID, id string) (Prompt, error) {
	p, err := s.getPrompt(ctx, s.pool, ownerID, id, false)
	if err != nil {
		return Prompt{}, err
	}
	out := []Prompt{p}
	if err := s.loadTags(ctx, s.pool, out); err != nil {
		return Prompt{}, err
	}
	return out[0], nil
}

func (s *PostgresStore) ListPrompts(ctx context.Context, ownerID string) ([]Prompt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, content, is_public, is_favorite, created_at, updated_at
		FROM `+s.prompts+`
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, scanPrompt)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Prompt{}
	}
	if err := s.loadTags(ctx, s.pool, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) UpdatePrompt(ctx context.Context, ownerID, id string, patch Patch, now time.Time) (Prompt, error) {
	tagIDs := uniqueIDs(patch.TagIDs)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Prompt{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := s.getPrompt(ctx, tx, ownerID, id, true)
	if err != nil {
		return Prompt{}, err
	}
	patch.Apply(&p)
	p.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		UPDATE `+s.prompts+`
		SET title = $3, content = $4, is_public = $5, is_favorite = $6, updated_at = $7
		WHERE id = $1 AND owner_id = $2
	`, p.ID, ownerID, p.Title, p.Content, p.IsPublic, p.IsFavorite, p.UpdatedAt)
	if err != nil {
		return Prompt{}, err
	}

	if tagIDs != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM `+s.promptTags+` WHERE prompt_id = $1`, p.ID); err != nil {
			return Prompt{}, err
		}
		if err := s.linkTags(ctx, tx, p.ID, tagIDs); err != nil {
			return Prompt{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Prompt{}, err
	}

	out := []Prompt{p}
	if err := s.loadTags(ctx, s.pool, out); err != nil {
		return Prompt{}, err
	}
	return out[0], nil
}

func (s *PostgresStore) DeletePrompt(ctx context.Context, ownerID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.prompts+` WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateTag(ctx context.Context, t Tag) (Tag, error) {
	_, err := s.pool.Exec(ctx, `INSERT INTO `+s.tags+` (id, name, created_at) VALUES ($1, $2, $3)`, t.ID, t.Name, t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Tag{}, ErrConflict
		}
		return Tag{}, err
	}
	return t, nil
}

func (s *PostgresStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM `+s.tags+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Tag, error) {
		var t Tag
		err := row.Scan(&t.ID, &t.Name, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Tag{}
	}
	return out, nil
}

// AppendLog inserts the row only if the prompt still exists and belongs to the log's owner.
func (s *PostgresStore) AppendLog(ctx context.Context, l Log) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.logs+` (id, prompt_id, owner_id, input_text, output_text, created_at)
		SELECT $1, p.id, p.owner_id, $4, $5, $6
		FROM `+s.prompts+` p
		WHERE p.id = $2 AND p.owner_id = $3
	`, l.ID, l.PromptID, l.OwnerID, l.InputText, l.OutputText, l.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, ownerID, promptID string) ([]Log, error) {
	q := `
		SELECT id, prompt_id, owner_id, input_text, output_text, created_at
		FROM ` + s.logs + `
		WHERE owner_id = $1`
	args := []any{ownerID}
	if promptID != "" {
		q += ` AND prompt_id = $2`
		args = append(args, promptID)
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Log, error) {
		var l Log
		err := row.Scan(&l.ID, &l.PromptID, &l.OwnerID, &l.InputText, &l.OutputText, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Log{}
	}
	return out, nil
}

// PurgeUser deletes logs, then tag links, then prompts, in one transaction.
func (s *PostgresStore) PurgeUser(ctx context.Context, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	owned := `SELECT id FROM ` + s.prompts + ` WHERE owner_id = $1`
	steps := []string{
		`DELETE FROM ` + s.logs + ` WHERE owner_id = $1 OR prompt_id IN (` + owned + `)`,
		`DELETE FROM ` + s.promptTags + ` WHERE prompt_id IN (` + owned + `)`,
		`DELETE FROM ` + s.prompts + ` WHERE owner_id = $1`,
	}
	for _, q := range steps {
		if _, err := tx.Exec(ctx, q, userID); err != nil {
			return fmt.Errorf("prompt: purge user: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) getPrompt(ctx context.Context, q querier, ownerID, id string, forUpdate bool) (Prompt, error) {
	sql := `
		SELECT id, owner_id, title, content, is_public, is_favorite, created_at, updated_at
		FROM ` + s.prompts + `
		WHERE id = $1 AND owner_id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var p Prompt
	err := q.QueryRow(ctx, sql, id, ownerID).Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Content, &p.IsPublic, &p.IsFavorite, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Prompt{}, ErrNotFound
	}
	if err != nil {
		return Prompt{}, err
	}
	return p, nil
}

func scanPrompt(row pgx.CollectableRow) (Prompt, error) {
	var p Prompt
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Content, &p.IsPublic, &p.IsFavorite, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// linkTags checks that every id exists, then inserts the links.
func (s *PostgresStore) linkTags(ctx context.Context, q querier, promptID string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}

	rows, err := q.Query(ctx, `SELECT id FROM `+s.tags+` WHERE id = ANY($1)`, tagIDs)
	if err != nil {
		return err
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	if len(found) != len(tagIDs) {
		seen := make(map[string]bool, len(found))
		for _, id := range found {
			seen[id] = true
		}
		for _, id := range tagIDs {
			if !seen[id] {
				return UnknownTagError{ID: id}
			}
		}
	}

	_, err = q.Exec(ctx, `
		INSERT INTO `+s.promptTags+` (prompt_id, tag_id)
		SELECT $1, unnest($2::text[])
	`, promptID, tagIDs)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return UnknownTagError{ID: pgErr.Detail}
		}
		return err
	}
	return nil
}

// loadTags fills Tags for every prompt in ps with one query.
func (s *PostgresStore) loadTags(ctx context.Context, q querier, ps []Prompt) error {
	if len(ps) == 0 {
		return nil
	}
	ids := make([]string, len(ps))
	index := make(map[string]int, len(ps))
	for i := range ps {
		ids[i] = ps[i].ID
		index[ps[i].ID] = i
		ps[i].Tags = []Tag{}
	}

	rows, err := q.Query(ctx, `
		SELECT pt.prompt_id, t.id, t.name, t.created_at
		FROM `+s.promptTags+` pt
		JOIN `+s.tags+` t ON t.id = pt.tag_id
		WHERE pt.prompt_id = ANY($1)
		ORDER BY t.name
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var promptID string
		var t Tag
		if err := rows.Scan(&promptID, &t.ID, &t.Name, &t.CreatedAt); err != nil {
			return err
		}
		if i, ok := index[promptID]; ok {
			ps[i].Tags = append(ps[i].Tags, t)
		}
	}
	return rows.Err()
}
