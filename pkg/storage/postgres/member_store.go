package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/porthorian/memberdir/pkg/storage"
)

const (
	memberColumns = `id::text, first_name, last_name, date_of_birth, email, created_at, updated_at`

	getMemberQuery = `
SELECT
  ` + memberColumns + `
FROM memberdir.member
WHERE id = $1
`

	putMemberQuery = `
INSERT INTO memberdir.member (
  id, first_name, last_name, date_of_birth, email, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET
  first_name = EXCLUDED.first_name,
  last_name = EXCLUDED.last_name,
  date_of_birth = EXCLUDED.date_of_birth,
  email = EXCLUDED.email,
  updated_at = EXCLUDED.updated_at
`

	updateMemberQuery = `
UPDATE memberdir.member
SET
  first_name = $2,
  last_name = $3,
  date_of_birth = $4,
  email = $5,
  updated_at = $6
WHERE id = $1
`

	deleteMemberQuery = `DELETE FROM memberdir.member WHERE id = $1`

	memberFilterClause = `
WHERE ($1 = '' OR first_name ILIKE '%' || $1 || '%' ESCAPE '\')
  AND ($2 = '' OR last_name ILIKE '%' || $2 || '%' ESCAPE '\')
`

	countMembersQuery = `
SELECT COUNT(*)
FROM memberdir.member
` + memberFilterClause

	emailTakenQuery = `
SELECT EXISTS (
  SELECT 1 FROM memberdir.member WHERE email = $1 AND id::text <> $2
)
`
)

func listMembersQuery(column string, direction string) string {
	return `
SELECT
  ` + memberColumns + `
FROM memberdir.member
` + memberFilterClause + `
ORDER BY ` + column + ` ` + direction + `, id ASC
LIMIT $3 OFFSET $4
`
}

func (a *Adapter) GetMember(ctx context.Context, id string) (storage.MemberRecord, error) {
	if err := a.requirePreparedStatements(); err != nil {
		return storage.MemberRecord{}, err
	}

	record, err := scanMember(a.stmt(ctx, a.stmts.getMember).QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MemberRecord{}, storage.ErrNotFound
		}
		return storage.MemberRecord{}, fmt.Errorf("get member: %w", err)
	}
	return record, nil
}

func (a *Adapter) PutMember(ctx context.Context, record storage.MemberRecord) error {
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	_, err := a.stmt(ctx, a.stmts.putMember).ExecContext(
		ctx,
		record.ID,
		record.FirstName,
		record.LastName,
		record.DateOfBirth.UTC(),
		record.Email,
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
	)
	if err != nil {
		return translateError("put member", err)
	}
	return nil
}

func (a *Adapter) UpdateMember(ctx context.Context, record storage.MemberRecord) error {
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	result, err := a.stmt(ctx, a.stmts.updateMember).ExecContext(
		ctx,
		record.ID,
		record.FirstName,
		record.LastName,
		record.DateOfBirth.UTC(),
		record.Email,
		record.UpdatedAt.UTC(),
	)
	if err != nil {
		return translateError("update member", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) DeleteMember(ctx context.Context, id string) error {
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}

	result, err := a.stmt(ctx, a.stmts.deleteMember).ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (a *Adapter) ListMembers(ctx context.Context, filter storage.MemberFilter) (storage.MemberPage, error) {
	if err := a.requirePreparedStatements(); err != nil {
		return storage.MemberPage{}, err
	}

	firstName := escapeLike(filter.FirstName)
	lastName := escapeLike(filter.LastName)

	var total int
	if err := a.stmt(ctx, a.stmts.countMembers).QueryRowContext(ctx, firstName, lastName).Scan(&total); err != nil {
		return storage.MemberPage{}, fmt.Errorf("count members: %w", err)
	}

	page := storage.MemberPage{
		Members: []storage.MemberRecord{},
		Total:   total,
	}
	if total == 0 || filter.Offset >= total {
		return page, nil
	}

	listStmt, err := a.listMembersStatement(filter.SortBy, filter.Descending)
	if err != nil {
		return storage.MemberPage{}, err
	}

	limit := any(nil)
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, err := a.stmt(ctx, listStmt).QueryContext(ctx, firstName, lastName, limit, filter.Offset)
	if err != nil {
		return storage.MemberPage{}, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanMember(rows)
		if err != nil {
			return storage.MemberPage{}, fmt.Errorf("scan member: %w", err)
		}
		page.Members = append(page.Members, record)
	}
	if err := rows.Err(); err != nil {
		return storage.MemberPage{}, fmt.Errorf("list members: %w", err)
	}

	return page, nil
}

func (a *Adapter) EmailTaken(ctx context.Context, email string, excludeID string) (bool, error) {
	if err := a.requirePreparedStatements(); err != nil {
		return false, err
	}

	var taken bool
	if err := a.stmt(ctx, a.stmts.emailTaken).QueryRowContext(ctx, email, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("check member email: %w", err)
	}
	return taken, nil
}

// listMembersStatement prepares one statement per sort order on first use.
func (a *Adapter) listMembersStatement(sortBy storage.SortField, descending bool) (*sql.Stmt, error) {
	column, ok := sortBy.Column()
	if !ok {
		column, _ = storage.SortByCreatedAt.Column()
	}
	direction := "ASC"
	if descending {
		direction = "DESC"
	}
	key := column + " " + direction

	a.stmts.listMembersMu.Lock()
	defer a.stmts.listMembersMu.Unlock()

	if stmt, ok := a.stmts.listMembersBySort[key]; ok {
		return stmt, nil
	}

	stmt, err := a.db.Prepare(listMembersQuery(column, direction))
	if err != nil {
		return nil, fmt.Errorf("postgres adapter: prepare list members (%s) statement: %w", key, err)
	}
	a.stmts.listMembersBySort[key] = stmt
	return stmt, nil
}

func scanMember(row scanner) (storage.MemberRecord, error) {
	var record storage.MemberRecord
	err := row.Scan(
		&record.ID,
		&record.FirstName,
		&record.LastName,
		&record.DateOfBirth,
		&record.Email,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return storage.MemberRecord{}, err
	}

	record.DateOfBirth = record.DateOfBirth.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
