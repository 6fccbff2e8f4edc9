package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/porthorian/memberdir/pkg/storage"
)

const (
	findUserQuery = `
SELECT
  id::text, username, password_hash, created_at
FROM memberdir.app_user
WHERE username = $1
`

	listUserRolesQuery = `
SELECT role_name
FROM memberdir.app_user_role
WHERE user_id = $1
ORDER BY role_name
`

	putUserQuery = `
INSERT INTO memberdir.app_user (
  id, username, password_hash, created_at
) VALUES ($1, $2, $3, $4)
`

	putUserRoleQuery = `
INSERT INTO memberdir.app_user_role (
  user_id, role_name
) VALUES ($1, $2)
`
)

func (a *Adapter) FindByUsername(ctx context.Context, username string) (storage.UserRecord, error) {
	if err := a.requirePreparedStatements(); err != nil {
		return storage.UserRecord{}, err
	}

	record, err := scanUser(a.stmt(ctx, a.stmts.findUser).QueryRowContext(ctx, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("find user by username: %w", err)
	}

	rows, err := a.stmt(ctx, a.stmts.listUserRoles).QueryContext(ctx, record.ID)
	if err != nil {
		return storage.UserRecord{}, fmt.Errorf("list user roles: %w", err)
	}
	defer rows.Close()

	record.Roles = []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return storage.UserRecord{}, fmt.Errorf("scan user role: %w", err)
		}
		record.Roles = append(record.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return storage.UserRecord{}, fmt.Errorf("list user roles: %w", err)
	}

	return record, nil
}

func (a *Adapter) CreateUser(ctx context.Context, record storage.UserRecord) error {
	return a.WithTx(ctx, func(tx *Adapter) error {
		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		putUserStmt := tx.stmt(ctx, tx.stmts.putUser)
		if _, err := putUserStmt.ExecContext(ctx, record.ID, record.Username, record.PasswordHash, createdAt.UTC()); err != nil {
			return translateError("create user", err)
		}

		putRoleStmt := tx.stmt(ctx, tx.stmts.putUserRole)
		for _, role := range record.Roles {
			if _, err := putRoleStmt.ExecContext(ctx, record.ID, role); err != nil {
				return translateError("create user role", err)
			}
		}
		return nil
	})
}

func scanUser(row scanner) (storage.UserRecord, error) {
	var record storage.UserRecord
	if err := row.Scan(&record.ID, &record.Username, &record.PasswordHash, &record.CreatedAt); err != nil {
		return storage.UserRecord{}, err
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}
