package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/porthorian/memberdir/pkg/storage"
)

// Store persists users and members in a single SQLite database through bun.
type Store struct {
	db *bun.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects to dsn and creates the schema if it does not exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlite store: dsn is required")
	}

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open database: %w", err)
	}
	// single writer
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	models := []any{
		(*userModel)(nil),
		(*userRoleModel)(nil),
		(*memberModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("sqlite store: create table: %w", err)
		}
	}

	if _, err := s.db.NewCreateIndex().
		Model((*memberModel)(nil)).
		Index("member_created_at_idx").
		IfNotExists().
		Column("created_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlite store: create index: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (storage.UserRecord, error) {
	user := new(userModel)
	err := s.db.NewSelect().
		Model(user).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("find user by username: %w", err)
	}

	var roles []userRoleModel
	err = s.db.NewSelect().
		Model(&roles).
		Where("user_id = ?", user.ID).
		Order("role_name ASC").
		Scan(ctx)
	if err != nil {
		return storage.UserRecord{}, fmt.Errorf("list user roles: %w", err)
	}

	record := storage.UserRecord{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Roles:        make([]string, 0, len(roles)),
		CreatedAt:    user.CreatedAt.UTC(),
	}
	for _, role := range roles {
		record.Roles = append(record.Roles, role.RoleName)
	}
	return record, nil
}

func (s *Store) CreateUser(ctx context.Context, record storage.UserRecord) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user := &userModel{
			ID:           record.ID,
			Username:     record.Username,
			PasswordHash: record.PasswordHash,
			CreatedAt:    record.CreatedAt.UTC(),
		}
		if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
			return translateError("create user", err)
		}

		if len(record.Roles) == 0 {
			return nil
		}
		roles := make([]userRoleModel, 0, len(record.Roles))
		for _, role := range record.Roles {
			roles = append(roles, userRoleModel{UserID: record.ID, RoleName: role})
		}
		if _, err := tx.NewInsert().Model(&roles).Exec(ctx); err != nil {
			return translateError("create user roles", err)
		}
		return nil
	})
}

func (s *Store) GetMember(ctx context.Context, id string) (storage.MemberRecord, error) {
	member := new(memberModel)
	err := s.db.NewSelect().
		Model(member).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MemberRecord{}, storage.ErrNotFound
		}
		return storage.MemberRecord{}, fmt.Errorf("get member: %w", err)
	}
	return member.record(), nil
}

func (s *Store) PutMember(ctx context.Context, record storage.MemberRecord) error {
	_, err := s.db.NewInsert().
		Model(toMemberModel(record)).
		On("CONFLICT (id) DO UPDATE").
		Set("first_name = EXCLUDED.first_name").
		Set("last_name = EXCLUDED.last_name").
		Set("date_of_birth = EXCLUDED.date_of_birth").
		Set("email = EXCLUDED.email").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return translateError("put member", err)
	}
	return nil
}

func (s *Store) UpdateMember(ctx context.Context, record storage.MemberRecord) error {
	result, err := s.db.NewUpdate().
		Model(toMemberModel(record)).
		Column("first_name", "last_name", "date_of_birth", "email", "updated_at").
		WherePK().
		Exec(ctx)
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

func (s *Store) DeleteMember(ctx context.Context, id string) error {
	result, err := s.db.NewDelete().
		Model((*memberModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
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

func (s *Store) ListMembers(ctx context.Context, filter storage.MemberFilter) (storage.MemberPage, error) {
	column, ok := filter.SortBy.Column()
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}

	var members []memberModel
	query := s.db.NewSelect().Model(&members)
	if filter.FirstName != "" {
		query = query.Where("LOWER(first_name) LIKE ? ESCAPE '\\'", likePattern(filter.FirstName))
	}
	if filter.LastName != "" {
		query = query.Where("LOWER(last_name) LIKE ? ESCAPE '\\'", likePattern(filter.LastName))
	}
	query = query.
		OrderExpr("? "+direction, bun.Ident(column)).
		OrderExpr("id ASC")
	// sqlite rejects OFFSET without LIMIT
	limit := filter.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	query = query.Limit(limit)
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	total, err := query.ScanAndCount(ctx)
	if err != nil {
		return storage.MemberPage{}, fmt.Errorf("list members: %w", err)
	}

	page := storage.MemberPage{
		Members: make([]storage.MemberRecord, 0, len(members)),
		Total:   total,
	}
	for i := range members {
		page.Members = append(page.Members, members[i].record())
	}
	return page, nil
}

func (s *Store) EmailTaken(ctx context.Context, email string, excludeID string) (bool, error) {
	query := s.db.NewSelect().
		Model((*memberModel)(nil)).
		Where("email = ?", email)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	exists, err := query.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check member email: %w", err)
	}
	return exists, nil
}

func likePattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(value))
	return "%" + escaped + "%"
}

func translateError(op string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
