package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/porthorian/memberdir/pkg/storage"
)

type Adapter struct {
	db *sql.DB
	tx *sql.Tx

	stmts *preparedStatements
}

type preparedStatements struct {
	findUser      *sql.Stmt
	listUserRoles *sql.Stmt
	putUser       *sql.Stmt
	putUserRole   *sql.Stmt

	getMember    *sql.Stmt
	putMember    *sql.Stmt
	updateMember *sql.Stmt
	deleteMember *sql.Stmt
	countMembers *sql.Stmt
	emailTaken   *sql.Stmt

	listMembersMu     sync.Mutex
	listMembersBySort map[string]*sql.Stmt
}

type prepareStatementSpec struct {
	label  string
	query  string
	assign func(*preparedStatements, *sql.Stmt)
}

var fixedPrepareStatementSpecs = []prepareStatementSpec{
	{
		label: "find user",
		query: findUserQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.findUser = stmt
		},
	},
	{
		label: "list user roles",
		query: listUserRolesQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.listUserRoles = stmt
		},
	},
	{
		label: "put user",
		query: putUserQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.putUser = stmt
		},
	},
	{
		label: "put user role",
		query: putUserRoleQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.putUserRole = stmt
		},
	},
	{
		label: "get member",
		query: getMemberQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.getMember = stmt
		},
	},
	{
		label: "put member",
		query: putMemberQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.putMember = stmt
		},
	},
	{
		label: "update member",
		query: updateMemberQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.updateMember = stmt
		},
	},
	{
		label: "delete member",
		query: deleteMemberQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.deleteMember = stmt
		},
	},
	{
		label: "count members",
		query: countMembersQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.countMembers = stmt
		},
	},
	{
		label: "member email taken",
		query: emailTakenQuery,
		assign: func(ps *preparedStatements, stmt *sql.Stmt) {
			ps.emailTaken = stmt
		},
	},
}

var (
	ErrNilDB                 = errors.New("postgres adapter: db is nil")
	ErrAdapterNotInitialized = errors.New("postgres adapter: adapter not initialized")
)

var _ storage.Store = (*Adapter)(nil)

func NewAdapter(db *sql.DB) (*Adapter, error) {
	adapter := &Adapter{
		db: db,
		stmts: &preparedStatements{
			listMembersBySort: map[string]*sql.Stmt{},
		},
	}

	if err := adapter.prepareStatements(); err != nil {
		_ = adapter.Close()
		return nil, err
	}

	return adapter, nil
}

// Close releases prepared statements. The *sql.DB belongs to the caller.
func (a *Adapter) Close() error {
	if a == nil || a.stmts == nil {
		return nil
	}

	var errs []error

	if err := closeStatements(
		a.stmts.findUser,
		a.stmts.listUserRoles,
		a.stmts.putUser,
		a.stmts.putUserRole,
		a.stmts.getMember,
		a.stmts.putMember,
		a.stmts.updateMember,
		a.stmts.deleteMember,
		a.stmts.countMembers,
		a.stmts.emailTaken,
	); err != nil {
		errs = append(errs, err)
	}

	a.stmts.listMembersMu.Lock()
	dynamicStmts := make([]*sql.Stmt, 0, len(a.stmts.listMembersBySort))
	for _, stmt := range a.stmts.listMembersBySort {
		dynamicStmts = append(dynamicStmts, stmt)
	}
	a.stmts.listMembersBySort = map[string]*sql.Stmt{}
	a.stmts.listMembersMu.Unlock()

	if err := closeStatements(dynamicStmts...); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (a *Adapter) Ping(ctx context.Context) error {
	db, err := a.requireDB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (a *Adapter) prepareStatements() (err error) {
	db, err := a.requireDB()
	if err != nil {
		return err
	}

	prepared := make([]*sql.Stmt, 0, len(fixedPrepareStatementSpecs))
	defer func() {
		if err != nil {
			_ = closeStatements(prepared...)
		}
	}()

	for _, spec := range fixedPrepareStatementSpecs {
		stmt, prepErr := db.Prepare(spec.query)
		if prepErr != nil {
			err = fmt.Errorf("postgres adapter: prepare %s statement: %w", spec.label, prepErr)
			return err
		}
		prepared = append(prepared, stmt)
		spec.assign(a.stmts, stmt)
	}
	return nil
}

func (a *Adapter) requirePreparedStatements() error {
	if _, err := a.requireDB(); err != nil {
		return err
	}

	if a.stmts == nil {
		return ErrAdapterNotInitialized
	}
	if a.stmts.findUser == nil || a.stmts.listUserRoles == nil || a.stmts.putUser == nil || a.stmts.putUserRole == nil {
		return ErrAdapterNotInitialized
	}
	if a.stmts.getMember == nil || a.stmts.putMember == nil || a.stmts.updateMember == nil || a.stmts.deleteMember == nil || a.stmts.countMembers == nil || a.stmts.emailTaken == nil {
		return ErrAdapterNotInitialized
	}

	return nil
}

func (a *Adapter) requireDB() (*sql.DB, error) {
	if a == nil || a.db == nil {
		return nil, ErrNilDB
	}
	return a.db, nil
}

// stmt binds a prepared statement to the adapter's transaction, if any.
func (a *Adapter) stmt(ctx context.Context, stmt *sql.Stmt) *sql.Stmt {
	if a.tx != nil {
		return a.tx.StmtContext(ctx, stmt)
	}
	return stmt
}

type scanner interface {
	Scan(dest ...any) error
}

func closeStatements(stmts ...*sql.Stmt) error {
	var errs []error
	for _, stmt := range stmts {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
