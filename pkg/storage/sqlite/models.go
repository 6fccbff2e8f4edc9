package sqlite

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/porthorian/memberdir/pkg/storage"
)

type userModel struct {
	bun.BaseModel `bun:"table:app_user,alias:u"`

	ID           string    `bun:"id,pk"`
	Username     string    `bun:"username,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

type userRoleModel struct {
	bun.BaseModel `bun:"table:app_user_role,alias:ur"`

	UserID   string `bun:"user_id,pk"`
	RoleName string `bun:"role_name,pk"`
}

type memberModel struct {
	bun.BaseModel `bun:"table:member,alias:m"`

	ID          string    `bun:"id,pk"`
	FirstName   string    `bun:"first_name,notnull"`
	LastName    string    `bun:"last_name,notnull"`
	DateOfBirth time.Time `bun:"date_of_birth,notnull"`
	Email       string    `bun:"email,notnull,unique"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func toMemberModel(record storage.MemberRecord) *memberModel {
	return &memberModel{
		ID:          record.ID,
		FirstName:   record.FirstName,
		LastName:    record.LastName,
		DateOfBirth: record.DateOfBirth.UTC(),
		Email:       record.Email,
		CreatedAt:   record.CreatedAt.UTC(),
		UpdatedAt:   record.UpdatedAt.UTC(),
	}
}

func (m *memberModel) record() storage.MemberRecord {
	return storage.MemberRecord{
		ID:          m.ID,
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		DateOfBirth: m.DateOfBirth.UTC(),
		Email:       m.Email,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}
