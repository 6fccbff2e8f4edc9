package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/porthorian/memberdir"
	oerrors "github.com/porthorian/memberdir/pkg/errors"
	"github.com/porthorian/memberdir/pkg/storage"
)

const maxBodyBytes = 1 << 20

type AuthService interface {
	Login(ctx context.Context, input memberdir.LoginInput) (memberdir.LoginResult, error)
}

type MemberService interface {
	Create(ctx context.Context, input memberdir.MemberInput) (storage.MemberRecord, error)
	Get(ctx context.Context, id string) (storage.MemberRecord, error)
	Update(ctx context.Context, id string, input memberdir.MemberInput) (storage.MemberRecord, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, query memberdir.ListQuery) (memberdir.MemberList, error)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type memberRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Email       string `json:"email"`
}

type memberResponse struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth string    `json:"dateOfBirth"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type memberPageResponse struct {
	Content       []memberResponse `json:"content"`
	Page          int              `json:"page"`
	Size          int              `json:"size"`
	TotalElements int              `json:"totalElements"`
	TotalPages    int              `json:"totalPages"`
}

type handlers struct {
	auth    AuthService
	members MemberService
	logger  logr.Logger
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var request loginRequest
	if err := decodeJSON(w, r, &request); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.auth.Login(r.Context(), memberdir.LoginInput{
		Username: request.Username,
		Password: request.Password,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		TokenType: result.TokenType,
		ExpiresAt: result.ExpiresAt,
	})
}

func (h *handlers) createMember(w http.ResponseWriter, r *http.Request) {
	var request memberRequest
	if err := decodeJSON(w, r, &request); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	record, err := h.members.Create(r.Context(), request.input())
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/members/"+url.PathEscape(record.ID))
	writeJSON(w, http.StatusCreated, toMemberResponse(record))
}

func (h *handlers) listMembers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := intParam(query, "page")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	size, err := intParam(query, "size")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	list, err := h.members.List(r.Context(), memberdir.ListQuery{
		FirstName: query.Get("firstName"),
		LastName:  query.Get("lastName"),
		Page:      page,
		Size:      size,
		Sort:      query.Get("sort"),
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	content := make([]memberResponse, 0, len(list.Members))
	for _, record := range list.Members {
		content = append(content, toMemberResponse(record))
	}
	writeJSON(w, http.StatusOK, memberPageResponse{
		Content:       content,
		Page:          list.Page,
		Size:          list.Size,
		TotalElements: list.TotalElements,
		TotalPages:    list.TotalPages,
	})
}

func (h *handlers) getMember(w http.ResponseWriter, r *http.Request) {
	record, err := h.members.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(record))
}

func (h *handlers) updateMember(w http.ResponseWriter, r *http.Request) {
	var request memberRequest
	if err := decodeJSON(w, r, &request); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	record, err := h.members.Update(r.Context(), chi.URLParam(r, "id"), request.input())
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(record))
}

func (h *handlers) deleteMember(w http.ResponseWriter, r *http.Request) {
	if err := h.members.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m memberRequest) input() memberdir.MemberInput {
	return memberdir.MemberInput{
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		DateOfBirth: m.DateOfBirth,
		Email:       m.Email,
	}
}

func toMemberResponse(record storage.MemberRecord) memberResponse {
	return memberResponse{
		ID:          record.ID,
		FirstName:   record.FirstName,
		LastName:    record.LastName,
		DateOfBirth: record.DateOfBirth.Format(memberdir.DateLayout),
		Email:       record.Email,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return oerrors.New(oerrors.CodeInvalidInput, "Request body is required")
		}
		return oerrors.Wrap(oerrors.CodeInvalidInput, "Malformed request body", err)
	}
	return nil
}

func intParam(query url.Values, name string) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, oerrors.Invalid("Invalid list parameters", map[string]string{name: "must be an integer"})
	}
	return value, nil
}
