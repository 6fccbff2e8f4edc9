package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	oerrors "github.com/porthorian/memberdir/pkg/errors"
)

const (
	messageInvalidToken       = "Token is invalid or expired"
	messageInvalidCredentials = "Invalid username or password"
	messageInternal           = "Internal Server Error"
)

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Path      string            `json:"path"`
	Timestamp time.Time         `json:"timestamp"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// StatusOf maps an error code to its HTTP status. Unknown codes are 500.
func StatusOf(code oerrors.Code) int {
	switch code {
	case oerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case oerrors.CodeMalformedToken, oerrors.CodeBadSignature, oerrors.CodeTokenExpired,
		oerrors.CodeUserNotFound, oerrors.CodeBadCredentials, oerrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case oerrors.CodeInsufficientRole:
		return http.StatusForbidden
	case oerrors.CodeNotFound:
		return http.StatusNotFound
	case oerrors.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as an ErrorBody. Credential and token failures collapse to
// fixed messages; internal failures are logged and never described to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger logr.Logger) {
	code := oerrors.CodeOf(err)
	status := StatusOf(code)

	var typed *oerrors.Error
	_ = errors.As(err, &typed)

	var message string
	var fields map[string]string
	switch {
	case oerrors.IsTokenCode(err):
		message = messageInvalidToken
	case code == oerrors.CodeUserNotFound, code == oerrors.CodeBadCredentials:
		message = messageInvalidCredentials
	case oerrors.IsInternalCode(err), typed == nil:
		logger.Error(err, "request failed", "method", r.Method, "path", r.URL.Path, "code", code)
		message = messageInternal
	default:
		message = typed.Message
		fields = typed.Fields
	}

	writeErrorBody(w, r, status, message, fields)
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, message string, fields map[string]string) {
	writeJSON(w, status, ErrorBody{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC(),
		Errors:    fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
