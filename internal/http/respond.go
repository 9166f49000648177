package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	cperrors "github.com/openclave/certidp/internal/errors"
)

// validate is the shared request validator.
var validate = validator.New()

// errorResponse is the uniform error payload.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := cperrors.CodeOf(err)
	msg := cperrors.MessageOf(err)
	if code == cperrors.CodeInternal {
		// Full detail stays in the server log.
		msg = "internal server error"
	}
	writeJSON(w, statusForCode(code), errorResponse{Error: code, Message: msg})
}

func statusForCode(code string) int {
	switch code {
	case cperrors.CodeInvalidInput,
		cperrors.CodeInvalidChallenge,
		cperrors.CodeChallengeExpired,
		cperrors.CodeCertNotActive,
		cperrors.CodeInvalidGrant,
		cperrors.CodeUnsupportedGrant:
		return http.StatusBadRequest
	case cperrors.CodeUnauthorized,
		cperrors.CodeInvalidSignature,
		cperrors.CodeInvalidClient:
		return http.StatusUnauthorized
	case cperrors.CodeForbidden:
		return http.StatusForbidden
	case cperrors.CodeNotFound:
		return http.StatusNotFound
	case cperrors.CodeAlreadyExists,
		cperrors.CodeAlreadyInitialized:
		return http.StatusConflict
	case cperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		// CodeNotInitialized and CodeInternal are operational problems.
		return http.StatusInternalServerError
	}
}

// decodeAndValidate decodes a JSON request body into dst and runs the
// validator over it.
func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return cperrors.InvalidInput("request body is not valid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return cperrors.InvalidInput("invalid field: " + verrs[0].Field())
		}
		return cperrors.InvalidInput("request validation failed")
	}
	return nil
}
