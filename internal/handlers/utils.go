package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/takemehome/accounts/internal/apperr"
	"github.com/takemehome/accounts/types"
)

type contextKey string

const contextAuthUserKey contextKey = "authUser"

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	StatusCode int              `json:"statusCode"`
	Errors     []apperr.Context `json:"errors"`
}

// fieldErrors maps request fields to the error reported when they are invalid.
var fieldErrors = map[string]apperr.Context{
	"firstname":        apperr.UserFirstName,
	"lastname":         apperr.UserLastName,
	"email":            apperr.UserEmail,
	"phone":            apperr.UserPhone,
	"password":         apperr.UserPassword,
	"verificationCode": apperr.UserVerificationCode,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return v
}

func jsonName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func withAuthUser(ctx context.Context, user types.AuthUser) context.Context {
	return context.WithValue(ctx, contextAuthUserKey, user)
}

func authUserFromContext(ctx context.Context) (types.AuthUser, bool) {
	user, ok := ctx.Value(contextAuthUserKey).(types.AuthUser)
	return user, ok && user.UserID != ""
}

// decodeRequest reads a JSON body into dst and validates it. An empty body is
// validated as an empty object. Every failing field is reported once, in the
// order the fields are declared on dst.
func decodeRequest(r *http.Request, dst any) error {
	failed := make(map[string]bool)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return apperr.Validation()
		}
		failed[typeErr.Field] = true
	}

	if err := validate.Struct(dst); err != nil {
		var invalid validator.ValidationErrors
		if !errors.As(err, &invalid) {
			return apperr.Validation()
		}
		for _, fe := range invalid {
			failed[fe.Field()] = true
		}
	}

	if len(failed) == 0 {
		return nil
	}
	return apperr.Validation(failedContexts(dst, failed)...)
}

func failedContexts(dst any, failed map[string]bool) []apperr.Context {
	contexts := make([]apperr.Context, 0, len(failed))
	seen := 0

	t := reflect.TypeOf(dst)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			name := jsonName(t.Field(i))
			if !failed[name] {
				continue
			}
			seen++
			c, ok := fieldErrors[name]
			if !ok {
				c = apperr.DefaultValidationError
			}
			contexts = append(contexts, c)
		}
	}

	if seen < len(failed) {
		contexts = append(contexts, apperr.DefaultValidationError)
	}
	return contexts
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeError renders err as the error envelope. Server errors are logged and
// reported to Sentry; their cause is never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr := apperr.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
	}
	writeJSON(w, appErr.Status, ErrorResponse{StatusCode: appErr.Status, Errors: appErr.Contexts})
}
