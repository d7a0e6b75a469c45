package limitkit

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// listRequest is the payload for allow/deny list additions.
type listRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	// ExpireSeconds makes the entry temporary; zero means permanent.
	// Capped at 30 days.
	ExpireSeconds int `json:"expire_seconds" validate:"gte=0,lte=2592000"`
}

// adminConfig is the view returned by GET /config.
type adminConfig struct {
	Settings Settings `json:"settings"`
	Default  Config   `json:"default_config"`
}

// AdminHandler returns the operator-facing surface for a Limiter as a chi
// router. Mount it behind your own authentication; it performs none.
//
// Routes:
//
//	GET    /stats       ?scope=&identifier=&endpoint=&user_id=
//	POST   /check       ?scope=&identifier=&endpoint=&user_id=  (non-consuming)
//	GET    /config
//	GET    /allowlist
//	POST   /allowlist   {"identifier": "...", "expire_seconds": 0}
//	DELETE /allowlist/{identifier}
//	GET    /denylist
//	POST   /denylist    {"identifier": "...", "expire_seconds": 0}
//	DELETE /denylist/{identifier}
func AdminHandler(l *Limiter) http.Handler {
	r := chi.NewRouter()

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		check, apiErr := checkFromQuery(req)
		if apiErr != nil {
			writeError(w, http.StatusBadRequest, apiErr)
			return
		}

		stats, err := l.Stats(req.Context(), check)
		if err != nil {
			writeError(w, http.StatusInternalServerError, &APIError{
				Type: "api_error", Code: "stats_failed", Message: "Failed to read rate limit stats",
			})
			return
		}
		writeData(w, http.StatusOK, stats)
	})

	r.Post("/check", func(w http.ResponseWriter, req *http.Request) {
		check, apiErr := checkFromQuery(req)
		if apiErr != nil {
			writeError(w, http.StatusBadRequest, apiErr)
			return
		}
		writeData(w, http.StatusOK, l.Peek(req.Context(), check))
	})

	r.Get("/config", func(w http.ResponseWriter, req *http.Request) {
		writeData(w, http.StatusOK, adminConfig{
			Settings: l.Settings(),
			Default:  l.Defaults(),
		})
	})

	registerListRoutes(r, "/allowlist", l.AddToAllowlist, l.RemoveFromAllowlist, l.Allowlist)
	registerListRoutes(r, "/denylist", l.AddToDenylist, l.RemoveFromDenylist, l.Denylist)

	return r
}

func registerListRoutes(
	r chi.Router,
	pattern string,
	add func(ctx context.Context, identifier string, expire time.Duration) error,
	remove func(ctx context.Context, identifier string) (bool, error),
	list func(ctx context.Context) ([]ListEntry, error),
) {
	r.Get(pattern, func(w http.ResponseWriter, req *http.Request) {
		entries, err := list(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, &APIError{
				Type: "api_error", Code: "list_failed", Message: "Failed to read list entries",
			})
			return
		}
		writeData(w, http.StatusOK, entries)
	})

	r.Post(pattern, func(w http.ResponseWriter, req *http.Request) {
		var body listRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, &APIError{
				Type: "request_error", Code: "invalid_json", Message: "Request body must be valid JSON",
			})
			return
		}
		if err := validate.Struct(body); err != nil {
			writeError(w, http.StatusBadRequest, &APIError{
				Type: "request_error", Code: "invalid_request", Message: err.Error(),
			})
			return
		}

		expire := time.Duration(body.ExpireSeconds) * time.Second
		if err := add(req.Context(), body.Identifier, expire); err != nil {
			writeError(w, http.StatusInternalServerError, &APIError{
				Type: "api_error", Code: "list_add_failed", Message: "Failed to add list entry",
			})
			return
		}
		writeData(w, http.StatusOK, ListEntry{
			Identifier: body.Identifier,
			TTL:        int64(body.ExpireSeconds),
		})
	})

	r.Delete(pattern+"/{identifier}", func(w http.ResponseWriter, req *http.Request) {
		identifier := chi.URLParam(req, "identifier")

		removed, err := remove(req.Context(), identifier)
		if err != nil {
			writeError(w, http.StatusInternalServerError, &APIError{
				Type: "api_error", Code: "list_remove_failed", Message: "Failed to remove list entry",
			})
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, &APIError{
				Type: "not_found", Code: "not_listed", Message: "Identifier is not on the list",
			})
			return
		}
		writeData(w, http.StatusOK, ListEntry{Identifier: identifier})
	})
}

// checkFromQuery builds a Check from the scope/identifier/endpoint/user_id
// query parameters shared by /stats and /check.
func checkFromQuery(req *http.Request) (Check, *APIError) {
	q := req.URL.Query()

	identifier := q.Get("identifier")
	if identifier == "" {
		return Check{}, &APIError{
			Type: "request_error", Code: "missing_identifier", Message: "Query parameter identifier is required",
		}
	}

	scope := ScopeIP
	if raw := q.Get("scope"); raw != "" {
		parsed, err := ParseScope(raw)
		if err != nil {
			return Check{}, &APIError{
				Type: "request_error", Code: "invalid_scope", Message: err.Error(),
			}
		}
		scope = parsed
	}

	return Check{
		Scope:      scope,
		Identifier: identifier,
		Endpoint:   q.Get("endpoint"),
		UserID:     q.Get("user_id"),
	}, nil
}
