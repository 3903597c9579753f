package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/audit"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
)

type tokenRequest struct {
	User           string   `json:"user"`
	OrganizationID string   `json:"organization_id"`
	Role           string   `json:"role"`
	Teams          []string `json:"teams"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !a.issueTokens {
		writeError(w, r, http.StatusNotFound, "token issuing disabled")
		return
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}
	org := strings.TrimSpace(req.OrganizationID)
	if org == "" {
		writeError(w, r, http.StatusBadRequest, "organization_id is required")
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor := auth.Actor{UserID: user, OrganizationID: org, Role: role, TeamIDs: req.Teams}

	token, expiresAt, err := auth.GenerateToken(actor, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	ctx := auth.ContextWithActor(r.Context(), actor)
	_ = audit.LogEvent(ctx, "auth.token.issued", map[string]any{
		"teams":      actor.TeamIDs,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
