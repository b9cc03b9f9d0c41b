package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

func (s *HTTPServer) handleListLinkableIdentities(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListLinkableIdentities(r.Context(), sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	available := 0
	for _, item := range items {
		if !item.IsLinked {
			available++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"users":     items,
		"total":     len(items),
		"available": available,
	})
}

func (s *HTTPServer) handleLinkIdentity(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if err := s.service.requireAdmin(session); err != nil {
		s.fail(w, r, err)
		return
	}
	id, ok := profileIDParam(w, r)
	if !ok {
		return
	}
	// auth_user_id must be present; null means unlink.
	var body map[string]json.RawMessage
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	raw, present := body["auth_user_id"]
	if !present {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "auth_user_id is required (null to unlink)", nil)
		return
	}
	var identityID *string
	if err := json.Unmarshal(raw, &identityID); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "auth_user_id must be a string or null", nil)
		return
	}

	profile, err := s.service.LinkIdentity(r.Context(), session, id, identityID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	message := "Identity linked"
	if profile.IdentityID == nil {
		message = "Identity unlinked"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": message,
		"user":    viewProfile(profile),
	})
}

func (s *HTTPServer) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if err := s.service.requireAdmin(session); err != nil {
		s.fail(w, r, err)
		return
	}
	id, ok := profileIDParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	email, err := s.service.UpdateLinkedEmail(r.Context(), session, id, body.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Email updated",
		"new_email": email,
	})
}

func (s *HTTPServer) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if err := s.service.requireAdmin(session); err != nil {
		s.fail(w, r, err)
		return
	}
	id, ok := profileIDParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.UpdateLinkedPassword(r.Context(), session, id, body.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated"})
}

func (s *HTTPServer) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if err := s.service.requireAdmin(session); err != nil {
		s.fail(w, r, err)
		return
	}
	id, ok := profileIDParam(w, r)
	if !ok {
		return
	}
	var body struct {
		IsAdmin *bool `json:"is_admin"`
	}
	if err := decodeBody(r, &body); err != nil || body.IsAdmin == nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "is_admin must be a boolean", nil)
		return
	}
	profile, err := s.service.SetAdminFlag(r.Context(), session, id, *body.IsAdmin)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	message := "Admin access removed"
	if profile.IsAdmin {
		message = "Admin access granted"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": message,
		"user":    viewProfile(profile),
	})
}

func (s *HTTPServer) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if err := s.service.requireAdmin(session); err != nil {
		s.fail(w, r, err)
		return
	}
	id, ok := profileIDParam(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		limit = parsed
	}
	entries, err := s.service.AuditLog(r.Context(), session, id, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"id":          e.ID,
			"actor_id":    e.ActorID,
			"actor_email": e.ActorEmail,
			"profile_id":  e.ProfileID,
			"action":      e.Action,
			"identity_id": e.IdentityID,
			"detail":      e.Detail,
			"created_at":  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": items})
}
