package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testAnonKey    = "anon-key"
	testServiceKey = "service-key"
)

func newTestGoTrue(t *testing.T, handler http.HandlerFunc) *GoTrue {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoTrue(GoTrueConfig{
		BaseURL:    srv.URL,
		AnonKey:    testAnonKey,
		ServiceKey: testServiceKey,
		Timeout:    2 * time.Second,
	}, nil)
}

func writeTestJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestGoTrueUserFromToken(t *testing.T) {
	client := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/user", r.URL.Path)
		require.Equal(t, testAnonKey, r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			writeTestJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "error_code": "bad_jwt", "msg": "invalid JWT"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]any{"id": "u-1", "email": "ana@example.com"})
	})

	user, err := client.UserFromToken(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, "u-1", user.ID)

	_, err = client.UserFromToken(context.Background(), "bad")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = client.UserFromToken(context.Background(), " ")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGoTrueSignInMapsInvalidGrant(t *testing.T) {
	client := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/token", r.URL.Path)
		require.Equal(t, "password", r.URL.Query().Get("grant_type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "right-password" {
			writeTestJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Invalid login credentials"})
			return
		}
		writeTestJSON(w, http.StatusOK, map[string]any{
			"access_token": "tok",
			"expires_in":   3600,
			"user":         map[string]any{"id": "u-1", "email": body["email"]},
		})
	})

	tokens, err := client.SignIn(context.Background(), "ana@example.com", "right-password")
	require.NoError(t, err)
	require.Equal(t, "tok", tokens.AccessToken)
	require.Equal(t, "u-1", tokens.Identity.ID)
	require.WithinDuration(t, time.Now().Add(time.Hour), tokens.ExpiresAt, time.Minute)

	_, err = client.SignIn(context.Background(), "ana@example.com", "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGoTrueSignUpErrors(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
		want error
	}{
		{name: "email exists code", body: map[string]any{"code": 422, "error_code": "email_exists", "msg": "exists"}, want: ErrEmailTaken},
		{name: "legacy registered message", body: map[string]any{"code": 422, "msg": "A user with this email address has already been registered"}, want: ErrEmailTaken},
		{name: "weak password", body: map[string]any{"code": 422, "error_code": "weak_password", "msg": "Password should be at least 8 characters"}, want: ErrWeakPassword},
		{name: "unknown", body: map[string]any{"code": 500, "msg": "boom"}, want: ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
				status := http.StatusUnprocessableEntity
				if code, ok := tc.body["code"].(int); ok {
					status = code
				}
				writeTestJSON(w, status, tc.body)
			})
			_, err := client.SignUp(context.Background(), SignUpRequest{Email: "ana@example.com", Password: "secret-123"})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGoTrueSignUpSendsMetadata(t *testing.T) {
	client := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]any{"name": "Ana"}, body["data"])
		writeTestJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": "u-9", "email": "ana@example.com"}})
	})
	user, err := client.SignUp(context.Background(), SignUpRequest{Email: "ana@example.com", Password: "secret-123", Metadata: map[string]any{"name": "Ana"}})
	require.NoError(t, err)
	require.Equal(t, "u-9", user.ID)
}

func TestGoTrueAdminUsesServiceKeyAndPaginates(t *testing.T) {
	calls := 0
	client := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, testServiceKey, r.Header.Get("apikey"))
		require.Equal(t, "Bearer "+testServiceKey, r.Header.Get("Authorization"))
		require.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		calls++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		count := listPageSize
		if page == 2 {
			count = 3
		}
		users := make([]map[string]any, 0, count)
		for i := 0; i < count; i++ {
			users = append(users, map[string]any{"id": fmt.Sprintf("p%d-%d", page, i)})
		}
		writeTestJSON(w, http.StatusOK, map[string]any{"users": users})
	})

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, users, listPageSize+3)
}

const (
	testUserID    = "6f1c2a8e-3b4d-4e5f-9a10-b2c3d4e5f601"
	missingUserID = "6f1c2a8e-3b4d-4e5f-9a10-b2c3d4e5f6ff"
)

func TestGoTrueAdminGetAndUpdate(t *testing.T) {
	client := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/auth/v1/admin/users/"+missingUserID:
			writeTestJSON(w, http.StatusNotFound, map[string]any{"code": 404, "error_code": "user_not_found", "msg": "User not found"})
		case r.Method == http.MethodGet:
			require.Equal(t, "/auth/v1/admin/users/"+testUserID, r.URL.Path)
			writeTestJSON(w, http.StatusOK, map[string]any{"id": testUserID, "email": "ana@example.com"})
		case r.Method == http.MethodPut:
			require.Equal(t, "/auth/v1/admin/users/"+testUserID, r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["email"] == "taken@example.com" {
				writeTestJSON(w, http.StatusUnprocessableEntity, map[string]any{"code": 422, "msg": "A user with this email address has already been registered"})
				return
			}
			if pw, ok := body["password"].(string); ok && len(pw) < 10 {
				writeTestJSON(w, http.StatusUnprocessableEntity, map[string]any{"code": 422, "error_code": "weak_password", "msg": "weak"})
				return
			}
			writeTestJSON(w, http.StatusOK, map[string]any{"id": testUserID})
		}
	})
	ctx := context.Background()

	user, err := client.GetUser(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", user.Email)

	_, err = client.GetUser(ctx, missingUserID)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, client.UpdateEmail(ctx, testUserID, "taken@example.com"), ErrEmailTaken)
	require.NoError(t, client.UpdateEmail(ctx, testUserID, "new@example.com"))
	require.ErrorIs(t, client.UpdatePassword(ctx, testUserID, "short-pw"), ErrWeakPassword)
	require.NoError(t, client.UpdatePassword(ctx, testUserID, "long-enough-pw"))
}

func TestGoTrueAdminRejectsIDsOutsideUserPath(t *testing.T) {
	var requests []string
	client := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RequestURI())
		writeTestJSON(w, http.StatusOK, map[string]any{"id": "anything", "email": "leak@example.com"})
	})
	ctx := context.Background()

	for _, id := range []string{
		"x/../../../rest/v1/daily_user?select=*",
		"../users",
		testUserID + "/factors",
		testUserID + "?page=2",
		"",
	} {
		_, err := client.GetUser(ctx, id)
		require.ErrorIs(t, err, ErrNotFound, id)
		require.ErrorIs(t, client.UpdateEmail(ctx, id, "new@example.com"), ErrNotFound, id)
		require.ErrorIs(t, client.UpdatePassword(ctx, id, "long-enough-pw"), ErrNotFound, id)
	}
	require.Empty(t, requests)
}

func TestGoTrueGetUserRequiresMatchingID(t *testing.T) {
	client := newTestGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"id": missingUserID, "email": "other@example.com"})
	})
	_, err := client.GetUser(context.Background(), testUserID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGoTrueUnreachable(t *testing.T) {
	client := NewGoTrue(GoTrueConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil)
	_, err := client.GetUser(context.Background(), testUserID)
	require.ErrorIs(t, err, ErrUnavailable)
}
