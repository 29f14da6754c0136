package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2beens/cutroom-admin/internal/tokenstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmin_UnmarshalJSON(t *testing.T) {
	lastLogin := time.Date(2026, 10, 17, 12, 30, 0, 0, time.UTC)

	testCases := []struct {
		name              string
		body              string
		expectedID        string
		expectedLastLogin *time.Time
		expectErr         bool
	}{
		{
			name:              "RFC3339LastLogin",
			body:              `{"id":"7","role":"admin","lastLogin":"2026-10-17T12:30:00Z"}`,
			expectedID:        "7",
			expectedLastLogin: &lastLogin,
		},
		{
			name:              "MillisLastLogin",
			body:              `{"id":"7","role":"admin","lastLogin":1792240200000}`,
			expectedID:        "7",
			expectedLastLogin: &lastLogin,
		},
		{
			name:       "UnreadableLastLogin",
			body:       `{"id":"7","role":"admin","lastLogin":"2026-10-17 12:30:00"}`,
			expectedID: "7",
		},
		{
			name:       "ObjectLastLogin",
			body:       `{"id":"7","role":"admin","lastLogin":{"at":"yesterday"}}`,
			expectedID: "7",
		},
		{
			name:       "NullLastLogin",
			body:       `{"id":"7","role":"admin","lastLogin":null}`,
			expectedID: "7",
		},
		{
			name:       "NumericID",
			body:       `{"id":42,"role":"superadmin"}`,
			expectedID: "42",
		},
		{
			name:       "MissingID",
			body:       `{"role":"admin"}`,
			expectedID: "",
		},
		{
			name:      "FractionalID",
			body:      `{"id":4.2,"role":"admin"}`,
			expectErr: true,
		},
		{
			name:      "BooleanID",
			body:      `{"id":true,"role":"admin"}`,
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var admin Admin
			err := json.Unmarshal([]byte(tc.body), &admin)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedID, admin.ID)
			if tc.expectedLastLogin == nil {
				assert.Nil(t, admin.LastLogin)
			} else {
				require.NotNil(t, admin.LastLogin)
				assert.True(t, tc.expectedLastLogin.Equal(*admin.LastLogin))
			}
		})
	}
}

func TestLogin_DisplayOnlyFieldsDoNotFailLogin(t *testing.T) {
	testCases := []struct {
		name  string
		admin string
	}{
		{name: "MillisLastLogin", admin: `{"id":"1","name":"A","email":"a@x.com","role":"admin","lastLogin":1792240200000}`},
		{name: "UnreadableLastLogin", admin: `{"id":"1","name":"A","email":"a@x.com","role":"admin","lastLogin":"2026-10-17 12:30:00"}`},
		{name: "NumericID", admin: `{"id":1,"name":"A","email":"a@x.com","role":"admin"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"success":true,"token":"T1","admin":` + tc.admin + `}`))
			}))
			defer srv.Close()

			store := tokenstore.NewMemoryStore()
			m := newTestManager(t, srv.URL, store)

			result := m.Login(context.Background(), "a@x.com", "secret")
			require.True(t, result.Success, result.Message)
			require.NotNil(t, result.Admin)
			assert.Equal(t, "1", result.Admin.ID)
			assert.Equal(t, StatusAuthenticated, m.Status())
			assert.Equal(t, "T1", persisted(t, store))
		})
	}
}

func TestInitialize_UnreadableLastLoginKeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer T1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"admin":{"id":"1","name":"A","email":"a@x.com","role":"admin","lastLogin":"2026-10-17 12:30:00"}}`))
	}))
	defer srv.Close()

	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), "T1"))

	m := newTestManager(t, srv.URL, store)
	require.NoError(t, m.Initialize(context.Background()))

	assert.Equal(t, StatusAuthenticated, m.Status())
	require.NotNil(t, m.Admin())
	assert.Nil(t, m.Admin().LastLogin)
	assert.Equal(t, "T1", persisted(t, store))
}
