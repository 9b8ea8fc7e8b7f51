package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	users  map[int]*User
	online []User
	err    error
}

func (s *stubService) Register(_ context.Context, req *RegisterRequest) (*User, error) {
	return &User{ID: 1, Username: req.Username}, s.err
}

func (s *stubService) Login(_ context.Context, _ *RegisterRequest) (*LoginResponse, error) {
	return nil, errors.New("not used")
}

func (s *stubService) SearchUsers(_ context.Context, _ string) ([]User, error) {
	return nil, s.err
}

func (s *stubService) GetUser(_ context.Context, id int) (*User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (s *stubService) OnlineUsers(_ context.Context) ([]User, error) {
	return s.online, s.err
}

func userRouter(s UserService) chi.Router {
	h := NewHandler(s)
	r := chi.NewRouter()
	r.Get("/api/users/online", h.OnlineUsers)
	r.Get("/api/users/{id}", h.GetUser)
	return r
}

func TestGetUserByID(t *testing.T) {
	r := userRouter(&stubService{users: map[int]*User{
		7: {ID: 7, Username: "alice", IsOnline: true},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/users/7", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.IsOnline)
}

func TestGetUserNotFound(t *testing.T) {
	r := userRouter(&stubService{users: map[int]*User{}})

	req := httptest.NewRequest(http.MethodGet, "/api/users/99", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetUserRejectsBadID(t *testing.T) {
	r := userRouter(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/users/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnlineUsersList(t *testing.T) {
	r := userRouter(&stubService{online: []User{
		{ID: 1, Username: "alice", IsOnline: true},
		{ID: 2, Username: "bob", IsOnline: true},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/users/online", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}
