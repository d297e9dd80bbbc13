package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	myMiddleware "fundify-chat/internal/middleware"
)

type memRepo struct {
	mu       sync.Mutex
	profiles map[string]Profile
	err      error
}

func newMemRepo() *memRepo {
	return &memRepo{profiles: make(map[string]Profile)}
}

func (r *memRepo) GetProfile(_ context.Context, wallet string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.profiles[wallet]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (r *memRepo) UpsertProfile(_ context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.profiles[p.Wallet] = *p
	return nil
}

const addr = "0xaaa0000000000000000000000000000000000111"

func ptr(s string) *string { return &s }

func TestService_UpsertMergesFields(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	p, err := svc.Upsert(ctx, UpsertRequest{Wallet: "0xAAA0000000000000000000000000000000000111", Name: ptr("Ada")})
	require.NoError(t, err)
	assert.Equal(t, Profile{Wallet: addr, Name: "Ada"}, *p)

	p, err = svc.Upsert(ctx, UpsertRequest{Wallet: addr, Bio: ptr("Funding open hardware")})
	require.NoError(t, err)
	assert.Equal(t, Profile{Wallet: addr, Name: "Ada", Bio: "Funding open hardware"}, *p)

	got, err := svc.Get(ctx, " 0xAAA0000000000000000000000000000000000111 ")
	require.NoError(t, err)
	assert.Equal(t, *p, *got)
}

func TestService_UpsertValidation(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, UpsertRequest{Wallet: "  "})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Upsert(ctx, UpsertRequest{Wallet: addr, Name: ptr(strings.Repeat("x", 101))})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Get(ctx, "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestService_StoreFailure(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("connection refused")
	svc := NewService(repo)

	_, err := svc.Upsert(context.Background(), UpsertRequest{Wallet: addr, Name: ptr("Ada")})
	require.ErrorIs(t, err, repo.err)
}

func newRouter(repo Repository, authed string) http.Handler {
	r := chi.NewRouter()
	if authed != "" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := context.WithValue(req.Context(), myMiddleware.WalletKey, authed)
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
	}
	NewHandler(NewService(repo)).RegisterRoutes(r)
	return r
}

func TestHandler(t *testing.T) {
	repo := newMemRepo()
	router := newRouter(repo, "")

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"missing profile", http.MethodGet, "/api/profile/" + addr, "", http.StatusNotFound, `{"message":"Profile not found"}`},
		{"create", http.MethodPost, "/api/profile", `{"wallet":"` + addr + `","name":"Ada"}`, http.StatusOK, `{"wallet":"` + addr + `","name":"Ada","bio":""}`},
		{"read back", http.MethodGet, "/api/profile/" + addr, "", http.StatusOK, `{"wallet":"` + addr + `","name":"Ada","bio":""}`},
		{"bad json", http.MethodPost, "/api/profile", `{`, http.StatusBadRequest, `{"message":"invalid JSON body"}`},
		{"missing wallet", http.MethodPost, "/api/profile", `{"name":"x"}`, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.want != "" {
				assert.JSONEq(t, tc.want, rec.Body.String())
			}
		})
	}
}

func TestHandler_StoreErrorIsHidden(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("dial tcp 10.0.0.3:27017: connection refused")
	rec := httptest.NewRecorder()
	newRouter(repo, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile/"+addr, nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Server error", body["message"])
}

func TestHandler_OnlyOwnProfile(t *testing.T) {
	router := newRouter(newMemRepo(), addr)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/profile",
		strings.NewReader(`{"wallet":"0xbbb0000000000000000000000000000000000222","name":"Mallory"}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/profile", strings.NewReader(`{"name":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/profile",
		strings.NewReader(`{"wallet":"0xAAA0000000000000000000000000000000000111","name":"Ada"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
