package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joeyave/bookclub/repository/memory"
	"github.com/joeyave/bookclub/service"
	"github.com/joeyave/bookclub/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
}

type api struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	dir := t.TempDir()
	assets, err := storage.NewDiskStore(dir, "http://localhost/uploads", 1<<20)
	require.NoError(t, err)

	auth := service.NewAuthService(store.Users(), store.Tokens(), "test-secret-0123456789", time.Hour, bcrypt.MinCost)
	router := NewRouter(RouterConfig{
		AuthService:    auth,
		UserController: &UserController{UserService: service.NewUserService(store, store.Users(), store.Clubs(), store.Meets(), auth, assets)},
		BookController: &BookController{BookService: service.NewBookService(store, store.Books(), store.Users())},
		ClubController: &ClubController{ClubService: service.NewClubService(store, store.Clubs(), store.Users(), store.Meets(), assets, "en-US")},
		MeetController: &MeetController{MeetService: service.NewMeetService(store, store.Meets(), store.Clubs(), store.Books(), store.Users(), "en-US")},
		Store:          store,
		UploadsDir:     dir,
	})
	return &api{t: t, router: router}
}

func (a *api) do(req *http.Request, token string) (int, apiResponse) {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var res apiResponse
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w.Code, res
}

func (a *api) json(method, path, token string, body any) (int, apiResponse) {
	a.t.Helper()
	b, err := json.Marshal(body)
	require.NoError(a.t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, token)
}

func (a *api) multipart(method, path, token string, fields map[string]string, fileField string) (int, apiResponse) {
	a.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(a.t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, "image.png")
		require.NoError(a.t, err)
		_, err = fw.Write(pngBytes)
		require.NoError(a.t, err)
	}
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.do(req, token)
}

func (a *api) signup(name string) (token, id string) {
	a.t.Helper()
	email := name + "@example.com"
	code, res := a.multipart(http.MethodPost, "/users/register", "", map[string]string{
		"name": name, "email": email, "password": "secret1",
	}, "photo")
	require.Equal(a.t, http.StatusCreated, code, res.Message)

	code, res = a.json(http.MethodPost, "/users/login", "", map[string]string{"email": email, "password": "secret1"})
	require.Equal(a.t, http.StatusOK, code, res.Message)

	var login struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(a.t, json.Unmarshal(res.Data, &login))
	return login.Token, login.User.ID
}

func dataID(t *testing.T, res apiResponse) string {
	t.Helper()
	var v struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &v))
	require.NotEmpty(t, v.ID)
	return v.ID
}

func TestRouter_AuthFlow(t *testing.T) {
	a := newAPI(t)
	token, _ := a.signup("ana")

	code, res := a.json(http.MethodGet, "/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, res.Success)

	code, res = a.json(http.MethodGet, "/users/profile", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "malformed token", res.Message)

	code, res = a.json(http.MethodGet, "/users/profile", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, res.Success)
	assert.NotContains(t, string(res.Data), "password")

	code, _ = a.json(http.MethodPost, "/users/logout", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, res = a.json(http.MethodGet, "/users/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "session expired", res.Message)

	code, res = a.json(http.MethodPost, "/users/login", "", map[string]string{"email": "ana@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid credentials", res.Message)
}

func TestRouter_Books(t *testing.T) {
	a := newAPI(t)
	token, _ := a.signup("ana")

	code, res := a.json(http.MethodPost, "/books/create", token, map[string]string{"title": "Dune", "author": "Frank Herbert"})
	require.Equal(t, http.StatusCreated, code, res.Message)
	id := dataID(t, res)

	code, res = a.json(http.MethodPost, "/books/create", token, map[string]string{"title": "Dune", "author": "Other"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "this book is already registered", res.Message)

	code, res = a.json(http.MethodPost, "/books/create", token, map[string]string{"title": "Emma"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, res.Errors)

	code, _ = a.json(http.MethodGet, "/books/not-an-id", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, res = a.json(http.MethodGet, "/books/list?limit=1&sortBy=bogus", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(res.Data), `"resultsPerPage":1`)

	code, _ = a.json(http.MethodPut, "/books/update/"+id, token, map[string]any{"title": "Dune Messiah"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.json(http.MethodDelete, "/books/delete/"+id, token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.json(http.MethodGet, "/books/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_ClubMeetDiscussion(t *testing.T) {
	a := newAPI(t)
	admin, _ := a.signup("ana")
	member, memberID := a.signup("bo")
	outsider, _ := a.signup("cy")

	code, res := a.multipart(http.MethodPost, "/clubs/create", admin, map[string]string{
		"name": "Night Readers", "description": "We read at night", "rules": `["Be kind","Read the book"]`,
	}, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, res = a.multipart(http.MethodPost, "/clubs/create", admin, map[string]string{
		"name": "Night Readers", "description": "We read at night", "rules": `["Be kind","Read the book"]`,
	}, "banner")
	require.Equal(t, http.StatusCreated, code, res.Message)
	clubID := dataID(t, res)
	assert.Contains(t, string(res.Data), "Read the book")

	code, _ = a.json(http.MethodPatch, "/clubs/"+clubID+"/members", member, map[string]string{"memberId": memberID})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.json(http.MethodPatch, "/clubs/"+clubID+"/members", admin, map[string]string{"memberId": "bad"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.json(http.MethodPatch, "/clubs/"+clubID+"/members", admin, map[string]string{"memberId": memberID})
	require.Equal(t, http.StatusOK, code)

	code, _ = a.json(http.MethodPatch, "/clubs/"+clubID+"/members", admin, map[string]string{"memberId": memberID})
	assert.Equal(t, http.StatusConflict, code)

	code, res = a.json(http.MethodPost, "/books/create", admin, map[string]string{"title": "Dune", "author": "Frank Herbert"})
	require.Equal(t, http.StatusCreated, code)
	bookID := dataID(t, res)

	code, res = a.json(http.MethodPost, "/meets/create", admin, map[string]string{
		"clubId": clubID, "bookId": bookID, "title": "Opening", "description": "Part one",
		"datetime": time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, code, res.Message)
	meetID := dataID(t, res)

	code, _ = a.json(http.MethodPost, "/meets/"+meetID+"/post", outsider, map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, code)

	code, res = a.json(http.MethodPost, "/meets/"+meetID+"/post", member, map[string]string{"text": "Loved it"})
	require.Equal(t, http.StatusCreated, code, res.Message)
	msgID := dataID(t, res)

	code, res = a.json(http.MethodPut, "/meets/"+meetID+"/pinned-post/"+msgID, admin, nil)
	require.Equal(t, http.StatusOK, code, res.Message)

	code, res = a.json(http.MethodGet, "/meets/"+meetID+"/messages", member, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(res.Data), `"isPinned":true`)
	assert.Contains(t, string(res.Data), `"pinnedCount":1`)

	code, res = a.json(http.MethodGet, "/clubs/"+clubID+"/meets", member, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(res.Data), `"total":1`)

	code, res = a.json(http.MethodDelete, "/clubs/delete/"+clubID, admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(res.Data), `"deletedMeets":1`)

	code, _ = a.json(http.MethodGet, "/meets/"+meetID, member, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRespondError_MasksUnexpected(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		expose bool
		errors []string
	}{
		{name: "masked", expose: false, errors: nil},
		{name: "exposed", expose: true, errors: []string{"db down"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(w)
			ctx.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			ctx.Set(exposeErrsKey, tt.expose)

			respondError(ctx, service.Unexpected(errors.New("db down"), "failed to load %s", "clubs"))

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			var res apiResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.False(t, res.Success)
			assert.Equal(t, tt.errors, res.Errors)
			if !tt.expose {
				assert.Equal(t, "internal server error", res.Message)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bearerToken(tt.header), tt.header)
	}
}
