package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-service/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type credentials struct{ email, password string }

var (
	adminCreds  = credentials{"admin@example.com", "admin-pass"}
	memberCreds = credentials{"alice@example.com", "alice-pass"}
)

type testServer struct {
	t         *testing.T
	handler   http.Handler
	mgr       *library.LibraryManager
	uploadDir string
	memberID  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := logtest.NewNullLogger()

	dir := t.TempDir()
	mgr, err := library.NewLibraryManager(library.DatabaseConfig{Path: filepath.Join(dir, "lib.db")}, library.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	ctx := context.Background()
	_, err = mgr.AddUser(ctx, library.UserInput{
		Name: lo.ToPtr("Librarian"), Email: &adminCreds.email, Password: &adminCreds.password, IsAdmin: lo.ToPtr(true),
	})
	require.NoError(t, err)
	member, err := mgr.AddUser(ctx, library.UserInput{
		Name: lo.ToPtr("Alice"), Email: &memberCreds.email, Password: &memberCreds.password,
	})
	require.NoError(t, err)

	uploadDir := filepath.Join(dir, "uploads")
	files, err := library.NewDiskStore(uploadDir, UploadsPath)
	require.NoError(t, err)

	return &testServer{
		t:         t,
		handler:   NewServer(mgr, files, uploadDir, log).Handler(),
		mgr:       mgr,
		uploadDir: uploadDir,
		memberID:  member.ID,
	}
}

// do sends body as JSON unless it is already a *multipart.Writer payload.
func (s *testServer) do(method, path string, who *credentials, body any) (int, map[string]any) {
	s.t.Helper()
	var (
		r           *bytes.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
		r = bytes.NewReader(nil)
	case multipartBody:
		r = bytes.NewReader(b.data)
		contentType = b.contentType
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req := httptest.NewRequest(method, path, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if who != nil {
		req.SetBasicAuth(who.email, who.password)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

type multipartBody struct {
	data        []byte
	contentType string
}

func newMultipart(t *testing.T, fields map[string]string, files map[string]string) multipartBody {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, name := range files {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("contents of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return multipartBody{data: buf.Bytes(), contentType: w.FormDataContentType()}
}

func (s *testServer) addBook(name string) string {
	s.t.Helper()
	code, out := s.do(http.MethodPost, "/api/book/add", &adminCreds, map[string]any{"name": name, "isbn": "978-" + name})
	require.Equal(s.t, http.StatusCreated, code, out)
	return out["newBook"].(map[string]any)["_id"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, out := s.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	code, out := s.do(http.MethodGet, "/api/book/getAll", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, out["success"])

	code, _ = s.do(http.MethodGet, "/api/book/getAll", &credentials{memberCreds.email, "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, out = s.do(http.MethodGet, "/api/auth/me", &memberCreds, nil)
	require.Equal(t, http.StatusOK, code)
	user := out["user"].(map[string]any)
	assert.Equal(t, s.memberID, user["_id"])
	assert.NotContains(t, user, "PasswordHash")
}

func TestAdminOnlyRoutes(t *testing.T) {
	s := newTestServer(t)

	code, out := s.do(http.MethodPost, "/api/book/add", &memberCreds, map[string]any{"name": "x", "isbn": "1"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, false, out["success"])

	code, _ = s.do(http.MethodGet, "/api/user/getAll", &memberCreds, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, out = s.do(http.MethodGet, "/api/user/getAllMembers", &adminCreds, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["membersList"], 1)
}

func TestBookLifecycle(t *testing.T) {
	s := newTestServer(t)

	code, out := s.do(http.MethodPost, "/api/author/add", &adminCreds, map[string]any{"name": "Frank Herbert"})
	require.Equal(t, http.StatusCreated, code, out)
	authorID := out["newAuthor"].(map[string]any)["_id"].(string)

	code, out = s.do(http.MethodPost, "/api/book/add", &adminCreds, map[string]any{
		"name": "Dune", "isbn": "9780441013593", "authorId": authorID,
	})
	require.Equal(t, http.StatusCreated, code, out)
	book := out["newBook"].(map[string]any)
	id := book["_id"].(string)
	assert.Equal(t, true, book["isAvailable"])
	assert.Equal(t, "Frank Herbert", book["author"].(map[string]any)["name"])

	code, out = s.do(http.MethodGet, "/api/book/get/"+id, &memberCreds, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Dune", out["book"].(map[string]any)["name"])

	code, out = s.do(http.MethodPut, "/api/book/update/"+id, &adminCreds, map[string]any{"summary": "Spice"})
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "Spice", out["updatedBook"].(map[string]any)["summary"])

	code, out = s.do(http.MethodGet, "/api/book/search?q=spice", &memberCreds, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["booksList"], 1)

	code, out = s.do(http.MethodPost, "/api/book/add", &adminCreds, map[string]any{"isbn": "1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["err"], "name")

	code, out = s.do(http.MethodDelete, "/api/book/delete/"+id, &adminCreds, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, out["deletedBook"].(map[string]any)["_id"])

	code, _ = s.do(http.MethodGet, "/api/book/get/"+id, &adminCreds, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBorrowalFlow(t *testing.T) {
	s := newTestServer(t)
	bookID := s.addBook("Dune")

	code, out := s.do(http.MethodPost, "/api/borrowal/add", &memberCreds, map[string]any{
		"bookId": bookID, "memberId": s.memberID,
	})
	require.Equal(t, http.StatusCreated, code, out)
	br := out["newBorrowal"].(map[string]any)
	id := br["_id"].(string)
	assert.Equal(t, "borrowed", br["status"])

	code, out = s.do(http.MethodGet, "/api/book/getAll?available=true", &memberCreds, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, out["booksList"])

	code, out = s.do(http.MethodPost, "/api/borrowal/add", &adminCreds, map[string]any{
		"bookId": bookID, "memberId": s.memberID,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, out["success"])

	code, _ = s.do(http.MethodPut, "/api/borrowal/return/"+id, &memberCreds, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, out = s.do(http.MethodPut, "/api/borrowal/return/"+id, &adminCreds, nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "returned", out["updatedBorrowal"].(map[string]any)["status"])

	code, out = s.do(http.MethodGet, "/api/book/get/"+bookID, &memberCreds, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["book"].(map[string]any)["isAvailable"])

	code, out = s.do(http.MethodGet, "/api/borrowal/getAll", &memberCreds, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["borrowalsList"], 1)

	code, out = s.do(http.MethodPost, "/api/borrowal/add", &adminCreds, map[string]any{
		"bookId": bookID, "memberId": s.memberID, "dueDate": "yesterday",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["err"], "dueDate")

	code, out = s.do(http.MethodDelete, "/api/borrowal/delete/"+id, &adminCreds, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, out["deletedBorrowal"].(map[string]any)["_id"])
}

func TestBookUploads(t *testing.T) {
	s := newTestServer(t)

	body := newMultipart(t, map[string]string{"name": "Emma", "isbn": "9780141439587"},
		map[string]string{"photo": "cover.png", "file": "emma.pdf"})
	code, out := s.do(http.MethodPost, "/api/book/add", &adminCreds, body)
	require.Equal(t, http.StatusCreated, code, out)
	book := out["newBook"].(map[string]any)

	photo := book["photoUrl"].(string)
	pdf := book["pdfUrl"].(string)
	assert.True(t, strings.HasSuffix(photo, ".png"))
	assert.True(t, strings.HasSuffix(pdf, ".pdf"))
	_, err := os.Stat(filepath.Join(s.uploadDir, filepath.Base(pdf)))
	assert.NoError(t, err)

	body = newMultipart(t, map[string]string{"name": "Bad", "isbn": "1"}, map[string]string{"photo": "cover.gif"})
	code, out = s.do(http.MethodPost, "/api/book/add", &adminCreds, body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["err"], ".png")

	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "rejected uploads are not stored")
}

func TestUserProfiles(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodPut, "/api/user/update/"+s.memberID, &memberCreds, map[string]any{"isAdmin": true})
	assert.Equal(t, http.StatusForbidden, code)

	code, out := s.do(http.MethodPut, "/api/user/update/"+s.memberID, &memberCreds, map[string]any{
		"phone": "555-0100", "dob": "1990-05-04",
	})
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "555-0100", out["updatedUser"].(map[string]any)["phone"])

	code, out = s.do(http.MethodPost, "/api/user/add", &adminCreds, map[string]any{
		"name": "Copy", "email": memberCreds.email, "password": "x",
	})
	assert.Equal(t, http.StatusConflict, code, out)

	code, out = s.do(http.MethodPost, "/api/user/add", &adminCreds, map[string]any{
		"name": "Bob", "email": "bob@example.com", "password": "bob-pass",
	})
	require.Equal(t, http.StatusCreated, code, out)
	bobID := out["user"].(map[string]any)["_id"].(string)

	code, _ = s.do(http.MethodGet, "/api/user/get/"+bobID, &memberCreds, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodDelete, "/api/user/delete/"+bobID, &adminCreds, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestBookAvailabilityIsNotWritable(t *testing.T) {
	s := newTestServer(t)

	code, out := s.do(http.MethodPost, "/api/book/add", &adminCreds, map[string]any{
		"name": "Dune", "isbn": "1", "isAvailable": false,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["err"], "isAvailable")

	bookID := s.addBook("Emma")
	code, _ = s.do(http.MethodPost, "/api/borrowal/add", &adminCreds, map[string]any{"bookId": bookID, "memberId": s.memberID})
	require.Equal(t, http.StatusCreated, code)

	code, _ = s.do(http.MethodPut, "/api/book/update/"+bookID, &adminCreds, map[string]any{"isAvailable": true})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/borrowal/add", &adminCreds, map[string]any{"bookId": bookID, "memberId": s.memberID})
	assert.Equal(t, http.StatusConflict, code, "the open loan still holds the book")
}

func TestReplacedUploadsAreRemoved(t *testing.T) {
	s := newTestServer(t)

	body := newMultipart(t, map[string]string{"name": "Emma", "isbn": "9780141439587"}, map[string]string{"photo": "first.png"})
	code, out := s.do(http.MethodPost, "/api/book/add", &adminCreds, body)
	require.Equal(t, http.StatusCreated, code, out)
	book := out["newBook"].(map[string]any)
	id := book["_id"].(string)
	first := book["photoUrl"].(string)

	body = newMultipart(t, nil, map[string]string{"photo": "second.jpg"})
	code, out = s.do(http.MethodPut, "/api/book/update/"+id, &adminCreds, body)
	require.Equal(t, http.StatusOK, code, out)
	second := out["updatedBook"].(map[string]any)["photoUrl"].(string)
	assert.NotEqual(t, first, second)

	_, err := os.Stat(filepath.Join(s.uploadDir, filepath.Base(first)))
	assert.True(t, os.IsNotExist(err), "old cover is deleted")
	_, err = os.Stat(filepath.Join(s.uploadDir, filepath.Base(second)))
	assert.NoError(t, err)

	// An update without a file keeps the current one.
	code, _ = s.do(http.MethodPut, "/api/book/update/"+id, &adminCreds, map[string]any{"summary": "Highbury"})
	require.Equal(t, http.StatusOK, code)
	_, err = os.Stat(filepath.Join(s.uploadDir, filepath.Base(second)))
	assert.NoError(t, err)

	body = newMultipart(t, nil, map[string]string{"photo": "me.png"})
	code, out = s.do(http.MethodPut, "/api/user/update/"+s.memberID, &memberCreds, body)
	require.Equal(t, http.StatusOK, code, out)
	avatar := out["updatedUser"].(map[string]any)["photoUrl"].(string)

	body = newMultipart(t, nil, map[string]string{"photo": "me-again.png"})
	code, _ = s.do(http.MethodPut, "/api/user/update/"+s.memberID, &memberCreds, body)
	require.Equal(t, http.StatusOK, code)
	_, err = os.Stat(filepath.Join(s.uploadDir, filepath.Base(avatar)))
	assert.True(t, os.IsNotExist(err), "old avatar is deleted")
}
