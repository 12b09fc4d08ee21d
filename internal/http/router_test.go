package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"timetravel/internal/auth"
	"timetravel/internal/capsule"
	"timetravel/internal/capsule/capsuletest"
	"timetravel/internal/config"
)

var fixedNow = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	h     http.Handler
	store *capsuletest.MemStore
	blobs *capsuletest.MemBlobs
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	jwtSvc := auth.NewJWT("test-secret", time.Minute)
	ts := &testServer{
		store: capsuletest.NewMemStore(),
		blobs: capsuletest.NewMemBlobs(),
	}
	svc := &capsule.Service{
		Store:   ts.store,
		Blobs:   ts.blobs,
		Cleanup: &capsuletest.MemCleanup{},
		Now:     func() time.Time { return fixedNow },
	}
	cfg := config.Config{MaxUploadBytes: 1 << 20, Location: time.UTC}
	ts.h = NewRouter(cfg, nil, &auth.Sessions{JWT: jwtSvc}, svc)

	tok, err := jwtSvc.Sign(7)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ts.token = tok
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) put(userID uint64, name, unlock string) uuid.UUID {
	day, _ := time.Parse(capsule.DateLayout, unlock)
	id := uuid.New()
	ts.store.Put(capsule.Capsule{
		ID: id, UserID: userID, Name: name, Icon: "🎁", Color: "#345CA1",
		UnlockAt: datatypes.Date(day), CreatedAt: fixedNow.Add(-time.Hour),
	})
	return id
}

type formFile struct {
	name, contentType string
	data              []byte
}

func capsuleForm(t *testing.T, fields map[string][]string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, vs := range fields {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="media"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/capsules", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestCapsulesRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/capsules", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestCreateCapsule(t *testing.T) {
	ts := newTestServer(t)
	req := capsuleForm(t, map[string][]string{
		"name":      {"Trip"},
		"icon":      {"🎉"},
		"color":     {"#fff"},
		"unlock_at": {"2025-12-25"},
		"message":   {"hi", "   "},
	}, formFile{"beach.jpg", "image/jpeg", []byte("jpeg")})

	rec := ts.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil || out.ID == uuid.Nil {
		t.Fatalf("decode: %v %+v", err, out)
	}

	c, m, media := ts.store.Counts()
	if c != 1 || m != 1 || media != 1 || ts.blobs.Len() != 1 {
		t.Fatalf("rows = %d/%d/%d blobs = %d", c, m, media, ts.blobs.Len())
	}
}

func TestCreateCapsuleRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string][]string
		want   string
	}{
		{"missing name", map[string][]string{"unlock_at": {"2025-12-25"}}, "Please enter a name"},
		{"missing date", map[string][]string{"name": {"Trip"}}, "Please choose an unlock date"},
		{"bad date", map[string][]string{"name": {"Trip"}, "unlock_at": {"25/12/2025"}}, "invalid unlock_at"},
		{"bad color", map[string][]string{"name": {"Trip"}, "unlock_at": {"2025-12-25"}, "color": {"red"}}, "valid color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(capsuleForm(t, tt.fields))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("code = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.want)
			}
			if c, _, _ := ts.store.Counts(); c != 0 {
				t.Fatalf("capsules = %d", c)
			}
		})
	}
}

func TestCreateCapsuleUploadFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.blobs.FailUploadAt = 1
	req := capsuleForm(t, map[string][]string{
		"name":      {"Trip"},
		"unlock_at": {"2025-12-25"},
		"message":   {"hi"},
	}, formFile{"clip.mp4", "video/mp4", []byte("mp4")})

	rec := ts.do(req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("code = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "Failed to upload media" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if c, m, media := ts.store.Counts(); c+m+media != 0 {
		t.Fatalf("rows left behind: %d/%d/%d", c, m, media)
	}
}

func TestListCapsules(t *testing.T) {
	ts := newTestServer(t)
	ts.put(7, "Old", "2024-06-01")
	ts.put(7, "Soon", "2025-02-01")
	ts.put(7, "Later", "2026-02-01")
	ts.put(8, "Someone else", "2025-03-01")

	tests := []struct {
		query string
		want  string
	}{
		{"", "Soon,Later,Old"},
		{"?status=locked", "Soon,Later"},
		{"?status=unlocked", "Old"},
		{"?q=o", "Soon,Old"},
	}
	for _, tt := range tests {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/capsules"+tt.query, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: code = %d", tt.query, rec.Code)
		}
		var views []capsule.View
		if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
			t.Fatalf("%s: decode: %v", tt.query, err)
		}
		var names []string
		for _, v := range views {
			names = append(names, v.Name)
		}
		if got := strings.Join(names, ","); got != tt.want {
			t.Fatalf("%s: names = %s, want %s", tt.query, got, tt.want)
		}
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/capsules?status=maybe", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status code = %d", rec.Code)
	}
}

func TestGetCapsule(t *testing.T) {
	ts := newTestServer(t)
	id := ts.put(7, "Soon", "2025-01-11")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/capsules/"+id.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var v capsule.View
	_ = json.NewDecoder(rec.Body).Decode(&v)
	if v.Unlocked || v.DaysLeftCount != 10 || v.UnlockAt != "2025-01-11" || v.UnlockAtDisplay != "Jan 11, 2025" {
		t.Fatalf("view = %+v", v)
	}

	for path, code := range map[string]int{
		"/capsules/not-a-uuid":          http.StatusBadRequest,
		"/capsules/" + uuid.NewString(): http.StatusNotFound,
	} {
		if rec := ts.do(httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != code {
			t.Fatalf("%s: code = %d, want %d", path, rec.Code, code)
		}
	}
}

func TestCapsuleContent(t *testing.T) {
	ts := newTestServer(t)
	locked := ts.put(7, "Later", "2026-02-01")
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/capsules/"+locked.String()+"/content", nil))
	if rec.Code != http.StatusLocked {
		t.Fatalf("locked code = %d", rec.Code)
	}

	open := ts.put(7, "Old", "2024-06-01")
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/capsules/"+open.String()+"/content", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("open code = %d", rec.Code)
	}
	var c capsule.Content
	if err := json.NewDecoder(rec.Body).Decode(&c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Capsule.Name != "Old" || !c.Capsule.Unlocked {
		t.Fatalf("content = %+v", c)
	}
}

func TestDeleteCapsule(t *testing.T) {
	ts := newTestServer(t)
	id := ts.put(7, "Soon", "2025-02-01")
	other := ts.put(8, "Theirs", "2025-02-01")

	if rec := ts.do(httptest.NewRequest(http.MethodDelete, "/capsules/"+other.String(), nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("delete other user's capsule: %d", rec.Code)
	}
	if rec := ts.do(httptest.NewRequest(http.MethodDelete, "/capsules/"+id.String(), nil)); rec.Code != http.StatusNoContent {
		t.Fatalf("delete code = %d", rec.Code)
	}
	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/capsules/"+id.String(), nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "bad json"},
		{"bad email", `{"email":"nope","password":"longenough","confirm_password":"longenough","first_name":"A","last_name":"B"}`, "invalid email"},
		{"short password", `{"email":"a@b.co","password":"short","confirm_password":"short","first_name":"A","last_name":"B"}`, "password must be at least 8"},
		{"mismatch", `{"email":"a@b.co","password":"longenough","confirm_password":"different","first_name":"A","last_name":"B"}`, "passwords do not match"},
		{"missing name", `{"email":"a@b.co","password":"longenough","confirm_password":"longenough","last_name":"B"}`, "first_name is required"},
		{"blank name", `{"email":"a@b.co","password":"longenough","confirm_password":"longenough","first_name":"  ","last_name":"B"}`, "first_name and last_name are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			ts.h.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("code = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}
