package cloud

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v4"
)

const (
	testFileID   = "1AbCdEfGhIjKlMnOpQrStUvWxYz012345"
	testFolderID = "0BfolderIdentifier_abcdefghijkl"
	testSheetID  = "1SheetIdentifier-abcdefghijklmnop"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAsID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{testFileID, testFileID},
		{"https://drive.google.com/file/d/" + testFileID + "/view?usp=sharing", testFileID},
		{"https://drive.google.com/drive/folders/" + testFolderID, testFolderID},
		{"https://drive.google.com/open?id=" + testFileID, testFileID},
		{"https://docs.google.com/spreadsheets/d/" + testSheetID + "/edit#gid=42", testSheetID},
	}
	for _, tt := range tests {
		got, err := AsID(tt.in)
		if err != nil {
			t.Fatalf("AsID(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("AsID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "short", "https://drive.google.com/file/d/abc/view"} {
		if _, err := AsID(bad); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("AsID(%q) error = %v, want ErrInvalidURL", bad, err)
		}
	}
}

func TestWorksheetGID(t *testing.T) {
	base := "https://docs.google.com/spreadsheets/d/" + testSheetID + "/edit"
	tests := map[string]int64{
		base:                     0,
		base + "#gid=0":          0,
		base + "#gid=1234567":    1234567,
		base + "?usp=x#gid=9":    9,
		base + "#something-else": 0,
	}
	for in, want := range tests {
		if got := WorksheetGID(in); got != want {
			t.Errorf("WorksheetGID(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestFile_MetaString(t *testing.T) {
	f := File{Name: "001_a.mp4", MimeType: "video/mp4", Size: 2048}
	if got, want := f.MetaString(), "[2 KB] video/mp4 - 001_a.mp4"; got != want {
		t.Errorf("MetaString() = %q, want %q", got, want)
	}
	if !f.IsVideo() || f.IsFolder() {
		t.Error("expected video, not folder")
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{2047, "2 KB"},
		{1048576, "1 MB"},
		{1610612736, "1.5 GB"},
	}
	for _, tt := range tests {
		if got := HumanSize(tt.n); got != tt.want {
			t.Errorf("HumanSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestAPIError(t *testing.T) {
	if !(&APIError{StatusCode: http.StatusInternalServerError}).IsRetryable() {
		t.Fatal("expected 5xx to be retryable")
	}
	if !(&APIError{StatusCode: http.StatusTooManyRequests}).IsRetryable() {
		t.Fatal("expected 429 to be retryable")
	}
	if (&APIError{StatusCode: http.StatusForbidden}).IsRetryable() {
		t.Fatal("expected 403 to be permanent")
	}
	var err error = &APIError{StatusCode: http.StatusNotFound}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected 404 to match ErrNotFound")
	}
}

func TestDrive_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/"+testFileID {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth = %q, want %q", got, "Bearer test-token")
		}
		w.Write([]byte(`{"id":"` + testFileID + `","name":"lecture.mp4","mimeType":"video/mp4","size":"1048576"}`))
	}))
	defer server.Close()

	d := NewDrive(DriveConfig{BaseURL: server.URL, Tokens: StaticToken("test-token"), Logger: testLogger()})
	f, err := d.Get(context.Background(), testFileID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if f.Name != "lecture.mp4" || f.Size != 1048576 || !f.IsVideo() {
		t.Errorf("file = %+v", f)
	}
}

func TestDrive_Get_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"File not found"}}`))
	}))
	defer server.Close()

	d := NewDrive(DriveConfig{BaseURL: server.URL, Logger: testLogger()})
	_, err := d.Get(context.Background(), testFileID)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Body, "File not found") {
		t.Errorf("body = %q", apiErr.Body)
	}
}

func TestDrive_Folder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/" + testFolderID:
			w.Write([]byte(`{"id":"` + testFolderID + `","name":"clips","mimeType":"` + MimeFolder + `"}`))
		default:
			w.Write([]byte(`{"id":"` + testFileID + `","name":"lecture.mp4","mimeType":"video/mp4","size":"10"}`))
		}
	}))
	defer server.Close()

	d := NewDrive(DriveConfig{BaseURL: server.URL, Logger: testLogger()})
	f, err := d.Folder(context.Background(), testFolderID)
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}
	if f.Name != "clips" {
		t.Errorf("folder = %+v", f)
	}

	if _, err := d.Folder(context.Background(), testFileID); !errors.Is(err, ErrNotFolder) {
		t.Fatalf("Folder(video) error = %v, want ErrNotFolder", err)
	}
}

func TestDrive_DownloadVideo(t *testing.T) {
	content := strings.Repeat("v", 5000)
	var mediaRequests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			mediaRequests.Add(1)
			w.Write([]byte(content))
			return
		}
		w.Write([]byte(`{"id":"` + testFileID + `","name":"Lecture: part 1.mp4","mimeType":"video/mp4","size":"5000"}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	d := NewDrive(DriveConfig{BaseURL: server.URL, Logger: testLogger()})

	var progress strings.Builder
	path, f, err := d.DownloadVideo(context.Background(), testFileID, dir, &progress)
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}
	if want := filepath.Join(dir, "Lecture part 1.mp4"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if f.Size != 5000 {
		t.Errorf("size = %d", f.Size)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Error("downloaded content mismatch")
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Error("expected partial file to be renamed")
	}
	if !strings.Contains(progress.String(), "100.0%") {
		t.Errorf("progress = %q, want final 100.0%%", progress.String())
	}

	// Same size on disk: no second transfer.
	if _, _, err := d.DownloadVideo(context.Background(), testFileID, dir, nil); err != nil {
		t.Fatalf("second DownloadVideo: %v", err)
	}
	if got := mediaRequests.Load(); got != 1 {
		t.Errorf("media requests = %d, want 1", got)
	}
}

func TestDrive_DownloadVideo_RejectsNonVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"x","name":"notes.pdf","mimeType":"application/pdf","size":"10"}`))
	}))
	defer server.Close()

	d := NewDrive(DriveConfig{BaseURL: server.URL, Logger: testLogger()})
	_, _, err := d.DownloadVideo(context.Background(), testFileID, t.TempDir(), nil)
	if !errors.Is(err, ErrNotVideo) {
		t.Fatalf("error = %v, want ErrNotVideo", err)
	}
}

func TestDrive_ListVideos_Paginates(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query().Get("q")
		want := "'" + testFolderID + "' in parents and trashed=false and mimeType contains 'video'"
		if q != want {
			t.Errorf("q = %q, want %q", q, want)
		}
		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"nextPageToken":"p2","files":[{"id":"1","name":"001_a.mp4","mimeType":"video/mp4","size":"10"}]}`))
			return
		}
		w.Write([]byte(`{"files":[{"id":"2","name":"002_b.mp4","mimeType":"video/mp4","size":"20"}]}`))
	}))
	defer server.Close()

	d := NewDrive(DriveConfig{BaseURL: server.URL, Logger: testLogger()})
	files, err := d.ListVideos(context.Background(), testFolderID)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	if files["002_b.mp4"].Size != 20 {
		t.Errorf("002_b.mp4 = %+v", files["002_b.mp4"])
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestDrive_Upload(t *testing.T) {
	var gotMeta map[string]any
	var gotMedia []byte
	var gotMediaType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" || r.URL.Query().Get("uploadType") != "multipart" {
			t.Errorf("unexpected request: %s", r.URL)
		}
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "multipart/related" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])

		part, err := mr.NextPart()
		if err != nil {
			t.Errorf("metadata part: %v", err)
			return
		}
		json.NewDecoder(part).Decode(&gotMeta)

		part, err = mr.NextPart()
		if err != nil {
			t.Errorf("media part: %v", err)
			return
		}
		gotMediaType = part.Header.Get("Content-Type")
		gotMedia, _ = io.ReadAll(part)

		w.Write([]byte(`{"id":"new-id","name":"001_clip.txt","mimeType":"text/plain","size":"11"}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "clip.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDrive(DriveConfig{UploadURL: server.URL, Logger: testLogger()})
	f, err := d.Upload(context.Background(), testFolderID, path, "001_clip.txt")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if f.ID != "new-id" {
		t.Errorf("id = %q", f.ID)
	}
	if gotMeta["name"] != "001_clip.txt" {
		t.Errorf("meta name = %v", gotMeta["name"])
	}
	parents, _ := gotMeta["parents"].([]any)
	if len(parents) != 1 || parents[0] != testFolderID {
		t.Errorf("meta parents = %v", gotMeta["parents"])
	}
	if string(gotMedia) != "hello world" {
		t.Errorf("media = %q", gotMedia)
	}
	if !strings.HasPrefix(gotMediaType, "text/plain") {
		t.Errorf("media type = %q, want text/plain", gotMediaType)
	}
}

func TestDrive_Upload_RejectedIsLogged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"backend busy"}}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "clip.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	var logs strings.Builder
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	d := NewDrive(DriveConfig{UploadURL: server.URL, Logger: logger})
	_, err := d.Upload(context.Background(), testFolderID, path, "001_clip.txt")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Upload error = %v, want HTTP 503 APIError", err)
	}
	if !strings.Contains(logs.String(), `"retryable":true`) || !strings.Contains(logs.String(), `"status":503`) {
		t.Errorf("log = %s", logs.String())
	}
}

func TestSheets_Values(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/spreadsheets/" + testSheetID:
			w.Write([]byte(`{"sheets":[{"properties":{"sheetId":0,"title":"Main"}},{"properties":{"sheetId":77,"title":"Bob's tab"}}]}`))
		case "/spreadsheets/" + testSheetID + "/values/'Bob''s tab'":
			w.Write([]byte(`{"range":"x","values":[["Use","Start","End","Name"],[true,"00:00:10","00:00:20","Intro"],["FALSE",12]]}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := NewSheets(SheetsConfig{BaseURL: server.URL, Logger: testLogger()})
	url := "https://docs.google.com/spreadsheets/d/" + testSheetID + "/edit#gid=77"
	rows, err := s.Values(context.Background(), url)
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[1][0] != "TRUE" || rows[1][3] != "Intro" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][1] != "12" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestSheets_Values_UnknownGID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sheets":[{"properties":{"sheetId":5,"title":"Only"}}]}`))
	}))
	defer server.Close()

	s := NewSheets(SheetsConfig{BaseURL: server.URL, Logger: testLogger()})
	_, err := s.Values(context.Background(), "https://docs.google.com/spreadsheets/d/"+testSheetID+"/edit#gid=9")
	if err == nil || !strings.Contains(err.Error(), "gid 9") {
		t.Fatalf("error = %v, want missing gid", err)
	}
}

func writeServiceAccountKey(t *testing.T, tokenURI string) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	data, _ := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "cutter@project.iam.gserviceaccount.com",
		"private_key_id": "kid-1",
		"private_key":    string(pemKey),
		"token_uri":      tokenURI,
	})
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path, key
}

func TestServiceAccount_TokenIsCached(t *testing.T) {
	var requests atomic.Int32
	var key *rsa.PrivateKey

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("grant_type = %q", got)
		}

		tok, err := jwt.Parse(r.PostForm.Get("assertion"), func(tok *jwt.Token) (any, error) {
			if tok.Header["kid"] != "kid-1" {
				t.Errorf("kid = %v", tok.Header["kid"])
			}
			return &key.PublicKey, nil
		})
		if err != nil || !tok.Valid {
			t.Errorf("assertion invalid: %v", err)
		}
		claims := tok.Claims.(jwt.MapClaims)
		if claims["iss"] != "cutter@project.iam.gserviceaccount.com" {
			t.Errorf("iss = %v", claims["iss"])
		}
		if !strings.Contains(claims["scope"].(string), ScopeSheets) {
			t.Errorf("scope = %v", claims["scope"])
		}

		w.Write([]byte(`{"access_token":"ya29.token","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer server.Close()

	path, k := writeServiceAccountKey(t, server.URL)
	key = k

	sa, err := NewServiceAccount(path, server.Client())
	if err != nil {
		t.Fatalf("NewServiceAccount: %v", err)
	}
	if sa.Email() != "cutter@project.iam.gserviceaccount.com" {
		t.Errorf("Email() = %q", sa.Email())
	}

	for i := 0; i < 3; i++ {
		tok, err := sa.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "ya29.token" {
			t.Errorf("token = %q", tok)
		}
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("token requests = %d, want 1", got)
	}
}

func TestServiceAccount_TokenError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	path, _ := writeServiceAccountKey(t, server.URL)
	sa, err := NewServiceAccount(path, server.Client())
	if err != nil {
		t.Fatal(err)
	}

	_, err = sa.Token(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 APIError", err)
	}
}

func TestNewServiceAccount_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"client_email":""}`), 0o600)
	if _, err := NewServiceAccount(path, nil); err == nil {
		t.Fatal("expected error for incomplete credentials")
	}
	if _, err := NewServiceAccount(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}
