package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cutmassively/cutm/internal/naming"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultDriveURL  = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	MimeFolder = "application/vnd.google-apps.folder"

	fileFields = "id,name,mimeType,size"
)

var (
	ErrNotVideo  = errors.New("remote file is not a video")
	ErrNotFolder = errors.New("remote file is not a folder")
)

// File is the subset of Drive file metadata the pipeline uses.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,string,omitempty"`
}

func (f File) IsVideo() bool {
	return strings.HasPrefix(f.MimeType, "video/")
}

func (f File) IsFolder() bool {
	return f.MimeType == MimeFolder
}

// MetaString renders "[size] mime - name" for progress lines.
func (f File) MetaString() string {
	return fmt.Sprintf("[%s] %s - %s", HumanSize(f.Size), f.MimeType, f.Name)
}

var sizeSuffixes = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// HumanSize renders n in 1024 steps with one decimal, dropping a trailing
// ".0": 1536 is "1.5 KB", 2048 is "2 KB".
func HumanSize(n int64) string {
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(sizeSuffixes)-1 {
		v /= 1024
		i++
	}
	return humanize.FtoaWithDigits(math.Round(v*10)/10, 1) + " " + sizeSuffixes[i]
}

type DriveConfig struct {
	BaseURL    string
	UploadURL  string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Drive is a minimal Google Drive v3 REST client.
type Drive struct {
	baseURL    string
	uploadURL  string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDrive(cfg DriveConfig) *Drive {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDriveURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.HTTPClient == nil {
		// No overall timeout: downloads and uploads of long recordings are
		// bounded by the caller's context instead.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Drive{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		uploadURL:  strings.TrimRight(cfg.UploadURL, "/"),
		tokens:     cfg.Tokens,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Get fetches metadata for a file or folder id.
func (d *Drive) Get(ctx context.Context, id string) (*File, error) {
	q := url.Values{
		"fields":            {fileFields},
		"supportsAllDrives": {"true"},
	}
	u := fmt.Sprintf("%s/files/%s?%s", d.baseURL, url.PathEscape(id), q.Encode())

	var f File
	if err := d.getJSON(ctx, u, &f); err != nil {
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}
	return &f, nil
}

// Folder fetches metadata for id and fails with ErrNotFolder unless it is
// a Drive folder.
func (d *Drive) Folder(ctx context.Context, id string) (*File, error) {
	f, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.IsFolder() {
		return f, fmt.Errorf("%w: %s (%s)", ErrNotFolder, f.Name, f.MimeType)
	}
	return f, nil
}

// DownloadVideo saves the video into dir under its sanitised title and
// returns the local path. An existing file of equal size is reused.
func (d *Drive) DownloadVideo(ctx context.Context, id, dir string, progress io.Writer) (string, *File, error) {
	f, err := d.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if !f.IsVideo() {
		return "", f, fmt.Errorf("%w: %s (%s)", ErrNotVideo, f.Name, f.MimeType)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", f, fmt.Errorf("create download dir: %w", err)
	}
	target := filepath.Join(dir, naming.SanitizeFilename(f.Name))

	if info, err := os.Stat(target); err == nil && info.Size() == f.Size {
		d.logger.Info("source video already downloaded", "path", target, "size", f.Size)
		return target, f, nil
	}

	q := url.Values{
		"alt":               {"media"},
		"supportsAllDrives": {"true"},
	}
	u := fmt.Sprintf("%s/files/%s?%s", d.baseURL, url.PathEscape(id), q.Encode())

	resp, err := d.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return "", f, fmt.Errorf("download %s: %w", f.Name, err)
	}
	defer resp.Body.Close()

	partial := target + ".part"
	out, err := os.Create(partial)
	if err != nil {
		return "", f, fmt.Errorf("create %s: %w", partial, err)
	}

	var onProgress func(current, total int64)
	if progress != nil {
		onProgress = PrintProgress(progress)
	}
	pr := NewProgressReader(f.Size, resp.Body, onProgress)
	start := time.Now()
	n, copyErr := io.Copy(out, pr)
	pr.Close()
	closeErr := out.Close()

	if copyErr != nil {
		return "", f, fmt.Errorf("download %s: %w", f.Name, copyErr)
	}
	if closeErr != nil {
		return "", f, fmt.Errorf("write %s: %w", partial, closeErr)
	}
	if err := os.Rename(partial, target); err != nil {
		return "", f, fmt.Errorf("finalize download: %w", err)
	}

	d.logger.Info("source video downloaded",
		"path", target,
		"bytes", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return target, f, nil
}

// ListVideos returns every non-trashed video directly under folderID, keyed
// by file name.
func (d *Drive) ListVideos(ctx context.Context, folderID string) (map[string]File, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false and mimeType contains 'video'", strings.ReplaceAll(folderID, "'", "\\'"))
	files := make(map[string]File)
	pageToken := ""

	for {
		q := url.Values{
			"q":                         {query},
			"fields":                    {"nextPageToken,files(" + fileFields + ")"},
			"pageSize":                  {"1000"},
			"supportsAllDrives":         {"true"},
			"includeItemsFromAllDrives": {"true"},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page struct {
			NextPageToken string `json:"nextPageToken"`
			Files         []File `json:"files"`
		}
		if err := d.getJSON(ctx, d.baseURL+"/files?"+q.Encode(), &page); err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folderID, err)
		}
		for _, f := range page.Files {
			files[f.Name] = f
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	d.logger.Debug("listed remote videos", "folder_id", folderID, "count", len(files))
	return files, nil
}

// Upload creates a new file named name under parentID with the content of
// the local file at path.
func (d *Drive) Upload(ctx context.Context, parentID, path, name string) (*File, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect content type: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	meta, err := json.Marshal(map[string]any{
		"name":    name,
		"parents": []string{parentID},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, meta, mtype.String(), src))
	}()

	q := url.Values{
		"uploadType":        {"multipart"},
		"fields":            {fileFields},
		"supportsAllDrives": {"true"},
	}
	u := d.uploadURL + "/files?" + q.Encode()

	start := time.Now()
	resp, err := d.do(ctx, http.MethodPost, u, pr, "multipart/related; boundary="+mw.Boundary())
	if err != nil {
		pr.CloseWithError(err)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			d.logger.Error("upload rejected",
				"name", name,
				"status", apiErr.StatusCode,
				"retryable", apiErr.IsRetryable(),
			)
		}
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	var f File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}

	d.logger.Info("fragment uploaded",
		"name", name,
		"file_id", f.ID,
		"mime", mtype.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &f, nil
}

func writeMultipart(mw *multipart.Writer, meta []byte, contentType string, content io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(meta); err != nil {
		return err
	}

	h = make(textproto.MIMEHeader)
	h.Set("Content-Type", contentType)
	part, err = mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}

func (d *Drive) getJSON(ctx context.Context, u string, out any) error {
	resp, err := d.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends an authorised request and returns the response for 2xx statuses.
// Any other status is returned as *APIError with the body closed.
func (d *Drive) do(ctx context.Context, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	return doAuthorized(ctx, d.httpClient, d.tokens, method, u, body, contentType)
}

func doAuthorized(ctx context.Context, client *http.Client, tokens TokenSource, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tokens != nil {
		token, err := tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("authorize: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
}
