package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultSheetsURL = "https://sheets.googleapis.com/v4"

type SheetsConfig struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Sheets reads cell values from Google Sheets v4.
type Sheets struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

func NewSheets(cfg SheetsConfig) *Sheets {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSheetsURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sheets{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

type sheetProperties struct {
	SheetID int64  `json:"sheetId"`
	Title   string `json:"title"`
}

// Values returns every formatted cell of the worksheet the URL points at
// (its gid, or the first tab) as rows of strings.
func (s *Sheets) Values(ctx context.Context, sheetURL string) ([][]string, error) {
	id, err := AsID(sheetURL)
	if err != nil {
		return nil, err
	}
	gid := WorksheetGID(sheetURL)

	title, err := s.tabTitle(ctx, id, gid)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"majorDimension":    {"ROWS"},
		"valueRenderOption": {"FORMATTED_VALUE"},
	}
	u := fmt.Sprintf("%s/spreadsheets/%s/values/%s?%s",
		s.baseURL, url.PathEscape(id), url.PathEscape(quoteSheetTitle(title)), q.Encode())

	var vr struct {
		Values [][]any `json:"values"`
	}
	if err := s.getJSON(ctx, u, &vr); err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", title, err)
	}

	rows := make([][]string, len(vr.Values))
	for i, r := range vr.Values {
		row := make([]string, len(r))
		for j, v := range r {
			row[j] = cellString(v)
		}
		rows[i] = row
	}

	s.logger.Debug("worksheet read", "spreadsheet_id", id, "gid", gid, "title", title, "rows", len(rows))
	return rows, nil
}

func (s *Sheets) tabTitle(ctx context.Context, id string, gid int64) (string, error) {
	q := url.Values{"fields": {"sheets.properties(sheetId,title)"}}
	u := fmt.Sprintf("%s/spreadsheets/%s?%s", s.baseURL, url.PathEscape(id), q.Encode())

	var meta struct {
		Sheets []struct {
			Properties sheetProperties `json:"properties"`
		} `json:"sheets"`
	}
	if err := s.getJSON(ctx, u, &meta); err != nil {
		return "", fmt.Errorf("open spreadsheet %s: %w", id, err)
	}
	if len(meta.Sheets) == 0 {
		return "", fmt.Errorf("spreadsheet %s has no worksheets", id)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties.SheetID == gid {
			return sh.Properties.Title, nil
		}
	}
	if gid == 0 {
		return meta.Sheets[0].Properties.Title, nil
	}
	return "", fmt.Errorf("spreadsheet %s: no worksheet with gid %d", id, gid)
}

func (s *Sheets) getJSON(ctx context.Context, u string, out any) error {
	resp, err := doAuthorized(ctx, s.httpClient, s.tokens, http.MethodGet, u, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func quoteSheetTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(x)
	}
}
