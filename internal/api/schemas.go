package api

import (
	"time"

	"github.com/cutmassively/cutm/internal/ledger"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	RunID       string `json:"run_id,omitempty"`
	SourceVideo string `json:"source_video,omitempty"`
	Total       int    `json:"total"`
	Ready       int    `json:"ready"`
	Uploaded    int    `json:"uploaded"`
	Failed      int    `json:"failed"`
	Current     string `json:"current,omitempty"`
	StartedAt   string `json:"started_at"`
	ElapsedS    int64  `json:"elapsed_s"`
}

type RunResponse struct {
	ID          string `json:"id"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
	SourceVideo string `json:"source_video"`
	Total       int    `json:"total"`
	Ready       int    `json:"ready"`
	Uploaded    int    `json:"uploaded"`
	Failed      int    `json:"failed"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type FragmentResponse struct {
	Row        int    `json:"row"`
	Name       string `json:"name"`
	Action     string `json:"action"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

type RunDetailResponse struct {
	RunResponse
	Fragments []FragmentResponse `json:"fragments"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func RunToResponse(r *ledger.Run) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		SourceVideo: r.SourceVideo,
		Total:       r.Total,
		Ready:       r.Ready,
		Uploaded:    r.Uploaded,
		Failed:      r.Failed,
		Status:      r.Status,
		Error:       r.Error,
	}
	if r.FinishedAt != nil {
		resp.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func FragmentToResponse(f *ledger.Fragment) FragmentResponse {
	return FragmentResponse{
		Row:        f.Row,
		Name:       f.Name,
		Action:     f.Action,
		Outcome:    f.Outcome,
		Error:      f.Error,
		RecordedAt: f.RecordedAt.Format(time.RFC3339),
	}
}
