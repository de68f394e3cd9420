package server

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"github.com/MarcoPoloResearchLab/replay/internal/session"
)

type summaryPayload struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CreatedAt     string `json:"created_at"`
	DurationMs    int64  `json:"duration_ms"`
	SnapshotCount int    `json:"snapshot_count"`
	HasAudio      bool   `json:"has_audio"`
}

func newSummaryPayload(summary recording.Summary) summaryPayload {
	return summaryPayload{
		ID:            summary.ID.String(),
		Name:          summary.Name,
		CreatedAt:     summary.CreatedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:    summary.Duration,
		SnapshotCount: summary.SnapshotCount,
		HasAudio:      summary.HasAudio,
	}
}

type snapshotPayload struct {
	TimestampMs int64  `json:"timestamp_ms"`
	Content     string `json:"content"`
}

type recordingPayload struct {
	summaryPayload
	AudioOffsetMs int64             `json:"audio_offset_ms"`
	Snapshots     []snapshotPayload `json:"snapshots"`
}

func newRecordingPayload(rec *recording.Recording) recordingPayload {
	payload := recordingPayload{
		summaryPayload: newSummaryPayload(rec.Summarize()),
		AudioOffsetMs:  rec.AudioOffset,
		Snapshots:      make([]snapshotPayload, 0, len(rec.Snapshots)),
	}
	for _, snapshot := range rec.Snapshots {
		payload.Snapshots = append(payload.Snapshots, snapshotPayload{
			TimestampMs: snapshot.Timestamp,
			Content:     snapshot.Content,
		})
	}
	return payload
}

type statePayload struct {
	Phase              string          `json:"phase"`
	IsRecording        bool            `json:"is_recording"`
	IsPlaying          bool            `json:"is_playing"`
	HasEnded           bool            `json:"has_ended"`
	CurrentTimeMs      int64           `json:"current_time_ms"`
	RecordingStartTime string          `json:"recording_start_time,omitempty"`
	RecordingElapsedMs int64           `json:"recording_elapsed_ms"`
	SnapshotCount      int             `json:"snapshot_count"`
	AudioStatus        string          `json:"audio_status"`
	ClockMode          string          `json:"clock_mode,omitempty"`
	CurrentRecording   *summaryPayload `json:"current_recording,omitempty"`
}

func newStatePayload(state session.State) statePayload {
	payload := statePayload{
		Phase:              string(state.Phase),
		IsRecording:        state.IsRecording,
		IsPlaying:          state.IsPlaying,
		HasEnded:           state.HasEnded,
		CurrentTimeMs:      state.CurrentTime,
		RecordingElapsedMs: state.RecordingElapsed,
		SnapshotCount:      state.SnapshotCount,
		AudioStatus:        string(state.AudioStatus),
		ClockMode:          string(state.ClockMode),
	}
	if !state.RecordingStartTime.IsZero() {
		payload.RecordingStartTime = state.RecordingStartTime.UTC().Format(time.RFC3339Nano)
	}
	if state.CurrentRecording != nil {
		summary := newSummaryPayload(*state.CurrentRecording)
		payload.CurrentRecording = &summary
	}
	return payload
}

type contentPayload struct {
	Content string `json:"content"`
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func newErrorPayload(err error) errorPayload {
	var serviceErr *session.ServiceError
	if errors.As(err, &serviceErr) {
		code := serviceErr.Code()
		reason := code
		if index := strings.LastIndex(code, "."); index >= 0 {
			reason = code[index+1:]
		}
		return errorPayload{Error: reason, Code: code}
	}
	return errorPayload{Error: "internal_error"}
}
