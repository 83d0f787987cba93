package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCampaignStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to CampaignStatus
		want     bool
	}{
		{CampaignStatusDraft, CampaignStatusActive, true},
		{CampaignStatusDraft, CampaignStatusPaused, false},
		{CampaignStatusActive, CampaignStatusPaused, true},
		{CampaignStatusActive, CampaignStatusStopped, true},
		{CampaignStatusActive, CampaignStatusActive, false},
		{CampaignStatusPaused, CampaignStatusActive, true},
		{CampaignStatusPaused, CampaignStatusStopped, true},
		{CampaignStatusStopped, CampaignStatusActive, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if RunStatusRunning.IsTerminal() || RunStatusPaused.IsTerminal() {
		t.Error("running and paused runs are not terminal")
	}
	if !RunStatusStopped.IsTerminal() {
		t.Error("stopped run should be terminal")
	}
	if JobStatusQueued.IsTerminal() || !JobStatusDead.IsTerminal() {
		t.Error("unexpected job terminal status")
	}
	if DeliveryStatusRetrying.IsTerminal() || !DeliveryStatusFailed.IsTerminal() {
		t.Error("unexpected delivery terminal status")
	}
}

func TestCampaignRun_MarkStopped(t *testing.T) {
	run := &CampaignRun{Status: RunStatusRunning, StartedAt: time.Now().Add(-time.Minute)}

	run.MarkPaused()
	if run.IsFinished() {
		t.Fatal("paused run should not be finished")
	}

	run.MarkStopped()
	if !run.IsFinished() || run.EndedAt == nil {
		t.Fatalf("expected stopped run with end time, got %+v", run)
	}
	if run.Duration() < time.Minute {
		t.Errorf("unexpected duration %s", run.Duration())
	}
}

func TestEvent_FlatJSON(t *testing.T) {
	campaignID := uuid.New()
	e := NewEvent(EventTypeJobStatus, campaignID, map[string]any{
		"jobId":  "buy:c1:0",
		"status": "SUCCEEDED",
	})

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if flat["jobId"] != "buy:c1:0" || flat["type"] != "job-status" || flat["campaignId"] != campaignID.String() {
		t.Errorf("unexpected wire form: %s", raw)
	}
	if _, nested := flat["Data"]; nested {
		t.Errorf("data must not be nested: %s", raw)
	}

	var back Event
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if back.ID != e.ID || back.CampaignID != campaignID || back.Data["status"] != "SUCCEEDED" {
		t.Errorf("unexpected decoded event: %+v", back)
	}
	if _, ok := back.Data["eventId"]; ok {
		t.Error("header fields must not leak into Data")
	}
}

func TestJob_CanRetry(t *testing.T) {
	tests := []struct {
		made, max int
		want      bool
	}{
		{0, 3, true},
		{2, 3, true},
		{3, 3, false},
		{4, 3, false},
	}
	for _, tt := range tests {
		j := Job{AttemptsMade: tt.made, MaxAttempts: tt.max}
		if got := j.CanRetry(); got != tt.want {
			t.Errorf("CanRetry(%d/%d) = %v, want %v", tt.made, tt.max, got, tt.want)
		}
	}
}
