package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/proofframe/proofframe/internal/analysis"
	"github.com/proofframe/proofframe/internal/app/bootstrap"
	"github.com/proofframe/proofframe/internal/audit"
	appconfig "github.com/proofframe/proofframe/internal/config"
	"github.com/proofframe/proofframe/internal/integrity"
	"github.com/proofframe/proofframe/pkg/logging"
)

func testPipeline() *analysis.Pipeline {
	thresholds, _ := bootstrap.BuildThresholds(nil)
	return analysis.NewPipeline(integrity.NewValidator(0), thresholds, audit.NewMemoryStore(), logging.New("error"))
}

func TestSetupDecisionMetricsExposesMetrics(t *testing.T) {
	handler, m := setupDecisionMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveVerdict("DEEPFAKE", "CRITICAL", "video")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "proofframe_verdict_decisions_total") {
		t.Fatalf("expected verdict counter to be exported")
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if pool := connectPostgresPool(context.Background(), "", logger); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestSetupAsyncAnalysisMemoryPath(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true, WorkerCount: 1, QueueBuffer: 4}
	logger := logging.New("error")

	submitter, recorder, worker := setupAsyncAnalysis(cfg, testPipeline(), nil, logger)
	if submitter == nil || recorder == nil || worker == nil {
		t.Fatalf("expected submitter, recorder and worker")
	}
}

func TestSplitOrigins(t *testing.T) {
	if got := splitOrigins(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	got := splitOrigins(" https://a.example , https://b.example ,")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", got)
	}
}
