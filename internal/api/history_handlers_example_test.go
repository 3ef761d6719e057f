package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/api"
	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/store"
)

type exampleRepo struct{}

func (exampleRepo) StartRun(context.Context, uuid.UUID, time.Time) error { return nil }
func (exampleRepo) CompleteRun(context.Context, uuid.UUID, crawler.RunStats) error { return nil }
func (exampleRepo) GetRun(context.Context, uuid.UUID) (store.RunRecord, error) {
	return store.RunRecord{}, store.ErrNotFound
}

func (exampleRepo) ListRuns(context.Context, *crawler.RunState, int, int) ([]store.RunRecord, error) {
	return []store.RunRecord{}, nil
}

func (exampleRepo) ListRunSources(context.Context, uuid.UUID) ([]crawler.SourceStats, error) {
	return nil, nil
}

// ExampleHistoryHandler_ListRuns shows how to mount the history endpoint.
func ExampleHistoryHandler_ListRuns() {
	handler := api.NewHistoryHandler(exampleRepo{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/history/runs?state=completed", nil)
	rec := httptest.NewRecorder()

	handler.ListRuns(rec, req)
	fmt.Println(rec.Code)
	fmt.Print(rec.Body.String())
	// Output:
	// 200
	// {"runs":[]}
}
