package adapters_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	helpdesk "github.com/goliatone/go-helpdesk"
	"github.com/goliatone/go-helpdesk/adapters/gocommand"
	"github.com/goliatone/go-helpdesk/adapters/gojob"
	"github.com/goliatone/go-helpdesk/adapters/gologger"
	helpdeskcommand "github.com/goliatone/go-helpdesk/command"
	"github.com/goliatone/go-helpdesk/core"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type compatService struct {
	mu     sync.Mutex
	synced []core.SyncRequest
}

func (s *compatService) Connect(context.Context, core.ConnectRequest) (core.ConnectResult, error) {
	return core.ConnectResult{}, nil
}

func (s *compatService) CompleteCallback(context.Context, core.CallbackRequest) (core.CallbackCompletion, error) {
	return core.CallbackCompletion{}, nil
}

func (s *compatService) SyncTickets(_ context.Context, req core.SyncRequest) (core.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = append(s.synced, req)
	return core.SyncResult{ProfileID: req.ProfileID, PlatformType: req.PlatformType, ConnectionID: req.ConnectionID, Count: 4}, nil
}

func (s *compatService) Disconnect(context.Context, core.DisconnectRequest) error { return nil }

func (s *compatService) PurgeExpiredStates(context.Context) (int, error) { return 0, nil }

func (s *compatService) ListConnections(context.Context, string) ([]core.ConnectionStatusView, error) {
	return nil, nil
}

func (s *compatService) ListTickets(context.Context, core.TicketFilter) (core.TicketPage, error) {
	return core.TicketPage{}, nil
}

func (s *compatService) SummarizeTickets(context.Context, string) (core.TicketSummary, error) {
	return core.TicketSummary{}, nil
}

func (s *compatService) syncedRequests() []core.SyncRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.SyncRequest(nil), s.synced...)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRuntimeCompatibility_QueuedSyncRunsThroughDispatcher(t *testing.T) {
	ctx := context.Background()

	logs := &lockedBuffer{}
	provider := gologger.NewZerologProvider(gologger.Config{Level: "info", Output: logs})
	_, logger := gologger.Resolve("helpdesk.jobs", provider, nil)

	service := &compatService{}
	facade, err := helpdesk.NewFacade(service)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	bindings, err := gocommand.BindFacade(facade)
	if err != nil {
		t.Fatalf("bind facade: %v", err)
	}
	defer bindings.Unsubscribe()

	dsn := fmt.Sprintf("file:helpdesk-compat-%d?mode=memory&cache=shared", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	defer db.Close()

	jobQueue, err := gojob.OpenQueue(ctx, db)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	commands, err := gojob.NewCommandRegistry(
		gocommand.Forward[helpdeskcommand.SyncTicketsMessage, core.SyncResult](),
		gocommand.Forward[helpdeskcommand.PurgeStatesMessage, int](),
	)
	if err != nil {
		t.Fatalf("command registry: %v", err)
	}
	jobs, err := gojob.NewJobs(jobQueue, commands, jobQueue.Dedup())
	if err != nil {
		t.Fatalf("new jobs: %v", err)
	}

	connection := core.PlatformConnection{ID: "conn_9", ProfileID: "profile_9", PlatformType: core.PlatformGmail}
	if _, err := jobs.EnqueueSync(ctx, connection, time.Minute, time.Now()); err != nil {
		t.Fatalf("enqueue sync: %v", err)
	}

	worker, err := gojob.NewWorker(jobQueue, commands, gojob.WithLogger(logger), gojob.WithIdleDelay(5*time.Millisecond))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := worker.Start(ctx); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(stopCtx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(logs.String(), "queue delivery succeeded") {
		if time.Now().After(deadline) {
			t.Fatalf("expected zerolog output from the worker, got %q", logs.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	synced := service.syncedRequests()
	if len(synced) != 1 || synced[0].ConnectionID != "conn_9" || synced[0].PlatformType != core.PlatformGmail {
		t.Fatalf("expected the worker to sync the queued connection, got %+v", synced)
	}
}
