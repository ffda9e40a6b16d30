package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/crmcore/internal/database"
	"github.com/MarcoPoloResearchLab/crmcore/internal/replica"
)

var databaseCounter atomic.Int64

type testServer struct {
	handler  http.Handler
	replica  *replica.Replica
	realtime *RealtimeDispatcher
}

func newTestServer(t *testing.T, deviceID string, heartbeat time.Duration) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), databaseCounter.Add(1))
	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	eventStore, err := database.NewEventStore(db, time.Now)
	if err != nil {
		t.Fatalf("failed to build event store: %v", err)
	}
	checkpointStore, err := database.NewCheckpointStore(db)
	if err != nil {
		t.Fatalf("failed to build checkpoint store: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	replicaInstance, err := replica.New(replica.Config{
		DeviceID:    deviceID,
		Log:         eventStore,
		Checkpoints: checkpointStore,
		OnChange:    dispatcher.PublishChange,
	})
	if err != nil {
		t.Fatalf("failed to build replica: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Replica:           replicaInstance,
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		HeartbeatInterval: heartbeat,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, replica: replicaInstance, realtime: dispatcher}
}

func (s testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

const createOrganizationAndContact = `{"events":[
	{"type":"organization.created","payload":{"id":"O1","name":"Acme"}},
	{"type":"contact.created","payload":{"id":"C1","type":"external","firstName":"Ada","lastName":"Lovelace","organizationId":"O1","methods":{"emails":[{"value":"ada@acme.test","label":"work","primary":true}],"phones":[]}}}
]}`
