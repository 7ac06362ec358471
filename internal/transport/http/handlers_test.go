package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"sentra/internal/audit"
	"sentra/internal/audit/query"
	"sentra/internal/export"
	"sentra/internal/ingest"
	"sentra/internal/scope"
	id "sentra/pkg/domain"
)

const testSigningKey = "test-signing-key"

type HandlersSuite struct {
	suite.Suite
	tenant id.TenantID
	admin  id.UserID
	member id.UserID
	events *audit.InMemoryStore
	queue  chan id.ExportID
	server *httptest.Server
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) SetupTest() {
	s.tenant = id.NewTenantID()
	s.admin = id.NewUserID()
	s.member = id.NewUserID()
	s.events = audit.NewInMemoryStore()
	s.queue = make(chan id.ExportID, 16)

	log := slog.Default()
	resolver := scope.NewResolver(scope.LookupFunc(
		func(_ context.Context, userID id.UserID) (scope.Identity, error) {
			switch userID {
			case s.admin:
				return scope.Identity{TenantID: s.tenant, Role: scope.RoleAdmin}, nil
			case s.member:
				return scope.Identity{TenantID: s.tenant, Role: scope.RoleMember}, nil
			}
			return scope.Identity{}, errors.New("unknown user")
		},
	))

	queryService := query.NewService(s.events, resolver)
	exportService := export.NewService(
		export.NewInMemoryJobStore(), export.NewInMemoryCounterStore(), s.queue, resolver)
	recorder := audit.NewRecorder(s.events)

	hash, err := bcrypt.GenerateFromPassword([]byte("ingest-secret"), bcrypt.MinCost)
	s.Require().NoError(err)

	router := NewRouter(Deps{
		Query:         NewQueryHandler(queryService, log),
		Export:        NewExportHandler(exportService, log),
		Ingest:        NewIngestHandler(ingest.NewIngestor(recorder, log), ingest.NewSecretVerifier(string(hash)), log),
		JWTSigningKey: testSigningKey,
		Logger:        log,
	})
	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)
}

func (s *HandlersSuite) token(userID id.UserID) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSigningKey))
	s.Require().NoError(err)
	return signed
}

func (s *HandlersSuite) do(method, path string, userID *id.UserID, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if userID != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(*userID))
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlersSuite) seed(actor id.UserID, action string) audit.Event {
	e := audit.New(&actor, action).WithTenant(s.tenant)
	e.CreatedAt = time.Now().Add(-time.Minute)
	s.Require().NoError(s.events.Append(context.Background(), e))
	return e
}

func (s *HandlersSuite) TestAuthRequired() {
	s.Run("missing token is 401", func() {
		resp := s.do(http.MethodGet, "/api/audit/logs", nil, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("garbage token is 401", func() {
		req, _ := http.NewRequest(http.MethodGet, s.server.URL+"/api/audit/logs", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		resp, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		defer resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

func (s *HandlersSuite) TestSearch() {
	s.seed(s.admin, "user.login")

	s.Run("returns a page", func() {
		resp := s.do(http.MethodGet, "/api/audit/logs", &s.admin, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusOK, resp.StatusCode)

		var page query.Page
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&page))
		s.Equal(int64(1), page.TotalElements)
		s.Len(page.Content, 1)
	})

	s.Run("oversized page size is 400", func() {
		resp := s.do(http.MethodGet, "/api/audit/logs?pageSize=5000", &s.admin, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("bad date is 400", func() {
		resp := s.do(http.MethodGet, "/api/audit/logs?dateFrom=yesterday", &s.admin, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *HandlersSuite) TestDetail() {
	adminEvent := s.seed(s.admin, "tenant.updated")

	s.Run("owner of the trail sees the event", func() {
		resp := s.do(http.MethodGet, "/api/audit/logs/"+adminEvent.ID.String(), &s.admin, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("member gets 404 for another actor's event", func() {
		resp := s.do(http.MethodGet, "/api/audit/logs/"+adminEvent.ID.String(), &s.member, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusNotFound, resp.StatusCode)
	})

	s.Run("unknown id gets the same 404", func() {
		resp := s.do(http.MethodGet, "/api/audit/logs/"+id.NewEventID().String(), &s.admin, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusNotFound, resp.StatusCode)
	})
}

func (s *HandlersSuite) TestStatistics() {
	s.seed(s.admin, "user.login")

	resp := s.do(http.MethodGet, "/api/audit/statistics", &s.admin, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var stats query.Statistics
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&stats))
	s.Equal(int64(1), stats.TotalEntries)
}

func (s *HandlersSuite) TestExportRequest() {
	s.Run("valid request is 202 with a pending job", func() {
		resp := s.do(http.MethodPost, "/api/audit/export", &s.admin,
			map[string]string{"format": "CSV"})
		defer resp.Body.Close()
		s.Equal(http.StatusAccepted, resp.StatusCode)

		var job exportJobResponse
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&job))
		s.Equal("PENDING", job.Status)
		s.NotEmpty(job.ExportID)
	})

	s.Run("unsupported format is 400", func() {
		resp := s.do(http.MethodPost, "/api/audit/export", &s.admin,
			map[string]string{"format": "XLSX"})
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("oversized search term is 400", func() {
		resp := s.do(http.MethodPost, "/api/audit/export", &s.admin,
			map[string]string{"format": "CSV", "search": strings.Repeat("x", audit.MaxSearchLength+1)})
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("fourth concurrent export is 429", func() {
		for i := 0; i < export.MaxActiveJobs-1; i++ {
			resp := s.do(http.MethodPost, "/api/audit/export", &s.admin,
				map[string]string{"format": "CSV"})
			resp.Body.Close()
			s.Equal(http.StatusAccepted, resp.StatusCode)
		}
		resp := s.do(http.MethodPost, "/api/audit/export", &s.admin,
			map[string]string{"format": "CSV"})
		defer resp.Body.Close()
		s.Equal(http.StatusTooManyRequests, resp.StatusCode)
	})
}

func (s *HandlersSuite) TestExportStatusAndHistory() {
	resp := s.do(http.MethodPost, "/api/audit/export", &s.admin, map[string]string{"format": "JSON"})
	var job exportJobResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&job))
	resp.Body.Close()

	s.Run("owner reads status", func() {
		resp := s.do(http.MethodGet, "/api/audit/export/"+job.ExportID+"/status", &s.admin, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusOK, resp.StatusCode)
	})

	s.Run("another user gets 404", func() {
		resp := s.do(http.MethodGet, "/api/audit/export/"+job.ExportID+"/status", &s.member, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusNotFound, resp.StatusCode)
	})

	s.Run("history lists the job", func() {
		resp := s.do(http.MethodGet, "/api/audit/export/history", &s.admin, nil)
		defer resp.Body.Close()
		s.Equal(http.StatusOK, resp.StatusCode)

		var jobs []exportJobResponse
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&jobs))
		s.Require().Len(jobs, 1)
		s.Equal(job.ExportID, jobs[0].ExportID)
	})
}

func (s *HandlersSuite) TestDownloadUnknownToken() {
	resp := s.do(http.MethodGet, "/api/audit/export/download/nosuchtoken", nil, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *HandlersSuite) TestIngestEndpoint() {
	payload := map[string]any{
		"tenant_id": s.tenant.String(),
		"action":    "user.login",
	}

	s.Run("missing secret is 401", func() {
		resp := s.do(http.MethodPost, "/internal/audit/events", nil, payload)
		defer resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("valid secret records the event", func() {
		var buf bytes.Buffer
		s.Require().NoError(json.NewEncoder(&buf).Encode(payload))
		req, err := http.NewRequest(http.MethodPost, s.server.URL+"/internal/audit/events", &buf)
		s.Require().NoError(err)
		req.Header.Set("X-Internal-Secret", "ingest-secret")
		resp, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		defer resp.Body.Close()
		s.Equal(http.StatusAccepted, resp.StatusCode)

		total, err := s.events.Count(context.Background(),
			audit.Filter{TenantID: s.tenant, IncludeSystemActions: true})
		s.Require().NoError(err)
		s.Equal(int64(1), total)
	})
}

func (s *HandlersSuite) TestHealthz() {
	resp := s.do(http.MethodGet, "/healthz", nil, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}
