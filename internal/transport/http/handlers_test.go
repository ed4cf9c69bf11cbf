package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/backend/local"
	capservice "bastion/internal/capability/service"
	grantstore "bastion/internal/capability/store/grant"
	"bastion/internal/cleanupmgr"
	"bastion/internal/gateway/history"
	gwservice "bastion/internal/gateway/service"
	"bastion/internal/platform/health"
	"bastion/internal/platform/token"
	wfservice "bastion/internal/workflow/service"
	wfstore "bastion/internal/workflow/store/workflow"
)

type TransportSuite struct {
	suite.Suite
	server *httptest.Server
	tokens *token.Service
}

func (s *TransportSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	issuer, err := capservice.New(grantstore.New(), capservice.WithLogger(logger))
	s.Require().NoError(err)

	gateway, err := gwservice.New(issuer, local.New(), nil, history.New(),
		gwservice.WithLogger(logger),
		gwservice.WithCleanupRegistrar(cleanupmgr.New(logger)),
	)
	s.Require().NoError(err)

	deployments, err := wfservice.New(wfstore.NewInMemoryStore(), issuer, gateway, wfservice.WithLogger(logger))
	s.Require().NoError(err)

	s.tokens = token.New("test-signing-key", time.Hour)
	handler := NewHandler(issuer, gateway, deployments, logger)
	router := NewRouter(handler, s.tokens, health.New("test"), logger)
	s.server = httptest.NewServer(router)
}

func (s *TransportSuite) TearDownTest() {
	s.server.Close()
}

func (s *TransportSuite) do(method, path, operatorToken string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if operatorToken != "" {
		req.Header.Set("Authorization", "Bearer "+operatorToken)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *TransportSuite) decode(resp *http.Response, out any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}

func (s *TransportSuite) operatorToken() string {
	signed, err := s.tokens.Issue("op-1", "admin")
	s.Require().NoError(err)
	return signed
}

func (s *TransportSuite) mintGrant(scopes []string) grantResponse {
	resp := s.do(http.MethodPost, "/v1/grants", s.operatorToken(), map[string]any{
		"subject_id":       "agent-7",
		"resource_id":      "sandbox-1",
		"task_id":          "task-1",
		"scopes":           scopes,
		"duration_minutes": 30,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var grant grantResponse
	s.decode(resp, &grant)
	return grant
}

func (s *TransportSuite) runOperation(grant grantResponse, operation string, params map[string]any) operationResponse {
	resp := s.do(http.MethodPost, "/v1/operations", "", map[string]any{
		"subject_id":     grant.SubjectID,
		"resource_id":    grant.ResourceID,
		"task_id":        grant.TaskID,
		"session_secret": grant.SessionSecret,
		"operation":      operation,
		"parameters":     params,
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var result operationResponse
	s.decode(resp, &result)
	return result
}

func (s *TransportSuite) TestGrantEndpointsRequireOperatorToken() {
	resp := s.do(http.MethodPost, "/v1/grants", "", map[string]any{})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodPost, "/v1/deployments", "", map[string]any{})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func (s *TransportSuite) TestCreateGrantValidatesBody() {
	resp := s.do(http.MethodPost, "/v1/grants", s.operatorToken(), map[string]any{
		"subject_id":       "agent-7",
		"resource_id":      "sandbox-1",
		"task_id":          "task-1",
		"scopes":           []string{},
		"duration_minutes": 30,
	})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodPost, "/v1/grants", s.operatorToken(), map[string]any{
		"subject_id":       "agent-7",
		"resource_id":      "sandbox-1",
		"task_id":          "task-1",
		"scopes":           []string{"filesystem:write"},
		"duration_minutes": 30,
	})
	s.Equal(http.StatusBadRequest, resp.StatusCode, "unknown scope")
	resp.Body.Close()
}

func (s *TransportSuite) TestGrantLifecycleOverHTTP() {
	grant := s.mintGrant([]string{"container:create", "container:exec", "container:read", "container:stop"})
	s.NotEmpty(grant.SessionSecret)
	s.Contains(grant.AllowedOperations, "createContainer")
	s.NotContains(grant.AllowedOperations, "gitClone")

	created := s.runOperation(grant, "createContainer", map[string]any{
		"name":     "demo",
		"template": "node-lts",
	})
	s.Require().True(created.Success, "error: %s", created.Error)
	ref, _ := created.Data["ref"].(string)
	s.NotEmpty(ref)

	echoed := s.runOperation(grant, "executeCommand", map[string]any{
		"containerRef": ref,
		"argv":         []string{"echo", "hello"},
	})
	s.True(echoed.Success)

	denied := s.runOperation(grant, "executeCommand", map[string]any{
		"containerRef": ref,
		"command":      "rm -rf /",
	})
	s.False(denied.Success)
	s.Equal("policy_violation", denied.ErrorCode)

	outOfScope := s.runOperation(grant, "gitStatus", map[string]any{
		"containerRef": ref,
	})
	s.False(outOfScope.Success)
	s.Equal("unauthorized", outOfScope.ErrorCode)

	// revoke, then the session stops working
	resp := s.do(http.MethodDelete, "/v1/grants", s.operatorToken(), map[string]any{
		"subject_id":  grant.SubjectID,
		"resource_id": grant.ResourceID,
		"task_id":     grant.TaskID,
	})
	s.Equal(http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	revoked := s.runOperation(grant, "getStatus", map[string]any{"containerRef": ref})
	s.False(revoked.Success)
	s.Equal("unauthorized", revoked.ErrorCode)
}

func (s *TransportSuite) TestWrongSecretFailsClosed() {
	grant := s.mintGrant([]string{"container:read"})
	grant.SessionSecret = "wrong-secret"
	result := s.runOperation(grant, "getStatus", map[string]any{"containerRef": "ctr-x"})
	s.False(result.Success)
	s.Equal("unauthorized", result.ErrorCode)
}

func (s *TransportSuite) TestDeploymentLifecycleOverHTTP() {
	resp := s.do(http.MethodPost, "/v1/deployments", s.operatorToken(), map[string]any{
		"subject_id":   "agent-7",
		"project_name": "webshop",
		"source_repo":  "https://github.com/acme-dev/webshop.git",
	})
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)
	var started startDeploymentResponse
	s.decode(resp, &started)
	s.Require().NotEmpty(started.WorkflowID)

	var status string
	s.Require().Eventually(func() bool {
		resp := s.do(http.MethodGet, "/v1/deployments/"+started.WorkflowID, s.operatorToken(), nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var wf struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&wf); err != nil {
			return false
		}
		status = wf.Status
		return status == "completed" || status == "failed"
	}, 10*time.Second, 20*time.Millisecond)
	s.Equal("completed", status)

	// terminal workflows cannot be cancelled
	resp = s.do(http.MethodPost, fmt.Sprintf("/v1/deployments/%s/cancel", started.WorkflowID), s.operatorToken(), nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(http.MethodGet, "/v1/deployments", s.operatorToken(), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var list listDeploymentsResponse
	s.decode(resp, &list)
	s.Len(list.Workflows, 1)
}

func (s *TransportSuite) TestDeploymentValidation() {
	resp := s.do(http.MethodPost, "/v1/deployments", s.operatorToken(), map[string]any{
		"project_name": "webshop",
	})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func (s *TransportSuite) TestGetDeploymentNotFound() {
	resp := s.do(http.MethodGet, "/v1/deployments/no-such-id", s.operatorToken(), nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func (s *TransportSuite) TestHealthAndMetricsAreOpen() {
	resp, err := http.Get(s.server.URL + "/health/live")
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}
