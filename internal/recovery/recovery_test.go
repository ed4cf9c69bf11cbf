package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	gwmodels "bastion/internal/gateway/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		step string
		err  error
		want FailureType
	}{
		{"install-dependencies", errors.New("read tcp: connection reset by peer (ECONNRESET)"), FailureNetwork},
		{"run-tests", errors.New("2 of 14 assertions failed"), FailureTest},
		{"build", errors.New("build failed"), FailureBuild},
		{"start-application", errors.New("build artifact missing"), FailureBuild},
		{"create-compute-resource", errors.New("no capacity in pool"), FailureResource},
		{"verify-application", errors.New("container exited unexpectedly"), FailureResource},
		{"generate-or-modify-code", errors.New("template not found"), FailureUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.step, tc.err), "step %s", tc.step)
	}
}

type scriptedGateway struct {
	calls   []string
	results map[string]gwmodels.OperationResult
}

func (g *scriptedGateway) ExecuteOperation(_ context.Context, _ gwmodels.SessionContext, req gwmodels.OperationRequest) gwmodels.OperationResult {
	g.calls = append(g.calls, string(req.Operation))
	if res, ok := g.results[string(req.Operation)]; ok {
		return res
	}
	return gwmodels.OperationResult{Success: true, Data: map[string]any{}}
}

type TriageSuite struct {
	suite.Suite
	gateway *scriptedGateway
	triage  *Triage
}

func (s *TriageSuite) SetupTest() {
	s.gateway = &scriptedGateway{results: map[string]gwmodels.OperationResult{}}
	s.triage = NewTriage(s.gateway, WithLogTail(10))
}

func (s *TriageSuite) event(ft FailureType, ref string) FailureEvent {
	return FailureEvent{
		Context: FailureContext{
			SubjectID:    "agent-1",
			ResourceID:   "deploy-abc",
			WorkflowID:   "wf-1",
			ContainerRef: ref,
		},
		Failure: FailureDetail{Type: ft, Operation: "build", Error: "build failed", Attempts: 1},
	}
}

func (s *TriageSuite) TestNetworkFailureRecommendsRetry() {
	out, err := s.triage.HandleFailure(context.Background(), s.event(FailureNetwork, "ctr-1"))
	s.Require().NoError(err)
	s.True(out.Success)
	s.Equal("retry-after-backoff", out.StrategyUsed)
	s.Empty(s.gateway.calls, "network triage needs no container access")
}

func (s *TriageSuite) TestBuildFailurePullsLogs() {
	s.gateway.results["getLogs"] = gwmodels.OperationResult{
		Success: true,
		Data:    map[string]any{"logs": "error TS2304: cannot find name"},
	}
	out, err := s.triage.HandleFailure(context.Background(), s.event(FailureBuild, "ctr-1"))
	s.Require().NoError(err)
	s.True(out.Success)
	s.Equal("inspect-build-logs", out.StrategyUsed)
	s.Contains(out.Resolution, "TS2304")
	s.Equal([]string{"getLogs"}, s.gateway.calls)
}

func (s *TriageSuite) TestBuildFailureWithoutContainer() {
	out, err := s.triage.HandleFailure(context.Background(), s.event(FailureBuild, ""))
	s.Require().NoError(err)
	s.True(out.Success)
	s.Empty(s.gateway.calls)
}

func (s *TriageSuite) TestResourceFailureStopsRunningContainer() {
	s.gateway.results["getStatus"] = gwmodels.OperationResult{
		Success: true,
		Data:    map[string]any{"status": "running"},
	}
	out, err := s.triage.HandleFailure(context.Background(), s.event(FailureResource, "ctr-1"))
	s.Require().NoError(err)
	s.True(out.Success)
	s.Equal("stop-and-recreate", out.StrategyUsed)
	s.Equal([]string{"getStatus", "stopContainer"}, s.gateway.calls)
}

func (s *TriageSuite) TestUnknownFailureEscalates() {
	out, err := s.triage.HandleFailure(context.Background(), s.event(FailureUnknown, "ctr-1"))
	s.Require().NoError(err)
	s.False(out.Success)
	s.Equal("manual-investigation", out.StrategyUsed)
}

func TestTriageSuite(t *testing.T) {
	suite.Run(t, new(TriageSuite))
}
