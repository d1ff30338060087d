package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/rag"
)

type WorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterWorkflow(IngestPDFWorkflow)
	s.env.RegisterWorkflow(QueryPDFWorkflow)
	s.env.RegisterActivity(&Activities{})
}

func (s *WorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *WorkflowSuite) TestIngest_RunsBothSteps() {
	var a *Activities
	s.env.OnActivity(a.LoadAndChunk, mock.Anything, rag.IngestRequest{PDFPath: "/data/a.pdf", SourceID: "/data/a.pdf"}).
		Return(&rag.ChunkSet{SourceID: "/data/a.pdf", Chunks: []string{"one", "two"}}, nil).Once()
	s.env.OnActivity(a.EmbedAndUpsert, mock.Anything, rag.ChunkSet{SourceID: "/data/a.pdf", Chunks: []string{"one", "two"}}).
		Return(&rag.IngestResult{SourceID: "/data/a.pdf", Ingested: 2}, nil).Once()

	s.env.ExecuteWorkflow(IngestPDFWorkflow, IngestPDFInput{Request: rag.IngestRequest{PDFPath: "/data/a.pdf"}})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var res rag.IngestResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(2, res.Ingested)
}

func (s *WorkflowSuite) TestIngest_RetriesTransientUpsert() {
	var a *Activities
	s.env.OnActivity(a.LoadAndChunk, mock.Anything, mock.Anything).
		Return(&rag.ChunkSet{SourceID: "doc1", Chunks: []string{"x"}}, nil).Once()
	s.env.OnActivity(a.EmbedAndUpsert, mock.Anything, mock.Anything).
		Return(nil, activityError(&errdefs.StorageError{Op: "upsert", Err: errors.New("unavailable")})).Once()
	s.env.OnActivity(a.EmbedAndUpsert, mock.Anything, mock.Anything).
		Return(&rag.IngestResult{SourceID: "doc1", Ingested: 1}, nil).Once()

	s.env.ExecuteWorkflow(IngestPDFWorkflow, IngestPDFInput{
		Request:  rag.IngestRequest{PDFPath: "a.pdf", SourceID: "doc1"},
		Activity: ActivityConfig{InitialInterval: time.Millisecond},
	})

	s.NoError(s.env.GetWorkflowError())
	var res rag.IngestResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(1, res.Ingested)
}

func (s *WorkflowSuite) TestIngest_SourceReadErrorIsNotRetried() {
	var a *Activities
	s.env.OnActivity(a.LoadAndChunk, mock.Anything, mock.Anything).
		Return(nil, activityError(&errdefs.SourceReadError{Path: "missing.pdf", Err: errors.New("no such file")})).Once()

	s.env.ExecuteWorkflow(IngestPDFWorkflow, IngestPDFInput{Request: rag.IngestRequest{PDFPath: "missing.pdf"}})

	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().ErrorAs(err, &appErr)
	s.Equal(errdefs.KindSourceRead, appErr.Type())
	s.Equal(errdefs.KindSourceRead, errdefs.KindOf(decodeError(err)))
}

func (s *WorkflowSuite) TestIngest_InvalidRequest() {
	s.env.ExecuteWorkflow(IngestPDFWorkflow, IngestPDFInput{})

	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	s.Equal(errdefs.KindConfiguration, errdefs.KindOf(decodeError(err)))
}

func (s *WorkflowSuite) TestQuery_RunsBothSteps() {
	var a *Activities
	found := rag.Retrieval{Contexts: []string{"c1", "c2", "c3"}, Sources: []string{"doc1", "doc2"}}
	s.env.OnActivity(a.EmbedAndSearch, mock.Anything, SearchInput{Question: "who?", TopK: 5}).
		Return(&found, nil).Once()
	s.env.OnActivity(a.GenerateAnswer, mock.Anything, AnswerInput{Question: "who?", Retrieval: found}).
		Return(&rag.QueryResult{Answer: "them", Sources: found.Sources, NumContexts: 3}, nil).Once()

	s.env.ExecuteWorkflow(QueryPDFWorkflow, QueryPDFInput{Request: rag.QueryRequest{Question: "who?"}})

	s.NoError(s.env.GetWorkflowError())
	var res rag.QueryResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal("them", res.Answer)
	s.Equal(3, res.NumContexts)
	s.Equal([]string{"doc1", "doc2"}, res.Sources)
}

func (s *WorkflowSuite) TestQuery_RejectsNonPositiveTopK() {
	s.env.ExecuteWorkflow(QueryPDFWorkflow, QueryPDFInput{Request: rag.NewQueryRequest("q", 0)})

	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	s.Equal(errdefs.KindConfiguration, errdefs.KindOf(decodeError(err)))
}

func (s *WorkflowSuite) TestQuery_GenerationFailureSurfaces() {
	var a *Activities
	s.env.OnActivity(a.EmbedAndSearch, mock.Anything, mock.Anything).Return(&rag.Retrieval{}, nil)
	s.env.OnActivity(a.GenerateAnswer, mock.Anything, mock.Anything).
		Return(nil, activityError(&errdefs.GenerationServiceError{Model: "m", Err: errors.New("quota")}))

	s.env.ExecuteWorkflow(QueryPDFWorkflow, QueryPDFInput{
		Request:  rag.QueryRequest{Question: "q"},
		Activity: ActivityConfig{MaximumAttempts: 2, InitialInterval: time.Millisecond},
	})

	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	s.Equal(errdefs.KindGenerationService, errdefs.KindOf(decodeError(err)))
}
