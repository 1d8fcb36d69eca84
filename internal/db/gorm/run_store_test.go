package gorm

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/thebtf/procluster/internal/export"
	"github.com/thebtf/procluster/internal/pipeline"
	"github.com/thebtf/procluster/pkg/hierarchy"
	"github.com/thebtf/procluster/pkg/models"
)

type RunStoreSuite struct {
	suite.Suite
	ctx     context.Context
	store   *Store
	runs    *RunStore
	records []models.ProcedureRecord
	result  *pipeline.Result
}

func TestRunStoreSuite(t *testing.T) {
	suite.Run(t, new(RunStoreSuite))
}

func (s *RunStoreSuite) SetupTest() {
	s.ctx = context.Background()

	store, err := NewStore(Config{
		DSN:      filepath.Join(s.T().TempDir(), "runs.db"),
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)
	s.store = store
	s.runs = NewRunStore(store)

	s.records = []models.ProcedureRecord{
		models.NewProcedureRecord("P1", "a;b", ""),
		models.NewProcedureRecord("P2", "a;c", ""),
		models.NewProcedureRecord("P3", "x;y", "z"),
	}
	opts := pipeline.DefaultOptions()
	opts.Selector = hierarchy.ByThreshold(0.7)
	s.result, err = pipeline.Run(s.ctx, s.records, opts)
	s.Require().NoError(err)
}

func (s *RunStoreSuite) TearDownTest() {
	s.store.Close()
}

func (s *RunStoreSuite) save() *models.RunSummary {
	sections, err := export.Sections(s.result, []byte("%PDF-1.3 test"))
	s.Require().NoError(err)

	summary, err := s.runs.SaveRun(s.ctx, NewRun{
		Result:   s.result,
		Source:   "procs.csv",
		Records:  s.records,
		Sections: sections,
	})
	s.Require().NoError(err)
	return summary
}

func (s *RunStoreSuite) TestSaveAndGetRun() {
	summary := s.save()
	s.Len(summary.ID, 36)
	s.Equal(3, summary.Procedures)
	s.Equal(s.result.Assignment.Count(), summary.Clusters)
	s.Equal("average", summary.Linkage)
	s.Require().NotNil(summary.Threshold)
	s.Equal(0.7, *summary.Threshold)
	s.Nil(summary.ClusterCount)

	detail, err := s.runs.GetRun(s.ctx, summary.ID)
	s.Require().NoError(err)

	s.Equal(summary.ID, detail.Summary.ID)
	s.Equal(s.records, detail.Records)
	s.Equal(s.result.Names, detail.Result.Names)
	s.Equal(s.result.Matrix.Values, detail.Result.Matrix.Values)
	s.Equal(s.result.Tree, detail.Result.Tree)
	s.Equal(s.result.Assignment, detail.Result.Assignment)
	s.Equal(s.result.Options.Selector, detail.Result.Options.Selector)
	s.Equal([]string{export.SectionDistanceMatrix, export.SectionResults, export.SectionDendrogram}, detail.Sections)

	fp, err := pipeline.Fingerprint(detail.Records, detail.Result.Options)
	s.Require().NoError(err)
	s.Equal(summary.Fingerprint, fp)
}

func (s *RunStoreSuite) TestGetArtifact() {
	summary := s.save()

	a, err := s.runs.GetArtifact(s.ctx, summary.ID, export.SectionDendrogram)
	s.Require().NoError(err)
	s.Equal("application/pdf", a.ContentType)
	s.Equal([]byte("%PDF-1.3 test"), a.Data)

	a, err = s.runs.GetArtifact(s.ctx, summary.ID, export.SectionResults)
	s.Require().NoError(err)
	s.Equal("Procedure,Cluster\nP1,0\nP2,0\nP3,1\n", string(a.Data))

	_, err = s.runs.GetArtifact(s.ctx, "missing", export.SectionResults)
	s.True(errors.Is(err, ErrRunNotFound))
}

func (s *RunStoreSuite) TestListRuns() {
	first := s.save()
	second := s.save()

	runs, err := s.runs.ListRuns(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	s.ElementsMatch([]string{first.ID, second.ID}, ids)

	runs, err = s.runs.ListRuns(s.ctx, 1)
	s.Require().NoError(err)
	s.Len(runs, 1)
}

func (s *RunStoreSuite) TestDeleteRun() {
	summary := s.save()

	s.Require().NoError(s.runs.DeleteRun(s.ctx, summary.ID))

	_, err := s.runs.GetRun(s.ctx, summary.ID)
	s.True(errors.Is(err, ErrRunNotFound))

	var cells int64
	s.Require().NoError(s.store.DB.Model(&RunDistance{}).Count(&cells).Error)
	s.Zero(cells)

	s.True(errors.Is(s.runs.DeleteRun(s.ctx, summary.ID), ErrRunNotFound))
}

func (s *RunStoreSuite) TestSaveRunRejectsMismatch() {
	_, err := s.runs.SaveRun(s.ctx, NewRun{Result: s.result, Records: s.records[:2]})
	s.Error(err)

	_, err = s.runs.SaveRun(s.ctx, NewRun{Records: s.records})
	s.Error(err)
}

func TestParseLimitParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: 25},
		{query: "?limit=10", want: 10},
		{query: "?limit=0", want: 25},
		{query: "?limit=-3", want: 25},
		{query: "?limit=abc", want: 25},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/api/runs"+tt.query, nil)
		assert.Equal(t, tt.want, ParseLimitParam(r, 25), tt.query)
	}
}
