// Package evaluation measures retrieval quality against a golden set of
// questions with known answers.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"faq-rag-go/internal/model"
)

// Verdict classifies one golden-set question.
type Verdict int

const (
	Miss Verdict = iota
	HitAtK
	HitAt1
)

func (v Verdict) String() string {
	switch v {
	case HitAt1:
		return "HIT@1"
	case HitAtK:
		return "HIT@K"
	default:
		return "MISS"
	}
}

// Case is a question and the id of the record that should answer it.
type Case struct {
	Question   string
	ExpectedID string
}

// UnmarshalJSON accepts expected_id as a string or a number.
func (c *Case) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question   string          `json:"question"`
		ExpectedID json.RawMessage `json:"expected_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := model.DecodeID(raw.ExpectedID)
	if err != nil {
		return err
	}
	*c = Case{Question: raw.Question, ExpectedID: id}
	return nil
}

// LoadGoldenSet reads a JSON array of {question, expected_id}.
func LoadGoldenSet(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse golden set %s: %w", path, err)
	}
	return cases, nil
}

// Searcher is the retrieval interface under evaluation.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]model.RetrievalResult, error)
}

// CaseResult is the outcome for one question.
type CaseResult struct {
	Case
	Retrieved []model.RetrievalResult
	Verdict   Verdict
}

// Report aggregates a full run. Recall values are fractions in [0,1].
type Report struct {
	K             int
	Cases         []CaseResult
	HitsAt1       int
	HitsAtK       int
	RecallAt1     float64
	RecallAtK     float64
	SuccessRecall float64
}

// Total returns the number of evaluated questions.
func (r *Report) Total() int { return len(r.Cases) }

// Passed reports whether Recall@K reached the success threshold.
func (r *Report) Passed() bool { return r.RecallAtK >= r.SuccessRecall }

// Run searches every case with k and scores the results.
func Run(ctx context.Context, s Searcher, cases []Case, k int, successRecall float64) (*Report, error) {
	if len(cases) == 0 {
		return nil, errors.New("golden set is empty")
	}
	report := &Report{K: k, SuccessRecall: successRecall, Cases: make([]CaseResult, 0, len(cases))}
	for i, c := range cases {
		results, err := s.Search(ctx, c.Question, k)
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}
		cr := CaseResult{Case: c, Retrieved: results, Verdict: judge(results, c.ExpectedID)}
		switch cr.Verdict {
		case HitAt1:
			report.HitsAt1++
			report.HitsAtK++
		case HitAtK:
			report.HitsAtK++
		}
		report.Cases = append(report.Cases, cr)
	}
	total := float64(len(cases))
	report.RecallAt1 = float64(report.HitsAt1) / total
	report.RecallAtK = float64(report.HitsAtK) / total
	return report, nil
}

func judge(results []model.RetrievalResult, expected string) Verdict {
	for rank, r := range results {
		if r.ID == expected {
			if rank == 0 {
				return HitAt1
			}
			return HitAtK
		}
	}
	return Miss
}
