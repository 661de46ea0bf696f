package generation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/prepwise/mock-interview/internal/model"
)

// StartResult is the reply shape for the start phase.
type StartResult struct {
	Message         string             `json:"message"`
	QuestionType    model.QuestionType `json:"questionType"`
	Difficulty      model.Difficulty   `json:"difficulty"`
	ExpectsResponse bool               `json:"expectsResponse"`
}

// ContinueResult is the reply shape for the continue phase.
type ContinueResult struct {
	Message         string             `json:"message"`
	Feedback        string             `json:"feedback"`
	QuestionType    model.QuestionType `json:"questionType"`
	Difficulty      model.Difficulty   `json:"difficulty"`
	ExpectsResponse bool               `json:"expectsResponse"`
}

// EndResult is the reply shape for the end phase.
type EndResult struct {
	Message            string   `json:"message"`
	OverallFeedback    string   `json:"overallFeedback"`
	Strengths          []string `json:"strengths"`
	Improvements       []string `json:"improvements"`
	Score              string   `json:"score"`
	RecommendedActions []string `json:"recommendedActions"`
	ExpectsResponse    bool     `json:"expectsResponse"`
}

// FinalFeedback extracts the stored evaluation.
func (r *EndResult) FinalFeedback() model.FinalFeedback {
	return model.FinalFeedback{
		OverallFeedback:    r.OverallFeedback,
		Strengths:          nonNil(r.Strengths),
		Improvements:       nonNil(r.Improvements),
		Score:              r.Score,
		RecommendedActions: nonNil(r.RecommendedActions),
	}
}

// QuestionAnswer is one generated interview question with its answer.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Explanation is a generated concept explanation.
type Explanation struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
}

// wire types mirror the results but tolerate loosely typed fields the
// model sometimes emits, such as a numeric score or a missing flag.
type interviewerWire struct {
	Message         string      `json:"message"`
	Feedback        string      `json:"feedback"`
	QuestionType    string      `json:"questionType"`
	Difficulty      string      `json:"difficulty"`
	ExpectsResponse *bool       `json:"expectsResponse"`
	OverallFeedback string      `json:"overallFeedback"`
	Strengths       []string    `json:"strengths"`
	Improvements    []string    `json:"improvements"`
	Score           looseString `json:"score"`
	Recommended     []string    `json:"recommendedActions"`
}

// looseString decodes a JSON string or number into a string.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

func normalizeEnum(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
