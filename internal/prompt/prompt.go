// Package prompt builds the instruction strings sent to the generation service.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prepwise/mock-interview/internal/apperr"
	"github.com/prepwise/mock-interview/internal/model"
)

// Phase selects the conversational prompt template and the expected reply shape.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseContinue Phase = "continue"
	PhaseEnd      Phase = "end"
)

// ParsePhase returns the phase named by s.
func ParsePhase(s string) (Phase, bool) {
	switch p := Phase(strings.ToLower(strings.TrimSpace(s))); p {
	case PhaseStart, PhaseContinue, PhaseEnd:
		return p, true
	}
	return "", false
}

// Params are the interview parameters supplied by a session.
type Params struct {
	Role          string           `json:"role"`
	Experience    model.Experience `json:"experience"`
	TopicsToFocus string           `json:"topicsToFocus"`
}

// ParamsFromSession copies the prompt parameters out of a session.
func ParamsFromSession(s *model.Session) Params {
	return Params{
		Role:          s.Role,
		Experience:    s.Experience,
		TopicsToFocus: s.TopicsToFocus,
	}
}

// Validate returns a validation error naming every missing field.
func (p Params) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Role) == "" {
		missing = append(missing, "role")
	}
	if strings.TrimSpace(string(p.Experience)) == "" {
		missing = append(missing, "experience")
	}
	if strings.TrimSpace(p.TopicsToFocus) == "" {
		missing = append(missing, "topicsToFocus")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

const startTemplate = `You are an experienced interviewer conducting a technical interview for a %[1]s position.

Context:
- Candidate Experience: %[2]s years
- Focus Topics: %[3]s
- This is the start of a conversational interview

Instructions:
- Act as a friendly but professional interviewer
- Start with a warm greeting and introduction
- Ask your first question related to the focus topics
- Keep questions appropriate for %[2]s years of experience
- Be conversational and natural, not robotic
- Your response should feel like a real interviewer speaking

Return JSON format:
{
  "message": "Your greeting and first question here",
  "questionType": "introduction|technical|behavioral|follow-up",
  "difficulty": "easy|medium|hard",
  "expectsResponse": true
}

Important: Only return valid JSON.`

const continueTemplate = `You are continuing a technical interview for a %[1]s position.

Context:
- Candidate Experience: %[2]s years
- Focus Topics: %[3]s
- Conversation History: %[4]s
- Candidate's Latest Response: %[5]s

Instructions:
- Analyze the candidate's response
- Provide brief acknowledgment if the answer was good or needs improvement
- Ask a follow-up question or move to the next topic
- Keep the conversation natural and flowing
- Gradually increase difficulty based on their responses
- If the answer was incomplete, ask for clarification
- If the answer was good, appreciate it and move forward

Return JSON format:
{
  "message": "Your response and next question here",
  "feedback": "brief feedback on their previous answer",
  "questionType": "technical|behavioral|follow-up|clarification",
  "difficulty": "easy|medium|hard",
  "expectsResponse": true
}

Important: Only return valid JSON.`

const endTemplate = `You are ending a technical interview for a %[1]s position.

Context:
- Candidate Experience: %[2]s years
- Focus Topics: %[3]s
- Full Conversation History: %[4]s

Instructions:
- Provide overall feedback on the interview
- Highlight strengths and areas for improvement
- Give specific examples from their responses
- Provide actionable advice for improvement
- Be constructive and encouraging
- End with a professional closing

Return JSON format:
{
  "message": "Your closing message here",
  "overallFeedback": "Comprehensive feedback on the interview",
  "strengths": ["strength1", "strength2", "strength3"],
  "improvements": ["improvement1", "improvement2"],
  "score": "7/10",
  "recommendedActions": ["action1", "action2"],
  "expectsResponse": false
}

Important: Only return valid JSON.`

// Conversational builds the prompt for phase. An unknown phase yields "".
func Conversational(phase Phase, p Params, history []model.Message, userResponse string) string {
	switch phase {
	case PhaseStart:
		return fmt.Sprintf(startTemplate, p.Role, p.Experience, p.TopicsToFocus)
	case PhaseContinue:
		return fmt.Sprintf(continueTemplate, p.Role, p.Experience, p.TopicsToFocus,
			encodeHistory(history), quote(userResponse))
	case PhaseEnd:
		return fmt.Sprintf(endTemplate, p.Role, p.Experience, p.TopicsToFocus, encodeHistory(history))
	}
	return ""
}

const questionAnswerTemplate = `You are an AI trained to generate technical interview questions and answers.

Task:
- Role: %s
- Candidate Experience: %s years
- Focus Topics: %s
- Write %d interview questions.
- For each question, generate a detailed but beginner-friendly answer.
- If the answer needs a code example, add a small code block inside.
- Keep formatting very clean.
- Return a pure JSON array like:
[
  {
    "question": "Question here?",
    "answer": "Answer here."
  }
]

Important: Do NOT add any extra text. Only return valid JSON.`

// QuestionAnswer builds the prompt that generates n question/answer pairs.
func QuestionAnswer(p Params, n int) string {
	return fmt.Sprintf(questionAnswerTemplate, p.Role, p.Experience, p.TopicsToFocus, n)
}

const conceptTemplate = `You are an AI trained to generate explanations for a given interview question.

Task:
- Explain the following interview question and its concept in depth as if you are teaching a beginner developer.
- Question: %s
- After the explanation, provide a short and clear title that summarizes the concept for the article or page header.
- If the explanation includes a code example, provide a small code block.
- Keep the formatting very clean and clear.
- Return the result as a valid JSON object in the following format:

{
  "title": "Short title here",
  "explanation": "Explanation here"
}

Important: Do NOT add any extra text outside the JSON format. Only return valid JSON.`

// ConceptExplanation builds the prompt that explains a single question.
func ConceptExplanation(question string) string {
	return fmt.Sprintf(conceptTemplate, quote(question))
}

// encodeHistory renders the message log as JSON. Message marshalling cannot
// fail, so the error branch only guards against future field types.
func encodeHistory(history []model.Message) string {
	if history == nil {
		history = []model.Message{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
