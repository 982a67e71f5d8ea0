package kb

import "fmt"

// Question is one knowledge-bowl question document.
type Question struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Hints       []string `json:"hints,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

// ModuleContent is the module document the manager pre-generates audio for.
type ModuleContent struct {
	Questions []Question `json:"questions"`
}

type SegmentType string

const (
	SegmentQuestion    SegmentType = "question"
	SegmentAnswer      SegmentType = "answer"
	SegmentHint        SegmentType = "hint"
	SegmentExplanation SegmentType = "explanation"
)

// Segment is one utterance to synthesize for a question.
type Segment struct {
	QuestionID string
	Type       SegmentType
	HintIndex  int // meaningful only for SegmentHint
	Text       string
}

// FileName returns the on-disk name within the question directory.
func (s Segment) FileName() string {
	if s.Type == SegmentHint {
		return fmt.Sprintf("hint_%d.wav", s.HintIndex)
	}
	return string(s.Type) + ".wav"
}

// ExtractSegments produces one segment per non-empty field of each question,
// in reading order: question, answer, hints, explanation.
func ExtractSegments(content ModuleContent) []Segment {
	var segments []Segment
	for _, q := range content.Questions {
		if q.ID == "" {
			continue
		}
		if q.Question != "" {
			segments = append(segments, Segment{QuestionID: q.ID, Type: SegmentQuestion, Text: q.Question})
		}
		if q.Answer != "" {
			segments = append(segments, Segment{QuestionID: q.ID, Type: SegmentAnswer, Text: q.Answer})
		}
		for i, hint := range q.Hints {
			if hint != "" {
				segments = append(segments, Segment{QuestionID: q.ID, Type: SegmentHint, HintIndex: i, Text: hint})
			}
		}
		if q.Explanation != "" {
			segments = append(segments, Segment{QuestionID: q.ID, Type: SegmentExplanation, Text: q.Explanation})
		}
	}
	return segments
}
