package surveys

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxTextLength bounds a single free-text answer, in runes.
const MaxTextLength = 4000

// QuestionType enum
type QuestionType string

const (
	QuestionScale QuestionType = "scale"
	QuestionText  QuestionType = "text"
)

// Question is one recognized question identifier.
type Question struct {
	ID       QuestionID
	Text     string
	Type     QuestionType
	Subscale string
	Reverse  bool
}

// Scale describes the numeric range shared by all scale questions.
type Scale struct {
	Min    int
	Max    int
	Labels map[int]string
}

// Schema enumerates the recognized questions. Immutable after NewSchema;
// safe for concurrent use.
type Schema struct {
	name      string
	scale     Scale
	questions []Question
	index     map[QuestionID]int
	subscales []string
}

func NewSchema(name string, scale Scale, questions []Question) (*Schema, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("survey %q has no questions", name)
	}
	if scale.Min >= scale.Max {
		return nil, fmt.Errorf("survey %q: scale min %d must be below max %d", name, scale.Min, scale.Max)
	}
	s := &Schema{
		name:  name,
		scale: scale,
		index: make(map[QuestionID]int, len(questions)),
	}
	seenSub := map[string]bool{}
	for i, q := range questions {
		q.ID = QuestionID(strings.TrimSpace(string(q.ID)))
		if q.ID == "" {
			return nil, fmt.Errorf("survey %q: question %d has empty id", name, i+1)
		}
		if strings.ContainsAny(string(q.ID), ",\"\r\n") {
			return nil, fmt.Errorf("survey %q: question id %q contains reserved characters", name, q.ID)
		}
		if _, dup := s.index[q.ID]; dup {
			return nil, fmt.Errorf("survey %q: duplicate question id %q", name, q.ID)
		}
		switch q.Type {
		case "":
			q.Type = QuestionScale
		case QuestionScale, QuestionText:
		default:
			return nil, fmt.Errorf("survey %q: question %q has unknown type %q", name, q.ID, q.Type)
		}
		if q.Type == QuestionText && (q.Subscale != "" || q.Reverse) {
			return nil, fmt.Errorf("survey %q: text question %q cannot be scored", name, q.ID)
		}
		if q.Subscale != "" && !seenSub[q.Subscale] {
			seenSub[q.Subscale] = true
			s.subscales = append(s.subscales, q.Subscale)
		}
		s.index[q.ID] = len(s.questions)
		s.questions = append(s.questions, q)
	}
	return s, nil
}

func (s *Schema) Name() string { return s.name }

func (s *Schema) Scale() Scale { return s.scale }

// Questions returns the questions in declaration order.
func (s *Schema) Questions() []Question {
	out := make([]Question, len(s.questions))
	copy(out, s.questions)
	return out
}

func (s *Schema) Question(id QuestionID) (Question, bool) {
	i, ok := s.index[id]
	if !ok {
		return Question{}, false
	}
	return s.questions[i], true
}

// Subscales returns subscale names in order of first appearance.
func (s *Schema) Subscales() []string {
	out := make([]string, len(s.subscales))
	copy(out, s.subscales)
	return out
}

// MaxTotal is the highest possible total score.
func (s *Schema) MaxTotal() int {
	n := 0
	for _, q := range s.questions {
		if q.Type == QuestionScale {
			n++
		}
	}
	return n * s.scale.Max
}

// SubscaleMax is the highest possible score of one subscale.
func (s *Schema) SubscaleMax(name string) int {
	n := 0
	for _, q := range s.questions {
		if q.Subscale == name {
			n++
		}
	}
	return n * s.scale.Max
}

// Normalize checks raw answers against the schema. Unknown question ids are
// dropped and returned in ignored (sorted); the schema never widens.
func (s *Schema) Normalize(raw map[string]AnswerInput) (map[QuestionID]Answer, []string, error) {
	if len(raw) == 0 {
		return nil, nil, &ValidationError{Field: "responses", Reason: "no answers submitted"}
	}

	answers := make(map[QuestionID]Answer, len(raw))
	seen := make(map[QuestionID]string, len(raw))
	var ignored []string
	for key, in := range raw {
		id := QuestionID(strings.TrimSpace(key))
		q, ok := s.Question(id)
		if !ok {
			ignored = append(ignored, key)
			continue
		}
		if prev, dup := seen[id]; dup {
			return nil, nil, &ValidationError{Field: string(id), Reason: fmt.Sprintf("duplicate answer (%q and %q)", prev, key)}
		}
		seen[id] = key
		a, answered, err := s.normalizeAnswer(q, in)
		if err != nil {
			return nil, nil, err
		}
		if answered {
			answers[id] = a
		}
	}
	sort.Strings(ignored)

	if len(answers) == 0 {
		return nil, ignored, &ValidationError{Field: "responses", Reason: "no recognized question identifiers"}
	}
	return answers, ignored, nil
}

func (s *Schema) normalizeAnswer(q Question, in AnswerInput) (Answer, bool, error) {
	text := strings.TrimSpace(in.Text)
	if utf8.RuneCountInString(text) > MaxTextLength {
		return Answer{}, false, &ValidationError{Field: string(q.ID), Reason: fmt.Sprintf("answer longer than %d characters", MaxTextLength)}
	}

	if q.Type == QuestionText {
		if text == "" && in.Value != nil {
			text = strconv.FormatFloat(*in.Value, 'f', -1, 64)
		}
		if text == "" {
			return Answer{}, false, nil
		}
		return Answer{Text: text}, true, nil
	}

	var v float64
	switch {
	case in.Value != nil:
		v = *in.Value
	case text == "":
		return Answer{}, false, nil
	default:
		parsed, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Answer{}, false, &ValidationError{Field: string(q.ID), Reason: fmt.Sprintf("expected a value between %d and %d", s.scale.Min, s.scale.Max)}
		}
		v = parsed
		text = ""
	}
	if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
		return Answer{}, false, &ValidationError{Field: string(q.ID), Reason: "scale value must be a whole number"}
	}
	if v < float64(s.scale.Min) || v > float64(s.scale.Max) {
		return Answer{}, false, &ValidationError{Field: string(q.ID), Reason: fmt.Sprintf("value %s outside scale %d..%d", strconv.FormatFloat(v, 'g', -1, 64), s.scale.Min, s.scale.Max)}
	}
	iv := int(v)
	if text == "" {
		text = s.scale.Labels[iv]
	}
	return Answer{Value: &iv, Text: text}, true, nil
}

// Score computes total, average and subscale scores. Reverse-scored
// questions contribute min+max-v.
func (s *Schema) Score(answers map[QuestionID]Answer) Scores {
	sc := Scores{}
	for _, q := range s.questions {
		a, ok := answers[q.ID]
		if !ok || a.Value == nil || q.Type != QuestionScale {
			continue
		}
		v := *a.Value
		if q.Reverse {
			v = s.scale.Min + s.scale.Max - v
		}
		sc.Total += v
		sc.Scored++
		if q.Subscale != "" {
			if sc.Subscales == nil {
				sc.Subscales = map[string]int{}
			}
			sc.Subscales[q.Subscale] += v
		}
	}
	if sc.Scored > 0 {
		sc.Average = round2(float64(sc.Total) / float64(sc.Scored))
	}
	return sc
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
