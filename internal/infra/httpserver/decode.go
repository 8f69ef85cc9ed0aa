package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	appsurveys "github.com/bryanwahyu/survey-intake/internal/application/surveys"
	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
	"github.com/bryanwahyu/survey-intake/internal/middleware"
)

const maxBodyBytes = 1 << 20

var metadataFields = map[string]bool{
	"participant_id": true,
	"session_id":     true,
	"age":            true,
	"gender":         true,
	"education":      true,
}

// answerInput accepts 5, "5", "free text", null, or {"value":5,"text":"..."}.
type answerInput domain.AnswerInput

func (a *answerInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = answerInput{}
		return nil
	}
	switch b[0] {
	case '{':
		var obj struct {
			Value flexValue `json:"value"`
			Text  string    `json:"text"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		if obj.Value.num == nil && obj.Value.str != "" {
			if n, err := strconv.ParseFloat(strings.TrimSpace(obj.Value.str), 64); err == nil {
				obj.Value.num = &n
			}
		}
		*a = answerInput{Value: obj.Value.num, Text: obj.Text}
		if obj.Value.num == nil && obj.Text == "" {
			a.Text = obj.Value.str
		}
		return nil
	default:
		var v flexValue
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*a = answerInput{Value: v.num, Text: v.str}
		return nil
	}
}

// flexValue is a JSON number or string.
type flexValue struct {
	num *float64
	str string
}

func (f *flexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		return json.Unmarshal(b, &f.str)
	default:
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected number or string, got %s", b)
		}
		f.num = &n
		return nil
	}
}

// flexString keeps numbers as their literal text, e.g. "age": 30.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v flexValue
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	if v.num != nil {
		*f = flexString(strconv.FormatFloat(*v.num, 'f', -1, 64))
		return nil
	}
	*f = flexString(v.str)
	return nil
}

type submitRequest struct {
	ParticipantID flexString             `json:"participant_id"`
	SessionID     flexString             `json:"session_id"`
	Age           flexString             `json:"age"`
	Gender        flexString             `json:"gender"`
	Education     flexString             `json:"education"`
	Responses     map[string]answerInput `json:"responses"`
	Answers       map[string]answerInput `json:"answers"`
}

func decodeSubmit(w http.ResponseWriter, req *http.Request) (appsurveys.SubmitCommand, error) {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return decodeForm(req)
	default:
		return decodeJSON(req.Body)
	}
}

func decodeJSON(body io.Reader) (appsurveys.SubmitCommand, error) {
	var in submitRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return appsurveys.SubmitCommand{}, &domain.ValidationError{Field: "body", Reason: "payload too large"}
		}
		if errors.Is(err, io.EOF) {
			return appsurveys.SubmitCommand{}, &domain.ValidationError{Field: "body", Reason: "empty payload"}
		}
		return appsurveys.SubmitCommand{}, &domain.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return appsurveys.SubmitCommand{}, &domain.ValidationError{Field: "body", Reason: "payload too large"}
		}
		return appsurveys.SubmitCommand{}, &domain.ValidationError{Field: "body", Reason: "malformed JSON: unexpected data after the request object"}
	}

	answers := make(map[string]domain.AnswerInput, len(in.Responses)+len(in.Answers))
	for k, v := range in.Answers {
		answers[k] = domain.AnswerInput(v)
	}
	for k, v := range in.Responses {
		answers[k] = domain.AnswerInput(v)
	}

	return buildCommand(map[string]string{
		"participant_id": string(in.ParticipantID),
		"session_id":     string(in.SessionID),
		"age":            string(in.Age),
		"gender":         string(in.Gender),
		"education":      string(in.Education),
	}, answers)
}

func decodeForm(req *http.Request) (appsurveys.SubmitCommand, error) {
	var err error
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/") {
		err = req.ParseMultipartForm(maxBodyBytes)
	} else {
		err = req.ParseForm()
	}
	if err != nil {
		return appsurveys.SubmitCommand{}, &domain.ValidationError{Field: "body", Reason: "malformed form: " + err.Error()}
	}

	meta := map[string]string{}
	answers := map[string]domain.AnswerInput{}
	for key, values := range req.PostForm {
		if len(values) == 0 {
			continue
		}
		if metadataFields[key] {
			meta[key] = values[0]
			continue
		}
		answers[key] = domain.AnswerInput{Text: values[0]}
	}
	return buildCommand(meta, answers)
}

func buildCommand(meta map[string]string, answers map[string]domain.AnswerInput) (appsurveys.SubmitCommand, error) {
	for name, v := range meta {
		v = middleware.SanitizeString(v)
		if err := middleware.ValidateFieldLength(name, v); err != nil {
			return appsurveys.SubmitCommand{}, &domain.ValidationError{Field: name, Reason: err.Error()}
		}
		meta[name] = v
	}
	if err := middleware.ValidateParticipantID(meta["participant_id"]); err != nil {
		return appsurveys.SubmitCommand{}, &domain.ValidationError{Field: "participant_id", Reason: err.Error()}
	}

	for k, a := range answers {
		a.Text = middleware.SanitizeString(a.Text)
		answers[k] = a
	}

	return appsurveys.SubmitCommand{
		Participant: domain.Participant{
			ParticipantID: meta["participant_id"],
			SessionID:     meta["session_id"],
			Age:           meta["age"],
			Gender:        meta["gender"],
			Education:     meta["education"],
		},
		Answers: answers,
	}, nil
}
