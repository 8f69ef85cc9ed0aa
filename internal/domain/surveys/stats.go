package surveys

import (
	"math"
	"time"
)

// Stats is a read-only summary of the store at the time it was computed.
type Stats struct {
	TotalResponses    int                            `json:"total_responses"`
	Message           string                         `json:"message,omitempty"`
	LatestSubmission  *time.Time                     `json:"latest_submission,omitempty"`
	AverageTotalScore *float64                       `json:"average_total_score,omitempty"`
	ScoreDistribution *Distribution                  `json:"score_distribution,omitempty"`
	Subscales         map[string]float64             `json:"subscales,omitempty"`
	Questions         map[QuestionID]QuestionSummary `json:"questions,omitempty"`
}

// Distribution of total scores over responses with at least one numeric answer.
type Distribution struct {
	Mean float64  `json:"mean"`
	Min  int      `json:"min"`
	Max  int      `json:"max"`
	Std  *float64 `json:"std,omitempty"`
}

type QuestionSummary struct {
	Answered int      `json:"answered"`
	Mean     *float64 `json:"mean,omitempty"`
}

// ComputeStats aggregates responses. Pure function of its input.
func ComputeStats(schema *Schema, responses []*Response) *Stats {
	st := &Stats{TotalResponses: len(responses)}
	if len(responses) == 0 {
		st.Message = "No responses yet"
		return st
	}

	latest := responses[0].SubmittedAt
	var totals []float64
	subSum := map[string]float64{}
	subN := map[string]int{}
	qSum := map[QuestionID]float64{}
	qNum := map[QuestionID]int{}
	qAnswered := map[QuestionID]int{}

	for _, r := range responses {
		if r.SubmittedAt.After(latest) {
			latest = r.SubmittedAt
		}
		if r.Scores.Scored > 0 {
			totals = append(totals, float64(r.Scores.Total))
		}
		for name, v := range r.Scores.Subscales {
			subSum[name] += float64(v)
			subN[name]++
		}
		for id, a := range r.Answers {
			qAnswered[id]++
			if a.Value != nil {
				qSum[id] += float64(*a.Value)
				qNum[id]++
			}
		}
	}

	st.LatestSubmission = &latest

	if len(totals) == 0 {
		st.Message = "No valid scores found"
	} else {
		mean := meanOf(totals)
		avg := round2(mean)
		st.AverageTotalScore = &avg
		d := &Distribution{Mean: avg, Min: int(totals[0]), Max: int(totals[0])}
		for _, t := range totals {
			d.Min = min(d.Min, int(t))
			d.Max = max(d.Max, int(t))
		}
		if len(totals) > 1 {
			std := round2(sampleStd(totals, mean))
			d.Std = &std
		}
		st.ScoreDistribution = d
	}

	for _, name := range schema.Subscales() {
		if subN[name] == 0 {
			continue
		}
		if st.Subscales == nil {
			st.Subscales = map[string]float64{}
		}
		st.Subscales[name] = round2(subSum[name] / float64(subN[name]))
	}

	for _, q := range schema.Questions() {
		n := qAnswered[q.ID]
		if n == 0 {
			continue
		}
		if st.Questions == nil {
			st.Questions = map[QuestionID]QuestionSummary{}
		}
		qs := QuestionSummary{Answered: n}
		if qNum[q.ID] > 0 {
			m := round2(qSum[q.ID] / float64(qNum[q.ID]))
			qs.Mean = &m
		}
		st.Questions[q.ID] = qs
	}
	return st
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStd(xs []float64, mean float64) float64 {
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
