package surveys

import "fmt"

// wisdomStatements is the 20-item WISDOM questionnaire, in order Q1..Q20.
var wisdomStatements = []string{
	"I enjoy creating things that are new and different.",
	"I do not have many questions.",
	"I consider the positives and negatives of every option when I am making a decision.",
	"If there is a chance to learn something new, I jump right in.",
	"Others tell me that I give good advice.",
	"I see myself as a very creative person.",
	"I am curious about how things work.",
	"I carefully think about the opinions of others before I make a decision.",
	"I get excited when I see there is something new to learn.",
	"My friends ask for my opinion before they make an important decision.",
	"I often figure out different ways of doing things.",
	"I frequently ask questions.",
	"I wait until I have all the facts before I make a decision.",
	"I love learning about how to do different things.",
	"People tell me that I am a wise person.",
	"I always like to do things in different ways.",
	"I am always full of questions.",
	"I think about all my choices before I make a decision.",
	"When I want to learn something, I try to find out everything about it.",
	"I am able to solve problems in a way that is pleasing to everyone.",
}

// wisdomSubscales maps question number to subscale.
var wisdomSubscales = map[int]string{
	1: "creativity", 6: "creativity", 11: "creativity", 16: "creativity",
	2: "curiosity", 4: "curiosity", 7: "curiosity", 9: "curiosity",
	12: "curiosity", 14: "curiosity", 17: "curiosity", 19: "curiosity",
	3: "judgment", 8: "judgment", 13: "judgment", 18: "judgment",
	5: "social", 10: "social", 15: "social", 20: "social",
}

// LikertScale is the default five-point "like me" scale.
func LikertScale() Scale {
	return Scale{
		Min: 1,
		Max: 5,
		Labels: map[int]string{
			5: "Very Much Like Me",
			4: "Mostly Like Me",
			3: "Somewhat Like Me",
			2: "A Little Like Me",
			1: "Not Like Me At All",
		},
	}
}

// DefaultSchema returns the WISDOM questionnaire. Q2 is reverse scored.
func DefaultSchema() *Schema {
	qs := make([]Question, 0, len(wisdomStatements))
	for i, text := range wisdomStatements {
		n := i + 1
		qs = append(qs, Question{
			ID:       QuestionID(fmt.Sprintf("Q%d", n)),
			Text:     text,
			Type:     QuestionScale,
			Subscale: wisdomSubscales[n],
			Reverse:  n == 2,
		})
	}
	s, err := NewSchema("wisdom", LikertScale(), qs)
	if err != nil {
		panic(err)
	}
	return s
}
