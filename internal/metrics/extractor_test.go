package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitchlab/gradepipe/internal/types"
)

func ts(v float64) *float64 { return &v }

func rep(text string) types.Turn      { return types.Turn{Speaker: types.SpeakerRep, Text: text} }
func customer(text string) types.Turn { return types.Turn{Speaker: types.SpeakerCustomer, Text: text} }

func TestExtractEmptyTranscript(t *testing.T) {
	m := Extract(types.Transcript{})

	assert.Equal(t, 0, m.TotalTurns)
	assert.Equal(t, 0.0, m.DurationSeconds)
	assert.Equal(t, 0, m.QuestionCount)
	assert.Empty(t, m.KeyQuestions)
	assert.Equal(t, 0, m.FillerWordCount)
	assert.Equal(t, 0, m.RapportScore)
	assert.False(t, m.CloseAttempted)
	assert.Equal(t, "", m.ClosingTechnique)
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name       string
		transcript types.Transcript
		expected   float64
	}{
		{
			name: "uses timestamps when two or more present",
			transcript: types.Transcript{
				{Speaker: types.SpeakerRep, Text: "hello", Timestamp: ts(100)},
				{Speaker: types.SpeakerCustomer, Text: "hi"},
				{Speaker: types.SpeakerRep, Text: "bye", Timestamp: ts(340)},
			},
			expected: 240,
		},
		{
			name: "clamps negative spans to zero",
			transcript: types.Transcript{
				{Speaker: types.SpeakerRep, Text: "a", Timestamp: ts(500)},
				{Speaker: types.SpeakerRep, Text: "b", Timestamp: ts(100)},
			},
			expected: 0,
		},
		{
			name: "falls back to four seconds per turn",
			transcript: types.Transcript{
				rep("one"), customer("two"), rep("three"),
			},
			expected: 12,
		},
		{
			name: "single timestamp still falls back",
			transcript: types.Transcript{
				{Speaker: types.SpeakerRep, Text: "a", Timestamp: ts(50)},
				customer("b"),
			},
			expected: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Extract(tt.transcript).DurationSeconds)
		})
	}
}

func TestQuestionsAndKeyQuestions(t *testing.T) {
	m := Extract(types.Transcript{
		customer("What does it cost?"),
		rep("Great question."),
		customer("Is there a warranty?  "),
		customer("No questions here"),
		rep("Does this work for you?"), // rep questions don't count
	})

	assert.Equal(t, 2, m.QuestionCount)
	assert.Equal(t, []string{"What does it cost?", "Is there a warranty?  "}, m.KeyQuestions)
}

func TestInterruptions(t *testing.T) {
	m := Extract(types.Transcript{
		customer("But-"), // 4 chars, followed by rep
		rep("Let me stop you right there."),
		customer("I was going to say something longer."),
		rep("Sure."),
		customer("Wait!"), // 5 chars, followed by rep
		rep("As I was saying."),
		customer("Hm."), // short but last turn, no rep follows
	})

	assert.Equal(t, 2, m.InterruptionCount)
}

func TestFillerWordCount(t *testing.T) {
	m := Extract(types.Transcript{
		rep("um so basically I think, you know, this works"),
	})

	// um, so, basically, you know
	assert.Equal(t, 4, m.FillerWordCount)
}

func TestFillerWordCountWholeWordOnly(t *testing.T) {
	m := Extract(types.Transcript{
		rep("The summary also mentions solike numbers"),
	})

	assert.Equal(t, 0, m.FillerWordCount)
}

func TestFillerWordCountIgnoresCustomerTurns(t *testing.T) {
	m := Extract(types.Transcript{
		customer("um like basically"),
		rep("Actually, yes."),
	})

	assert.Equal(t, 1, m.FillerWordCount)
}

func TestTimeToValue(t *testing.T) {
	t.Run("elapsed to first value turn with timestamps", func(t *testing.T) {
		m := Extract(types.Transcript{
			{Speaker: types.SpeakerRep, Text: "intro", Timestamp: ts(10)},
			{Speaker: types.SpeakerCustomer, Text: "ok", Timestamp: ts(20)},
			{Speaker: types.SpeakerRep, Text: "this will save you money", Timestamp: ts(70)},
			{Speaker: types.SpeakerRep, Text: "bye", Timestamp: ts(100)},
		})
		assert.Equal(t, 60.0, m.TimeToValueSeconds)
	})

	t.Run("index estimate without timestamps", func(t *testing.T) {
		m := Extract(types.Transcript{
			rep("intro"),
			customer("ok"),
			rep("the warranty covers everything"),
		})
		assert.Equal(t, 8.0, m.TimeToValueSeconds)
	})

	t.Run("defaults to full duration when value never mentioned", func(t *testing.T) {
		m := Extract(types.Transcript{rep("hello"), customer("hi")})
		assert.Equal(t, m.DurationSeconds, m.TimeToValueSeconds)
	})
}

func TestCloseDetection(t *testing.T) {
	m := Extract(types.Transcript{
		rep("Shall we schedule the install for Tuesday?"),
	})
	assert.True(t, m.CloseAttempted)
	assert.Equal(t, "commitment ask", m.ClosingTechnique)

	m = Extract(types.Transcript{rep("Tell me about your home.")})
	assert.False(t, m.CloseAttempted)
	assert.Equal(t, "", m.ClosingTechnique)
}

func TestObjectionsIndependentlyCounted(t *testing.T) {
	m := Extract(types.Transcript{
		customer("That sounds too expensive for me"),
		rep("I understand, and that's fair."),
		rep("A lot of our customers felt the same, but what if it paid for itself?"),
		rep("Let me explain the numbers."),
	})

	assert.Equal(t, 1, m.ObjectionsRaised)
	// Resolved exceeding raised is not an error.
	assert.Equal(t, 3, m.ObjectionsResolved)
}

func TestRapportScore(t *testing.T) {
	t.Run("counts rapport turns", func(t *testing.T) {
		m := Extract(types.Transcript{
			rep("Good morning! How are you today?"),
			rep("Thanks for taking the time."),
		})
		assert.Equal(t, 2, m.RapportScore)
	})

	t.Run("bonus for an engaged customer", func(t *testing.T) {
		m := Extract(types.Transcript{
			rep("How are you?"),
			customer("What's the price?"),
			customer("Any warranty?"),
			customer("When could you start?"),
		})
		assert.Equal(t, 6, m.RapportScore)
	})

	t.Run("capped at twenty", func(t *testing.T) {
		turns := types.Transcript{}
		for i := 0; i < 30; i++ {
			turns = append(turns, rep("I appreciate your time"))
		}
		m := Extract(turns)
		assert.Equal(t, 20, m.RapportScore)
	})
}

func TestFirstAndLastCustomerUtterances(t *testing.T) {
	m := Extract(types.Transcript{
		rep("Hello"),
		customer("First thing I said"),
		rep("Go on"),
		customer("Last thing I said"),
	})

	assert.Equal(t, "First thing I said", m.FirstCustomerUtterance)
	assert.Equal(t, "Last thing I said", m.LastCustomerUtterance)
}

func TestExtractIsDeterministic(t *testing.T) {
	transcript := types.Transcript{
		rep("Good morning! This system will protect your family."),
		customer("How much does it cost?"),
		rep("Um, so the value is clear when you see the warranty."),
		customer("Too expensive."),
		rep("I understand. What if we schedule a visit?"),
	}

	first := Extract(transcript)
	second := Extract(transcript)

	assert.Equal(t, first, second)
}
