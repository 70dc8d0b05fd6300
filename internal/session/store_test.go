package session

import (
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/model"

	"github.com/stretchr/testify/assert"
)

// stepClock 每次调用前进一秒，让 UpdatedAt 排序在测试中可预测。
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestDeriveTitle_Short(t *testing.T) {
	assert.Equal(t, "What is PCR?", DeriveTitle("What is PCR?"))
}

func TestDeriveTitle_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "Explain gel electrophoresis", DeriveTitle("  Explain\n gel\telectrophoresis  "))
}

func TestDeriveTitle_ExactlySixty(t *testing.T) {
	text := strings.Repeat("a", TitleLimit)
	assert.Equal(t, text, DeriveTitle(text))
}

func TestDeriveTitle_Truncates(t *testing.T) {
	text := strings.Repeat("b", 75)
	title := DeriveTitle(text)

	assert.Equal(t, strings.Repeat("b", TitleLimit)+TruncationMarker, title)
	assert.Equal(t, TitleLimit+1, utf8.RuneCountInString(title))
}

func TestDeriveTitle_MultiByte(t *testing.T) {
	text := strings.Repeat("基因", 40)
	title := DeriveTitle(text)

	assert.Equal(t, TitleLimit+1, utf8.RuneCountInString(title))
	assert.True(t, strings.HasSuffix(title, TruncationMarker))
}

func TestValidateNew(t *testing.T) {
	assert.NoError(t, validateNew("notes", "title"))
	assert.ErrorIs(t, validateNew("", "title"), apperr.ErrInvalidInput)
	assert.ErrorIs(t, validateNew("notes", ""), apperr.ErrInvalidInput)
	assert.ErrorIs(t, validateNew("notes", strings.Repeat("x", 62)), apperr.ErrInvalidInput)
	assert.NoError(t, validateNew("notes", DeriveTitle(strings.Repeat("x", 200))))
}

func TestValidateExchange(t *testing.T) {
	now := time.Now()
	assert.NoError(t, validateExchange(model.UserMessage("q", now), model.AssistantMessage("a", nil, now)))
	assert.ErrorIs(t, validateExchange(model.AssistantMessage("a", nil, now), model.UserMessage("q", now)), apperr.ErrInvalidInput)
}

func TestLaterOf(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, base, laterOf(base, base.Add(-time.Minute)))
	assert.Equal(t, base.Add(time.Minute), laterOf(base, base.Add(time.Minute)))
}

func TestCloneSession_DeepCopiesSources(t *testing.T) {
	src := &model.ChatSession{
		ID: "s1",
		Messages: []model.ChatMessage{
			{Role: model.RoleAssistant, Sources: []string{"Cloning (ch1.pdf)"}},
		},
	}
	out := cloneSession(src, true)
	out.Messages[0].Sources[0] = "changed"

	assert.Equal(t, "Cloning (ch1.pdf)", src.Messages[0].Sources[0])
	assert.Nil(t, cloneSession(src, false).Messages)
}
