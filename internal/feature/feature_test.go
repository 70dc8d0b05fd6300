package feature

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_HasAllTools(t *testing.T) {
	r := Defaults()
	assert.Equal(t, []string{Notes, Summarizer, DoubtSolver, QuestionPaper, LessonPlan, AnswerKey}, r.Tags())
	for _, tag := range r.Tags() {
		p, ok := r.Get(tag)
		require.True(t, ok)
		assert.NotEmpty(t, p.SystemPrompt, tag)
		assert.Contains(t, p.SystemPrompt, "This topic is not available in the official Biotechnology notes.")
	}
	_, ok := r.Get("unknown")
	assert.False(t, ok)
}

func TestProfile_Shape(t *testing.T) {
	notes, _ := Defaults().Get(Notes)
	assert.Equal(t, "What is PCR?", notes.Shape("What is PCR?"))

	doubt, _ := Defaults().Get(DoubtSolver)
	shaped := doubt.Shape("Why is DNA a double helix?")
	assert.True(t, strings.HasSuffix(shaped, "Student doubt: Why is DNA a double helix?"))

	plain := Profile{Instruction: "Be brief."}
	assert.Equal(t, "Be brief.\n\nq", plain.Shape("q"))
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
features:
  - tag: notes
    name: Revision Notes
  - tag: flashcards
    name: Flashcards
    system_prompt: You write flashcards.
    instruction: "Cards for: {{question}}"
`), 0o644))

	base := Defaults()
	r, err := LoadOverrides(base, path)
	require.NoError(t, err)

	notes, ok := r.Get(Notes)
	require.True(t, ok)
	assert.Equal(t, "Revision Notes", notes.Name)
	baseNotes, _ := base.Get(Notes)
	assert.Equal(t, baseNotes.SystemPrompt, notes.SystemPrompt)
	assert.Equal(t, "Notes Generator", baseNotes.Name)

	cards, ok := r.Get("flashcards")
	require.True(t, ok)
	assert.Equal(t, "Cards for: mitosis", cards.Shape("mitosis"))
	assert.Equal(t, "flashcards", r.Tags()[len(r.Tags())-1])
}

func TestLoadOverrides_Invalid(t *testing.T) {
	dir := t.TempDir()

	missingPrompt := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(missingPrompt, []byte("features:\n  - tag: new-tool\n"), 0o644))
	_, err := LoadOverrides(Defaults(), missingPrompt)
	assert.Error(t, err)

	_, err = LoadOverrides(Defaults(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	broken := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("features: [\n"), 0o644))
	_, err = LoadOverrides(Defaults(), broken)
	assert.Error(t, err)
}
