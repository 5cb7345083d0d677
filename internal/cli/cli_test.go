package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanmeadows/interviewpro/internal/config"
	"github.com/alanmeadows/interviewpro/internal/interview"
	"github.com/alanmeadows/interviewpro/internal/llm"
	"github.com/alanmeadows/interviewpro/internal/store"
	"github.com/alanmeadows/interviewpro/internal/transcript"
)

func TestBlockPrinterRaw(t *testing.T) {
	var buf bytes.Buffer
	p := &blockPrinter{w: &buf}

	p.update("Hello")
	p.update("Hello, wor")
	p.update("Hello, world.")
	p.finish(transcript.Turn{Role: transcript.RoleAssistant, Text: "Hello, world."})

	assert.Equal(t, "Hello, world.\n", buf.String())
}

func TestBlockPrinterFailedTurn(t *testing.T) {
	var buf bytes.Buffer
	p := &blockPrinter{w: &buf}

	p.update("Partial")
	p.update(interview.TurnFailedMessage)
	p.finish(transcript.Turn{Role: transcript.RoleAssistant, Text: interview.TurnFailedMessage, Interrupted: true})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Partial\n"))
	assert.Contains(t, out, "Error: Connection lost. Please try again.")
}

func TestBlockPrinterInterrupted(t *testing.T) {
	var buf bytes.Buffer
	p := &blockPrinter{w: &buf}

	p.update("## Script")
	p.finish(transcript.Turn{Role: transcript.RoleAssistant, Text: "## Script", Interrupted: true})

	assert.Contains(t, buf.String(), "(response interrupted)")
}

func TestFlushPoint(t *testing.T) {
	tests := []struct {
		name string
		text string
		from int
		want int
	}{
		{"no block yet", "## Heading", 0, 0},
		{"one block", "## Heading\n\nBody", 0, len("## Heading\n\n")},
		{"last of several", "a\n\nb\n\nc", 0, len("a\n\nb\n\n")},
		{"inside fence", "```go\nx := 1\n\ny := 2", 0, 0},
		{"after fence closes", "```go\nx\n\ny\n```\n\nnext", 0, len("```go\nx\n\ny\n```\n\n")},
		{"from offset", "a\n\nb", 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flushPoint(tt.text, tt.from))
		})
	}
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, int64(8192), parseValue("8192"))
	assert.Equal(t, 1.5, parseValue("1.5"))
	assert.Equal(t, "copilot", parseValue("copilot"))
}

func TestSetConfigValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "interviewpro.jsonc")

	require.NoError(t, setConfigValue(path, "model.provider", "scripted"))
	require.NoError(t, setConfigValue(path, "server.port", int64(8080)))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "INTERVIEWPRO_PROVIDER", "INTERVIEWPRO_MODEL"} {
		t.Setenv(name, "")
	}
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "scripted", cfg.Model.Provider)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gemini-3-pro-preview", cfg.Model.Name)
}

func TestRedactConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model.APIKey = "secret"

	redacted := redactConfig(&cfg)
	assert.Equal(t, "***", redacted.Model.APIKey)
	assert.Equal(t, "secret", cfg.Model.APIKey)
}

func TestControllerOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model.TurnTimeout = "45s"

	opts := controllerOptions(&cfg)
	assert.Equal(t, "gemini-3-pro-preview", opts.Model)
	assert.Equal(t, 32768, opts.ReasoningEffort)
	assert.Equal(t, 45*time.Second, opts.TurnTimeout)
}

func TestNewControllerOffline(t *testing.T) {
	cfg := config.DefaultConfig()
	ctrl, provider, err := newController(context.Background(), &cfg, true)
	require.NoError(t, err)
	defer provider.Close()
	defer ctrl.Close()

	_, ok := provider.(*llm.ScriptedClient)
	assert.True(t, ok)
}

// setFlags sets the interview flags for one test.
func setFlags(t *testing.T, resume, job, language string) {
	t.Helper()
	oldResume, oldJob, oldLang := resumeFlag, jobFlag, languageFlag
	resumeFlag, jobFlag, languageFlag = resume, job, language
	t.Cleanup(func() { resumeFlag, jobFlag, languageFlag = oldResume, oldJob, oldLang })
}

func writeInputs(t *testing.T) (resume, job string) {
	t.Helper()
	dir := t.TempDir()
	resume = filepath.Join(dir, "resume.md")
	job = filepath.Join(dir, "job.md")
	require.NoError(t, os.WriteFile(resume, []byte("Go developer, 6 years."), 0644))
	require.NoError(t, os.WriteFile(job, []byte("Staff platform engineer."), 0644))
	return resume, job
}

func TestChatSession(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resume, job := writeInputs(t)
	setFlags(t, resume, job, "French")

	savePath := filepath.Join(t.TempDir(), "out.md")
	client := llm.NewScriptedClient()
	client.Queue("## Script\n\n", "**Q1:** Pourquoi Go ?")
	client.Queue("Merci. ", "Question suivante.")

	cfg := config.DefaultConfig()
	ctrl := interview.New(client, controllerOptions(&cfg))
	defer ctrl.Close()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("J'aime la \\\nconcurrence.\n/save " + savePath + "\n/quit\n"))
	cmd.SetOut(&out)

	c := newChat(cmd, ctrl, &cfg)
	require.NoError(t, c.run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "**Q1:** Pourquoi Go ?")
	assert.Contains(t, text, "Merci. Question suivante.")
	assert.Contains(t, text, "Saved "+savePath)

	calls := client.SendHistory()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Message, "LANGUAGE: French")
	assert.Equal(t, "J'aime la \nconcurrence.", calls[1].Message)

	doc, err := store.ReadDocument(savePath)
	require.NoError(t, err)
	assert.Equal(t, "French", store.GetString(doc.Frontmatter, "language"))
	assert.Equal(t, 3, store.GetInt(doc.Frontmatter, "turns"))
}

func TestChatRestartDeclinedAndEOF(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resume, job := writeInputs(t)
	setFlags(t, resume, job, "")

	client := llm.NewScriptedClient()
	cfg := config.DefaultConfig()
	ctrl := interview.New(client, controllerOptions(&cfg))
	defer ctrl.Close()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("/restart\nn\n"))
	cmd.SetOut(&out)

	c := newChat(cmd, ctrl, &cfg)
	require.NoError(t, c.run(context.Background()))

	assert.Contains(t, out.String(), interview.RestartPrompt)
	st := ctrl.State()
	assert.Equal(t, interview.ViewInterview, st.View)
	assert.Contains(t, client.SendHistory()[0].Message, "LANGUAGE: English")
}

func TestChatScriptFailure(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resume, job := writeInputs(t)
	setFlags(t, resume, job, "English")

	client := llm.NewScriptedClient()
	client.CreateErr = errors.New("503")
	cfg := config.DefaultConfig()
	ctrl := interview.New(client, controllerOptions(&cfg))
	defer ctrl.Close()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&out)

	err := newChat(cmd, ctrl, &cfg).run(context.Background())
	require.Error(t, err)
	assert.True(t, llm.IsServiceError(err))
	assert.Contains(t, out.String(), interview.ScriptFailedMessage)
}

func TestChatRequiresInputsWithoutTTY(t *testing.T) {
	setFlags(t, "", "", "")
	cfg := config.DefaultConfig()
	ctrl := interview.New(llm.NewScriptedClient(), interview.Options{})
	defer ctrl.Close()

	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&bytes.Buffer{})

	err := newChat(cmd, ctrl, &cfg).run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--resume and --job are required")
}

func TestSetConfigValueRejectsWrongType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interviewpro.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{\n  // port\n  \"server\": {\"port\": 4099}\n}\n"), 0644))

	err := setConfigValue(path, "server.port", "eighty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "// port")
}

func TestChatRestartWithoutTTYReusesInputs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resume, job := writeInputs(t)
	setFlags(t, resume, job, "Spanish")

	client := llm.NewScriptedClient()
	client.Queue("## Guion 1")
	client.Queue("## Guion 2")
	cfg := config.DefaultConfig()
	ctrl := interview.New(client, controllerOptions(&cfg))
	defer ctrl.Close()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("/restart\ny\n/quit\n"))
	cmd.SetOut(&out)

	require.NoError(t, newChat(cmd, ctrl, &cfg).run(context.Background()))

	calls := client.SendHistory()
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.Contains(t, call.Message, "LANGUAGE: Spanish")
		assert.Contains(t, call.Message, "Go developer, 6 years.")
	}
	assert.Contains(t, out.String(), "Starting a new session.")
	assert.Contains(t, out.String(), "## Guion 2")

	st := ctrl.State()
	require.Len(t, st.Turns, 1)
	assert.Equal(t, "## Guion 2", st.Turns[0].Text)
}
