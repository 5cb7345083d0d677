package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alanmeadows/interviewpro/internal/config"
	"github.com/alanmeadows/interviewpro/internal/interview"
	"github.com/alanmeadows/interviewpro/internal/llm"
	"github.com/alanmeadows/interviewpro/internal/render"
	"github.com/alanmeadows/interviewpro/internal/store"
	"github.com/alanmeadows/interviewpro/internal/transcript"
)

var (
	resumeFlag   string
	jobFlag      string
	languageFlag string
	offlineFlag  bool
	rawFlag      bool
)

func init() {
	interviewCmd.Flags().StringVarP(&resumeFlag, "resume", "r", "", "Resume file (markdown or text, - for stdin)")
	interviewCmd.Flags().StringVarP(&jobFlag, "job", "j", "", "Job description file (markdown or text, - for stdin)")
	interviewCmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Interview language (default from config)")
	interviewCmd.Flags().BoolVar(&offlineFlag, "offline", false, "Use the built-in scripted interviewer instead of a model service")
	interviewCmd.Flags().BoolVar(&rawFlag, "raw", false, "Print raw markdown instead of styled output")
}

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run a mock interview in the terminal",
	Long: `Generate an interview script from a resume and a job description, then
answer the interviewer's questions one turn at a time.

Missing inputs are collected with an interactive form. Inside the chat:
  /save [path]  export the transcript as markdown
  /restart      discard this interview and start over
  /quit         leave`,
	Example: `  interviewpro interview
  interviewpro interview --resume cv.md --job posting.txt --language 中文
  interviewpro interview --offline -r cv.md -j posting.md`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		ctrl, provider, err := newController(ctx, appConfig, offlineFlag)
		if err != nil {
			return err
		}
		defer provider.Close()
		defer ctrl.Close()

		c := newChat(cmd, ctrl, appConfig)
		return c.run(ctx)
	},
}

var (
	interviewerLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Render("Interviewer")
	youPrompt        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Render("You › ")
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// chat is one terminal interview: setup, script, then the answer loop.
type chat struct {
	ctrl        *interview.Controller
	cfg         *config.Config
	in          *bufio.Reader
	stdin       io.Reader
	out         io.Writer
	interactive bool
	term        *render.Terminal
	confirm     interview.Confirmer
}

func newChat(cmd *cobra.Command, ctrl *interview.Controller, cfg *config.Config) *chat {
	stdin := cmd.InOrStdin()
	c := &chat{
		ctrl:        ctrl,
		cfg:         cfg,
		in:          bufio.NewReader(stdin),
		stdin:       stdin,
		out:         cmd.OutOrStdout(),
		interactive: isTTY(stdin),
	}

	if !rawFlag && isTTY(c.out) {
		width := render.DefaultWidth
		if f, ok := c.out.(*os.File); ok {
			if w, _, err := term.GetSize(int(f.Fd())); err == nil {
				width = w
			}
		}
		if t, err := render.NewTerminal(width); err == nil {
			c.term = t
		}
	}

	c.confirm = interview.ConfirmFunc(c.confirmLine)
	if c.interactive {
		c.confirm = interview.ConfirmFunc(confirmForm)
	}
	return c
}

func (c *chat) run(ctx context.Context) error {
	setup, err := c.collectSetup()
	if err != nil {
		return err
	}

	for {
		if err := c.generate(ctx, setup); err != nil {
			return err
		}

		restarted, err := c.answerLoop(ctx)
		if err != nil || !restarted {
			return err
		}

		// Without a terminal there is nobody to ask; start over with the same inputs.
		if !c.interactive {
			continue
		}
		resumeFlag, jobFlag = "", ""
		if setup, err = c.collectSetup(); err != nil {
			return err
		}
	}
}

// collectSetup reads flag files and fills the rest with a form.
func (c *chat) collectSetup() (interview.Setup, error) {
	var setup interview.Setup
	var err error

	if resumeFlag != "" {
		if setup.Resume, err = store.ReadInput(resumeFlag, c.stdin); err != nil {
			return setup, err
		}
	}
	if jobFlag != "" {
		if setup.JobDescription, err = store.ReadInput(jobFlag, c.stdin); err != nil {
			return setup, err
		}
	}
	setup.Language = languageFlag
	if setup.Language == "" {
		setup.Language = c.cfg.Interview.DefaultLanguage
	}

	if setup.Resume != "" && setup.JobDescription != "" {
		return setup, setup.Validate()
	}
	if !c.interactive {
		return setup, errors.New("--resume and --job are required when stdin is not a terminal")
	}

	var fields []huh.Field
	if setup.Resume == "" {
		fields = append(fields, huh.NewText().
			Title("Resume").
			Description("Paste the resume you want to be interviewed on").
			CharLimit(store.MaxInputSize).
			Value(&setup.Resume).
			Validate(required("resume")))
	}
	if setup.JobDescription == "" {
		fields = append(fields, huh.NewText().
			Title("Job description").
			CharLimit(store.MaxInputSize).
			Value(&setup.JobDescription).
			Validate(required("job description")))
	}
	if languageFlag == "" && len(c.cfg.Interview.Languages) > 0 {
		fields = append(fields, huh.NewSelect[string]().
			Title("Interview language").
			Options(huh.NewOptions(c.cfg.Interview.Languages...)...).
			Value(&setup.Language))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return setup, fmt.Errorf("form cancelled: %w", err)
	}
	return setup, setup.Validate()
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func (c *chat) generate(ctx context.Context, setup interview.Setup) error {
	fmt.Fprintln(c.out, dimStyle.Render(fmt.Sprintf("Preparing a %s interview script...", setup.Language)))

	err := c.stream(func() error { return c.ctrl.GenerateScript(ctx, setup) })
	st := c.ctrl.State()
	switch {
	case err == nil:
		return nil
	case st.View == interview.ViewSetup && st.Error != "":
		fmt.Fprintln(c.out, errorStyle.Render(st.Error))
		return err
	case st.Error != "":
		// Partial script; the session is still usable.
		fmt.Fprintln(c.out, errorStyle.Render(st.Error))
		return nil
	default:
		return err
	}
}

// answerLoop reads answers until /quit, EOF or a confirmed /restart.
func (c *chat) answerLoop(ctx context.Context) (restarted bool, err error) {
	fmt.Fprintln(c.out, dimStyle.Render("Answer the first question. /save exports, /restart starts over, /quit leaves."))

	for {
		fmt.Fprint(c.out, "\n"+youPrompt)
		line, ok := c.readMessage()
		if !ok || ctx.Err() != nil {
			fmt.Fprintln(c.out)
			return false, nil
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(text, " ")
		switch cmd {
		case "/quit", "/exit":
			return false, nil

		case "/restart":
			ok, err := c.ctrl.Restart(c.confirm)
			if err != nil {
				return false, err
			}
			if ok {
				fmt.Fprintln(c.out, dimStyle.Render("Starting a new session."))
				return true, nil
			}

		case "/save":
			path, err := c.save(strings.TrimSpace(arg))
			if err != nil {
				fmt.Fprintln(c.out, errorStyle.Render(err.Error()))
				continue
			}
			fmt.Fprintln(c.out, dimStyle.Render("Saved "+path))

		case "/help":
			fmt.Fprintln(c.out, dimStyle.Render("/save [path]  /restart  /quit"))

		default:
			if err := c.stream(func() error { return c.ctrl.SendTurn(ctx, line) }); err != nil {
				if errors.Is(err, interview.ErrBusy) || errors.Is(err, interview.ErrNoSession) {
					fmt.Fprintln(c.out, errorStyle.Render(err.Error()))
				}
				if llm.IsServiceError(err) && ctx.Err() != nil {
					return false, nil
				}
			}
		}
	}
}

// readMessage reads one answer. A line ending in a backslash continues on
// the next line.
func (c *chat) readMessage() (string, bool) {
	var lines []string
	for {
		line, err := c.in.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err != nil && line == "" && len(lines) == 0 {
			return "", false
		}
		if cont, ok := strings.CutSuffix(line, `\`); ok && err == nil {
			lines = append(lines, cont)
			fmt.Fprint(c.out, "  ")
			continue
		}
		lines = append(lines, line)
		return strings.Join(lines, "\n"), true
	}
}

// stream runs op while printing the interviewer's reply as it arrives.
func (c *chat) stream(op func() error) error {
	fmt.Fprintf(c.out, "\n%s\n", interviewerLabel)
	p := &blockPrinter{w: c.out, term: c.term}

	unsubscribe := c.ctrl.Subscribe(func(evt interview.Event) {
		if evt.Type != interview.EventTurnUpdated || evt.Turn < 0 || evt.Turn >= len(evt.State.Turns) {
			return
		}
		if t := evt.State.Turns[evt.Turn]; t.Role == transcript.RoleAssistant {
			p.update(t.Text)
		}
	})
	err := op()
	unsubscribe()

	if last, ok := lastAssistant(c.ctrl.State().Turns); ok {
		p.finish(last)
	}
	return err
}

func lastAssistant(turns []transcript.Turn) (transcript.Turn, bool) {
	if n := len(turns); n > 0 && turns[n-1].Role == transcript.RoleAssistant {
		return turns[n-1], true
	}
	return transcript.Turn{}, false
}

func (c *chat) save(path string) (string, error) {
	st := c.ctrl.State()
	meta := store.ExportMeta{
		SessionID:  st.SessionID,
		Language:   st.Language,
		Model:      c.cfg.Model.Name,
		ExportedAt: time.Now(),
	}
	if path == "" {
		path = filepath.Join(config.ExpandHome(c.cfg.Export.Dir), store.ExportFilename(meta))
	}
	if err := store.ExportTranscript(path, meta, st.Turns); err != nil {
		return "", err
	}
	return path, nil
}

func (c *chat) confirmLine(prompt string) (bool, error) {
	fmt.Fprintf(c.out, "%s [y/N] ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func confirmForm(prompt string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(prompt).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func isTTY(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
