package debugcli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/stagehand-dev/stagehand/pkg/checkpoint"
	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/merge"
	"github.com/stagehand-dev/stagehand/pkg/param"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/workspace"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
)

var (
	boldBlue   = color.New(color.FgBlue, color.Bold).SprintFunc()
	boldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldRed    = color.New(color.FgRed, color.Bold).SprintFunc()
	boldYellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	dimText    = color.New(color.Faint).SprintFunc()

	// To track double Ctrl+C for exit
	lastInterrupt *time.Time
)

// ConsoleOptions defines configuration options for the debug console
type ConsoleOptions struct {
	ProjectID      string   // Project ID to use for commands
	NonInteractive bool     // If true, run in non-interactive mode (execute command and exit)
	Command        []string // Command to execute in non-interactive mode
}

// DebugConsole represents the debug console state
type DebugConsole struct {
	ctx           context.Context
	pgClient      *pgx.Conn
	checkpoints   *checkpoint.Manager
	activeProject *workspacetypes.Project
	readline      *readline.Instance
	options       ConsoleOptions
}

// RunConsole initializes and runs the debug console with the given options
func RunConsole(options ConsoleOptions) error {
	logger.SetDebug()
	ctx := context.Background()

	// A console session is serial, so one unpooled connection is enough.
	pgClient := persistence.MustGetUnpooledPostgresSession()
	defer pgClient.Close(ctx)

	console := &DebugConsole{
		ctx:         ctx,
		pgClient:    pgClient,
		checkpoints: checkpoint.NewManager(param.Get().DataDir),
		options:     options,
	}

	if options.ProjectID != "" {
		if err := console.selectProjectById(options.ProjectID); err != nil {
			return errors.Wrapf(err, "failed to select project with ID %s", options.ProjectID)
		}
	}

	if options.NonInteractive {
		if len(options.Command) == 0 {
			return errors.New("no command specified in non-interactive mode")
		}
		if console.activeProject == nil {
			return errors.New("project ID is required for non-interactive mode")
		}
		return console.executeCommand(options.Command[0], options.Command[1:])
	}

	if err := console.run(); err != nil {
		return errors.Wrap(err, "console error")
	}

	return nil
}

func (c *DebugConsole) run() error {
	fmt.Println(boldBlue("Stagehand Debug Console"))
	fmt.Println(dimText("Type 'help' for available commands, 'exit' to quit"))
	fmt.Println(dimText("Use '/project <id>' to select a project"))
	fmt.Println(dimText("Press Ctrl+C twice in quick succession to exit"))
	fmt.Println()

	var historyFile string
	usr, err := user.Current()
	if err == nil {
		historyFile = filepath.Join(usr.HomeDir, ".stagehand_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            boldYellow("[NO PROJECT]> "),
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		HistoryLimit:      1000,
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("/project"),
			readline.PcItem("/help"),
			readline.PcItem("help"),
			readline.PcItem("list-documents"),
			readline.PcItem("show-document"),
			readline.PcItem("diff"),
			readline.PcItem("apply-patch"),
			readline.PcItem("merge-preview"),
			readline.PcItem("workflows"),
			readline.PcItem("history"),
			readline.PcItem("checkpoints"),
			readline.PcItem("restore"),
			readline.PcItem("exit"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return errors.Wrap(err, "failed to initialize readline")
	}
	defer rl.Close()

	c.readline = rl

	for {
		if c.activeProject != nil {
			rl.SetPrompt(boldGreen(fmt.Sprintf("project[%s]> ", c.activeProject.Name)))
		} else {
			rl.SetPrompt(boldYellow("[NO PROJECT]> "))
		}

		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				fmt.Println("^C")
				if lastInterrupt != nil && time.Since(*lastInterrupt) < 2*time.Second {
					fmt.Println("Exiting...")
					return nil
				}
				now := time.Now()
				lastInterrupt = &now
				continue
			} else if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "failed to read input")
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" {
			return nil
		}

		parts := strings.Fields(input)
		cmd := parts[0]
		args := parts[1:]

		if strings.HasPrefix(cmd, "/") {
			switch cmd[1:] {
			case "project":
				if len(args) == 1 {
					if err := c.selectProjectById(args[0]); err != nil {
						fmt.Println(boldRed("Error:"), err)
					}
				} else if len(args) == 0 {
					if err := c.listAvailableProjects(); err != nil {
						fmt.Println(boldRed("Error:"), err)
					}
				} else {
					fmt.Println(boldRed("Error: Use '/project' or '/project <id>'"))
				}
			case "help":
				c.showHelp()
			default:
				fmt.Printf(boldRed("Error: Unknown command '%s'\n"), cmd)
			}
			continue
		}

		if err := c.executeCommand(cmd, args); err != nil {
			fmt.Println(boldRed("Error:"), err)
		}
	}
}

func (c *DebugConsole) executeCommand(cmd string, args []string) error {
	if c.activeProject == nil && cmd != "help" && cmd != "project" {
		if c.options.NonInteractive {
			return errors.New("project ID is required. Use --project-id flag")
		}
		return errors.New("no project selected. Use '/project <id>' to select a project")
	}

	switch cmd {
	case "help":
		c.showHelp()
	case "project":
		return c.listAvailableProjects()
	case "list-documents":
		return c.listProjectDocuments()
	case "show-document":
		return c.showDocument(args)
	case "diff":
		return c.diffDocument(args)
	case "apply-patch":
		return c.applyPatch(args)
	case "merge-preview":
		return c.mergePreview(args)
	case "workflows":
		return c.listWorkflows()
	case "history":
		return c.showHistory()
	case "checkpoints":
		return c.listCheckpoints(args)
	case "restore":
		return c.restoreCheckpoint(args)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func (c *DebugConsole) selectProjectById(id string) error {
	project, err := workspace.GetProject(c.ctx, id)
	if err != nil {
		return errors.Wrapf(err, "failed to get project with ID: %s", id)
	}

	c.activeProject = project

	if !c.options.NonInteractive {
		fmt.Printf(boldGreen("Selected project: %s (ID: %s)\n"), project.Name, project.ID)
	}

	return nil
}

func (c *DebugConsole) listAvailableProjects() error {
	query := `
        SELECT id, name, created_at, last_updated_at
        FROM project
        ORDER BY last_updated_at DESC
        LIMIT 50
    `

	rows, err := c.pgClient.Query(c.ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to list projects")
	}
	defer rows.Close()

	fmt.Println(boldBlue("Available projects:"))
	for rows.Next() {
		var p workspacetypes.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.LastUpdatedAt); err != nil {
			return errors.Wrap(err, "failed to scan project")
		}
		fmt.Printf("  %s  %s  %s\n", p.ID, p.Name, dimText(p.LastUpdatedAt.Format(time.RFC3339)))
	}

	return rows.Err()
}

func (c *DebugConsole) listProjectDocuments() error {
	docs, err := workspace.ListDocuments(c.activeProject.ID)
	if err != nil {
		return errors.Wrap(err, "failed to list documents")
	}

	if len(docs) == 0 {
		fmt.Println(dimText("No documents in project"))
		return nil
	}

	for _, doc := range docs {
		fmt.Printf("  %-50s %8d  %s\n", doc.Path, doc.Size, dimText(doc.Hash[:12]))
	}
	return nil
}

func (c *DebugConsole) showDocument(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show-document <path>")
	}

	doc, err := workspace.GetDocument(c.activeProject.ID, args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to get document %s", args[0])
	}

	fmt.Println(dimText(fmt.Sprintf("-- %s (hash %s)", doc.Path, doc.Hash[:12])))
	fmt.Println(doc.Content)
	return nil
}

// diffDocument prints a unified diff between the stored document and a
// local file, without writing anything.
func (c *DebugConsole) diffDocument(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: diff <path> <local-file>")
	}

	doc, err := workspace.GetDocument(c.activeProject.ID, args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to get document %s", args[0])
	}

	local, err := os.ReadFile(args[1])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[1])
	}

	patch, err := merge.GeneratePatch(doc.Path, doc.Content, string(local))
	if err != nil {
		return errors.Wrap(err, "failed to generate patch")
	}

	if patch == "" {
		fmt.Println(dimText("No differences"))
		return nil
	}
	fmt.Println(patch)
	return nil
}

// applyPatch validates a unified diff against the stored document and
// writes the patched content back.
func (c *DebugConsole) applyPatch(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: apply-patch <path> <patch-file>")
	}

	doc, err := workspace.GetDocument(c.activeProject.ID, args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to get document %s", args[0])
	}

	patch, err := os.ReadFile(args[1])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[1])
	}

	edits, err := merge.EditsFromUnifiedDiff(doc.Content, patch)
	if err != nil {
		return errors.Wrap(err, "patch does not apply")
	}

	patched, err := merge.ApplyRangeEdits(doc.Content, edits)
	if err != nil {
		return errors.Wrap(err, "failed to apply edits")
	}

	if err := workspace.WriteDocument(c.activeProject.ID, doc.Path, patched); err != nil {
		return errors.Wrapf(err, "failed to write %s", doc.Path)
	}

	fmt.Println(boldGreen(fmt.Sprintf("Applied %d edit(s) to %s", len(edits), doc.Path)))
	return nil
}

// mergePreview runs a three way merge of the stored document (base), its
// current on-disk content, and a proposed local file. Nothing is written.
func (c *DebugConsole) mergePreview(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: merge-preview <path> <proposed-file>")
	}

	doc, err := workspace.GetDocument(c.activeProject.ID, args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to get document %s", args[0])
	}

	proposed, err := os.ReadFile(args[1])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[1])
	}

	result := merge.Diff3Merge(doc.Content, doc.Content, string(proposed))
	if len(result.Conflicts) == 0 {
		fmt.Println(boldGreen("Clean merge"))
	} else {
		fmt.Println(boldRed(fmt.Sprintf("%d conflict(s)", len(result.Conflicts))))
		for _, conflict := range result.Conflicts {
			fmt.Printf("  lines %d-%d\n", conflict.StartLine, conflict.EndLine)
		}
	}
	fmt.Println(dimText("-- merged result --"))
	fmt.Println(result.MergedText)
	return nil
}

func (c *DebugConsole) listWorkflows() error {
	query := `
        SELECT id, status, current_step, created_at
        FROM workflow
        WHERE project_id = $1
        ORDER BY created_at DESC
        LIMIT 50
    `

	rows, err := c.pgClient.Query(c.ctx, query, c.activeProject.ID)
	if err != nil {
		return errors.Wrap(err, "failed to list workflows")
	}
	defer rows.Close()

	for rows.Next() {
		var id, status string
		var currentStep int
		var createdAt time.Time
		if err := rows.Scan(&id, &status, &currentStep, &createdAt); err != nil {
			return errors.Wrap(err, "failed to scan workflow")
		}
		fmt.Printf("  %s  %-10s step=%d  %s\n", id, status, currentStep, dimText(createdAt.Format(time.RFC3339)))
	}

	return rows.Err()
}

// showHistory prints the project's conversation, oldest first.
func (c *DebugConsole) showHistory() error {
	messages, err := workspace.ListChatMessages(c.ctx, c.activeProject.ID)
	if err != nil {
		return errors.Wrap(err, "failed to list chat messages")
	}

	if len(messages) == 0 {
		fmt.Println(dimText("No messages in project"))
		return nil
	}

	for _, m := range messages {
		fmt.Printf("%s %s\n", dimText(m.CreatedAt.Format(time.RFC3339)), boldBlue("user:"))
		fmt.Println(m.Prompt)
		if m.Response != "" {
			fmt.Println(boldGreen("assistant:"))
			fmt.Println(m.Response)
		}
		fmt.Println()
	}
	return nil
}

func (c *DebugConsole) listCheckpoints(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: checkpoints <workflow-id>")
	}

	summaries, err := c.checkpoints.List(c.ctx, args[0])
	if err != nil {
		return errors.Wrap(err, "failed to list checkpoints")
	}

	if len(summaries) == 0 {
		fmt.Println(dimText("No checkpoints for workflow"))
		return nil
	}

	for _, s := range summaries {
		files := ""
		if s.IncludesWorkspace {
			files = fmt.Sprintf("  %d file(s)", s.FileCount)
		}
		fmt.Printf("  %s  %s%s  %s\n", s.ID, dimText(s.CreatedAt.Format(time.RFC3339)), files, s.Note)
	}
	return nil
}

func (c *DebugConsole) restoreCheckpoint(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: restore <checkpoint-id> [conversation|workspace|both]")
	}

	mode := checkpoint.RestoreModeBoth
	if len(args) == 2 {
		mode = checkpoint.RestoreMode(args[1])
		switch mode {
		case checkpoint.RestoreModeConversation, checkpoint.RestoreModeWorkspace, checkpoint.RestoreModeBoth:
		default:
			return fmt.Errorf("unknown restore mode: %s", args[1])
		}
	}

	target := workspace.ProjectDir(c.activeProject.ID)
	result, err := c.checkpoints.Restore(c.ctx, args[0], mode, target)
	if err != nil {
		return errors.Wrapf(err, "failed to restore checkpoint %s", args[0])
	}

	fmt.Println(boldGreen(fmt.Sprintf("Restored checkpoint %s", result.Summary.ID)))
	if result.State != nil {
		fmt.Printf("  conversation state: %d bytes\n", len(result.State))
	}
	if result.Manifest != nil {
		fmt.Printf("  workspace files extracted: %d\n", len(result.Manifest.Files))
	} else if mode != checkpoint.RestoreModeConversation && !result.Summary.IncludesWorkspace {
		fmt.Println(dimText("  checkpoint has no workspace snapshot; workspace untouched"))
	}
	return nil
}

func (c *DebugConsole) showHelp() {
	fmt.Println(boldBlue("Available commands:"))
	fmt.Println("  /project [id]                      List projects or select one")
	fmt.Println("  list-documents                     List documents in the active project")
	fmt.Println("  show-document <path>               Print a document")
	fmt.Println("  diff <path> <local-file>           Unified diff of stored document vs a local file")
	fmt.Println("  apply-patch <path> <patch-file>    Validate and apply a unified diff")
	fmt.Println("  merge-preview <path> <proposed>    Three way merge dry run")
	fmt.Println("  workflows                          List workflows for the active project")
	fmt.Println("  history                            Print the project's conversation")
	fmt.Println("  checkpoints <workflow-id>          List checkpoints")
	fmt.Println("  restore <id> [mode]                Restore a checkpoint into the project")
	fmt.Println("  help                               Show this help")
	fmt.Println("  exit                               Exit the console")
}
