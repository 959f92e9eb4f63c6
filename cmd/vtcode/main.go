package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vtcode/vtcode/internal/log"
	"github.com/vtcode/vtcode/internal/provider"
	"github.com/vtcode/vtcode/internal/runloop"
	"github.com/vtcode/vtcode/internal/tool"
	"github.com/vtcode/vtcode/internal/tui"

	// Import providers for registration
	_ "github.com/vtcode/vtcode/internal/provider/anthropic"
	_ "github.com/vtcode/vtcode/internal/provider/google"
	_ "github.com/vtcode/vtcode/internal/provider/moonshot"
	_ "github.com/vtcode/vtcode/internal/provider/openai"
)

var (
	version = "0.1.0"
)

func init() {
	// Load .env file if it exists (silent fail if not found)
	_ = godotenv.Load()

	// Initialize logging (enabled via VTCODE_DEBUG=1)
	_ = log.Init()
}

func main() {
	defer log.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vtcode [message]",
	Short: "VTCode - autonomous coding agent for the terminal",
	Long: `VTCode drives an LLM through a multi-turn conversation, dispatching
tool calls against the local workspace under policy gating, budget
management, loop detection, and steering.

Non-interactive mode:
  vtcode "your message"       Run one turn-orchestrated session and exit
  echo "message" | vtcode     Send a message via stdin
  vtcode -p "prompt"          Use a custom prompt`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		message := getInputMessage(args)

		if message != "" {
			if err := runNonInteractive(message); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		// Interactive mode (TUI)
		if err := tui.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// promptFlag is the custom prompt flag
var promptFlag string

// modeFlag selects the Session Controller's starting mode.
var modeFlag string

func init() {
	rootCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Custom prompt to send")
	rootCmd.Flags().StringVarP(&modeFlag, "mode", "m", "agent", "Starting mode: edit, plan, or agent")
}

// getInputMessage gets input from args, flags, or stdin
func getInputMessage(args []string) string {
	if promptFlag != "" {
		return promptFlag
	}

	if len(args) > 0 {
		return strings.Join(args, " ")
	}

	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		reader := bufio.NewReader(os.Stdin)
		data, err := io.ReadAll(reader)
		if err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// runNonInteractive drives one Session Controller round through the Turn
// Orchestrator and prints the resulting assistant text, tool activity, and
// any approval prompts to the terminal.
func runNonInteractive(message string) error {
	ctx := context.Background()

	store, err := provider.NewStore()
	if err != nil {
		return fmt.Errorf("failed to load store: %w", err)
	}

	var llmProvider provider.LLMProvider
	var model string

	current := store.GetCurrentModel()
	if current != nil {
		p, err := provider.GetProvider(ctx, current.Provider, current.AuthMethod)
		if err != nil {
			return fmt.Errorf("provider %s (%s) not available: %w. Run 'vtcode' and use /provider to connect",
				current.Provider, current.AuthMethod, err)
		}
		llmProvider = p
		model = current.ModelID
	} else {
		connections := store.GetConnections()
		for providerName, conn := range connections {
			p, err := provider.GetProvider(ctx, provider.Provider(providerName), conn.AuthMethod)
			if err == nil {
				llmProvider = p
				model = getDefaultModel(providerName, conn.AuthMethod)
				break
			}
		}
	}

	if llmProvider == nil {
		return fmt.Errorf("no provider connected. Run 'vtcode' and use /provider to connect")
	}

	mode := runloop.ModeAgent
	switch strings.ToLower(modeFlag) {
	case "edit":
		mode = runloop.ModeEdit
	case "plan":
		mode = runloop.ModePlan
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}

	controller := runloop.NewController(runloop.ControllerConfig{
		Provider:     llmProvider,
		Model:        model,
		WorkspaceDir: cwd,
		Mode:         mode,
		SystemPrompt: "You are a helpful autonomous coding agent.",
		ToolRegistry: tool.DefaultRegistry,
		Approver: runloop.ApproverFunc(func(ctx context.Context, req runloop.ApprovalRequest) runloop.ApprovalDecision {
			fmt.Printf("\n[approval] %s wants to run %q\n", req.ToolName, req.Summary)
			fmt.Print("approve? [y/N] ")
			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			if strings.TrimSpace(strings.ToLower(line)) == "y" {
				return runloop.Approved
			}
			return runloop.Denied
		}),
	})

	result, err := controller.RunTurn(ctx, message)
	if err != nil {
		return err
	}

	fmt.Println(result.FinalText)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vtcode version %s\n", version)
	},
}

var helpCmd = &cobra.Command{
	Use:   "help",
	Short: "Show help information",
	Long:  "Display help information about VTCode and its commands.",
	Run: func(cmd *cobra.Command, args []string) {
		printHelp()
	},
}

func printHelp() {
	help := `
VTCode - autonomous coding agent for the terminal

Usage:
  vtcode [message]              Non-interactive mode with message
  vtcode                        Start interactive chat mode
  vtcode [command]              Run a command

Non-interactive Mode:
  vtcode "your message"         Send a message directly
  echo "message" | vtcode       Send a message via stdin
  vtcode -p "prompt"            Use a custom prompt
  vtcode -m plan "..."          Start in read-only Plan mode

Commands:
  version      Print the version number
  help         Show this help message

Interactive Mode:
  Enter        Send message
  Alt+Enter    Insert newline
  Up/Down      Navigate input history
  Esc          Stop AI response
  Ctrl+C       Clear input / Quit

Interactive Commands:
  /provider    Select and connect to a provider
  /model       Select a model
  /clear       Clear chat history
  /help        Show help

Examples:
  vtcode                        Start interactive chat
  vtcode "Explain this code"    Quick question
  cat file.go | vtcode "Review" Review file via pipe
  vtcode version                Show version

For more information, visit: https://github.com/vtcode/vtcode
`
	fmt.Println(help)
}

// getDefaultModel returns the default model for a provider and auth method
func getDefaultModel(providerName string, authMethod provider.AuthMethod) string {
	switch providerName {
	case "anthropic":
		if authMethod == provider.AuthVertex {
			return "claude-sonnet-4-5@20250929" // Vertex AI format
		}
		return "claude-sonnet-4-20250514" // API key format
	case "openai":
		return "gpt-4o"
	case "google":
		return "gemini-2.0-flash"
	default:
		return "claude-sonnet-4-20250514"
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(helpCmd)
	rootCmd.SetHelpCommand(helpCmd)
}
