package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/config"
	"github.com/kalambet/aiassist/internal/extension"
	"github.com/kalambet/aiassist/internal/extension/glossary"
	"github.com/kalambet/aiassist/internal/storage"
	"github.com/kalambet/aiassist/internal/wordlist"
)

// --- module ---

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Create or list modules",
}

var moduleCreateCmd = &cobra.Command{
	Use:   "create <type> <name>",
	Short: "Create a glossary, book or quiz module",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		m, err := client.createModule(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printSuccess("Created %s module %d (%s)", m.Type, m.ID, m.Name)
		return nil
	},
}

var moduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		modules, err := client.listModules(cmd.Context())
		if err != nil {
			return err
		}
		if len(modules) == 0 {
			fmt.Println("No modules found.")
			return nil
		}
		for _, m := range modules {
			fmt.Printf("%s  %-8s  %s\n", colorize(styleStep, fmt.Sprintf("%4d", m.ID)), m.Type, m.Name)
		}
		return nil
	},
}

func init() {
	moduleCmd.AddCommand(moduleCreateCmd)
	moduleCmd.AddCommand(moduleListCmd)
}

// --- launch ---

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Run an action on a module",
	Long: `Run an action on a module.

By default the action runs in this process and the command returns when it
reaches a final state. With --async it is queued on the running server and
its id is printed.

Examples:
  aiassist launch --module-id 3 --user-id 7 --param '{"wordlist":"cat\ndog"}'
  aiassist launch --module-id 4 --user-id 7 --action generate_questions \
    --param '{"qcontext":"The water cycle","numquestions":3}' --async`,
	RunE: func(cmd *cobra.Command, args []string) error {
		moduleID, _ := cmd.Flags().GetInt64("module-id")
		userID, _ := cmd.Flags().GetInt64("user-id")
		name, _ := cmd.Flags().GetString("action")
		raw, _ := cmd.Flags().GetString("param")
		async, _ := cmd.Flags().GetBool("async")

		if moduleID <= 0 || userID <= 0 {
			return fmt.Errorf("--module-id and --user-id are required")
		}
		form := extension.Form{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &form); err != nil {
				return fmt.Errorf("--param must be a JSON object: %w", err)
			}
		}

		if async {
			if name == "" {
				return fmt.Errorf("--action is required with --async")
			}
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			id, err := client.launchAction(cmd.Context(), moduleID, userID, name, form)
			if err != nil {
				return launchError(err)
			}
			printSuccess("Queued action %d", id)
			fmt.Println(id)
			return nil
		}

		return runLocal(cmd.Context(), func(ctx context.Context, a *app) error {
			return runAction(ctx, a, moduleID, userID, name, form)
		})
	},
}

func init() {
	launchCmd.Flags().Int64("module-id", 0, "module (context) id")
	launchCmd.Flags().Int64("user-id", 0, "id of the user launching the action")
	launchCmd.Flags().String("action", "", "action name (default: the module's only action)")
	launchCmd.Flags().String("param", "", "action form data as a JSON object")
	launchCmd.Flags().Bool("async", false, "queue on the running server instead of running here")
}

// runLocal opens the service graph in-process for one command.
func runLocal(parent context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signalContext(parent)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// runAction validates form and runs the action synchronously, printing its
// final state.
func runAction(ctx context.Context, a *app, moduleID, userID int64, name string, form extension.Form) error {
	ext, m, err := a.registry.ForContext(moduleID)
	if err != nil {
		return err
	}
	if name == "" {
		actions := ext.Actions()
		if len(actions) != 1 {
			return fmt.Errorf("%s modules have several actions; choose one with --action", m.Type)
		}
		name = actions[0]
	}

	data, err := a.registry.Prepare(ctx, moduleID, name, form)
	if err != nil {
		return launchError(err)
	}

	printStep("Running %s on %s module %q", name, m.Type, m.Name)
	final, err := a.actions.RunNow(ctx, userID, moduleID, name, data)
	if final.ID == 0 {
		return launchError(err)
	}
	printAction(final, a.registry.Describe(final))

	var execErr *action.ExecutionError
	switch {
	case err != nil && !errors.As(err, &execErr):
		return err
	case final.Status == storage.StatusError:
		return fmt.Errorf("action %d failed", final.ID)
	}
	return nil
}

// launchError adds the recovery hint to a conflict.
func launchError(err error) error {
	var conflict *action.ConflictError
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w; follow it with: aiassist status %d --watch", err, conflict.ExistingID)
	}
	var remote *apiError
	if errors.As(err, &remote) && remote.ExistingActionID > 0 {
		return fmt.Errorf("%w; follow it with: aiassist status %d --watch", err, remote.ExistingActionID)
	}
	return err
}

func printAction(a storage.Action, description string) {
	printStatus("Action", "%d (%s)", a.ID, a.Name)
	printStatus("Status", "%s", colorize(statusStyle(string(a.Status)), string(a.Status)))
	printStatus("Progress", "%d%%", a.Progress)
	if a.StatusText != "" {
		printStatus("Message", "%s", a.StatusText)
	}
	if description != "" {
		printStatus("Details", "%s", description)
	}
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Generate definitions for a word list file",
	Long: `Generate definitions for a word list file.

The file may be plain text (.txt), PDF (.pdf) or HTML (.html). Its lines are
checked first; the generation runs only when every line is valid.

Examples:
  aiassist import --module-id 3 --user-id 7 --file words.txt
  aiassist import --module-id 3 --file handout.pdf --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		moduleID, _ := cmd.Flags().GetInt64("module-id")
		userID, _ := cmd.Flags().GetInt64("user-id")
		file, _ := cmd.Flags().GetString("file")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if file == "" {
			return fmt.Errorf("--file is required")
		}
		text, err := readWordList(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		res := wordlist.Parse(text, wordlist.Options{
			MaxWordLen:  cfg.Wordlist.MaxWordLen,
			MaxValueLen: cfg.Wordlist.MaxValueLen,
		})
		if !reportWordList(res) {
			return fmt.Errorf("%s has %d invalid line(s)", file, len(res.Errors))
		}
		if dryRun {
			return nil
		}
		if moduleID <= 0 || userID <= 0 {
			return fmt.Errorf("--module-id and --user-id are required unless --dry-run is set")
		}

		return runLocal(cmd.Context(), func(ctx context.Context, a *app) error {
			return runAction(ctx, a, moduleID, userID, glossary.GenerateDefinitions, extension.Form{"wordlist": text})
		})
	},
}

func init() {
	importCmd.Flags().Int64("module-id", 0, "glossary or book module id")
	importCmd.Flags().Int64("user-id", 0, "id of the user launching the action")
	importCmd.Flags().String("file", "", "word list file (.txt, .pdf, .html)")
	importCmd.Flags().Bool("dry-run", false, "only check the word list")
}

// reportWordList prints the parse result and reports whether it is usable.
func reportWordList(res wordlist.Result) bool {
	if !res.OK {
		for _, msg := range res.Messages() {
			printError("%s", msg)
		}
		return false
	}
	if len(res.Entries) == 0 {
		printWarning("The word list has no words.")
		return false
	}
	printSuccess("%d word(s) ready", len(res.Entries))
	return true
}

// --- cancel / active ---

var cancelCmd = &cobra.Command{
	Use:   "cancel <action-id>",
	Short: "Cancel a pending or running action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseActionID(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		cancelled, status, err := client.cancelAction(cmd.Context(), id)
		if err != nil {
			return err
		}
		if cancelled {
			printSuccess("Cancelled action %d", id)
		} else {
			printWarning("Action %d was not active (status: %s)", id, status)
		}
		return nil
	},
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active action of a user in a module",
	RunE: func(cmd *cobra.Command, args []string) error {
		moduleID, _ := cmd.Flags().GetInt64("module-id")
		userID, _ := cmd.Flags().GetInt64("user-id")
		if moduleID <= 0 || userID <= 0 {
			return fmt.Errorf("--module-id and --user-id are required")
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		a, err := client.activeAction(cmd.Context(), moduleID, userID)
		if err != nil {
			return err
		}
		if a == nil {
			fmt.Println("No active action.")
			return nil
		}
		fmt.Printf("%d  %s  %d%%  %s\n", a.ID, colorize(statusStyle(a.Status), a.Status), a.Progress, a.StatusText)
		return nil
	},
}

func init() {
	activeCmd.Flags().Int64("module-id", 0, "module (context) id")
	activeCmd.Flags().Int64("user-id", 0, "user id")
}

func parseActionID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid action id %q", s)
	}
	return id, nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", colorize(styleFaint, "# "+config.FilePath()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(styleBold, k.Key), k.Value, colorize(styleFaint, k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value (secrets go to the OS keyring)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := newConfigSetter().Set(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Restore the default for a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newConfigSetter().Unset(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var newConfigSetter = config.NewSetter

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
