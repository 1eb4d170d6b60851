package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kalambet/localdesk/internal/config"
	"github.com/kalambet/localdesk/internal/engine"
	"github.com/kalambet/localdesk/internal/storage"
)

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update app settings (user name, currency, UI keys)",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show app settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings")
		if err != nil {
			return err
		}
		var values map[string]string
		if err := decodeJSON(resp, &values); err != nil {
			return err
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k), values[k])
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set an app setting",
	Long: `Set an app setting. Known keys are user.name and app.currency
(an ISO 4217 code); any key under ui. is stored as given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/settings", map[string]string{key: value})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, result[key])
		return nil
	},
}

var settingsEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open settings JSON in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings")
		if err != nil {
			return err
		}
		var before map[string]string
		if err := decodeJSON(resp, &before); err != nil {
			return err
		}

		data, err := json.MarshalIndent(before, "", "  ")
		if err != nil {
			return err
		}

		tmpFile, err := os.CreateTemp("", "localdesk-settings-*.json")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)

		if _, err := tmpFile.Write(data); err != nil {
			tmpFile.Close()
			return err
		}
		tmpFile.Close()

		editorCmd := exec.CommandContext(cmd.Context(), editor, tmpPath)
		editorCmd.Stdin = os.Stdin
		editorCmd.Stdout = os.Stdout
		editorCmd.Stderr = os.Stderr
		if err := editorCmd.Run(); err != nil {
			return fmt.Errorf("editor exited with error: %w", err)
		}

		edited, err := os.ReadFile(tmpPath)
		if err != nil {
			return err
		}
		var after map[string]string
		if err := json.Unmarshal(edited, &after); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}

		changed := make(map[string]string)
		for k, v := range after {
			if old, ok := before[k]; !ok || old != v {
				changed[k] = v
			}
		}
		if len(changed) == 0 {
			printStep("No changes")
			return nil
		}

		resp, err = client.patch(cmd.Context(), "/settings", changed)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Settings updated (%d changed)", len(changed))
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsEditCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Inspect or reset the local record store",
}

var dataRecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored record sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Records()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(stdout, "No stored records; collections are seeded on the next start.")
			return nil
		}

		rows := make([][]string, len(records))
		for i, r := range records {
			rows[i] = []string{r.Key, strconv.Itoa(r.Size), r.UpdatedAt.Local().Format("2006-01-02 15:04:05")}
		}
		fmt.Fprint(stdout, renderMarkdown(markdownTable([]string{"Key", "Bytes", "Updated"}, rows)))
		return nil
	},
}

var dataResetCmd = &cobra.Command{
	Use:   "reset <key>...",
	Short: "Delete stored record sets so they are seeded again",
	Long: `Delete stored record sets by key (see "localdesk data records"). The
collection is seeded with its sample records the next time the server starts.
Stop the server first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the stored records of %d set(s). Use --confirm to proceed.", len(args))
			return nil
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, key := range args {
			if err := store.Delete(key); err != nil {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
			printSuccess("Reset %s", key)
		}
		return nil
	},
}

func init() {
	dataResetCmd.Flags().Bool("confirm", false, "confirm the reset")
	dataCmd.AddCommand(dataRecordsCmd)
	dataCmd.AddCommand(dataResetCmd)
}

// openStore opens the record store in the configured data directory.
var openStore = func() (dataStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

type dataStore interface {
	Records() ([]storage.RecordInfo, error)
	Delete(key string) error
	Close() error
}

// --- doctor ---

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured AI backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		pull, _ := cmd.Flags().GetBool("pull")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ec := engineConfig(cfg)

		if pull && engine.ResolveProvider(ec) == engine.ProviderOllama {
			printStep("Preparing Ollama model...")
			if err := engine.PrepareOllama(cmd.Context(), ec, os.Stderr); err != nil {
				return err
			}
		}

		failed := 0
		for _, c := range engine.Probe(cmd.Context(), ec) {
			if c.OK {
				printSuccess("%s: %s", c.Name, c.Detail)
			} else {
				printError("%s: %s", c.Name, c.Detail)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().Bool("pull", false, "download and warm the Ollama model")
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
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.ValidKeys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
