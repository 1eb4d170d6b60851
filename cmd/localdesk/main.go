package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "localdesk",
	Short: "Local records for tasks, tickets, money, stock, students and investments",
	Long: `localdesk keeps the records of six small business apps on this machine
and can ask an AI model to fill their forms from free text or a scanned file.

Run "localdesk serve" to start the local API, then use the other commands
against it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(serveCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(listCmd, addCmd, updateCmd, rmCmd, exportCmd, importCmd)
	rootCmd.AddCommand(assistCmd, settingsCmd, dataCmd, configCmd, doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
