// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-aper.
//
// go-aper is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.


package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-aper/pkg/aper"
	"github.com/jeremyhahn/go-aper/pkg/cli"
	"github.com/jeremyhahn/go-aper/pkg/export"
	"github.com/jeremyhahn/go-aper/pkg/version"
)

var (
	cfgFile      string
	viperConfig  *viper.Viper
	globalConfig *cli.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, cli.FormatError(err, outputFormat()))
		os.Exit(cli.ExitCode(err))
	}
}

func outputFormat() cli.OutputFormat {
	if globalConfig == nil {
		return cli.FormatText
	}
	return cli.OutputFormat(globalConfig.OutputFormat)
}

var rootCmd = &cobra.Command{
	Use:   "aper",
	Short: "Maintain the anti-phishing reply, cleared and links lists",
	Long: `aper merges batches of reported phishing addresses into the flat-file
databases that mail filters consume.

Lists:
  - reply   : reply-to addresses seen in phishing mail (address,TYPES,YYYYMMDD)
  - cleared : reply addresses taken off the list (address,YYYYMMDD)
  - links   : phishing URLs, stored without scheme (host/path,YYYYMMDD)

Every database is rewritten atomically. A batch with a single bad record
leaves the database untouched.

Exit status:
  0   success
  1   usage error
  11  the database could not be loaded
  12  the batch could not be loaded
  13  the database could not be written

Configuration can be provided via:
  - Command-line flags (highest priority)
  - Environment variables (APER_*)
  - Configuration file (~/.aper.yaml or ./.aper.yaml)
  - Default values (lowest priority)`,
	SilenceErrors: true,
	SilenceUsage:  true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = cmd.Usage()
		return fmt.Errorf("%w: no list selected", cli.ErrUsage)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		viperConfig, err = cli.InitConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("%w: %w", cli.ErrUsage, err)
		}

		if err := viperConfig.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}

		globalConfig = cli.GetConfig(viperConfig)
		return nil
	},
}

// newMergeCmd builds the merge command for one list.
func newMergeCmd(list aper.List, short, example string) *cobra.Command {
	return &cobra.Command{
		Use:   list.String() + " [batch-file]",
		Short: short,
		Long: fmt.Sprintf(`Merge a batch into the %s list and rewrite its database.
If batch-file is not specified or is '-', the batch is read from stdin.`, list),
		Example: example,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.Context(), list, args, false)
		},
	}
}

var replyCmd = newMergeCmd(aper.Reply, "Merge reply-to addresses",
	`  aper reply batch.txt                           # Merge a batch file
  cat batch.txt | aper reply                     # Merge from stdin
  aper reply batch.txt -o json                   # Report as JSON`)

var clearedCmd = newMergeCmd(aper.Cleared, "Merge cleared addresses",
	`  aper cleared cleared-batch.txt                 # Merge a batch file
  aper --data-dir /etc/postfix/aper cleared -    # Merge from stdin`)

var linksCmd = newMergeCmd(aper.Links, "Merge phishing links",
	`  aper links urls.txt                            # Merge a batch file
  aper links urls.txt -o table                   # Report as a table`)

var checkCmd = &cobra.Command{
	Use:   "check <list> [batch-file]",
	Short: "Validate a batch without writing",
	Long: `Load the database and the batch, merge them in memory and report the
result. Nothing is written.`,
	Example: `  aper check reply batch.txt                     # Validate a reply batch
  aper check links - < urls.txt                  # Validate from stdin`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := aper.ParseList(args[0])
		if err != nil {
			return fmt.Errorf("%w: %w", cli.ErrUsage, err)
		}
		return runMerge(cmd.Context(), list, args[1:], true)
	},
}

func runMerge(ctx context.Context, list aper.List, args []string, dryRun bool) error {
	batch := ""
	if len(args) > 0 {
		batch = args[0]
	}

	cc, err := cli.NewCommandContext(globalConfig, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = cc.Close() }()

	var result *cli.MergeResult
	if dryRun {
		result, err = cc.CheckCommand(ctx, list, batch)
	} else {
		result, err = cc.MergeCommand(ctx, list, batch)
	}
	if err != nil {
		return err
	}

	fmt.Print(cli.FormatMergeResult(result, cli.OutputFormat(globalConfig.OutputFormat)))
	return nil
}

var exportCmd = &cobra.Command{
	Use:   "export <format> [output-file]",
	Short: "Export the reply list as a Postfix map",
	Long: `Render the live reply list as a Postfix lookup table.

Formats:
  - access        : "address REJECT" for smtpd_recipient_restrictions
  - virtual       : "address trap-address" for virtual_alias_maps
  - header-checks : regexp REDIRECT rules for header_checks

If output-file is not specified or is '-', the map is written to stdout.`,
	Example: `  aper export access                                       # Last 30 days to stdout
  aper export access /etc/postfix/phish-recipients         # Write a map file
  aper export virtual --trap-address trap@example.edu -    # Redirect replies
  aper export header-checks --quarantine-address q@example.edu --max-age 0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(args[0])
		if err != nil {
			return fmt.Errorf("%w: %w", cli.ErrUsage, err)
		}
		output := ""
		if len(args) > 1 {
			output = args[1]
		}

		maxAge, _ := cmd.Flags().GetInt("max-age")                   //nolint:errcheck // flags are validated by cobra
		action, _ := cmd.Flags().GetString("action")                 //nolint:errcheck // flags are validated by cobra
		trap, _ := cmd.Flags().GetString("trap-address")             //nolint:errcheck // flags are validated by cobra
		quarantine, _ := cmd.Flags().GetString("quarantine-address") //nolint:errcheck // flags are validated by cobra

		cc, err := cli.NewCommandContext(globalConfig, os.Stderr)
		if err != nil {
			return err
		}
		defer func() { _ = cc.Close() }()

		result, err := cc.ExportCommand(cmd.Context(), export.Options{
			Format:            format,
			MaxAge:            maxAge,
			Action:            action,
			TrapAddress:       trap,
			QuarantineAddress: quarantine,
		}, output)
		if err != nil {
			return err
		}

		// The map itself went to stdout
		if result.Output != "stdout" {
			fmt.Print(cli.FormatExportResult(result, cli.OutputFormat(globalConfig.OutputFormat)))
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <list> <spool-dir>",
	Short: "Merge batches dropped into a spool directory",
	Long: `Watch a spool directory and merge every batch file written into it.
Merged batches are moved to done/, rejected ones to failed/. Files already
present are merged first. Runs until interrupted.`,
	Example: `  aper watch reply /var/spool/aper/reply         # Merge reply batches as they arrive
  aper watch links /var/spool/aper/links --settle 1s`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := aper.ParseList(args[0])
		if err != nil {
			return fmt.Errorf("%w: %w", cli.ErrUsage, err)
		}
		settle, _ := cmd.Flags().GetDuration("settle")     //nolint:errcheck // flags are validated by cobra
		maxRate, _ := cmd.Flags().GetFloat64("max-rate") //nolint:errcheck // flags are validated by cobra

		cc, err := cli.NewCommandContext(globalConfig, os.Stderr)
		if err != nil {
			return err
		}
		defer func() { _ = cc.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return cc.WatchCommand(ctx, list, args[1], cli.WatchOptions{
			Settle:          settle,
			MergesPerSecond: maxRate,
		})
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create empty database files",
	Long:  `Create an empty database file for every list that does not have one yet.`,
	Example: `  aper init                                      # Create files in the current directory
  aper --data-dir /etc/postfix/aper init         # Create files in a data directory`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := cli.NewCommandContext(globalConfig, os.Stderr)
		if err != nil {
			return err
		}
		defer func() { _ = cc.Close() }()

		created, err := cc.InitCommand(cmd.Context())
		if err != nil {
			return err
		}

		message := "All database files already exist"
		if len(created) > 0 {
			message = fmt.Sprintf("Created %d database file(s)", len(created))
		}
		result := &cli.OperationResult{
			Success: true,
			Message: message,
			Data:    created,
		}
		fmt.Print(cli.FormatOperationResult(result, cli.OutputFormat(globalConfig.OutputFormat)))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings, including database file locations and output format.`,
	Example: `  aper config                                    # Show current config
  aper config -o json                            # Show config as JSON
  APER_DATA_DIR=/srv/aper aper config            # Preview environment overrides`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(cli.DisplayConfig(globalConfig, globalConfig.OutputFormat))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get())
	},
}

func init() {
	// Set custom usage template to always show examples (even on errors)
	cobra.AddTemplateFunc("hasExamples", func(cmd *cobra.Command) bool {
		return len(cmd.Example) > 0
	})

	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "merge", Title: "Merge Commands:"},
		&cobra.Group{ID: "maps", Title: "Postfix Commands:"},
	)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.aper.yaml)")
	rootCmd.PersistentFlags().String("data-dir", ".", "directory holding the database files")
	rootCmd.PersistentFlags().String("reply-file", cli.DefaultReplyFile, "reply database file name")
	rootCmd.PersistentFlags().String("cleared-file", cli.DefaultClearedFile, "cleared database file name")
	rootCmd.PersistentFlags().String("links-file", cli.DefaultLinksFile, "links database file name")
	rootCmd.PersistentFlags().String("temp-dir", "", "directory for temporary files (default is the database directory)")
	rootCmd.PersistentFlags().String("temp-prefix", ".aper", "temporary file name prefix")
	rootCmd.PersistentFlags().StringP("output-format", "o", "text", "output format (text, json, table)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("metrics-textfile", "", "write Prometheus metrics to this file after each run")
	rootCmd.PersistentFlags().String("audit-log", "", "append a JSON audit record of every database change to this file")

	// export command flags
	exportCmd.Flags().Int("max-age", export.DefaultMaxAge, "only export addresses seen within this many days (0 exports all)")
	exportCmd.Flags().String("action", export.DefaultAction, "access table action")
	exportCmd.Flags().String("trap-address", "", "virtual map target address")
	exportCmd.Flags().String("quarantine-address", "", "header checks REDIRECT address")

	// watch command flags
	watchCmd.Flags().Duration("settle", 0, "time a file must stay unchanged before it is merged (default 250ms)")
	watchCmd.Flags().Float64("max-rate", 0, "maximum batches merged per second (0 is unlimited)")

	for _, cmd := range []*cobra.Command{replyCmd, clearedCmd, linksCmd, checkCmd, watchCmd} {
		cmd.GroupID = "merge"
	}
	exportCmd.GroupID = "maps"

	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(clearedCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	// Apply usage template to all commands to ensure examples always show
	for _, cmd := range rootCmd.Commands() {
		cmd.SetUsageTemplate(usageTemplate)
	}
}
