package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/acto-dev/ajax/internal/config"
	"github.com/acto-dev/ajax/internal/debug"
	"github.com/acto-dev/ajax/internal/dryrun"
	"github.com/acto-dev/ajax/internal/filter"
	"github.com/acto-dev/ajax/internal/iocontext"
	"github.com/acto-dev/ajax/internal/outfmt"
	"github.com/acto-dev/ajax/internal/validation"
)

const envFile = "AJAX_ENV_FILE"

// rootFlags holds global CLI flags
type rootFlags struct {
	Output         string
	LogFormat      string
	Debug          bool
	DryRun         bool
	Compact        bool
	AllowPrivate   bool
	JQ             string
	Timeout        time.Duration
	Retries        int
	Profile        string
	Bearer         string
	Token          string
	OnUnauthorized string
	Forbidden      bool
	Referrer       string
	RequestID      string
	Headers        []string
}

// flags holds the global command flags. This is package-level mutable state
// that MUST be reset at the start of every Execute() call. Tests depend on
// this reset to get clean state; any code that reads flags outside of a
// command's RunE is reading stale data from the previous Execute() call.
var flags = rootFlags{
	Output:    defaultOutput(),
	LogFormat: debug.FormatText,
}

// settings is loaded in PersistentPreRunE and, like flags, reset per Execute.
var settings config.Settings

func defaultOutput() string {
	if value := strings.TrimSpace(os.Getenv("AJAX_OUTPUT")); value != "" {
		return value
	}
	return "text"
}

func parseBoolEnv(key string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && value
}

// loadEnvFile loads $AJAX_ENV_FILE, or ./.env when unset. Variables already
// present in the environment are not overwritten.
func loadEnvFile() {
	path := strings.TrimSpace(os.Getenv(envFile))
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// Execute runs the root command
func Execute(ctx context.Context, args []string) error {
	loadEnvFile()

	// Reset flags to defaults for each execution; see the comment on flags.
	flags = rootFlags{
		Output:    defaultOutput(),
		LogFormat: debug.FormatText,
	}
	settings = config.Settings{}

	root := &cobra.Command{
		Use:   "ajax",
		Short: "Send authenticated JSON and multipart requests",
		Long: `ajax sends JSON or multipart requests with a stored credential.

Credentials come from --bearer/--token, AJAX_BEARER/AJAX_TOKEN, or a
keyring profile (see 'ajax profile'). Non-secret defaults are read from
$AJAX_CONFIG or <user config dir>/ajax/config.yaml.

A 401 response (and 403 with --forbidden) is reported as a redirect to
the --on-unauthorized target before the command fails.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true, // We provide our own did-you-mean via enhanceUnknownError
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			ioStreams := iocontext.DefaultIO()
			ctx = iocontext.WithIO(ctx, ioStreams)
			cmd.SetOut(ioStreams.Out)
			cmd.SetErr(ioStreams.ErrOut)

			if err := debug.Setup(ioStreams.ErrOut, flags.Debug, flags.LogFormat); err != nil {
				return err
			}
			ctx = debug.WithDebug(ctx, flags.Debug)

			mode, err := outfmt.Parse(flags.Output)
			if err != nil {
				return err
			}
			ctx = outfmt.WithMode(ctx, mode)
			ctx = outfmt.WithCompact(ctx, flags.Compact)

			loaded, err := config.LoadSettings("")
			if err != nil {
				return err
			}
			settings = loaded
			if !flagOrAliasChanged(cmd, "timeout") {
				flags.Timeout = settings.Timeout
			}
			if !flagOrAliasChanged(cmd, "retries") {
				flags.Retries = settings.Retries
			}
			if flags.Timeout < 0 {
				return fmt.Errorf("--timeout must be >= 0")
			}
			if flags.Retries < 0 {
				return fmt.Errorf("--retries must be >= 0")
			}

			allowPrivate := flags.AllowPrivate || settings.AllowPrivate
			validation.SetAllowPrivate(allowPrivate)
			if allowPrivate {
				_, _ = fmt.Fprintln(ioStreams.ErrOut, "Warning: allowing private/localhost URLs (use only with trusted targets).") //nolint:errcheck
			}

			if flags.OnUnauthorized != "" {
				if err := validation.ValidateRedirectTarget(flags.OnUnauthorized); err != nil {
					return fmt.Errorf("invalid --on-unauthorized: %w", err)
				}
			}

			if flags.JQ != "" {
				query := filter.NormalizeExpression(flags.JQ)
				if err := filter.Validate(query); err != nil {
					return err
				}
				ctx = outfmt.WithQuery(ctx, query)
			}

			ctx = dryrun.WithDryRun(ctx, flags.DryRun)

			cmd.SetContext(ctx)
			return nil
		},
	}

	root.SetContext(ctx)
	root.SetArgs(args)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.Output, "output", "o", flags.Output, "Output format: text|json (env AJAX_OUTPUT)")
	pf.StringVar(&flags.LogFormat, "log-format", flags.LogFormat, "Log format for --debug: text|json")
	pf.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&flags.DryRun, "dry-run", false, "Print the prepared request instead of sending it")
	pf.BoolVar(&flags.Compact, "compact-json", false, "Compact JSON output (no indentation)")
	pf.BoolVar(&flags.AllowPrivate, "allow-private", false, "Allow private/localhost URLs (unsafe)")
	pf.StringVar(&flags.JQ, "jq", "", "jq expression applied to JSON output")
	pf.DurationVar(&flags.Timeout, "timeout", config.DefaultTimeout, "Deadline for each request (0 disables)")
	pf.IntVar(&flags.Retries, "retries", 0, "Retry transport failures, 429 and 5xx up to N times")
	pf.StringVar(&flags.Profile, "profile", "", "Keyring profile to use (env AJAX_PROFILE)")
	pf.StringVar(&flags.Bearer, "bearer", "", "Bearer token for the Authorization header")
	pf.StringVar(&flags.Token, "token", "", "Static token appended to the URL path")
	pf.StringVar(&flags.OnUnauthorized, "on-unauthorized", "", "Redirect target reported on 401 (e.g. /login)")
	pf.BoolVar(&flags.Forbidden, "forbidden", false, "Also redirect on 403")
	pf.StringVar(&flags.Referrer, "referrer", "", "Path reported as the origin of an unauthorized redirect")
	pf.StringVar(&flags.RequestID, "request-id", "", "X-Request-Id to send ('auto' generates one per request)")
	pf.StringArrayVarP(&flags.Headers, "header", "H", nil, "Extra request header 'Key: Value' (repeatable)")

	// Short aliases for persistent flags
	flagAlias(pf, "dry-run", "dr")
	flagAlias(pf, "debug", "dbg")
	flagAlias(pf, "compact-json", "cj")
	flagAlias(pf, "allow-private", "ap")
	flagAlias(pf, "on-unauthorized", "login")
	flagAlias(pf, "timeout", "to")

	for _, c := range newRequestCmds() {
		root.AddCommand(c)
	}
	root.AddCommand(newBatchCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newProfileCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newVersionCmd())

	targetCmd, err := root.ExecuteC()
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			enhanced := enhanceUnknownError(err, root, targetCmd)
			_, _ = fmt.Fprintln(root.ErrOrStderr(), enhanced) //nolint:errcheck
		}
		return err
	}
	return nil
}

// enhanceUnknownError adds "did you mean?" suggestions to unknown command/flag errors.
// targetCmd is the command Cobra resolved before the error (may be root itself).
func enhanceUnknownError(err error, root *cobra.Command, targetCmd *cobra.Command) string {
	msg := err.Error()

	if strings.Contains(msg, "unknown command") {
		if unknown := extractQuoted(msg); unknown != "" {
			var names []string
			for _, c := range root.Commands() {
				if c.IsAvailableCommand() || c.Name() == "help" {
					names = append(names, c.Name())
					names = append(names, c.Aliases...)
				}
			}
			if suggestion := suggestCommand(unknown, names); suggestion != "" {
				return fmt.Sprintf("%s\n\nDid you mean %q?", msg, suggestion)
			}
		}
	}

	if strings.Contains(msg, "unknown flag") || strings.Contains(msg, "flag provided but not defined") || strings.Contains(msg, "unknown shorthand flag") {
		if unknown := extractFlag(msg); unknown != "" {
			seen := make(map[string]bool)
			var flagNames []string
			addFlags := func(fs *pflag.FlagSet) {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Hidden {
						return
					}
					name := "--" + f.Name
					if !seen[name] {
						seen[name] = true
						flagNames = append(flagNames, name)
					}
					if f.Shorthand != "" {
						short := "-" + f.Shorthand
						if !seen[short] {
							seen[short] = true
							flagNames = append(flagNames, short)
						}
					}
				})
			}
			helpCmd := "ajax --help"
			if targetCmd != nil {
				addFlags(targetCmd.Flags())
				addFlags(targetCmd.InheritedFlags())
				if commandPath := strings.TrimSpace(targetCmd.CommandPath()); commandPath != "" {
					helpCmd = commandPath + " --help"
				}
			} else {
				addFlags(root.PersistentFlags())
			}
			if suggestion := suggestFlag(unknown, flagNames); suggestion != "" {
				return fmt.Sprintf("%s\n\nDid you mean %q?\nRun %q to see supported flags.", msg, suggestion, helpCmd)
			}
			return fmt.Sprintf("%s\n\nRun %q to see supported flags.", msg, helpCmd)
		}
	}

	return msg
}

// extractQuoted extracts the first double-quoted substring from s.
func extractQuoted(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}

// extractFlag extracts a flag name (e.g., "--foo") from an error message.
func extractFlag(s string) string {
	idx := strings.Index(s, "--")
	if idx < 0 {
		// Shorthand errors look like "unknown shorthand flag: 'a' in -a"
		idx = strings.LastIndex(s, " -")
		if idx < 0 {
			return ""
		}
		rest := strings.TrimSpace(s[idx+1:])
		if end := strings.IndexByte(rest, ' '); end >= 0 {
			rest = rest[:end]
		}
		rest = strings.TrimRight(rest, ".,;:!?\"'")
		if strings.HasPrefix(rest, "-") && len(rest) > 1 {
			return rest
		}
		return ""
	}
	rest := s[idx:]
	end := strings.IndexByte(rest, ' ')
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimRight(rest[:end], ".,;:!?\"'")
}
