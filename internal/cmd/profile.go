package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acto-dev/ajax/internal/config"
	"github.com/acto-dev/ajax/internal/outfmt"
	"github.com/acto-dev/ajax/internal/resolve"
	"github.com/acto-dev/ajax/internal/validation"
)

// profileView is the displayable form of a stored profile. The token is masked.
type profileView struct {
	Name               string            `json:"name"`
	Current            bool              `json:"current"`
	Scheme             string            `json:"scheme"`
	Credential         string            `json:"credential,omitempty"`
	UnauthorizedTarget string            `json:"unauthorized_target,omitempty"`
	Forbidden          bool              `json:"forbidden,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		Aliases: []string{"pr"},
		Short:   "Manage credential profiles",
		Long: strings.TrimSpace(`
Profiles keep a credential and its request defaults in the OS keychain.
The current profile is used when no --bearer, --token or --profile is given.
`),
	}

	cmd.AddCommand(newProfileSaveCmd())
	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileUseCmd())
	cmd.AddCommand(newProfileShowCmd())
	cmd.AddCommand(newProfileDeleteCmd())

	return cmd
}

func newProfileSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <name>",
		Short: "Save a profile and make it current",
		Long: strings.TrimSpace(`
Save the credential given by --bearer or --token, together with
--on-unauthorized, --forbidden and any -H headers, under <name>.
Without a credential flag the profile sends no credential.
`),
		Example: strings.TrimSpace(`
  ajax profile save work --bearer "$TOKEN" --on-unauthorized /login --forbidden
  ajax profile save legacy --token abc123 -H 'X-Client: ajax'
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return errors.New("profile name cannot be empty")
			}
			profile, err := profileFromFlags()
			if err != nil {
				return err
			}
			if err := config.SaveProfile(name, profile); err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd, newProfileView(name, profile, true))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %s (%s)\n", name, profile.Scheme)
			return nil
		}),
	}
}

// profileFromFlags builds a profile from the global credential flags.
func profileFromFlags() (config.Profile, error) {
	if flags.Bearer != "" && flags.Token != "" {
		return config.Profile{}, errors.New("--bearer cannot be used with --token")
	}
	p := config.Profile{
		Scheme:             config.SchemeNone,
		UnauthorizedTarget: flags.OnUnauthorized,
		Forbidden:          flags.Forbidden,
	}
	switch {
	case flags.Bearer != "":
		p.Scheme, p.Token = config.SchemeBearer, flags.Bearer
	case flags.Token != "":
		p.Scheme, p.Token = config.SchemeStatic, flags.Token
	}
	if p.Forbidden && p.UnauthorizedTarget == "" {
		return config.Profile{}, errors.New("--forbidden requires --on-unauthorized")
	}
	for _, raw := range flags.Headers {
		key, value, err := validation.ParseHeader(raw)
		if err != nil {
			return config.Profile{}, err
		}
		if p.Headers == nil {
			p.Headers = make(map[string]string)
		}
		p.Headers[key] = value
	}
	return p, nil
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved profiles",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			names, err := config.ListProfiles()
			if err != nil {
				return err
			}
			current, _ := config.CurrentProfile()

			views := make([]profileView, 0, len(names))
			for _, name := range names {
				p, err := config.LoadProfile(name)
				if err != nil {
					views = append(views, profileView{Name: name, Current: name == current, Scheme: "?"})
					continue
				}
				views = append(views, newProfileView(name, p, name == current))
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"current":  current,
					"profiles": views,
				})
			}

			if len(views) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No profiles saved. Run 'ajax profile save <name>' to add one.")
				return nil
			}

			t := outfmt.NewTable(cmd.OutOrStdout(), "CURRENT", "PROFILE", "SCHEME", "ON_UNAUTHORIZED")
			for _, v := range views {
				marker := ""
				if v.Current {
					marker = "*"
				}
				target := "-"
				if v.UnauthorizedTarget != "" {
					target = v.UnauthorizedTarget
					if v.Forbidden {
						target += " (401, 403)"
					}
				}
				t.Row(marker, v.Name, v.Scheme, target)
			}
			return t.Flush()
		}),
	}
}

func newProfileUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Switch the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			p, err := loadNamedProfile(name)
			if err != nil {
				return err
			}
			if err := config.SetCurrentProfile(name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Current profile: %s (%s)\n", name, p.Scheme)
			return nil
		}),
	}
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Show a profile (defaults to current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			current, _ := config.CurrentProfile()
			name := current
			if len(args) == 1 {
				name = args[0]
			}
			if name == "" {
				return config.ErrNotConfigured
			}
			p, err := loadNamedProfile(name)
			if err != nil {
				return err
			}
			v := newProfileView(name, p, name == current)

			if isJSON(cmd) {
				return printJSON(cmd, v)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Profile: %s\n", v.Name)
			_, _ = fmt.Fprintf(out, "  Credential: %s\n", v.Credential)
			if v.UnauthorizedTarget != "" {
				_, _ = fmt.Fprintf(out, "  On unauthorized: %s\n", v.UnauthorizedTarget)
				_, _ = fmt.Fprintf(out, "  Redirect on 403: %t\n", v.Forbidden)
			}
			if len(v.Headers) > 0 {
				keys := make([]string, 0, len(v.Headers))
				for k := range v.Headers {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				_, _ = fmt.Fprintln(out, "  Headers:")
				for _, k := range keys {
					_, _ = fmt.Fprintf(out, "    %s: %s\n", k, v.Headers[k])
				}
			}
			return nil
		}),
	}
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a profile",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, err := loadNamedProfile(name); err != nil {
				return err
			}
			if err := config.DeleteProfile(name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s\n", name)
			return nil
		}),
	}
}

// loadNamedProfile loads name, suggesting a close saved name when it is missing.
func loadNamedProfile(name string) (config.Profile, error) {
	p, err := config.LoadProfile(name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, config.ErrNotConfigured) {
		return config.Profile{}, err
	}
	names, _ := config.ListProfiles()
	if matches := resolve.Suggest(name, names, 1); len(matches) > 0 {
		return config.Profile{}, fmt.Errorf("profile %q not found. Did you mean %q?", name, matches[0].Name)
	}
	return config.Profile{}, fmt.Errorf("profile %q not found", name)
}

func newProfileView(name string, p config.Profile, current bool) profileView {
	v := profileView{
		Name:               name,
		Current:            current,
		Scheme:             p.Scheme,
		UnauthorizedTarget: p.UnauthorizedTarget,
		Forbidden:          p.Forbidden,
		Headers:            p.Headers,
	}
	if v.Scheme == "" {
		v.Scheme = config.SchemeNone
	}
	if auth, err := p.AuthScheme(); err == nil {
		v.Credential = auth.String()
	}
	return v
}
