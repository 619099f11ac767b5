package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/acto-dev/ajax/internal/api"
	"github.com/acto-dev/ajax/internal/config"
	"github.com/acto-dev/ajax/internal/iocontext"
	"github.com/acto-dev/ajax/internal/token"
	"github.com/acto-dev/ajax/internal/validation"
)

const envClientSecret = "AJAX_CLIENT_SECRET"

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "token",
		Aliases: []string{"tk"},
		Short:   "Fetch and inspect bearer tokens",
	}

	cmd.AddCommand(newTokenFetchCmd())
	cmd.AddCommand(newTokenInspectCmd())

	return cmd
}

func newTokenFetchCmd() *cobra.Command {
	var (
		tokenURL     string
		clientID     string
		clientSecret string
		scopes       string
		save         string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a bearer token with the OAuth2 client credentials grant",
		Long: strings.TrimSpace(`
Fetch an access token from --token-url. The client secret may also be
given as $AJAX_CLIENT_SECRET. With --save the token is stored as a bearer
profile, together with --on-unauthorized, --forbidden and -H headers.
`),
		Example: strings.TrimSpace(`
  ajax token fetch --token-url https://auth.example.com/oauth/token --client-id cli --scopes "read write"
  ajax token fetch --token-url https://auth.example.com/oauth/token --client-id cli --save work --on-unauthorized /login
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if clientSecret == "" {
				clientSecret = strings.TrimSpace(os.Getenv(envClientSecret))
			}
			if err := validation.ValidateTargetURL(tokenURL); err != nil {
				return fmt.Errorf("invalid --token-url: %w", err)
			}

			hc := api.DefaultHTTPClient()
			if flags.Retries > 0 {
				hc = newRetryingHTTPClient(flags.Retries)
			}
			if flags.Timeout > 0 {
				hc.Timeout = flags.Timeout
			}

			tok, err := token.Fetch(cmd.Context(), token.FetchConfig{
				TokenURL:     tokenURL,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Scopes:       scopes,
				HTTPClient:   hc,
			})
			if err != nil {
				return err
			}

			if save != "" {
				profile, err := profileFromFlags()
				if err != nil {
					return err
				}
				profile.Scheme, profile.Token = config.SchemeBearer, tok.AccessToken
				if err := config.SaveProfile(save, profile); err != nil {
					return err
				}
			}

			if isJSON(cmd) {
				out := map[string]any{
					"token_type": tok.Type(),
				}
				if !tok.Expiry.IsZero() {
					out["expires_at"] = tok.Expiry.UTC().Format(time.RFC3339)
				}
				if save != "" {
					out["profile"] = save
				} else {
					out["access_token"] = tok.AccessToken
				}
				return printJSON(cmd, out)
			}

			if save == "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
				return nil
			}
			msg := fmt.Sprintf("Saved bearer token to profile %s", save)
			if !tok.Expiry.IsZero() {
				msg += fmt.Sprintf(" (expires %s)", tok.Expiry.UTC().Format(time.RFC3339))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		}),
	}

	cmd.Flags().StringVar(&tokenURL, "token-url", "", "OAuth2 token endpoint (required)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client ID (required)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret (env AJAX_CLIENT_SECRET)")
	cmd.Flags().StringVar(&scopes, "scopes", "", "Space-separated scopes")
	cmd.Flags().StringVar(&save, "save", "", "Save the token as a bearer profile with this name")
	_ = cmd.MarkFlagRequired("token-url")
	_ = cmd.MarkFlagRequired("client-id")

	return cmd
}

func newTokenInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [token]",
		Short: "Decode a JWT bearer token without verifying it",
		Long: strings.TrimSpace(`
Print the claims of a JWT. Without an argument the bearer token that a
request would use is inspected. '-' reads the token from stdin.
`),
		Args: cobra.MaximumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			raw, err := tokenToInspect(cmd, args)
			if err != nil {
				return err
			}
			info, err := token.Inspect(raw, time.Now())
			if err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, info)
			}

			out := cmd.OutOrStdout()
			printField := func(label, value string) {
				if value != "" {
					_, _ = fmt.Fprintf(out, "%-10s %s\n", label+":", value)
				}
			}
			printField("Subject", info.Subject)
			printField("Issuer", info.Issuer)
			printField("Audience", strings.Join(info.Audience, ", "))
			printField("Scopes", strings.Join(info.Scopes, " "))
			if info.IssuedAt != nil {
				printField("Issued", info.IssuedAt.UTC().Format(time.RFC3339))
			}
			if info.ExpiresAt != nil {
				status := "valid"
				if info.Expired {
					status = "expired"
				}
				printField("Expires", fmt.Sprintf("%s (%s)", info.ExpiresAt.UTC().Format(time.RFC3339), status))
			} else {
				printField("Expires", "never")
			}

			keys := make([]string, 0, len(info.Claims))
			for k := range info.Claims {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			_, _ = fmt.Fprintf(out, "Claims:    %s\n", strings.Join(keys, ", "))
			return nil
		}),
	}
}

// tokenToInspect returns the argument, stdin, or the resolved bearer token.
func tokenToInspect(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		if args[0] != "-" {
			return args[0], nil
		}
		data, err := iocontext.GetIO(cmd.Context()).ReadSource("-")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	cc, err := config.ResolveClientConfig(overrides(), settings)
	if err != nil {
		return "", err
	}
	bearer, ok := cc.Auth.(api.Bearer)
	if !ok {
		return "", errors.New("no bearer token configured; pass a token or use --bearer/--profile")
	}
	return bearer.Token, nil
}
