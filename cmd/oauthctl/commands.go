package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"authorization-server/internal/app"
	"authorization-server/internal/config"
	"authorization-server/internal/oauth"

	"github.com/spf13/cobra"
)

type opener func(ctx context.Context) (*env, error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "oauthctl",
		Short:        "Administer OAuth clients",
		SilenceUsage: true,
	}
	root.AddCommand(newClientCmd(open))
	return root
}

// withEnv opens the store for one command run.
func withEnv(open opener, fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cmd, args, e)
	}
}

func newClientCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage registered clients",
	}
	cmd.AddCommand(
		newCreateCmd(open),
		newListCmd(open),
		newRotateSecretCmd(open),
		newDeactivateCmd(open),
		newSetScopesCmd(open),
		newSetGrantsCmd(open),
		newSeedCmd(open),
	)
	return cmd
}

func newCreateCmd(open opener) *cobra.Command {
	var (
		reg         oauth.Registration
		public      bool
		requirePKCE bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a client and print its credentials",
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			reg.Confidential = !public
			if cmd.Flags().Changed("require-pkce") {
				reg.RequirePKCE = &requirePKCE
			}
			client, secret, err := e.registry.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "client_id: %s\n", client.ID)
			if secret != "" {
				fmt.Fprintf(out, "client_secret: %s\n", secret)
			}
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&reg.ClientID, "id", "", "client id (generated when empty)")
	f.StringVar(&reg.Secret, "secret", "", "client secret (generated for confidential clients when empty)")
	f.StringVar(&reg.Name, "name", "", "display name")
	f.StringSliceVar(&reg.RedirectURIs, "redirect-uri", nil, "allowed redirect URI (repeatable)")
	f.StringSliceVar(&reg.Scopes, "scope", nil, "allowed scope (repeatable)")
	f.StringSliceVar(&reg.GrantTypes, "grant-type", nil, "allowed grant type (repeatable)")
	f.BoolVar(&public, "public", false, "register a public client without a secret")
	f.BoolVar(&requirePKCE, "require-pkce", false, "require PKCE even for a confidential client")
	f.IntVar(&reg.RateLimit, "rate-limit", 0, "requests per minute (0 uses the server default)")
	return cmd
}

func newListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			clients, err := e.registry.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CLIENT_ID\tNAME\tTYPE\tACTIVE\tGRANTS\tSCOPES")
			for _, c := range clients {
				kind := "confidential"
				if c.IsPublic() {
					kind = "public"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
					c.ID, c.Name, kind, c.Active,
					strings.Join(c.GrantTypes, ","), strings.Join(c.Scopes, " "))
			}
			return w.Flush()
		}),
	}
}

func newRotateSecretCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-secret CLIENT_ID",
		Short: "Replace a confidential client's secret",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(open, func(cmd *cobra.Command, args []string, e *env) error {
			secret, err := e.registry.RotateSecret(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client_secret: %s\n", secret)
			return nil
		}),
	}
}

func newDeactivateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate CLIENT_ID",
		Short: "Deactivate a client; its tokens stop introspecting as active",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(open, func(cmd *cobra.Command, args []string, e *env) error {
			if err := e.registry.Deactivate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", args[0])
			return nil
		}),
	}
}

func newSetScopesCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "set-scopes CLIENT_ID SCOPE...",
		Short: "Replace the scopes a client may request",
		Args:  cobra.MinimumNArgs(2),
		RunE: withEnv(open, func(cmd *cobra.Command, args []string, e *env) error {
			if err := e.registry.UpdateScopes(cmd.Context(), args[0], args[1:]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
			return nil
		}),
	}
}

func newSetGrantsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "set-grants CLIENT_ID GRANT_TYPE...",
		Short: "Replace the grant types a client may use",
		Args:  cobra.MinimumNArgs(2),
		RunE: withEnv(open, func(cmd *cobra.Command, args []string, e *env) error {
			if err := e.registry.UpdateGrantTypes(cmd.Context(), args[0], args[1:]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
			return nil
		}),
	}
}

func newSeedCmd(open opener) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register the clients and users of a YAML file",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			seed, err := config.LoadSeedFile(file)
			if err != nil {
				return err
			}
			res, err := app.Seed(cmd.Context(), e.registry, e.storage.Repo, seed, e.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d existing, upserted %d users\n", res.Created, res.Skipped, res.Users)
			return nil
		}),
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the clients YAML file")
	cmd.MarkFlagRequired("file")
	return cmd
}
