package cmd

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/inboxkeeper/internal/core/auth"
	"github.com/solatis/inboxkeeper/internal/core/config"
)

var apiKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Manage API keys for the organizer API",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Issue a new API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyCreate,
}

var apiKeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued API keys",
	RunE:  runAPIKeyList,
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

var secretCmd = &cobra.Command{
	Use:   "new-secret",
	Short: "Print a fresh value for IK_HMAC_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := config.NewHMACSecret(auth.NewSecretID())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyCreateCmd, apiKeyListCmd, apiKeyRevokeCmd, secretCmd)
	apiKeyCreateCmd.Flags().String("secret-id", "", "secret to bind the key to (default: the only or lowest configured secret)")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (run 'inboxkeeper api-key new-secret' and set IK_HMAC_SECRET)")
	}

	secretID, _ := cmd.Flags().GetString("secret-id")
	if secretID == "" {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		secretID = ids[0]
	}

	store, err := openStore(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	issued, err := auth.IssueAPIKey(store.Queries(), secrets, secretID, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:  %s\n", issued.ID)
	fmt.Fprintf(out, "key: %s\n", issued.Plaintext)
	fmt.Fprintln(out, "store the key now; it cannot be shown again")
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.APIKeys(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tLAST USED\tSTATUS")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt.Valid {
			lastUsed = k.LastUsedAt.Time.UTC().Format(time.RFC3339)
		}
		state := "active"
		if k.RevokedAt.Valid {
			state = "revoked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.CreatedAt.UTC().Format(time.RFC3339), lastUsed, state)
	}
	return w.Flush()
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := auth.RevokeAPIKey(store.Queries(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}
