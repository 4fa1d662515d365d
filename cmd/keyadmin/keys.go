package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lang_gateway/internal/auth"
	"lang_gateway/internal/billing"
	"lang_gateway/internal/models"
)

var trialCmd = &cobra.Command{
	Use:   "trial",
	Short: "Provision (or return) the trial key of an email address",
	RunE:  runTrial,
}

var patreonCmd = &cobra.Command{
	Use:   "patreon",
	Short: "Provision (or return) the key of a patreon member",
	RunE:  runPatreon,
}

var getcheddarCmd = &cobra.Command{
	Use:   "getcheddar",
	Short: "Create or update the key of a metered-billing customer",
	RunE:  runGetCheddar,
}

var increaseLimitCmd = &cobra.Command{
	Use:   "increase-limit",
	Short: "Raise the character limit of a trial key",
	RunE:  runIncreaseLimit,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <key>",
	Short: "Delete an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevoke,
}

var showCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show an API key with its plan and usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var listCmd = &cobra.Command{
	Use:   "list <key-type>",
	Short: "List keys of a type (test, trial, patreon, getcheddar)",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var (
	email     string
	userID    string
	limit     int64
	customer  auth.CustomerData
	overQuota bool
)

func init() {
	rootCmd.AddCommand(trialCmd, patreonCmd, getcheddarCmd, increaseLimitCmd, revokeCmd, showCmd, listCmd)

	trialCmd.Flags().StringVar(&email, "email", "", "owner email (required)")
	trialCmd.Flags().Int64Var(&limit, "limit", 0, "character limit; 0 uses the configured default")
	trialCmd.MarkFlagRequired("email")

	patreonCmd.Flags().StringVar(&userID, "user-id", "", "patreon user id (required)")
	patreonCmd.Flags().StringVar(&email, "email", "", "owner email")
	patreonCmd.MarkFlagRequired("user-id")

	getcheddarCmd.Flags().StringVar(&customer.CustomerCode, "customer", "", "customer code (required)")
	getcheddarCmd.Flags().StringVar(&customer.Email, "email", "", "owner email")
	getcheddarCmd.Flags().StringVar(&customer.PlanCode, "plan", "", "plan code")
	getcheddarCmd.Flags().StringVar(&customer.SubscriptionStatus, "status", "active", "subscription status")
	getcheddarCmd.Flags().Float64Var(&customer.ThousandCharQuota, "quota", 0, "quota in thousands of characters")
	getcheddarCmd.Flags().Float64Var(&customer.ThousandCharUsed, "used", 0, "used to date in thousands of characters")
	getcheddarCmd.Flags().BoolVar(&overQuota, "overage", false, "allow usage beyond the quota")
	getcheddarCmd.MarkFlagRequired("customer")

	increaseLimitCmd.Flags().StringVar(&email, "email", "", "owner email of the trial key (required)")
	increaseLimitCmd.Flags().Int64Var(&limit, "limit", 0, "new character limit (required)")
	increaseLimitCmd.MarkFlagRequired("email")
	increaseLimitCmd.MarkFlagRequired("limit")
}

func runTrial(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	key, err := deps.Registry.ProvisionTrial(cmd.Context(), email, limit)
	if err != nil {
		return fmt.Errorf("failed to provision trial key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func runPatreon(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	key, err := deps.Registry.ProvisionPatreon(cmd.Context(), userID, email)
	if err != nil {
		return fmt.Errorf("failed to provision patreon key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func runGetCheddar(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	customer.OverageAllowed = overQuota
	key, err := deps.Registry.ProvisionGetCheddar(cmd.Context(), customer)
	if err != nil {
		return fmt.Errorf("failed to provision getcheddar key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func runIncreaseLimit(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.Registry.IncreaseTrialLimit(cmd.Context(), email, limit); err != nil {
		return fmt.Errorf("failed to increase limit: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Trial limit of %s is now at least %d characters.\n", email, limit)
	return nil
}

func runRevoke(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.Registry.Revoke(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Key revoked.")
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	rec, err := deps.Registry.Lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	summary, err := deps.Tracker.AccountSummary(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printKey(cmd.OutOrStdout(), rec, summary)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	keyType, err := models.ParseKeyType(args[0])
	if err != nil {
		return err
	}

	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	keys, err := deps.Registry.ListByType(cmd.Context(), keyType)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s keys found.\n", keyType)
		return nil
	}
	printKeyTable(cmd.OutOrStdout(), keys)
	return nil
}

func printKey(out io.Writer, rec *models.APIKey, summary *billing.AccountSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Key:\t%s\n", rec.Key)
	fmt.Fprintf(w, "Type:\t%s\n", rec.KeyType)
	fmt.Fprintf(w, "Owner:\t%s\n", rec.OwnerEmail)
	if rec.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:\t%s\n", rec.ExpiresAt.Format("2006-01-02 15:04"))
	}
	if rec.CustomerCode != nil {
		fmt.Fprintf(w, "Customer:\t%s\n", *rec.CustomerCode)
	}
	if rec.SubscriptionStatus != nil {
		fmt.Fprintf(w, "Subscription:\t%s\n", *rec.SubscriptionStatus)
	}
	fmt.Fprintf(w, "Plan:\t%s\n", summary.PlanLabel)
	fmt.Fprintf(w, "Usage:\t%s\n", summary.UsageLabel)
	w.Flush()
}

func printKeyTable(out io.Writer, keys []*models.APIKey) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tOWNER\tREF\tCREATED")
	fmt.Fprintln(w, "---\t-----\t---\t-------")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k.Key, k.OwnerEmail, k.OwnerRef, k.CreatedAt.Format("2006-01-02"))
	}
	w.Flush()
}

