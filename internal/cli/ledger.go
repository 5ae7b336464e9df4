package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/guildboard/guildboard/internal/app/board"
	"github.com/guildboard/guildboard/internal/app/engagement"
	"github.com/guildboard/guildboard/internal/domain"
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
	rootCmd.AddCommand(badgesCmd)
	badgesCmd.AddCommand(badgesListCmd)

	userCreateCmd.Flags().String("name", "", "Display name")
	userCreateCmd.Flags().String("email", "", "Email address (unique)")
	userCreateCmd.Flags().String("role", "", "client, pm or developer")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("role")

	ledgerShowCmd.Flags().IntP("recent", "n", 10, "Number of recent XP credits to show")
}

// openBoard opens the store and a board service over it.
func openBoard(cmd *cobra.Command) (*board.Service, func(), error) {
	db, cfg, err := openStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	svc := board.NewService(db, cfg.NewLogger(), board.WithRewards(cfg.BoardRewards()))
	return svc, func() { db.Close() }, nil
}

// ─── user create ────────────────────────────────────────────────────────────

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account with an empty ledger",
	Args:  cobra.NoArgs,
	RunE:  runUserCreate,
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	role, _ := cmd.Flags().GetString("role")

	svc, closeFn, err := openBoard(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	a, err := svc.CreateUser(cmd.Context(), board.CreateUserInput{Name: name, Email: email, Role: domain.Role(role)})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s)\n", a.Role, a.ID, a.Email)
	return nil
}

// ─── ledger show ────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect XP ledgers",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show USER_ID",
	Short: "Show an account's XP, level, badges and recent credits",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerShow,
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	recent, _ := cmd.Flags().GetInt("recent")
	svc, closeFn, err := openBoard(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	view, err := svc.Ledger(cmd.Context(), domain.UserID(args[0]), recent)
	if err != nil {
		return err
	}
	a, p := view.Account, view.Progress

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s <%s> (%s)\n", a.Name, a.Email, a.Role)
	fmt.Fprintf(out, "Level %d · %d XP · %d to next level (%d%%)\n", p.Level, p.XP, p.XPToNextLevel, p.ProgressPct)
	fmt.Fprintf(out, "Tasks completed: %d\n", a.TasksCompleted)

	if len(a.Badges) > 0 {
		fmt.Fprintln(out, "\nBadges:")
		for _, b := range a.Badges {
			icon := ""
			if def, ok := engagement.LookupBadge(b.BadgeID); ok {
				icon = def.Icon
			}
			fmt.Fprintf(out, "  %s %s (%s)\n", icon, b.Name, b.EarnedAt.Format("2006-01-02"))
		}
	}
	if len(view.Recent) > 0 {
		fmt.Fprintln(out, "\nRecent XP:")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, e := range view.Recent {
			fmt.Fprintf(tw, "  +%d\t%s\t%s\t%s\n", e.Amount, e.Reason, e.TaskID, e.CreatedAt.Format("2006-01-02 15:04"))
		}
		tw.Flush()
	}
	return nil
}

// ─── badges list ────────────────────────────────────────────────────────────

var badgesCmd = &cobra.Command{
	Use:   "badges",
	Short: "Badge catalog",
}

var badgesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every badge and what earns it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tBADGE\tCRITERION\tNOTE")
		for _, b := range engagement.Badges() {
			note := ""
			if b.Dormant {
				note = "not yet tracked"
			}
			fmt.Fprintf(tw, "%s\t%s %s\t%s >= %d\t%s\n",
				b.ID, b.Icon, b.Name, b.Criterion.Field, b.Criterion.Threshold, note)
		}
		return tw.Flush()
	},
}
