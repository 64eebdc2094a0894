package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mquintal/lostline/pkg/lostline/bot"
	"github.com/mquintal/lostline/pkg/lostline/storage"
)

// newSessionsCmd creates the `lostline sessions` command group for
// inspecting and resetting stored conversation sessions.
func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored conversation sessions",
	}
	cmd.AddCommand(newSessionsListCmd(), newSessionsResetCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		RunE:  runSessionsList,
	}
}

func newSessionsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <number>",
		Short: "Reset the session for a phone number or address",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsReset,
	}
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	store, err := openSessionStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions := bot.NewSessionStore(store, nil)
	metas, err := sessions.List(context.Background())
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(metas) == 0 {
		fmt.Println("no sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tNAME\tFLOW\tMESSAGES\tLAST MESSAGE")
	for _, m := range metas {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			m.Identity, m.DisplayName, m.Flow, m.MessageCount,
			m.LastMessageAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runSessionsReset(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	sessions := bot.NewSessionStore(store, nil)
	s, err := sessions.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if s == nil {
		return fmt.Errorf("no session found for %q", args[0])
	}
	if err := sessions.Save(ctx, s.Reset()); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	fmt.Printf("session %s reset\n", s.UserIdentity)
	return nil
}

func openSessionStore(cmd *cobra.Command) (*storage.Store, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := bot.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage.Path, nil)
}
