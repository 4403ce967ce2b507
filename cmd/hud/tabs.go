package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hud-backend/pkg/auth"
	"hud-backend/pkg/dashboard"
	"hud-backend/pkg/docstore"
	"hud-backend/pkg/workspace"
)

// tabsSession is an opened store plus the workspace of the --user account.
type tabsSession struct {
	store docstore.Store
	ws    *workspace.Workspace
	uid   string
}

func newTabsCmd(opts *rootOptions) *cobra.Command {
	var who string
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "Inspect and edit a user's tabs",
	}
	cmd.PersistentFlags().StringVarP(&who, "user", "u", "", "account email or id")
	_ = cmd.MarkPersistentFlagRequired("user")

	open := func(cmd *cobra.Command) (*tabsSession, error) {
		_, store, err := opts.openStore()
		if err != nil {
			return nil, err
		}
		user, err := resolveUser(cmd.Context(), auth.NewService(store), who)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("user %q: %w", who, err)
		}
		ws := workspace.New(newManager(store))
		if err := ws.Load(cmd.Context(), user.ID); err != nil {
			store.Close()
			return nil, err
		}
		return &tabsSession{store: store, ws: ws, uid: user.ID}, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tabs in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer s.store.Close()
			printTabs(cmd, s.ws)
			return nil
		},
	})

	var icon string
	add := &cobra.Command{
		Use:   "add <label>",
		Short: "Append a tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer s.store.Close()
			tab, err := s.ws.CreateTab(cmd.Context(), args[0], icon)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tab.ID)
			return nil
		},
	}
	add.Flags().StringVar(&icon, "icon", "", "tab icon")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "move <tab-id> <target-tab-id>",
		Short: "Move a tab into the target tab's position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer s.store.Close()
			if err := s.ws.MoveTab(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			printTabs(cmd, s.ws)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <tab-id> <label>",
		Short: "Change a tab's label",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer s.store.Close()
			label := args[1]
			return s.ws.UpdateTab(cmd.Context(), args[0], dashboard.TabPatch{Label: &label})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <tab-id>",
		Short: "Delete a tab and its widgets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer s.store.Close()
			return s.ws.DeleteTab(cmd.Context(), args[0])
		},
	})

	return cmd
}

func printTabs(cmd *cobra.Command, ws *workspace.Workspace) {
	out := cmd.OutOrStdout()
	active := ws.Active()
	for _, t := range ws.Tabs() {
		marker := " "
		if t.ID == active {
			marker = "*"
		}
		_, _ = fmt.Fprintf(out, "%s %d\t%s\t%s\n", marker, t.Order, t.ID, t.Label)
	}
}
