package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rentals/internal/client"
	"rentals/internal/rental"
)

type remoteFlags struct {
	url    string
	apiKey string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", envOr("RENTALS_URL", "http://localhost:8080"), "Base URL of the rentals service")
	cmd.Flags().StringVar(&f.apiKey, "api-key", os.Getenv("RENTALS_API_KEY"), "API key for rent and return")
}

func (f *remoteFlags) client() *client.Client {
	return client.New(f.url, f.apiKey)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseItemID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func (a *app) statusCommand() *cobra.Command {
	var (
		remote remoteFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status <item-id>[,<item-id>...]",
		Short: "Show whether items are currently rented",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := rental.ParseItemIDs(args[0])
			if err != nil {
				return err
			}
			statuses, err := remote.client().AreItemsRent(cmd.Context(), ids)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, statuses)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ITEM\tSTATE")
			for _, st := range statuses.List() {
				fmt.Fprintf(w, "%d\t%s\n", st.ItemID, st.State())
			}
			return w.Flush()
		},
	}
	remote.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the statuses as a JSON object")
	return cmd
}

func (a *app) rentCommand() *cobra.Command {
	var remote remoteFlags
	cmd := &cobra.Command{
		Use:   "rent <item-id> <user-id>",
		Short: "Rent an item to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			record, err := remote.client().RentItem(cmd.Context(), itemID, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, record)
		},
	}
	remote.register(cmd)
	return cmd
}

func (a *app) returnCommand() *cobra.Command {
	var remote remoteFlags
	cmd := &cobra.Command{
		Use:   "return <item-id>",
		Short: "Return a rented item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			record, err := remote.client().ReturnItem(cmd.Context(), itemID)
			if err != nil {
				return err
			}
			return printJSON(cmd, record)
		},
	}
	remote.register(cmd)
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	var (
		remote   remoteFlags
		onlyOpen bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rental records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := remote.client().ListRentals(cmd.Context(), onlyOpen)
			if err != nil {
				return err
			}
			return printJSON(cmd, records)
		},
	}
	remote.register(cmd)
	cmd.Flags().BoolVar(&onlyOpen, "open", false, "Only list records that have not been returned")
	return cmd
}
