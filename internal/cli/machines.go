package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/buildtall-systems/vendfleet/internal/config"
	"github.com/buildtall-systems/vendfleet/internal/db"
)

var machinesCmd = &cobra.Command{
	Use:   "machines",
	Short: "Administer the machine fleet",
}

var machinesAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a new vending machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		m, err := database.CreateMachine(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("machine %d (%s) registered\n", m.ID, m.Name)
		return nil
	},
}

var machinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all vending machines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		machines, err := database.ListMachines(cmd.Context())
		if err != nil {
			return err
		}

		if len(machines) == 0 {
			fmt.Println("no machines registered")
			return nil
		}

		fmt.Printf("%-6s %-24s %-16s %s\n", "ID", "NAME", "STATUS", "USAGE")
		for _, m := range machines {
			fmt.Printf("%-6d %-24s %-16s %d\n", m.ID, m.Name, m.Status, m.UsageCount)
		}
		return nil
	},
}

var machinesRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a vending machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid machine id %q", args[0])
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		if err := database.DeleteMachine(cmd.Context(), id); err != nil {
			return err
		}

		fmt.Printf("machine %d deleted\n", id)
		return nil
	},
}

func init() {
	machinesCmd.AddCommand(machinesAddCmd)
	machinesCmd.AddCommand(machinesListCmd)
	machinesCmd.AddCommand(machinesRmCmd)
	rootCmd.AddCommand(machinesCmd)
}

// openStore opens the configured database and runs migrations. Used by the
// administrative commands, which operate on the store directly.
func openStore() (*db.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return database, nil
}
