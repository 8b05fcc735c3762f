package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Administer the product inventory",
}

var productsAddCmd = &cobra.Command{
	Use:   "add NAME STOCK",
	Short: "Add a product to the inventory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stock, err := strconv.Atoi(args[1])
		if err != nil || stock < 0 {
			return fmt.Errorf("invalid stock %q", args[1])
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		p, err := database.CreateProduct(cmd.Context(), args[0], stock)
		if err != nil {
			return err
		}

		fmt.Printf("product %d (%s) added with stock %d\n", p.ID, p.Name, p.Stock)
		return nil
	},
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all products",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		products, err := database.ListProducts(cmd.Context())
		if err != nil {
			return err
		}

		if len(products) == 0 {
			fmt.Println("no products in inventory")
			return nil
		}

		fmt.Printf("%-6s %-24s %s\n", "ID", "NAME", "STOCK")
		for _, p := range products {
			fmt.Printf("%-6d %-24s %d\n", p.ID, p.Name, p.Stock)
		}
		return nil
	},
}

var productsSetStockCmd = &cobra.Command{
	Use:   "set-stock ID STOCK",
	Short: "Set a product's stock to an exact count",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		stock, err := strconv.Atoi(args[1])
		if err != nil || stock < 0 {
			return fmt.Errorf("invalid stock %q", args[1])
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		p, err := database.SetProductStock(cmd.Context(), id, stock)
		if err != nil {
			return err
		}

		fmt.Printf("product %d (%s) stock set to %d\n", p.ID, p.Name, p.Stock)
		return nil
	},
}

var productsRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		if err := database.DeleteProduct(cmd.Context(), id); err != nil {
			return err
		}

		fmt.Printf("product %d deleted\n", id)
		return nil
	},
}

func init() {
	productsCmd.AddCommand(productsAddCmd)
	productsCmd.AddCommand(productsListCmd)
	productsCmd.AddCommand(productsSetStockCmd)
	productsCmd.AddCommand(productsRmCmd)
	rootCmd.AddCommand(productsCmd)
}
