package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"finex/internal/core"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage a user's categories",
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(addCategoryCmd())

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	var principal string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories, income first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := actingAs(cmd.Context(), principal)
			if err != nil {
				return err
			}
			res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Close()

			cats, err := res.Backend.GetCategoriesByType(ctx)
			if err != nil {
				return fmt.Errorf("failed to get categories: %w", err)
			}
			if len(cats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No categories found. Use 'finexctl categories add' to create one.")
				return nil
			}
			return writeCategoryTable(cmd.OutOrStdout(), cats)
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "", "user whose categories to list")
	return cmd
}

func writeCategoryTable(out io.Writer, cats []core.Category) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tTYPE\tCOLOR\tICON\n")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		strings.Repeat("-", 8), strings.Repeat("-", 12), strings.Repeat("-", 7),
		strings.Repeat("-", 7), strings.Repeat("-", 4))
	for _, c := range cats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.Color, c.Icon)
	}
	return w.Flush()
}

func addCategoryCmd() *cobra.Command {
	var (
		principal string
		c         core.Category
		typ       string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := actingAs(cmd.Context(), principal)
			if err != nil {
				return err
			}

			c.ID = core.NewCategoryID()
			c.Type = core.CategoryType(strings.ToLower(typ))
			c.Color = strings.ToLower(c.Color)
			if err := c.Validate(); err != nil {
				return fmt.Errorf("invalid category: %w", err)
			}

			res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Close()

			if err := res.Backend.AddCategory(ctx, c); err != nil {
				return fmt.Errorf("failed to add category: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s category %q (%s)\n", c.Type, c.Name, c.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "", "user who owns the category")
	cmd.Flags().StringVar(&c.Name, "name", "", "category name")
	cmd.Flags().StringVar(&typ, "type", string(core.Expense), "income or expense")
	cmd.Flags().StringVar(&c.Color, "color", "#6366f1", "hex color, e.g. #10b981")
	cmd.Flags().StringVar(&c.Icon, "icon", "", "optional emoji")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
