package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/cornea/internal/database"
	"github.com/spf13/cobra"
)

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Manage known persons",
}

var personAddCmd = &cobra.Command{
	Use:   "add <first-name> [last-name...]",
	Short: "Add a person and print the assigned tag",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPersonAdd,
}

var personListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persons with their face counts",
	RunE:  runPersonList,
}

func init() {
	rootCmd.AddCommand(personCmd)
	personCmd.AddCommand(personAddCmd)
	personCmd.AddCommand(personListCmd)

	personListCmd.Flags().StringP("query", "q", "", "Only persons whose name matches")
}

func runPersonAdd(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := db.CreatePerson(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("Created %s with tag %d\n", p.Name(), p.ID)
	return nil
}

func runPersonList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	var persons []database.Person
	if q := mustGetString(cmd, "query"); q != "" {
		persons, err = db.FindPersonsByName(ctx, q)
	} else {
		persons, err = db.ListPersons(ctx)
	}
	if err != nil {
		return err
	}
	counts, err := db.CountFaces(ctx)
	if err != nil {
		return err
	}
	byTag := make(map[int]int, len(counts))
	for _, c := range counts {
		byTag[c.Tag] = c.Count
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tNAME\tFACES")
	for _, p := range persons {
		fmt.Fprintf(w, "%d\t%s\t%d\n", p.ID, p.Name(), byTag[p.ID])
	}
	return w.Flush()
}
