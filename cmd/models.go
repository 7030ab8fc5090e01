package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect stored model artifacts",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List model artifacts, oldest first",
	RunE:  runModelsList,
}

var modelsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the artifact a server would load",
	RunE:  runModelsLatest,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsLatestCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newModelStore(cfg, logger)
	if err != nil {
		return err
	}
	artifacts, err := store.List()
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		fmt.Printf("No models in %s\n", store.Dir())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tPATH")
	for _, a := range artifacts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.ID, a.CreatedAt.Local().Format(time.DateTime), a.Path)
	}
	return w.Flush()
}

func runModelsLatest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newModelStore(cfg, logger)
	if err != nil {
		return err
	}
	latest, err := store.DiscoverLatest()
	if err != nil {
		return err
	}
	if latest == nil {
		return fmt.Errorf("no model in %s", store.Dir())
	}

	r, err := store.Load(latest.Path)
	if err != nil {
		return err
	}
	fmt.Printf("Path:        %s\n", latest.Path)
	fmt.Printf("Created:     %s\n", latest.CreatedAt.Local().Format(time.DateTime))
	fmt.Printf("Samples:     %d\n", r.Len())
	fmt.Printf("Identities:  %v\n", r.Labels())
	return nil
}
