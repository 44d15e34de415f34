package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskforge/internal/tasks"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Inspect task templates",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered templates",
	RunE:  runTemplateList,
}

var templatePreviewCmd = &cobra.Command{
	Use:   "preview [identity]",
	Short: "Generate a task for an identity without recording it",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatePreview,
}

var templateCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a YAML or TOML template file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateCheck,
}

var (
	previewTemplate string
	previewRound    int
)

func init() {
	templateCmd.AddCommand(templateListCmd, templatePreviewCmd, templateCheckCmd)

	templatePreviewCmd.Flags().StringVar(&previewTemplate, "template", "", "Template id (default: selected by identity)")
	templatePreviewCmd.Flags().IntVar(&previewRound, "round", 1, "Round to generate")
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROUND 2")
	for _, id := range gen.ListTemplates() {
		t, ok := gen.Template(id)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%t\n", id, t.Name(), t.HasRound2())
	}
	return w.Flush()
}

func runTemplatePreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return err
	}

	task, err := gen.GenerateTask(args[0], tasks.GenerateOptions{
		TemplateID: previewTemplate,
		Round:      previewRound,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(task)
}

func runTemplateCheck(cmd *cobra.Command, args []string) error {
	file, err := tasks.LoadTemplateFile(args[0])
	if err != nil {
		return err
	}

	if _, err := tasks.NewTemplate(file.ID, file.Definition); err != nil {
		return fmt.Errorf("template %s: %w", file.ID, err)
	}
	fmt.Printf("Template %s is valid\n", file.ID)
	return nil
}
