package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskforge/internal/connectors"
	"github.com/fentz26/taskforge/internal/controlplane"
	"github.com/fentz26/taskforge/internal/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect tasks and submissions through the daemon",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show evaluation progress of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus,
}

var taskResultsCmd = &cobra.Command{
	Use:   "results [task-id]",
	Short: "Show check results of the latest submission",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskResults,
}

var taskRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request a round-1 task for a student",
	RunE:  runTaskRequest,
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit [task-id]",
	Short: "Submit a repository for evaluation",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskSubmit,
}

var taskValidateCmd = &cobra.Command{
	Use:   "validate [repo-url]",
	Short: "Validate a repository with the repository host",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskValidate,
}

var (
	taskStatus   string
	taskRound    int
	identity     string
	secret       string
	endpoint     string
	nonce        string
	repoURL      string
	commitSHA    string
	pagesURL     string
	githubHandle string
)

func init() {
	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskStatusCmd, taskResultsCmd, taskRequestCmd, taskSubmitCmd, taskValidateCmd)

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (pending, sent, received, evaluating, completed, failed)")

	for _, c := range []*cobra.Command{taskShowCmd, taskStatusCmd, taskResultsCmd} {
		c.Flags().IntVar(&taskRound, "round", 0, "Round (default latest)")
	}

	taskRequestCmd.Flags().StringVar(&identity, "identity", "", "Student identity (required)")
	taskRequestCmd.Flags().StringVar(&secret, "secret", "", "Student secret (required)")
	taskRequestCmd.Flags().StringVar(&endpoint, "endpoint", "", "Student delivery endpoint")
	taskRequestCmd.Flags().StringVar(&githubHandle, "github", "", "Student GitHub username")
	taskRequestCmd.MarkFlagRequired("identity")
	taskRequestCmd.MarkFlagRequired("secret")

	taskSubmitCmd.Flags().StringVar(&identity, "identity", "", "Student identity (required)")
	taskSubmitCmd.Flags().IntVar(&taskRound, "round", 1, "Round")
	taskSubmitCmd.Flags().StringVar(&nonce, "nonce", "", "Task nonce (required)")
	taskSubmitCmd.Flags().StringVar(&repoURL, "repo", "", "Repository URL (required)")
	taskSubmitCmd.Flags().StringVar(&commitSHA, "commit", "", "Commit SHA (required)")
	taskSubmitCmd.Flags().StringVar(&pagesURL, "pages", "", "Published pages URL")
	for _, f := range []string{"identity", "nonce", "repo", "commit"} {
		taskSubmitCmd.MarkFlagRequired(f)
	}
}

func roundQuery(round int) string {
	if round <= 0 {
		return ""
	}
	return "?round=" + strconv.Itoa(round)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	path := "/api/tasks"
	if taskStatus != "" {
		path += "?status=" + url.QueryEscape(taskStatus)
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var tasks []models.Task
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROUND\tSTUDENT\tTEMPLATE\tSTATUS")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", t.ID, t.Round, truncate(t.Identity, 32), t.TemplateID, t.Status)
	}
	w.Flush()
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/tasks/" + url.PathEscape(args[0]) + roundQuery(taskRound))
	if err != nil {
		return err
	}

	var task models.Task
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", task.ID)
	fmt.Printf("Round:       %d\n", task.Round)
	fmt.Printf("Student:     %s\n", task.Identity)
	fmt.Printf("Template:    %s\n", task.TemplateID)
	fmt.Printf("Status:      %s\n", task.Status)
	if task.StatusCode != 0 {
		fmt.Printf("Delivery:    HTTP %d\n", task.StatusCode)
	}
	if task.ErrorMessage != "" {
		fmt.Printf("Error:       %s\n", task.ErrorMessage)
	}
	fmt.Printf("Created:     %s\n", task.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("\n%s\n", task.Brief)
	if len(task.Checks) > 0 {
		fmt.Println("\nChecks:")
		for _, c := range task.Checks {
			fmt.Printf("  - %s\n", c)
		}
	}
	if len(task.Attachments) > 0 {
		fmt.Println("\nAttachments:")
		for _, a := range task.Attachments {
			fmt.Printf("  - %s (%d bytes)\n", a.Name, len(a.URL))
		}
	}
	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/evaluate/status/" + url.PathEscape(args[0]) + roundQuery(taskRound))
	if err != nil {
		return err
	}

	var status controlplane.EvaluationStatus
	if err := json.Unmarshal(resp, &status); err != nil {
		return err
	}

	fmt.Printf("Task:    %s (round %d)\n", status.TaskID, status.Round)
	fmt.Printf("Status:  %s\n", status.Status)
	fmt.Printf("Checks:  %d/%d passed\n", status.CompletedChecks, status.TotalChecks)
	return nil
}

func runTaskResults(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/evaluate/results/" + url.PathEscape(args[0]) + roundQuery(taskRound))
	if err != nil {
		return err
	}

	var results controlplane.EvaluationResults
	if err := json.Unmarshal(resp, &results); err != nil {
		return err
	}

	fmt.Printf("Repository: %s @ %s\n", results.RepoURL, results.CommitSHA)
	if results.PagesURL != "" {
		fmt.Printf("Pages:      %s\n", results.PagesURL)
	}
	if len(results.Results) == 0 {
		fmt.Println("No results yet")
		return nil
	}
	printResults(results.Results)
	return nil
}

func runTaskRequest(cmd *cobra.Command, args []string) error {
	body := controlplane.TaskRequest{
		Identity:       identity,
		Secret:         secret,
		Endpoint:       endpoint,
		GitHubUsername: githubHandle,
	}

	resp, err := apiPost("/api/request", body)
	if err != nil {
		return err
	}

	var task models.Task
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("Issued task: %s (round %d)\n", task.ID, task.Round)
	fmt.Printf("Nonce:       %s\n", task.Nonce)
	return nil
}

func runTaskSubmit(cmd *cobra.Command, args []string) error {
	round := taskRound
	body := controlplane.SubmissionRequest{
		Identity:  identity,
		Task:      args[0],
		Round:     &round,
		Nonce:     nonce,
		RepoURL:   repoURL,
		CommitSHA: commitSHA,
		PagesURL:  pagesURL,
	}

	resp, err := apiPost("/api/evaluate", body)
	if err != nil {
		return err
	}

	var receipt controlplane.SubmissionReceipt
	if err := json.Unmarshal(resp, &receipt); err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", receipt.Status, receipt.Message)
	return nil
}

func runTaskValidate(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/api/validate-repo", map[string]string{"repo_url": args[0]})
	if err != nil {
		return err
	}

	var v connectors.Validation
	if err := json.Unmarshal(resp, &v); err != nil {
		return err
	}

	if !v.Valid {
		fmt.Printf("Invalid: %s\n", v.Error)
		return nil
	}
	fmt.Printf("Repository:  %s\n", v.RepoName)
	fmt.Printf("License:     %t\n", v.HasLicense)
	fmt.Printf("README:      %t\n", v.HasReadme)
	fmt.Printf("Commits:     %d\n", v.CommitCount)
	fmt.Printf("Pages:       %t %s\n", v.PagesEnabled, v.PagesURL)
	return nil
}

// printResults writes check results as a table.
func printResults(results []models.CheckResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tSCORE\tREASON")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", r.Name, r.Status, r.Score, truncate(r.Reason, 60))
	}
	w.Flush()
}

// --- Helpers ---

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
