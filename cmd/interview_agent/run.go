package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/interview-agent/internal/engine"
	"github.com/jonathan/interview-agent/internal/gateway"
	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/logging"
	"github.com/jonathan/interview-agent/internal/profile"
	"github.com/jonathan/interview-agent/internal/promptcache"
)

var (
	runJobPath       string
	runCompanyPath   string
	runCandidatePath string
	runSample        bool
	runDemo          bool
	runVerbose       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interview in the terminal",
	Long:  `Conduct an interactive interview on the console, reading candidate responses from stdin and printing the final summary.`,
	RunE:  runInterview,
}

func init() {
	runCmd.Flags().StringVar(&runJobPath, "job", "", "Path to job profile JSON")
	runCmd.Flags().StringVar(&runCompanyPath, "company", "", "Path to company profile JSON")
	runCmd.Flags().StringVar(&runCandidatePath, "candidate", "", "Path to candidate profile JSON")
	runCmd.Flags().BoolVar(&runSample, "sample", false, "Use built-in sample profiles")
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "Shortened demo interview")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Print detailed debug information")
	rootCmd.AddCommand(runCmd)
}

func loadProfiles() (*profile.Job, *profile.Company, *profile.Candidate, error) {
	if runSample {
		job, company, candidate := profile.SampleData()
		return job, company, candidate, nil
	}
	if runJobPath == "" || runCompanyPath == "" || runCandidatePath == "" {
		return nil, nil, nil, fmt.Errorf("either --sample or all of --job, --company, --candidate are required")
	}

	job, err := profile.LoadJob(runJobPath)
	if err != nil {
		return nil, nil, nil, err
	}
	company, err := profile.LoadCompany(runCompanyPath)
	if err != nil {
		return nil, nil, nil, err
	}
	candidate, err := profile.LoadCandidate(runCandidatePath)
	if err != nil {
		return nil, nil, nil, err
	}
	return job, company, candidate, nil
}

func runInterview(_ *cobra.Command, _ []string) error {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	job, company, candidate, err := loadProfiles()
	if err != nil {
		return err
	}

	logger, err := logging.New(false, runVerbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	client, err := llm.NewClient(ctx, llm.DefaultConfig(), apiKey)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer client.Close()

	deps := engine.Deps{
		Gateway: gateway.New(client, gateway.Options{}, logger),
		Cache:   promptcache.New(),
		Logger:  logger,
	}
	iv := engine.New(deps, job, company, candidate, engine.Options{Demo: runDemo})

	prompt, err := iv.Start(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s\n", prompt.Introduction)
	printQuestion(prompt)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		response := strings.TrimSpace(scanner.Text())
		if response == "" {
			continue
		}

		prompt, err = iv.Respond(ctx, response)
		if err != nil {
			return err
		}

		if prompt.Acknowledgment != "" {
			fmt.Printf("\n%s\n", prompt.Acknowledgment)
		}
		if prompt.Status == "complete" {
			fmt.Printf("\n%s\n", prompt.ClosingRemarks)
			printSummary(prompt)
			return nil
		}
		printQuestion(prompt)
	}
	return scanner.Err()
}

func printQuestion(prompt *engine.Prompt) {
	if prompt.Transition != "" {
		fmt.Printf("\n%s\n", prompt.Transition)
	}
	label := fmt.Sprintf("Question %d/%d", prompt.QuestionNumber, prompt.TotalQuestions)
	if prompt.IsFollowUp {
		label += " (follow-up)"
	}
	fmt.Printf("\n[%s] %s\n> ", label, prompt.Question.Text)
}

func printSummary(prompt *engine.Prompt) {
	sum := prompt.Summary
	if sum == nil {
		return
	}
	fmt.Printf("\n--- Interview Summary: %s for %s ---\n", sum.CandidateName, sum.Position)
	fmt.Println("\nStrengths:")
	for _, s := range sum.Strengths {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Println("\nAreas for improvement:")
	for _, s := range sum.Improvements {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Printf("\nTechnical assessment (%d/100): %s\n", sum.TechnicalAssessment.Score, sum.TechnicalAssessment.Feedback)
	fmt.Printf("Cultural fit (%d/100): %s\n", sum.CulturalFit.Score, sum.CulturalFit.Feedback)
	fmt.Printf("Recommendation (%d/100): %s\n", sum.Recommendation.Score, sum.Recommendation.Text)
	fmt.Println("\nNext steps:")
	for _, s := range sum.NextSteps {
		fmt.Printf("  - %s\n", s)
	}
	if sum.OverallAssessment != "" {
		fmt.Printf("\n%s\n", sum.OverallAssessment)
	}
}
