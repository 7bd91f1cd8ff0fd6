// Package profile defines the structured records the document-processing
// collaborator hands to the interview core. The core treats them as
// read-only context: they shape prompts but are never mutated here.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Job describes the position being interviewed for.
type Job struct {
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	RequiredSkills []string `json:"required_skills" validate:"required,min=1,dive,required"`
}

// Company describes the hiring organization.
type Company struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Mission     string `json:"mission"`
	Values      string `json:"values"`
}

// Candidate describes the person being interviewed.
type Candidate struct {
	Name       string   `json:"name" validate:"required"`
	Skills     []string `json:"skills"`
	Experience string   `json:"experience"`
	Background string   `json:"background"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a profile record against its declared constraints.
func Validate(record any) error {
	err := validate.Struct(record)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("profile validation: %w", err)
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields = append(fields, fieldErr.Field())
	}
	return fmt.Errorf("profile validation failed on fields: %s", strings.Join(fields, ", "))
}

// LoadJob reads and validates a job profile from a JSON file.
func LoadJob(path string) (*Job, error) {
	var job Job
	if err := loadJSON(path, &job); err != nil {
		return nil, err
	}
	if err := Validate(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// LoadCompany reads and validates a company profile from a JSON file.
func LoadCompany(path string) (*Company, error) {
	var company Company
	if err := loadJSON(path, &company); err != nil {
		return nil, err
	}
	if err := Validate(&company); err != nil {
		return nil, err
	}
	return &company, nil
}

// LoadCandidate reads and validates a candidate profile from a JSON file.
func LoadCandidate(path string) (*Candidate, error) {
	var candidate Candidate
	if err := loadJSON(path, &candidate); err != nil {
		return nil, err
	}
	if err := Validate(&candidate); err != nil {
		return nil, err
	}
	return &candidate, nil
}

func loadJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profile file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse profile JSON %s: %w", path, err)
	}
	return nil
}

// SampleData returns built-in demo profiles so an interview can be exercised
// without uploading documents.
func SampleData() (*Job, *Company, *Candidate) {
	job := &Job{
		Title:       "Senior Backend Engineer",
		Description: "Design and operate the services behind our scheduling platform. You will own APIs end to end, from data model to deployment, and mentor mid-level engineers.",
		RequiredSkills: []string{
			"Go", "PostgreSQL", "distributed systems", "API design", "Kubernetes",
		},
	}
	company := &Company{
		Name:        "Meridian Labs",
		Description: "Meridian Labs builds workforce scheduling software for hospitals and clinics.",
		Mission:     "Give care teams schedules that work for patients and for people.",
		Values:      "Ownership, empathy for users, craft, direct communication",
	}
	candidate := &Candidate{
		Name:       "Jordan Reyes",
		Skills:     []string{"Go", "Python", "PostgreSQL", "AWS"},
		Experience: "Six years building backend services, most recently payments infrastructure at a logistics startup.",
		Background: "B.S. in Computer Science. Led the migration of a monolith to services handling 40k requests per minute.",
	}
	return job, company, candidate
}
