package domain

import (
	"fmt"
	"strings"
)

// ChildProfile carries the questionnaire answers that steer the story. The
// Gender, HairColor and FavoriteColor fields are opaque codes used only to
// shape pronouns and illustration prompts; unknown codes degrade to neutral
// defaults downstream.
type ChildProfile struct {
	Name             string `json:"childName"`
	Age              int    `json:"childAge"`
	Height           string `json:"childHeight,omitempty"`
	FavoriteFood     string `json:"favoriteFood"`
	FavoriteActivity string `json:"favoriteActivity"`
	BestMemory       string `json:"bestMemory"`
	Personality      string `json:"personality,omitempty"`
	Gender           string `json:"gender,omitempty"`
	HairColor        string `json:"hairColor,omitempty"`
	FavoriteColor    string `json:"favoriteColor,omitempty"`
}

// Validate checks the required questionnaire fields. Violations wrap
// ErrValidation so callers can reject the request before a job is created.
func (p ChildProfile) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "childName")
	}
	if strings.TrimSpace(p.FavoriteFood) == "" {
		missing = append(missing, "favoriteFood")
	}
	if strings.TrimSpace(p.FavoriteActivity) == "" {
		missing = append(missing, "favoriteActivity")
	}
	if strings.TrimSpace(p.BestMemory) == "" {
		missing = append(missing, "bestMemory")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if p.Age <= 0 {
		return fmt.Errorf("%w: childAge must be a positive integer", ErrValidation)
	}
	return nil
}
