package domain

import "fmt"

// PageCount is the fixed number of pages in every storybook.
const PageCount = 10

// Page is one page of a generated narrative.
type Page struct {
	Number      int    `json:"page"`
	Text        string `json:"text"`
	ImagePrompt string `json:"imagePrompt"`
}

// Narrative is the generated title plus the ordered page texts and their
// per-page illustration prompts. Once persisted on a job it is immutable.
type Narrative struct {
	Title string `json:"title"`
	Pages []Page `json:"pages"`
}

// Validate enforces the fixed narrative shape: exactly ten pages, numbered
// 1..10 in order, each with non-empty text. Violations wrap
// ErrMalformedNarrative; the shape is never coerced.
func (n *Narrative) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: narrative is empty", ErrMalformedNarrative)
	}
	if len(n.Pages) != PageCount {
		return fmt.Errorf("%w: expected %d pages, got %d", ErrMalformedNarrative, PageCount, len(n.Pages))
	}
	for i, page := range n.Pages {
		if page.Number != i+1 {
			return fmt.Errorf("%w: page at index %d numbered %d, want %d", ErrMalformedNarrative, i, page.Number, i+1)
		}
		if page.Text == "" {
			return fmt.Errorf("%w: page %d has no text", ErrMalformedNarrative, page.Number)
		}
	}
	return nil
}
