package illustration

import (
	"fmt"
	"strings"

	"storybook/internal/domain"
)

const stylePreamble = "Professional children's book illustration in watercolor and digital art style"

// Appearance codes are translated to descriptive phrases through fixed
// lookups; unknown codes fall back to neutral wording instead of failing.
var genderPhrases = map[string]string{
	"boy":    "boy",
	"male":   "boy",
	"pojke":  "boy",
	"girl":   "girl",
	"female": "girl",
	"flicka": "girl",
}

var hairPhrases = map[string]string{
	"blonde":   "blonde hair",
	"blond":    "blonde hair",
	"brown":    "brown hair",
	"black":    "black hair",
	"red":      "red hair",
	"ginger":   "red hair",
	"dark":     "dark hair",
	"lockigt":  "curly hair",
	"curly":    "curly hair",
}

var colorPhrases = map[string]string{
	"red":    "warm red accents",
	"blue":   "soft blue tones",
	"green":  "fresh green tones",
	"yellow": "sunny yellow accents",
	"pink":   "playful pink accents",
	"purple": "gentle purple tones",
	"orange": "bright orange accents",
}

// BuildPrompt layers the fixed art-style preamble, the page's image
// description from the narrative, and the child's appearance into one
// image-generation prompt.
func BuildPrompt(page domain.Page, profile domain.ChildProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n\n", stylePreamble, page.ImagePrompt)
	fmt.Fprintf(&b, "Main character: %s\n", characterDescription(profile))
	b.WriteString("Art style: Bright, cheerful, whimsical children's book illustration with soft edges\n")
	fmt.Fprintf(&b, "Colors: Warm, vibrant, family-friendly palette%s\n", paletteHint(profile.FavoriteColor))
	b.WriteString("Mood: Joyful, magical, safe, and inspiring - perfect for young children\n")
	b.WriteString("Details: Include magical sparkles or gentle fantasy elements, avoid any scary or dark themes")
	return b.String()
}

// characterDescription renders the hero line from the profile's appearance codes.
func characterDescription(p domain.ChildProfile) string {
	noun := lookupPhrase(genderPhrases, p.Gender, "child")
	desc := fmt.Sprintf("A happy, friendly %d-year-old %s named %s", p.Age, noun, p.Name)
	if hair := lookupPhrase(hairPhrases, p.HairColor, ""); hair != "" {
		desc += " with " + hair
	}
	return desc
}

func paletteHint(favoriteColor string) string {
	if phrase := lookupPhrase(colorPhrases, favoriteColor, ""); phrase != "" {
		return " with " + phrase + " and magical touches"
	}
	return " with magical touches"
}

func lookupPhrase(table map[string]string, code, fallback string) string {
	if phrase, ok := table[strings.ToLower(strings.TrimSpace(code))]; ok {
		return phrase
	}
	return fallback
}
