package narrative

import (
	"fmt"
	"strings"

	"storybook/internal/domain"
)

// BuildPrompt renders the story prompt for the given profile and locale. The
// prompt mandates the fixed book shape: exactly ten pages, two sentences per
// page, the child as protagonist, age-appropriate wording, a per-page English
// illustration description, and a strict JSON response.
func BuildPrompt(profile domain.ChildProfile, locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "sv") {
		return buildSwedishPrompt(profile)
	}
	return buildEnglishPrompt(profile)
}

func buildSwedishPrompt(p domain.ChildProfile) string {
	personality := p.Personality
	if personality == "" {
		personality = "Ett glatt och nyfiket barn som älskar äventyr"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Du är en magisk berättarfé som skapar personliga barnböcker! Skapa en underbar berättelse på svenska som blir till en riktig bok.\n\n")
	fmt.Fprintf(&b, "BARNETS PROFIL:\n")
	fmt.Fprintf(&b, "- Hjältens namn: %s\n", p.Name)
	fmt.Fprintf(&b, "- Ålder: %d år\n", p.Age)
	if p.Height != "" {
		fmt.Fprintf(&b, "- Längd: %s\n", p.Height)
	}
	fmt.Fprintf(&b, "- Personlighet: %s\n", personality)
	fmt.Fprintf(&b, "- Älskar att: %s\n", p.FavoriteActivity)
	fmt.Fprintf(&b, "- Favoritmat: %s\n", p.FavoriteFood)
	fmt.Fprintf(&b, "- Härligt minne: %s\n\n", p.BestMemory)
	fmt.Fprintf(&b, "REGLER FÖR BERÄTTELSEN:\n")
	fmt.Fprintf(&b, "- Exakt %d sidor, som en riktig barnbok\n", domain.PageCount)
	fmt.Fprintf(&b, "- Exakt 2 meningar per sida, perfekt för %d-åringar\n", p.Age)
	fmt.Fprintf(&b, "- %s är den modiga huvudkaraktären och %s intressen vävs in naturligt\n", p.Name, pronounPossessive(p.Gender, "sv"))
	fmt.Fprintf(&b, "- Helt familjevänlig, full av magi, vänskap och glädje\n")
	fmt.Fprintf(&b, "- Positivt slut där %s lär sig något viktigt eller hjälper andra\n", p.Name)
	fmt.Fprintf(&b, "- Använd enkla, vackra ord som %d-åringar förstår\n\n", p.Age)
	fmt.Fprintf(&b, "För varje sida, beskriv vad som ska synas i bilden (på engelska, för AI-konstnären). Tänk på färgglada, vänliga bilder som barn älskar - inga läskiga saker.\n\n")
	fmt.Fprintf(&b, "Svara ENDAST med giltig JSON i exakt denna form:\n")
	b.WriteString(jsonContract(p.Name))
	return b.String()
}

func buildEnglishPrompt(p domain.ChildProfile) string {
	personality := p.Personality
	if personality == "" {
		personality = "A happy, curious child who loves adventure"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a magical storyteller fairy who creates personalized children's books. Write a wonderful story in English that becomes a real book.\n\n")
	fmt.Fprintf(&b, "THE CHILD'S PROFILE:\n")
	fmt.Fprintf(&b, "- Hero's name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Age: %d years old\n", p.Age)
	if p.Height != "" {
		fmt.Fprintf(&b, "- Height: %s\n", p.Height)
	}
	fmt.Fprintf(&b, "- Personality: %s\n", personality)
	fmt.Fprintf(&b, "- Loves to: %s\n", p.FavoriteActivity)
	fmt.Fprintf(&b, "- Favorite food: %s\n", p.FavoriteFood)
	fmt.Fprintf(&b, "- Treasured memory: %s\n\n", p.BestMemory)
	fmt.Fprintf(&b, "STORY RULES:\n")
	fmt.Fprintf(&b, "- Exactly %d pages, like a real picture book\n", domain.PageCount)
	fmt.Fprintf(&b, "- Exactly 2 sentences per page, right for a %d-year-old\n", p.Age)
	fmt.Fprintf(&b, "- %s is the brave main character and %s interests are woven in naturally\n", p.Name, pronounPossessive(p.Gender, "en"))
	fmt.Fprintf(&b, "- Entirely family friendly, full of magic, friendship and joy\n")
	fmt.Fprintf(&b, "- Positive ending where %s learns something important or helps others\n", p.Name)
	fmt.Fprintf(&b, "- Use simple, beautiful words a %d-year-old understands\n\n", p.Age)
	fmt.Fprintf(&b, "For every page, describe what the illustration should show (in English). Think colorful, friendly scenes children love - nothing scary.\n\n")
	fmt.Fprintf(&b, "Respond ONLY with valid JSON in exactly this shape:\n")
	b.WriteString(jsonContract(p.Name))
	return b.String()
}

func jsonContract(name string) string {
	return fmt.Sprintf(`{
  "title": "...",
  "pages": [
    {
      "page": 1,
      "text": "First sentence featuring %s. Second sentence building excitement.",
      "imagePrompt": "Cheerful children's book illustration showing [happy scene, colorful, friendly, magical atmosphere]"
    }
  ]
}`, name)
}

// pronounPossessive maps the optional gender code to a possessive pronoun,
// falling back to a neutral form for unknown codes.
func pronounPossessive(gender, locale string) string {
	sv := locale == "sv"
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "boy", "male", "pojke":
		if sv {
			return "hans"
		}
		return "his"
	case "girl", "female", "flicka":
		if sv {
			return "hennes"
		}
		return "her"
	default:
		if sv {
			return "hens"
		}
		return "their"
	}
}
