// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package narrative builds a complete reading offline.
//
// Generate is used in place of the whole inference pipeline when the
// inference service cannot be reached for a manual-mode reading. It is a
// pure function: the same cards, spread and question always produce the same
// text. Orientation is read from the cards, never chosen here.
package narrative

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tomtom215/arcanum/internal/models"
)

var title = cases.Title(language.English)

// suitOrder fixes tie-breaking when two suits are equally represented.
var suitOrder = []string{"Wands", "Cups", "Swords", "Pentacles"}

var suitThemes = map[string]string{
	"Wands":     "drive and creative fire",
	"Cups":      "feelings and relationships",
	"Swords":    "thought and difficult truths",
	"Pentacles": "work, money and the body",
}

// Generate returns a narrative with one paragraph per card followed by a
// closing synthesis for the spread. Paragraphs are separated by blank lines.
func Generate(cards []models.DrawnCard, spread models.SpreadType, question string) string {
	question = strings.TrimSpace(question)

	paragraphs := make([]string, 0, len(cards)+2)
	paragraphs = append(paragraphs, opening(spread, question, len(cards)))
	for i, c := range cards {
		paragraphs = append(paragraphs, cardParagraph(spread, i, c))
	}
	paragraphs = append(paragraphs, synthesis(cards, spread, question))
	return strings.Join(paragraphs, "\n\n")
}

func spreadTitle(spread models.SpreadType) string {
	if !spread.Valid() {
		return "Custom Spread"
	}
	return title.String(strings.ReplaceAll(string(spread), "-", " "))
}

func opening(spread models.SpreadType, question string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Reading", spreadTitle(spread))
	if question != "" {
		fmt.Fprintf(&b, "\nYou asked: %q.", question)
	}
	switch n {
	case 0:
		b.WriteString("\nNo cards were laid, so this reading rests on the question alone.")
	case 1:
		b.WriteString("\nA single card was laid.")
	default:
		fmt.Fprintf(&b, "\n%d cards were laid.", n)
	}
	return b.String()
}

func positionName(spread models.SpreadType, i int, c models.DrawnCard) string {
	if c.PositionName != "" {
		return c.PositionName
	}
	return spread.PositionName(i)
}

func cardParagraph(spread models.SpreadType, i int, c models.DrawnCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (%s)\n", positionName(spread, i, c), c.Name, c.Orientation())

	meaning := c.Meaning()
	if meaning == "" {
		meaning = "a card whose message is still forming"
	}
	if c.Reversed {
		fmt.Fprintf(&b, "Reversed, %s speaks of %s.", c.Name, meaning)
	} else {
		fmt.Fprintf(&b, "%s speaks of %s.", c.Name, meaning)
	}
	if len(c.Keywords) > 0 {
		fmt.Fprintf(&b, " Keep in mind: %s.", strings.Join(c.Keywords, ", "))
	}
	if c.Arcana == models.ArcanaMajor {
		b.WriteString(" As a major arcanum it marks a turning point rather than a passing mood.")
	}
	return b.String()
}

func synthesis(cards []models.DrawnCard, spread models.SpreadType, question string) string {
	var b strings.Builder
	b.WriteString("Synthesis\n")

	if len(cards) == 0 {
		b.WriteString("Without cards there is nothing to weigh; draw again when the moment feels right.")
		return b.String()
	}

	switch {
	case spread == models.SpreadSingle || len(cards) == 1:
		c := cards[0]
		fmt.Fprintf(&b, "Everything in this reading gathers around %s. ", c.Name)
		if c.Reversed {
			b.WriteString("Its reversal asks you to look at what is blocked or turned inward before acting.")
		} else {
			b.WriteString("Let it be the lens for the days ahead.")
		}

	case spread == models.SpreadThreeCard && len(cards) >= 3:
		fmt.Fprintf(&b, "The story runs from %s in the past, through %s in the present, toward %s in the future. ",
			cards[0].Name, cards[1].Name, cards[2].Name)
		if cards[1].Reversed {
			fmt.Fprintf(&b, "The present is the knot: %s reversed suggests the bridge between what was and what comes is not yet steady.", cards[1].Name)
		} else {
			fmt.Fprintf(&b, "The present, %s, is where you have the most leverage.", cards[1].Name)
		}

	case spread == models.SpreadCelticCross && len(cards) >= 10:
		fmt.Fprintf(&b, "At the heart of the matter %s is crossed by %s. ", cards[0].Name, cards[1].Name)
		fmt.Fprintf(&b, "Beneath it lies %s, and your hopes and fears take the shape of %s. ", cards[2].Name, cards[8].Name)
		fmt.Fprintf(&b, "If nothing changes, the path leads toward %s.", cards[9].Name)

	default:
		names := make([]string, len(cards))
		for i, c := range cards {
			names[i] = c.Name
		}
		fmt.Fprintf(&b, "Read together, %s form one thread.", joinNames(names))
	}

	if tone := balance(cards); tone != "" {
		b.WriteString(" ")
		b.WriteString(tone)
	}
	if question != "" {
		fmt.Fprintf(&b, " Bring these cards back to your question, %q, and notice which of them answers first.", question)
	}
	return b.String()
}

// balance describes the mix of major arcana, reversals and suits.
func balance(cards []models.DrawnCard) string {
	if len(cards) < 2 {
		return ""
	}

	var majors, reversed int
	suits := make(map[string]int, len(suitOrder))
	for _, c := range cards {
		if c.Arcana == models.ArcanaMajor {
			majors++
		}
		if c.Reversed {
			reversed++
		}
		if c.Suit != "" {
			suits[c.Suit]++
		}
	}

	var notes []string
	switch {
	case majors*2 > len(cards):
		notes = append(notes, "Most of the cards are major arcana, so larger forces are at work than day-to-day choices.")
	case majors == 0:
		notes = append(notes, "No major arcana appeared; this is a matter you can shape with ordinary steps.")
	}
	if reversed*2 > len(cards) {
		notes = append(notes, "Many cards are reversed, which points to energy held back or turned inward.")
	}

	dominant, count := "", 0
	for _, s := range suitOrder {
		if suits[s] > count {
			dominant, count = s, suits[s]
		}
	}
	if count >= 2 {
		notes = append(notes, fmt.Sprintf("The %s recur, drawing attention to %s.", dominant, suitThemes[dominant]))
	}
	return strings.Join(notes, " ")
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
