// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package pipeline

import (
	"fmt"
	"strings"

	"github.com/tomtom215/arcanum/internal/config"
	"github.com/tomtom215/arcanum/internal/inference"
	"github.com/tomtom215/arcanum/internal/models"
)

const systemPrompt = "You are a thoughtful tarot reader. Speak directly to the querent in warm, " +
	"plain language. Ground every statement in the cards that were drawn and their positions. " +
	"Do not predict death, illness or legal outcomes, and do not give medical or financial advice."

// Models selects the model and output bound for each stage.
type Models struct {
	Vision              string
	Text                string
	IdentifyMaxTokens   int
	IndividualMaxTokens int
	GeneralMaxTokens    int
}

// ModelsFromSettings maps the inference config section.
func ModelsFromSettings(s *config.InferenceConfig) Models {
	return Models{
		Vision:              s.VisionModel,
		Text:                s.TextModel,
		IdentifyMaxTokens:   s.IdentifyMaxTokens,
		IndividualMaxTokens: s.IndividualMaxTokens,
		GeneralMaxTokens:    s.GeneralMaxTokens,
	}
}

func system() inference.Message {
	return inference.Message{Role: inference.RoleSystem, Parts: []inference.Part{inference.TextPart(systemPrompt)}}
}

func user(parts ...inference.Part) inference.Message {
	return inference.Message{Role: inference.RoleUser, Parts: parts}
}

func framing(spread models.SpreadType, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Spread: %s (%d positions: %s).\n", spread, spread.Size(), strings.Join(spread.Positions(), ", "))
	if q := strings.TrimSpace(question); q != "" {
		fmt.Fprintf(&b, "Question: %s\n", q)
	} else {
		b.WriteString("Question: none given; offer a general reading.\n")
	}
	return b.String()
}

func identifyRequest(m Models, spread models.SpreadType, question, imageURL string) inference.Request {
	prompt := framing(spread, question) +
		"\nThe photo shows a physical tarot spread. List every card you can see in layout order, " +
		"one per line, as `<position>: <card name> (upright|reversed)`. " +
		"If a card cannot be identified, write `<position>: unknown`. Do not interpret yet."
	return inference.Request{
		Model:     m.Vision,
		MaxTokens: m.IdentifyMaxTokens,
		Messages: []inference.Message{
			system(),
			user(inference.TextPart(prompt), inference.ImagePart(imageURL)),
		},
	}
}

func individualRequest(m Models, spread models.SpreadType, question, identified string) inference.Request {
	prompt := framing(spread, question) +
		"\nThese cards were identified in the photo:\n" + identified +
		"\n\nInterpret each card on its own, in order. Give each card a short paragraph " +
		"that names the card, its position and its orientation."
	return inference.Request{
		Model:     m.Text,
		MaxTokens: m.IndividualMaxTokens,
		Messages:  []inference.Message{system(), user(inference.TextPart(prompt))},
	}
}

func generalPhotoRequest(m Models, spread models.SpreadType, question, identified, individual string) inference.Request {
	prompt := framing(spread, question) +
		"\nCards identified in the photo:\n" + identified +
		"\n\nIndividual interpretations already given:\n" + individual +
		"\n\nNow write the overall reading: how the cards speak to each other across the spread, " +
		"and what they suggest for the question. Do not repeat the individual interpretations."
	return inference.Request{
		Model:     m.Text,
		MaxTokens: m.GeneralMaxTokens,
		Messages:  []inference.Message{system(), user(inference.TextPart(prompt))},
	}
}

func describeCards(cards []models.DrawnCard) string {
	var b strings.Builder
	for i, c := range cards {
		pos := c.PositionName
		if pos == "" {
			pos = fmt.Sprintf("Position %d", i+1)
		}
		fmt.Fprintf(&b, "%d. %s: %s (%s)", i+1, pos, c.Name, c.Orientation())
		if len(c.Keywords) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(c.Keywords, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func generalManualRequest(m Models, spread models.SpreadType, question string, cards []models.DrawnCard) inference.Request {
	prompt := framing(spread, question) +
		"\nThe querent drew these cards:\n" + describeCards(cards) +
		"\nWrite the reading. Give each card a short paragraph for its position and orientation, " +
		"then close with a synthesis of the whole spread."
	return inference.Request{
		Model:     m.Text,
		MaxTokens: m.GeneralMaxTokens,
		Messages:  []inference.Message{system(), user(inference.TextPart(prompt))},
	}
}
