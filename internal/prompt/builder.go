// Package prompt turns conversation history, retrieved passages and document
// similarity into the message list sent to the model.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bull/pdfchat-server/internal/llm"
	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/retrieval"
)

const chunkInstruction = `You are an assistant answering questions about the user's PDF documents. Each question may come with passages taken from those documents.

How to answer:
1. Read the input prompt and any passages under CONTENT.
2. Use relevant passages to ground your answer without mentioning that passages were provided.
3. When there are no relevant passages, answer from general knowledge and do not attribute anything to a document.

Every passage is preceded by a tag of the form <!-- pdfnav:{...} -->. After any statement that relies on a passage, copy that passage's tag verbatim on its own line. Never invent or alter tags.

Keep answers focused and concise. Use Markdown when it helps readability.`

const fullDocumentInstruction = `You are an assistant answering questions about the user's PDF documents. The complete text of every attached document follows the question, page by page.

How to answer:
1. Read the input prompt and the pages under CONTENT.
2. Draw on every page that matters, combining information across pages and across documents when the question calls for it. Compare or contrast documents when asked.
3. Do not mention that the documents were provided; answer as someone who has read them.

Every page is preceded by a tag of the form <!-- pdfnav:{...} -->. After any statement that relies on a page, copy that page's tag verbatim on its own line. Never invent or alter tags.

Keep answers focused and concise. Use Markdown when it helps readability.`

const noContextNote = "No relevant context was found in the attached documents. Answer from general knowledge and do not attribute any statement to a document or include navigation tags."

const sectionRule = "\n-------\n\n"

// Request collects everything one chat turn needs.
type Request struct {
	// History is the persisted conversation, ending with the user message
	// that is being answered.
	History      []records.Message
	Question     string
	Passages     []retrieval.Passage
	Mode         retrieval.Mode
	Similarities []records.SimilarityScore
	// Names maps document ids to display names for the similarity block.
	Names map[string]string
}

// Build returns the system instruction, the prior history in order, and one
// final user message carrying the question and its context.
func Build(req Request) []llm.Message {
	prior := req.History
	if len(prior) > 0 {
		prior = prior[:len(prior)-1]
	}

	messages := make([]llm.Message, 0, len(prior)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: SystemInstruction(req.Mode)})
	for _, m := range prior {
		messages = append(messages, llm.Message{Role: role(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: UserTurn(req)})
	return messages
}

// SystemInstruction selects the instruction variant for mode.
func SystemInstruction(mode retrieval.Mode) string {
	if mode == retrieval.ModeFullDocument {
		return fullDocumentInstruction
	}
	return chunkInstruction
}

// UserTurn formats the question, context passages and similarity block.
func UserTurn(req Request) string {
	var b strings.Builder
	b.WriteString("INPUT PROMPT:\n")
	b.WriteString(req.Question)
	b.WriteString("\n")

	if len(req.Passages) > 0 {
		b.WriteString(sectionRule)
		b.WriteString("CONTENT:\n")
		for _, p := range req.Passages {
			b.WriteString(NavTag(p.Source))
			b.WriteString("\n")
			b.WriteString(strings.TrimSpace(p.Text))
			b.WriteString("\n\n")
		}
	}

	if block := similarityBlock(req.Similarities, req.Names); block != "" {
		b.WriteString(sectionRule)
		b.WriteString(block)
	}

	if len(req.Passages) == 0 && len(req.Similarities) == 0 {
		b.WriteString(sectionRule)
		b.WriteString(noContextNote)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

type navPayload struct {
	ID   string `json:"id"`
	Page int    `json:"page"`
	Name string `json:"name"`
}

// NavTag serializes a passage source as the navigation tag the model is
// asked to reproduce.
func NavTag(src retrieval.Source) string {
	name := src.DocumentName
	if name == "" {
		name = retrieval.UnknownDocumentName
	}
	payload, err := json.Marshal(navPayload{ID: src.DocumentID, Page: src.Page, Name: name})
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"id":%q,"page":%d}`, src.DocumentID, src.Page))
	}
	return "<!-- pdfnav:" + string(payload) + " -->"
}

func similarityBlock(scores []records.SimilarityScore, names map[string]string) string {
	if len(scores) == 0 {
		return ""
	}
	name := func(id string) string {
		if n, ok := names[id]; ok && n != "" {
			return n
		}
		return retrieval.UnknownDocumentName
	}

	most, least := scores[0], scores[0]
	var b strings.Builder
	b.WriteString("DOCUMENT SIMILARITY (0 = unrelated, 1 = identical wording):\n")
	for _, s := range scores {
		fmt.Fprintf(&b, "- %q and %q: %.2f\n", name(s.DocumentA), name(s.DocumentB), s.Score)
		if s.Score > most.Score {
			most = s
		}
		if s.Score < least.Score {
			least = s
		}
	}
	fmt.Fprintf(&b, "Most similar pair: %q and %q (%.2f)\n", name(most.DocumentA), name(most.DocumentB), most.Score)
	fmt.Fprintf(&b, "Least similar pair: %q and %q (%.2f)\n", name(least.DocumentA), name(least.DocumentB), least.Score)
	return b.String()
}

func role(r records.Role) llm.Role {
	switch r {
	case records.RoleAssistant:
		return llm.RoleAssistant
	case records.RoleSystem:
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}
