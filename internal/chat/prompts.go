package chat

import (
	"fmt"
	"strings"

	"github.com/prettygood-work/benefits-chat-demo/internal/llm"
	"github.com/prettygood-work/benefits-chat-demo/internal/search"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
	"github.com/prettygood-work/benefits-chat-demo/internal/store"
)

const systemPromptTemplate = `You are a benefits concierge for %s. You help employees understand
their health plans, estimate costs and choose coverage.

Guidelines:
- Ground every plan detail in tool results; never invent premiums or deductibles.
- Use calculate_plan_costs for cost questions and compare_plans when weighing options.
- Keep answers short and concrete. Ask for family size and expected usage when missing.
- You may not give medical or legal advice.`

func buildSystemPrompt(tenantName string, docs []search.Document, userType string) string {
	if tenantName == "" {
		tenantName = "this organization"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, systemPromptTemplate, tenantName)

	if userType == session.UserTypeGuest {
		sb.WriteString("\n\nThe user is browsing as a guest. Suggest creating an account for document features.")
	}

	if len(docs) > 0 {
		sb.WriteString("\n\nRelevant knowledge base passages:\n")
		for i, doc := range docs {
			fmt.Fprintf(&sb, "%d. %s\n%s\n", i+1, doc.Title, snippet(doc.Content, 500))
		}
	}
	return sb.String()
}

func buildPromptMessages(system string, history []store.Message, userMessage string, maxHistory int) []llm.Message {
	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	for _, msg := range history {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})
	return messages
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func truncateTitle(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
