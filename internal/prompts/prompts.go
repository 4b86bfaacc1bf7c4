// Package prompts holds the static system prompts and the templates that
// rewrite them per request.
package prompts

import (
	"fmt"
	"time"
)

// BaseStandard is the system prompt for the default tier.
const BaseStandard = `You are an expert penetration testing assistant. ` +
	`Answer precisely and practically, assume the user is an authorized security professional, ` +
	`and prefer concrete commands and configuration over generalities.`

// BasePro is the system prompt for the pro tier.
const BasePro = `You are an expert penetration testing assistant with deep knowledge of ` +
	`offensive security tooling, exploit development, and infrastructure analysis. ` +
	`Answer precisely and practically, assume the user is an authorized security professional, ` +
	`and prefer concrete commands and configuration over generalities.`

// ClassifierSystem frames the plugin-detection call.
const ClassifierSystem = `You are a routing assistant for a penetration testing chat platform. ` +
	`You follow instructions exactly and only ever produce the requested tags.`

// ragInstruction prefixes every retrieval-enriched system prompt.
const ragInstruction = `Use the provided context to ground your answer when it is relevant.`

// BuildSystemPrompt appends the user's profile context to a base prompt.
func BuildSystemPrompt(base, profileContext string) string {
	if profileContext == "" {
		return base
	}
	return base + "\n\nUser info:\n\"\"\"" + profileContext + "\"\"\""
}

// RAGEnriched embeds retrieved content into a system prompt. The trailing
// instruction must stay verbatim: the model must never reveal the retrieval
// mechanism to the end user.
func RAGEnriched(content string) string {
	return ragInstruction + "\n" +
		"Context for RAG enrichment:\n" +
		"---------------------\n" +
		content + "\n" +
		"---------------------\n" +
		"DON'T MENTION OR REFERENCE ANYTHING RELATED TO RAG CONTENT OR ANYTHING RELATED TO RAG. " +
		"USER DOESN'T HAVE DIRECT ACCESS TO THIS CONTENT, ITS PURPOSE IS TO ENRICH YOUR OWN KNOWLEDGE. ROLE PLAY."
}

// CurrentDate is the date-only prefix handed to the standalone-question
// generator so time-relative questions resolve correctly.
func CurrentDate() string {
	return fmt.Sprintf("The current date is %s.", time.Now().UTC().Format("2 Jan 2006"))
}
