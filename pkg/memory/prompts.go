package memory

const summaryPrompt = `You are a memory manager. Given a prior summary and a new conversation,
update the summary by:
- Adding new persistent facts, decisions, preferences, and patterns
- Revising facts that have changed
- Removing facts that are no longer relevant
Return only the updated summary. No preamble.

PRIOR SUMMARY:
%s

NEW CONVERSATION:
%s`

const sessionPrompt = "Summarize this conversation into 3-5 bullet points capturing key outcomes, decisions, and facts. Be concise.\n\n%s"

const weeklyPrompt = "Compress these daily chat summaries into a weekly narrative. Focus on patterns, recurring themes, and significant changes. Be concise (under 1000 chars).\n\n%s"

const longTermPrompt = "Compress these weekly summaries into long-term patterns and core knowledge. Focus on stable preferences, recurring decisions, and lasting insights. Be concise (under 800 chars).\n\n%s"

// entrySeparator joins entries fed into a compaction prompt.
const entrySeparator = "\n\n---\n\n"
