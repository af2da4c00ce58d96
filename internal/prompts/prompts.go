// Package prompts holds the system prompts and user-message builders for
// every reasoning node. Keeping them in one place makes prompt changes
// reviewable without touching node logic.
package prompts

import (
	"fmt"
	"strings"

	"github.com/rendis/wayfind/pkg/schema"
)

// RouterSystem classifies a request as a complex multi-step task or a simple
// question answerable in one shot.
const RouterSystem = `You classify user requests for an AI tool recommendation service.

Decide whether the request is a complex task that needs decomposition into
sub-tasks, or a simple question answerable directly.

Complex: the user wants to accomplish a project or goal that spans several
kinds of work (e.g. "I want to launch a YouTube channel").
Simple: a single factual or comparison question (e.g. "Is Midjourney free?").

Respond with JSON only:
{"is_complex": true}
or
{"is_complex": false}`

func RouterUser(request string) string {
	return fmt.Sprintf("## User request\n%s\n\nClassify the request as JSON.", request)
}

// PlannerSystem decomposes a complex request into ordered sub-tasks.
const PlannerSystem = `You analyze user requests and decompose them into actionable sub-tasks
for an AI tool recommendation service.

Rules:
1. Each sub-task must be independently executable.
2. Produce between 2 and 5 sub-tasks.
3. Tie each sub-task to a concrete tool category.
4. Order matters: list sub-tasks in execution order.

Tool categories:
- text-generation: writing, conversation, copy
- image-generation: images and art
- video-generation: video creation and editing
- audio-generation: speech, music, podcasts
- code-generation: programming assistance
- productivity: planning and organization
- design: design and layout
- research: search and research

Respond with JSON only:
{
  "analysis": "one-sentence reading of the request",
  "subtasks": ["specific sub-task description", "..."]
}`

func PlannerUser(request, profile string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## User request\n%s\n", request)
	if profile != "" {
		fmt.Fprintf(&b, "\n## User profile (for reference)\n%s\n", profile)
	}
	b.WriteString("\nDecompose the request into sub-tasks. Respond with JSON only.")
	return b.String()
}

// ModifyPlanSystem revises an existing plan according to user feedback.
const ModifyPlanSystem = `Revise the current plan according to the user's feedback.

Rules:
1. Remove, change, or add sub-tasks as the feedback requires.
2. Keep between 2 and 5 sub-tasks.
3. Removed sub-tasks disappear entirely.
4. Keep remaining sub-tasks in execution order.

Respond with JSON only:
{"analysis": "what changed", "subtasks": ["...", "..."]}`

func ModifyPlanUser(request string, subTasks []string, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Original request\n%s\n\n", request)
	b.WriteString("## Current plan\n")
	for i, task := range subTasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, task)
	}
	fmt.Fprintf(&b, "\n## Requested changes\n%s\n", feedback)
	b.WriteString("\nOutput the revised plan as JSON only.")
	return b.String()
}

// RecommendSystem drives the bounded capability loop for one sub-task.
const RecommendSystem = `You recommend AI tools. Work step by step: invoke a capability to gather
evidence, read the observation, then either invoke another capability or
present a recommendation.

Strategy:
1. Rewrite the sub-task into search keywords before retrieving
   (e.g. "write a script" -> "text generation writing").
2. Retrieve from the catalog first; its ranked scores decide this sub-task.
3. If retrieval returns no candidates at all, try web search instead.
4. Never repeat the same capability with the same arguments.
5. Once the evidence is sufficient, stop invoking and answer.

Recommendation format:
## Recommended tool: <name>
- Why: why it fits this sub-task
- Price: free/paid
- Getting started: one or two steps
- Alternatives: one or two options`

func RecommendUser(task string, profile string, priorObservations int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Current sub-task\n%s\n", task)
	if profile != "" {
		fmt.Fprintf(&b, "\n## User profile\n%s\n", profile)
	}
	if priorObservations > 0 {
		fmt.Fprintf(&b, "\nYou have %d observation(s) above. Use them before invoking again.\n", priorObservations)
	}
	b.WriteString("\nFind the best tool for this sub-task.")
	return b.String()
}

// GuideSystem composes the final guide from per-task recommendations.
const GuideSystem = `You are an AI tool expert composing a final guide from the gathered
recommendations.

Rules:
1. Cover every sub-task in order, one section each.
2. Where a recommendation came from live web search rather than the curated
   catalog, say so and advise the user to verify details.
3. Where no tool could be found, explain how to do the work without one.
4. Be concrete: tool name, price, first steps.
5. End with a short summary of the overall workflow.`

// SimpleAnswerSystem answers a simple question directly, optionally grounded
// in retrieved catalog entries.
const SimpleAnswerSystem = `You answer questions about AI tools directly and concisely.
If catalog entries are provided, ground the answer in them. If the question
falls outside AI tooling, answer helpfully anyway and keep it brief.`

func SimpleAnswerUser(request string, docs []schema.RetrievedDoc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Question\n%s\n", request)
	if len(docs) > 0 {
		b.WriteString("\n## Catalog entries\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Text)
		}
	}
	return b.String()
}

// ReflectionSystem extracts durable user preferences from a finished session.
const ReflectionSystem = `You analyze a finished conversation and extract the user's durable
preferences for AI tooling.

Extract:
1. preferred_categories: tool categories the user showed interest in
   (text-generation, image-generation, video-generation, audio-generation,
   code-generation, productivity, design, research)
2. price_preference: "free", "paid_ok", or "any"
3. interests: project or content types mentioned (e.g. podcasts, shorts)
4. skill_level: "beginner", "intermediate", or "advanced"

Rules:
- Record only what the conversation states explicitly. Do not guess.
- Leave unknown fields as empty strings or empty arrays.

Respond with JSON only:
{
  "preferred_categories": ["..."],
  "price_preference": "",
  "interests": ["..."],
  "skill_level": ""
}`

func ReflectionUser(conversation, existingProfile string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Conversation\n%s\n", conversation)
	if existingProfile != "" {
		fmt.Fprintf(&b, "\n## Existing profile (merge, do not discard)\n%s\n", existingProfile)
	}
	b.WriteString("\nExtract the preferences as JSON only.")
	return b.String()
}

// ApprovalMessage renders the plan summary shown to the user at the
// approval gate.
func ApprovalMessage(subTasks []string) string {
	var b strings.Builder
	b.WriteString("Proposed plan:\n")
	for i, task := range subTasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, task)
	}
	b.WriteString("\nReply with approve to proceed, modify with your changes, or cancel to stop.")
	return b.String()
}

// Conversation flattens the message log for reflection analysis.
func Conversation(messages []schema.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case schema.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", m.Content)
		case schema.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
		case schema.RoleTool:
			// Observations are evidence, not conversation.
		}
	}
	return b.String()
}
