package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/teamsync/internal/models"
)

var ErrProjectNotFound = errors.New("project not found")

const (
	NoMessagesToSummarize = "There are no messages to summarize."
	MeetingRephraseHint   = "I couldn't understand the meeting details from your request. Could you please try rephrasing it? " +
		"For example: 'Schedule a 30 minute design review for next week with the team.'"

	fileSnippetLimit = 500
	meetingSlotCount = 2
)

// AssistantProvider is the generative-text boundary.
type AssistantProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ExtractMeeting(ctx context.Context, prompt string) (*MeetingArgs, error)
}

// AssistantError is a provider failure. Message is safe to show the
// requesting user; Err keeps the cause for logs.
type AssistantError struct {
	Op  string
	Err error
}

func (e *AssistantError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AssistantError) Unwrap() error { return e.Err }

func (e *AssistantError) Message() string {
	return fmt.Sprintf("Failed to %s. Please check the API key and network connection.", e.Op)
}

// AssistantService builds prompts from shared state and delegates to the
// provider. It never mutates state.
type AssistantService struct {
	provider AssistantProvider
	store    *StateStore
	calendar *CalendarService
	now      func() time.Time
}

func NewAssistantService(provider AssistantProvider, store *StateStore, calendar *CalendarService) *AssistantService {
	return &AssistantService{
		provider: provider,
		store:    store,
		calendar: calendar,
		now:      time.Now,
	}
}

func (s *AssistantService) generate(ctx context.Context, op, prompt string) (string, error) {
	text, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		return "", &AssistantError{Op: op, Err: err}
	}
	return text, nil
}

// ResearchPaper drafts an IEEE-style abstract and introduction.
func (s *AssistantService) ResearchPaper(ctx context.Context, projectID string) (string, error) {
	project, ok := s.store.Project(projectID)
	if !ok {
		return "", ErrProjectNotFound
	}
	members := s.store.TeamUsers(project.TeamID)

	var b strings.Builder
	b.WriteString("Based on the following project details, generate a compelling abstract and introduction for an IEEE-style research paper.\n")
	b.WriteString("The output should be well-structured, formal, and suitable for a technical audience.\n\n")
	fmt.Fprintf(&b, "Project Name: %q\n\n", project.Name)
	fmt.Fprintf(&b, "Project Description: %q\n\n", project.Description)
	fmt.Fprintf(&b, "Team Members: %s\n\n", strings.Join(userNames(members), ", "))
	b.WriteString("Key Files & Code Snippets:\n")
	for _, f := range project.Files {
		fmt.Fprintf(&b, "---\nFile: %s (%s)\n```\n%s...\n```\n", f.Name, f.Language, truncate(f.Content, fileSnippetLimit))
	}
	b.WriteString("---\n\nGenerate the \"Abstract\" and \"1. Introduction\" sections.\n")

	return s.generate(ctx, "generate research paper", b.String())
}

func (s *AssistantService) CodeSuggestion(ctx context.Context, code, language, question string) (string, error) {
	prompt := fmt.Sprintf(`You are an expert AI coding assistant. Analyze the following code snippet and answer the user's question.
Provide clear, concise, and helpful explanations or code suggestions.

Language: %s

Code:
`+"```%s\n%s\n```"+`

User's Question: %q

Your Answer:
`, language, strings.ToLower(language), code, question)

	return s.generate(ctx, "get code suggestion", prompt)
}

// MeetingSuggestions extracts meeting details from query and proposes the
// next workday slots from the calendar.
func (s *AssistantService) MeetingSuggestions(ctx context.Context, teamID, query string) (string, error) {
	members := s.store.TeamUsers(teamID)
	prompt := fmt.Sprintf(`The user wants to schedule a meeting. The team members are %s.
Analyze the following request and extract the details for the meeting.

User Request: %q
`, strings.Join(userNames(members), ", "), query)

	args, err := s.provider.ExtractMeeting(ctx, prompt)
	if err != nil {
		return "", &AssistantError{Op: "get meeting suggestions", Err: err}
	}
	if args == nil {
		return MeetingRephraseHint, nil
	}

	var b strings.Builder
	b.WriteString("**Meeting Details Extracted:**\n")
	fmt.Fprintf(&b, "- **Title:** %s\n", orDefault(args.Title, "Not specified"))
	if args.DurationMinutes > 0 {
		fmt.Fprintf(&b, "- **Duration:** %d minutes\n", args.DurationMinutes)
	} else {
		b.WriteString("- **Duration:** Not specified\n")
	}
	fmt.Fprintf(&b, "- **Participants:** %s\n", strings.Join(args.Participants, ", "))
	fmt.Fprintf(&b, "- **Constraints:** %s\n\n", orDefault(args.Constraints, "None"))
	b.WriteString("**Suggested Times:**\n")
	for _, slot := range s.calendar.SuggestSlots(s.now(), meetingSlotCount) {
		fmt.Fprintf(&b, "- %s\n", FormatSlot(slot))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *AssistantService) SummarizeChat(ctx context.Context, teamID string) (string, error) {
	messages := s.store.TeamMessages(teamID)
	if len(messages) == 0 {
		return NoMessagesToSummarize, nil
	}

	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = fmt.Sprintf("%s (%s): %s", m.Sender.Name, m.Timestamp, m.Text)
	}

	prompt := fmt.Sprintf(`You are an expert project assistant. Based on the following chat conversation, provide:
1. A concise summary of the discussion.
2. A list of action items.

Format the output clearly with headings for "Summary" and "Action Items".
If there are no clear action items, state that.

Chat History:
---
%s
---
`, strings.Join(lines, "\n"))

	return s.generate(ctx, "summarize chat", prompt)
}

func userNames(users []models.User) []string {
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Name
	}
	return names
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
