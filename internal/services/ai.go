package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/huangang/teamsync/internal/config"
	"github.com/huangang/teamsync/pkg/logger"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"google.golang.org/genai"
)

const scheduleMeetingFunction = "scheduleMeeting"

// MeetingArgs is what the model extracts from a free-form scheduling request.
type MeetingArgs struct {
	Title           string   `json:"title"`
	DurationMinutes int      `json:"durationMinutes"`
	Participants    []string `json:"participants"`
	Constraints     string   `json:"constraints"`
}

func (m *MeetingArgs) empty() bool {
	return m.Title == "" && m.DurationMinutes == 0 && len(m.Participants) == 0 && m.Constraints == ""
}

// LLMClient talks to the configured generative-text provider.
type LLMClient struct {
	config *config.AIConfig
}

func NewLLMClient(cfg *config.AIConfig) *LLMClient {
	return &LLMClient{config: cfg}
}

// Generate sends prompt and returns the model's text.
func (c *LLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	logger.Infof("[AI] Using provider: %s, model: %s, prompt length: %d chars", c.config.Provider, c.config.Model, len(prompt))

	switch c.config.Provider {
	case "anthropic":
		return c.callAnthropic(ctx, prompt)
	case "ollama":
		return c.callOllama(ctx, prompt, false)
	case "gemini":
		return c.callGemini(ctx, prompt)
	case "azure":
		return c.callOpenAI(ctx, c.azureClient(), prompt)
	default:
		// openai and other OpenAI-compatible services
		return c.callOpenAI(ctx, c.openAIClient(), prompt)
	}
}

// ExtractMeeting returns nil without error when the model found nothing to
// schedule. Gemini and OpenAI use function calling; the rest use JSON output.
func (c *LLMClient) ExtractMeeting(ctx context.Context, prompt string) (*MeetingArgs, error) {
	var (
		args *MeetingArgs
		err  error
	)
	switch c.config.Provider {
	case "gemini":
		args, err = c.extractGemini(ctx, prompt)
	case "anthropic":
		args, err = c.extractJSON(ctx, prompt, c.callAnthropic)
	case "ollama":
		args, err = c.extractJSON(ctx, prompt, func(ctx context.Context, p string) (string, error) {
			return c.callOllama(ctx, p, true)
		})
	case "azure":
		args, err = c.extractOpenAI(ctx, c.azureClient(), prompt)
	default:
		args, err = c.extractOpenAI(ctx, c.openAIClient(), prompt)
	}
	if err != nil {
		return nil, err
	}
	if args == nil || args.empty() {
		return nil, nil
	}
	return args, nil
}

func (c *LLMClient) temperature() float32 {
	if c.config.Temperature > 0 {
		return float32(c.config.Temperature)
	}
	return 0.3
}

func (c *LLMClient) openAIClient() *openai.Client {
	clientConfig := openai.DefaultConfig(c.config.APIKey)
	if c.config.BaseURL != "" {
		clientConfig.BaseURL = c.config.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// azureClient expects BaseURL like https://{resource}.openai.azure.com and
// uses Model as the deployment name.
func (c *LLMClient) azureClient() *openai.Client {
	return openai.NewClientWithConfig(openai.DefaultAzureConfig(c.config.APIKey, c.config.BaseURL))
}

func (c *LLMClient) callOpenAI(ctx context.Context, client *openai.Client, prompt string) (string, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature(),
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		logger.Infof("[AI] OpenAI API error: %v", err)
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	logger.Infof("[AI] OpenAI response length: %d chars", len(content))
	return content, nil
}

func (c *LLMClient) extractOpenAI(ctx context.Context, client *openai.Client, prompt string) (*MeetingArgs, error) {
	tool := openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        scheduleMeetingFunction,
			Description: "Finds and suggests meeting times based on user constraints.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"title":           {Type: jsonschema.String, Description: "The title of the meeting."},
					"durationMinutes": {Type: jsonschema.Number, Description: "The duration of the meeting in minutes."},
					"participants": {
						Type:        jsonschema.Array,
						Items:       &jsonschema.Definition{Type: jsonschema.String},
						Description: "List of participant names who should attend the meeting.",
					},
					"constraints": {Type: jsonschema.String, Description: "A summary of all scheduling constraints."},
				},
				Required: []string{"title", "durationMinutes", "participants", "constraints"},
			},
		},
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Tools:       []openai.Tool{tool},
		Temperature: c.temperature(),
	})
	if err != nil {
		logger.Infof("[AI] OpenAI API error: %v", err)
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	for _, call := range resp.Choices[0].Message.ToolCalls {
		if call.Function.Name != scheduleMeetingFunction {
			continue
		}
		return parseMeetingJSON(call.Function.Arguments)
	}
	return nil, nil
}

func (c *LLMClient) callAnthropic(ctx context.Context, prompt string) (string, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(c.config.APIKey),
	)

	maxTokens := int64(c.config.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	model := c.config.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		logger.Infof("[AI] Anthropic API error: %v", err)
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	logger.Infof("[AI] Anthropic response length: %d chars", content.Len())
	return content.String(), nil
}

func (c *LLMClient) callOllama(ctx context.Context, prompt string, jsonOutput bool) (string, error) {
	baseURL := c.config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := c.config.Model
	if model == "" {
		model = "llama3"
	}

	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Options: map[string]interface{}{
			"temperature": c.temperature(),
		},
	}
	if jsonOutput {
		req.Format = json.RawMessage(`"json"`)
	}

	var content strings.Builder
	err = client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		logger.Infof("[AI] Ollama API error: %v", err)
		return "", fmt.Errorf("Ollama API error: %w", err)
	}

	result := content.String()
	logger.Infof("[AI] Ollama response length: %d chars", len(result))
	return result, nil
}

func (c *LLMClient) geminiClient(ctx context.Context) (*genai.Client, string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, "", fmt.Errorf("Gemini client error: %w", err)
	}

	model := c.config.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return client, model, nil
}

func (c *LLMClient) callGemini(ctx context.Context, prompt string) (string, error) {
	client, model, err := c.geminiClient(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature()),
	})
	if err != nil {
		logger.Infof("[AI] Gemini API error: %v", err)
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	content := resp.Text()
	logger.Infof("[AI] Gemini response length: %d chars", len(content))
	return content, nil
}

func (c *LLMClient) extractGemini(ctx context.Context, prompt string) (*MeetingArgs, error) {
	client, model, err := c.geminiClient(ctx)
	if err != nil {
		return nil, err
	}

	decl := &genai.FunctionDeclaration{
		Name:        scheduleMeetingFunction,
		Description: "Finds and suggests meeting times based on user constraints.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":           {Type: genai.TypeString, Description: "The title of the meeting."},
				"durationMinutes": {Type: genai.TypeNumber, Description: "The duration of the meeting in minutes."},
				"participants": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "List of participant names who should attend the meeting.",
				},
				"constraints": {Type: genai.TypeString, Description: "A summary of all scheduling constraints."},
			},
			Required: []string{"title", "durationMinutes", "participants", "constraints"},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{decl}}},
	})
	if err != nil {
		logger.Infof("[AI] Gemini API error: %v", err)
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	for _, call := range resp.FunctionCalls() {
		if call.Name != scheduleMeetingFunction {
			continue
		}
		raw, err := json.Marshal(call.Args)
		if err != nil {
			return nil, fmt.Errorf("encode function args: %w", err)
		}
		return parseMeetingJSON(string(raw))
	}
	return nil, nil
}

const meetingJSONInstruction = `

Respond with a single JSON object and nothing else, using the keys
"title" (string), "durationMinutes" (number), "participants" (array of strings)
and "constraints" (string). If the request does not describe a meeting,
respond with {}.`

func (c *LLMClient) extractJSON(ctx context.Context, prompt string, call func(context.Context, string) (string, error)) (*MeetingArgs, error) {
	text, err := call(ctx, prompt+meetingJSONInstruction)
	if err != nil {
		return nil, err
	}
	return parseMeetingJSON(text)
}

// parseMeetingJSON tolerates code fences and surrounding prose. Output that
// holds no JSON object counts as nothing extracted.
func parseMeetingJSON(text string) (*MeetingArgs, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, nil
	}

	var raw struct {
		Title           string   `json:"title"`
		DurationMinutes float64  `json:"durationMinutes"`
		Participants    []string `json:"participants"`
		Constraints     string   `json:"constraints"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		logger.Warnf("[AI] Unparseable meeting arguments: %v", err)
		return nil, nil
	}
	return &MeetingArgs{
		Title:           raw.Title,
		DurationMinutes: int(raw.DurationMinutes),
		Participants:    raw.Participants,
		Constraints:     raw.Constraints,
	}, nil
}
