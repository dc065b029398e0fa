package utils

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAICompletionClient struct {
	client *openai.Client
}

func NewOpenAICompletionClient(apiKey string) *OpenAICompletionClient {
	return &OpenAICompletionClient{client: openai.NewClient(apiKey)}
}

func (c *OpenAICompletionClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Images) == 0 {
		user.Content = req.Prompt
	} else {
		user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: req.Prompt,
		})
		for _, img := range req.Images {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: img, Detail: openai.ImageURLDetailAuto},
			})
		}
	}

	messages := []openai.ChatCompletionMessage{user}
	if req.SystemPrompt != "" {
		messages = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		}}, messages...)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return CompletionResult{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResult{}, errors.New("openai: no choices returned")
	}

	return CompletionResult{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
