package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const (
	agentName   = "resume_analyzer"
	agentUserID = "resumecheck"
)

func GetAgent(ctx context.Context, cfg AIConfig, name string) (agent.Agent, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	model, err := gemini.NewModel(ctx, cfg.modelOr(defaultGeminiModel), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %v", err)
	}

	customAgent, err := llmagent.New(llmagent.Config{
		Name:        name,
		Model:       model,
		Description: "Analyze a resume against a job description",
		Instruction: agentInstruction(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %v", err)
	}

	return customAgent, nil
}

// agentAnalyzer runs the prompt through an ADK runner. Every call gets its own
// in-memory session, which is deleted once the final response arrives.
type agentAnalyzer struct {
	runner       *runner.Runner
	sessions     session.Service
	appName      string
	newSessionID func() string
}

func newAgentAnalyzer(ctx context.Context, cfg AIConfig) (*agentAnalyzer, error) {
	analyzer, err := GetAgent(ctx, cfg, agentName)
	if err != nil {
		return nil, err
	}
	sessions := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        analyzer.Name(),
		Agent:          analyzer,
		SessionService: sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	return &agentAnalyzer{
		runner:       r,
		sessions:     sessions,
		appName:      analyzer.Name(),
		newSessionID: uuid.NewString,
	}, nil
}

func (a *agentAnalyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	created, err := a.sessions.Create(ctx, &session.CreateRequest{
		AppName:   a.appName,
		UserID:    agentUserID,
		SessionID: a.newSessionID(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create agent session: %w", err)
	}
	defer a.sessions.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
		AppName:   created.Session.AppName(),
		UserID:    created.Session.UserID(),
		SessionID: created.Session.ID(),
	})

	stream := a.runner.Run(ctx, created.Session.UserID(), created.Session.ID(), &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
		},
	}, agent.RunConfig{})

	var output string
	var final bool
	for event, err := range stream {
		if err != nil {
			return "", fmt.Errorf("agent stream error: %w", err)
		}
		if event != nil && event.IsFinalResponse() && event.Content != nil && len(event.Content.Parts) > 0 {
			output = event.Content.Parts[0].Text
			final = true
		}
	}
	if !final {
		return "", fmt.Errorf("%w: agent produced no final response", ErrMalformedResponse)
	}
	return output, nil
}
