package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaktServer(t *testing.T) {
	s := NewTaktServer(TaktServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.sessions)
}

func TestToolRegistration(t *testing.T) {
	s := NewTaktServer(TaktServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 5)

	expectedTools := []string{
		"takt.run",
		"takt.plan",
		"takt.goals",
		"takt.simulate",
		"takt.schedule",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"run", "takt.run", "Resolve a goal into an action plan and execute it"},
		{"plan", "takt.plan", "Resolve a goal into its ordered action list without executing it"},
		{"goals", "takt.goals", "List the goals the knowledge base declares"},
		{"simulate", "takt.simulate", "Run the embedded production simulator for a product batch"},
		{"schedule", "takt.schedule", "Manage recurring goal runs"},
	}

	s := NewTaktServer(TaktServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
