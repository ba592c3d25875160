package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// ChangeNotifier pushes pathway change notifications to watching clients.
type ChangeNotifier interface {
	Notify(ctx context.Context, sessionID string, payload map[string]any) error
}

// MCPNotifier implements ChangeNotifier using MCP server notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes to watching MCP clients.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to every client watching the pathway session.
// Best-effort: clients that went away are unsubscribed silently.
func (n *MCPNotifier) Notify(_ context.Context, sessionID string, payload map[string]any) error {
	var errs []error
	for _, clientID := range n.sessions.Watchers(sessionID) {
		err := n.mcpServer.SendNotificationToSpecificClient(clientID, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(clientID)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
