package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// NarrateResolution turns a player's response to an emergent event into a
// short chronicle entry. Returns an error when the client is disabled; callers
// treat that as non-fatal.
func NarrateResolution(ctx context.Context, client *Client, ev hybrid.EmergentEvent, choice hybrid.PlayerChoice) (string, error) {
	if !client.Enabled() {
		return "", fmt.Errorf("LLM client not configured")
	}

	prompt := fmt.Sprintf("Event: %s\n%s\n\nPublic reaction so far: %s\n\nThe government's response: %s. %s",
		ev.Title, ev.Description, ev.PublicReaction, choice.Title, choice.Description)

	resp, err := client.Complete(ctx, chroniclerSystem, prompt, 200)
	if err != nil {
		return "", fmt.Errorf("narrate resolution: %w", err)
	}
	return strings.TrimSpace(resp), nil
}
