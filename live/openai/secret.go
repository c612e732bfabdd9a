package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/realtime"
)

// RealtimeEndpoint is the endpoint for WebRTC SDP exchange.
const RealtimeEndpoint = "https://api.openai.com/v1/realtime/calls"

// secret is an ephemeral key for one WebRTC call.
type secret struct {
	Value     string
	ExpiresAt int64
}

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// createSecret mints an ephemeral key for a realtime conversation session.
// Tools, voice and transcription are configured over the data channel once
// it opens.
func createSecret(ctx context.Context, apiKey, model, instructions string) (*secret, error) {
	client := openai.NewClient(option.WithAPIKey(apiKey))

	req := realtime.RealtimeSessionCreateRequestParam{
		Model: realtime.RealtimeSessionCreateRequestModel(model),
	}
	if instructions != "" {
		req.Instructions = openai.String(instructions)
	}

	resp, err := client.Realtime.ClientSecrets.New(ctx, realtime.ClientSecretNewParams{
		Session: realtime.ClientSecretNewParamsSessionUnion{OfRealtime: &req},
	})
	if err != nil {
		return nil, fmt.Errorf("create client secret: %w", err)
	}
	return &secret{Value: resp.Value, ExpiresAt: resp.ExpiresAt}, nil
}

// exchangeSDP posts the local offer and returns the answer.
func exchangeSDP(ctx context.Context, endpoint, offer, ephemeralKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		slog.Error("SDP exchange failed", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)
	}
	return string(body), nil
}
