// Package deepgram implements live transcription over Deepgram's streaming
// websocket API.
package deepgram

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TranscriptionClient holds one live transcription stream at a time.
type TranscriptionClient struct {
	apiKey string

	connMu sync.Mutex
	conn   *websocket.Conn

	lastMsgTs             time.Time
	accumulatedTranscript string
	unendedSegment        bool
}

type ClientOption func(*TranscriptionClient)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *TranscriptionClient) {
		c.apiKey = apiKey
	}
}

func NewTranscriptionClient(opts ...ClientOption) (*TranscriptionClient, error) {
	client := &TranscriptionClient{}
	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		if apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY"); ok {
			client.apiKey = apiKey
		}
	}
	if client.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	return client, nil
}
