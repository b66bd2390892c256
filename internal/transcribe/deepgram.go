package transcribe

import (
	"context"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// deepgramHandler adapts the SDK's callback surface to the bridge.
type deepgramHandler struct {
	bridge *Bridge
}

func (h deepgramHandler) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return nil
	}

	offset := 0.0
	if len(alt.Words) > 0 {
		offset = alt.Words[0].Start
	}

	h.bridge.onTranscript(text, offset, mr.IsFinal)
	return nil
}

func (h deepgramHandler) Open(*api.OpenResponse) error {
	h.bridge.cfg.Logger.Debug("deepgram connection open")
	return nil
}

func (h deepgramHandler) Metadata(*api.MetadataResponse) error { return nil }

func (h deepgramHandler) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (h deepgramHandler) UtteranceEnd(*api.UtteranceEndResponse) error { return nil }

func (h deepgramHandler) Close(*api.CloseResponse) error {
	go h.bridge.onDrop()
	return nil
}

func (h deepgramHandler) Error(er *api.ErrorResponse) error {
	h.bridge.cfg.Logger.Error("deepgram error", "code", er.ErrCode, "description", er.Description)
	return nil
}

func (h deepgramHandler) UnhandledEvent([]byte) error { return nil }

func dialDeepgram(cfg BridgeConfig, b *Bridge) dialFunc {
	return func(ctx context.Context) (liveConn, error) {
		cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
		tOptions := &interfaces.LiveTranscriptionOptions{
			Model:          "nova-2",
			Language:       cfg.Language,
			Punctuate:      true,
			SmartFormat:    true,
			InterimResults: true,
			Encoding:       "linear16",
			SampleRate:     16000,
			Channels:       1,
		}

		c, err := client.NewWSUsingCallback(ctx, cfg.APIKey, cOptions, tOptions, deepgramHandler{bridge: b})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
