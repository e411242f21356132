package usecase

import (
	"encoding/json"

	"earinterp/internal/domain"
)

const (
	messageTypeHello   = "hello"
	messageTypeCaption = "caption"
)

// channelMessage is the union of every frame the server sends on the side channel.
type channelMessage struct {
	Type    string `json:"type"`
	LogPath string `json:"log_path"`
	SrcLang string `json:"src_lang"`
	TgtLang string `json:"tgt_lang"`
	Text    string `json:"text"`
}

// handleMessage decodes one side-channel frame. Frames that are not JSON
// objects are dropped without logging; the drop is only counted.
func (c *SessionController) handleMessage(payload []byte) {
	var msg channelMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.dropped.Add(1)
		c.cfg.Metrics.MessageDropped()
		return
	}

	switch msg.Type {
	case messageTypeHello:
		if msg.LogPath == "" {
			return
		}
		c.mu.Lock()
		c.metadata = domain.SessionMetadata{LogPath: msg.LogPath}
		meta := c.metadata
		c.mu.Unlock()
		c.events.SessionMetadataChanged(meta)
	case messageTypeCaption:
		entries := c.captions.Append(domain.Caption{
			SourceLanguage: msg.SrcLang,
			TargetLanguage: msg.TgtLang,
			Text:           msg.Text,
		})
		c.received.Add(1)
		c.cfg.Metrics.CaptionReceived()
		c.events.CaptionsChanged(entries)
	default:
		c.ignored.Add(1)
		c.cfg.Metrics.MessageIgnored()
	}
}
