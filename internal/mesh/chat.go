package mesh

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ChatLabel is the data channel every peer pair opens.
const ChatLabel = "chat"

// ChatMessage is one line of chat sent over the data channel.
type ChatMessage struct {
	Nick   string `msgpack:"nick"`
	Text   string `msgpack:"text"`
	SentAt int64  `msgpack:"sentAt"`
}

func encodeChat(nick, text string, now time.Time) ([]byte, error) {
	return msgpack.Marshal(&ChatMessage{Nick: nick, Text: text, SentAt: now.UnixMilli()})
}

func decodeChat(data []byte) (*ChatMessage, error) {
	var msg ChatMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
