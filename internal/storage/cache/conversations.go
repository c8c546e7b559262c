package cache

import (
	"path/filepath"

	"github.com/opensuperagent/superagent/internal/proto"
)

// ConversationsDir is the subdirectory of the cache path holding message
// histories.
const ConversationsDir = "conversations"

// Conversations stores the message history of each conversation.
type Conversations struct {
	cache *Cache[[]proto.Message]
}

// NewConversations returns the message store under cachePath.
func NewConversations(cachePath string) (*Conversations, error) {
	c, err := New[[]proto.Message](filepath.Join(cachePath, ConversationsDir), true)
	if err != nil {
		return nil, err
	}
	return &Conversations{cache: c}, nil
}

// Read returns the messages of conversation id.
func (c *Conversations) Read(id string) ([]proto.Message, error) {
	return c.cache.Get(id)
}

// Write replaces the messages of conversation id.
func (c *Conversations) Write(id string, messages []proto.Message) error {
	return c.cache.Put(id, messages)
}

// Delete drops the messages of conversation id.
func (c *Conversations) Delete(id string) error {
	return c.cache.Delete(id)
}
