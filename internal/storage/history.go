package storage

import (
	"errors"
	"fmt"

	"github.com/opensuperagent/superagent/internal/proto"
	"github.com/opensuperagent/superagent/internal/storage/cache"
)

// History pairs the conversation index with the message cache.
type History struct {
	DB       *DB
	Messages *cache.Conversations
}

// OpenHistory opens the index and the message cache under cachePath.
func OpenHistory(cachePath string) (*History, error) {
	msgs, err := cache.NewConversations(cachePath)
	if err != nil {
		return nil, fmt.Errorf("open message cache: %w", err)
	}
	db, err := Open(cachePath)
	if err != nil {
		return nil, fmt.Errorf("open conversation index: %w", err)
	}
	return &History{DB: db, Messages: msgs}, nil
}

// Close closes the index.
func (h *History) Close() error {
	return h.DB.Close()
}

// Record stores msgs as conversation id. New conversations are titled
// after their first user message unless title is set.
func (h *History) Record(id, title string, meta Conversation, msgs []proto.Message) (Conversation, error) {
	if !ValidID(id) {
		return Conversation{}, fmt.Errorf("record: %w: %q", ErrInvalidID, id)
	}
	c, err := h.DB.Get(id)
	if err != nil {
		if !errors.Is(err, ErrNoMatches) {
			return Conversation{}, err
		}
		c = Conversation{ID: id}
	}
	switch {
	case title != "":
		c.Title = title
	case c.Title == "":
		c.Title = TitleFrom(firstUserPrompt(msgs))
	}
	if c.Title == "" {
		c.Title = ShortID(id)
	}
	c.Agent, c.API, c.Model = meta.Agent, meta.API, meta.Model
	c.Messages = len(msgs)

	if err := h.Messages.Write(id, msgs); err != nil {
		return Conversation{}, err
	}
	if err := h.DB.Save(c); err != nil {
		return Conversation{}, err
	}
	return h.DB.Get(id)
}

// Load returns the metadata and messages of conversation id.
func (h *History) Load(id string) (Conversation, []proto.Message, error) {
	c, err := h.DB.Get(id)
	if err != nil {
		return Conversation{}, nil, err
	}
	msgs, err := h.Messages.Read(id)
	if errors.Is(err, cache.ErrNotFound) {
		return c, nil, nil
	}
	if err != nil {
		return Conversation{}, nil, err
	}
	return c, msgs, nil
}

// Remove deletes conversation id and its messages.
func (h *History) Remove(id string) error {
	if err := h.DB.Delete(id); err != nil {
		return err
	}
	return h.Messages.Delete(id)
}

func firstUserPrompt(msgs []proto.Message) string {
	for _, m := range msgs {
		if m.Role == proto.RoleUser {
			return m.Content
		}
	}
	return ""
}
