package cmd

import (
	"errors"

	"github.com/charmbracelet/x/exp/ordered"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/storage"
)

// conversationPlan says which conversation a chat reads from and writes to.
type conversationPlan struct {
	WriteID string
	ReadID  string
	Title   string
	Agent   string
	API     string
	Model   string
}

func planConversation(cfg *config.Config, db *storage.DB) (conversationPlan, error) {
	pl := conversationPlan{
		Title: cfg.Title,
		Agent: cfg.Agent,
		API:   cfg.API,
		Model: cfg.Model,
	}

	var (
		found storage.Conversation
		err   error
	)
	switch {
	case cfg.Continue != "":
		found, err = db.Find(cfg.Continue)
	case cfg.ContinueLast:
		found, err = db.Latest()
	default:
		pl.WriteID = storage.NewConversationID()
		return pl, nil
	}
	if errors.Is(err, storage.ErrNoMatches) {
		return pl, errs.NotFound(err, "Could not find the conversation to continue.")
	}
	if err != nil {
		return pl, errs.Invalid(err, "Could not find the conversation to continue.")
	}

	pl.ReadID = found.ID
	pl.WriteID = found.ID
	pl.Agent = ordered.First(cfg.Agent, found.Agent)
	// A conversation keeps its model unless one is asked for explicitly.
	if cfg.Model == "" {
		pl.API = found.API
		pl.Model = found.Model
	}
	return pl, nil
}
