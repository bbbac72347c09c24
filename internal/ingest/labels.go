package ingest

import (
	"context"
	"sort"

	"meshvault/internal/fault"
	"meshvault/internal/importstate"
	"meshvault/internal/models"
)

// applyKeywords attaches labels whose keywords appear in a model's name or
// its set's name. Returns the number of new attachments.
func (c *Coordinator) applyKeywords(ctx context.Context, userID string, state *importstate.State) (int, error) {
	index, err := c.catalog.KeywordIndex(ctx, userID)
	if err != nil {
		return 0, fault.Database("load keyword index", err)
	}
	if len(index) == 0 {
		return 0, nil
	}

	attached := 0
	for _, set := range state.Snapshot().Sets {
		if len(set.ModelIDs) == 0 {
			continue
		}
		list, err := c.catalog.ListModelsByIDs(ctx, set.ModelIDs)
		if err != nil {
			return attached, fault.Database("load imported models", err)
		}
		groupTokens := models.Tokenize(set.Name)
		for _, model := range list {
			labelIDs := matchLabels(index, models.Tokenize(model.Name), groupTokens)
			if len(labelIDs) == 0 {
				continue
			}
			n, err := c.catalog.AttachLabels(ctx, model.ID, labelIDs)
			if err != nil {
				return attached, fault.Database("attach labels", err)
			}
			if n > 0 {
				c.logger.Debug("labels attached", "model_id", model.ID, "count", n)
			}
			attached += n
		}
	}
	return attached, nil
}

// matchLabels returns the sorted, distinct label ids implied by tokens.
func matchLabels(index map[string][]string, tokenSets ...[]string) []string {
	seen := map[string]struct{}{}
	for _, tokens := range tokenSets {
		for _, token := range tokens {
			for _, id := range index[token] {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// materializeGroups creates a group for every named, non-empty set that has none yet.
func (c *Coordinator) materializeGroups(ctx context.Context, userID string, state *importstate.State) (int, error) {
	created := 0
	for i, set := range state.Snapshot().Sets {
		if set.Name == "" || len(set.ModelIDs) == 0 || set.GroupID != "" {
			continue
		}
		group := &models.Group{UserID: userID, Name: set.Name}
		if err := c.catalog.CreateGroupWithModels(ctx, group, set.ModelIDs); err != nil {
			return created, fault.Database("create group "+set.Name, err)
		}
		if err := state.SetGroup(i, group.ID); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
