package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"meshvault/internal/models"
)

// keywordFile is a YAML document describing labels and their keywords:
//
//	labels:
//	  - name: Dragons
//	    parent: Creatures
//	    keywords: [dragon, wyvern]
type keywordFile struct {
	Labels []keywordFileLabel `yaml:"labels"`
}

type keywordFileLabel struct {
	Name     string   `yaml:"name"`
	Parent   string   `yaml:"parent,omitempty"`
	Color    string   `yaml:"color,omitempty"`
	Keywords []string `yaml:"keywords,omitempty"`
}

type labelWriter interface {
	GetLabelByName(ctx context.Context, userID, name string) (*models.Label, error)
	CreateLabel(ctx context.Context, label *models.Label) error
	AddKeywords(ctx context.Context, labelID string, keywords []string) error
	SetLabelParent(ctx context.Context, labelID, parentID string) error
}

type keywordFileResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Parented int `json:"parented"`
}

func readKeywordFile(path string) (*keywordFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword file: %w", err)
	}
	return parseKeywordFile(data)
}

func parseKeywordFile(data []byte) (*keywordFile, error) {
	var file keywordFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse keyword file: %w", err)
	}
	seen := map[string]struct{}{}
	for i, entry := range file.Labels {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("keyword file: label %d has no name", i+1)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("keyword file: label %q listed twice", name)
		}
		seen[name] = struct{}{}
		file.Labels[i].Name = name
		file.Labels[i].Parent = strings.TrimSpace(entry.Parent)
	}
	return &file, nil
}

// applyKeywordFile creates missing labels, merges keywords into existing ones
// and then links parents, so a parent may appear after its children.
func applyKeywordFile(ctx context.Context, st labelWriter, userID string, file *keywordFile) (keywordFileResult, error) {
	var result keywordFileResult
	ids := make(map[string]string, len(file.Labels))

	for _, entry := range file.Labels {
		existing, err := st.GetLabelByName(ctx, userID, entry.Name)
		if err != nil {
			return result, err
		}
		if existing == nil {
			label := &models.Label{UserID: userID, Name: entry.Name, Color: entry.Color, Keywords: entry.Keywords}
			if err := st.CreateLabel(ctx, label); err != nil {
				return result, fmt.Errorf("create label %q: %w", entry.Name, err)
			}
			ids[entry.Name] = label.ID
			result.Created++
			continue
		}
		if err := st.AddKeywords(ctx, existing.ID, entry.Keywords); err != nil {
			return result, fmt.Errorf("label %q: %w", entry.Name, err)
		}
		ids[entry.Name] = existing.ID
		result.Updated++
	}

	for _, entry := range file.Labels {
		if entry.Parent == "" {
			continue
		}
		parentID, ok := ids[entry.Parent]
		if !ok {
			parent, err := st.GetLabelByName(ctx, userID, entry.Parent)
			if err != nil {
				return result, err
			}
			if parent == nil {
				return result, fmt.Errorf("label %q: unknown parent %q", entry.Name, entry.Parent)
			}
			parentID = parent.ID
		}
		if err := st.SetLabelParent(ctx, ids[entry.Name], parentID); err != nil {
			return result, err
		}
		result.Parented++
	}
	return result, nil
}
