package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"meshvault/internal/models"
)

const labelColumns = "id, user_id, name, color, parent_id, created_at"

// ErrLabelCycle is returned when a parent assignment would make the label graph cyclic.
var ErrLabelCycle = errors.New("label hierarchy cycle")

// CreateLabel inserts one label with optional keywords.
func (s *Store) CreateLabel(ctx context.Context, label *models.Label) (err error) {
	if label == nil {
		return fmt.Errorf("label is required")
	}
	label.Name = strings.TrimSpace(label.Name)
	if label.Name == "" {
		return fmt.Errorf("label name is required")
	}
	if strings.TrimSpace(label.UserID) == "" {
		label.UserID = models.LocalUserID
	}
	keywords, err := normalizeKeywords(label.Keywords)
	if err != nil {
		return err
	}
	if label.CreatedAt.IsZero() {
		label.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if strings.TrimSpace(label.ID) == "" {
		generated, genErr := GenerateLabelID(func(id string) (bool, error) {
			return rowExists(ctx, tx, "SELECT 1 FROM labels WHERE id = ? LIMIT 1", id)
		})
		if genErr != nil {
			err = genErr
			return err
		}
		label.ID = generated
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO labels (id, user_id, name, color, parent_id, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, label.ID, label.UserID, label.Name, nullIfEmpty(strings.TrimSpace(label.Color)), nullIfEmpty(label.ParentID), formatTime(label.CreatedAt)); err != nil {
		return err
	}
	if err = insertKeywordsTx(ctx, tx, label.ID, keywords); err != nil {
		return err
	}
	label.Keywords = keywords
	return tx.Commit()
}

// GetLabel returns one label by id with its keywords.
func (s *Store) GetLabel(ctx context.Context, id string) (*models.Label, error) {
	label, err := scanLabel(s.db.QueryRowContext(ctx, `SELECT `+labelColumns+` FROM labels WHERE id = ?`, id))
	if err != nil || label == nil {
		return label, err
	}
	label.Keywords, err = s.listKeywords(ctx, label.ID)
	if err != nil {
		return nil, err
	}
	return label, nil
}

// GetLabelByName returns a user's label by name with its keywords.
func (s *Store) GetLabelByName(ctx context.Context, userID, name string) (*models.Label, error) {
	label, err := scanLabel(s.db.QueryRowContext(ctx, `SELECT `+labelColumns+` FROM labels WHERE user_id = ? AND name = ?`, userID, strings.TrimSpace(name)))
	if err != nil || label == nil {
		return label, err
	}
	label.Keywords, err = s.listKeywords(ctx, label.ID)
	if err != nil {
		return nil, err
	}
	return label, nil
}

// ListLabels lists a user's labels ordered by name, with keywords.
func (s *Store) ListLabels(ctx context.Context, userID string) ([]models.Label, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+labelColumns+` FROM labels WHERE user_id = ? ORDER BY name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := []models.Label{}
	for rows.Next() {
		label, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		if label != nil {
			labels = append(labels, *label)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range labels {
		keywords, err := s.listKeywords(ctx, labels[i].ID)
		if err != nil {
			return nil, err
		}
		labels[i].Keywords = keywords
	}
	return labels, nil
}

// SetLabelParent sets or clears (parentID == "") a label's parent.
func (s *Store) SetLabelParent(ctx context.Context, labelID, parentID string) error {
	if parentID != "" {
		parents, err := s.labelParents(ctx, "")
		if err != nil {
			return err
		}
		if _, ok := parents[parentID]; !ok {
			return fmt.Errorf("label %s: %w", parentID, ErrNotFound)
		}
		for _, ancestor := range ancestorsOf(parentID, parents) {
			if ancestor == labelID {
				return fmt.Errorf("set parent of %s to %s: %w", labelID, parentID, ErrLabelCycle)
			}
		}
	}
	res, err := s.db.ExecContext(ctx, "UPDATE labels SET parent_id = ? WHERE id = ?", nullIfEmpty(parentID), labelID)
	if err != nil {
		return err
	}
	return requireAffected(res, "label", labelID)
}

// AddKeywords attaches keywords to a label. Existing keywords are ignored.
func (s *Store) AddKeywords(ctx context.Context, labelID string, keywords []string) error {
	normalized, err := normalizeKeywords(keywords)
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx, "INSERT OR IGNORE INTO label_keywords (label_id, keyword) VALUES "+pairValues(len(normalized)), pairArgs(labelID, normalized)...)
	return err
}

// KeywordIndex maps each of a user's keywords to the labels it implies:
// the keyword's own labels plus all of their ancestors.
func (s *Store) KeywordIndex(ctx context.Context, userID string) (map[string][]string, error) {
	parents, err := s.labelParents(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lk.keyword, lk.label_id
		FROM label_keywords lk
		JOIN labels l ON l.id = lk.label_id
		WHERE l.user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sets := map[string]map[string]struct{}{}
	for rows.Next() {
		var keyword, labelID string
		if err := rows.Scan(&keyword, &labelID); err != nil {
			return nil, err
		}
		set, ok := sets[keyword]
		if !ok {
			set = map[string]struct{}{}
			sets[keyword] = set
		}
		set[labelID] = struct{}{}
		for _, ancestor := range ancestorsOf(labelID, parents) {
			set[ancestor] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	index := make(map[string][]string, len(sets))
	for keyword, set := range sets {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		index[keyword] = ids
	}
	return index, nil
}

// AttachLabels attaches labels to a model and returns how many were newly attached.
func (s *Store) AttachLabels(ctx context.Context, modelID string, labelIDs []string) (int, error) {
	if len(labelIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO model_labels (model_id, label_id) VALUES "+pairValues(len(labelIDs)), pairArgs(modelID, labelIDs)...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// ListLabelIDsForModels returns label ids mapped by model id.
func (s *Store) ListLabelIDsForModels(ctx context.Context, modelIDs []string) (map[string][]string, error) {
	labels := make(map[string][]string)
	if len(modelIDs) == 0 {
		return labels, nil
	}

	query := fmt.Sprintf("SELECT model_id, label_id FROM model_labels WHERE model_id IN (%s)", placeholders(len(modelIDs)))
	rows, err := s.db.QueryContext(ctx, query, stringArgs(modelIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var modelID, labelID string
		if err := rows.Scan(&modelID, &labelID); err != nil {
			return nil, err
		}
		labels[modelID] = append(labels[modelID], labelID)
	}
	for _, list := range labels {
		sort.Strings(list)
	}
	return labels, rows.Err()
}

// labelParents maps label id to parent id ("" for roots). An empty userID loads every user's labels.
func (s *Store) labelParents(ctx context.Context, userID string) (map[string]string, error) {
	query := "SELECT id, parent_id FROM labels"
	args := []any{}
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parents := map[string]string{}
	for rows.Next() {
		var id string
		var parent sql.NullString
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, err
		}
		parents[id] = parent.String
	}
	return parents, rows.Err()
}

// ancestorsOf walks parent links from id (inclusive) and stops on the first revisit.
func ancestorsOf(id string, parents map[string]string) []string {
	out := []string{}
	visited := map[string]struct{}{}
	for current := id; current != ""; current = parents[current] {
		if _, seen := visited[current]; seen {
			break
		}
		visited[current] = struct{}{}
		out = append(out, current)
	}
	return out
}

func (s *Store) listKeywords(ctx context.Context, labelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT keyword FROM label_keywords WHERE label_id = ? ORDER BY keyword ASC", labelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keywords := []string{}
	for rows.Next() {
		var keyword string
		if err := rows.Scan(&keyword); err != nil {
			return nil, err
		}
		keywords = append(keywords, keyword)
	}
	return keywords, rows.Err()
}

func insertKeywordsTx(ctx context.Context, tx *sql.Tx, labelID string, keywords []string) error {
	if len(keywords) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO label_keywords (label_id, keyword) VALUES "+pairValues(len(keywords)), pairArgs(labelID, keywords)...)
	return err
}

func normalizeKeywords(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, keyword := range raw {
		normalized, err := models.NormalizeKeyword(keyword)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	return out, nil
}

func scanLabel(scanner rowScanner) (*models.Label, error) {
	label := models.Label{}
	var color, parentID sql.NullString
	var createdAt string
	if err := scanner.Scan(&label.ID, &label.UserID, &label.Name, &color, &parentID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	label.Color = color.String
	label.ParentID = parentID.String
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	label.CreatedAt = parsed
	return &label, nil
}
