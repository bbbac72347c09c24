package store

import "context"

// LibraryInfo summarizes the library catalog.
type LibraryInfo struct {
	SchemaVersion     int            `json:"schema_version"`
	Users             int            `json:"users"`
	Models            int            `json:"models"`
	Groups            int            `json:"groups"`
	Labels            int            `json:"labels"`
	Blobs             int            `json:"blobs"`
	BlobBytes         int64          `json:"blob_bytes"`
	ExternalBlobs     int            `json:"external_blobs"`
	UnreferencedBlobs int            `json:"unreferenced_blobs"`
	Filetypes         map[string]int `json:"filetypes"`
}

// Info returns catalog counts for the info command.
func (s *Store) Info(ctx context.Context) (*LibraryInfo, error) {
	info := &LibraryInfo{Filetypes: map[string]int{}}

	version, err := currentVersion(s.db)
	if err != nil {
		return nil, err
	}
	info.SchemaVersion = version

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM users", &info.Users},
		{"SELECT COUNT(*) FROM models", &info.Models},
		{"SELECT COUNT(*) FROM model_groups", &info.Groups},
		{"SELECT COUNT(*) FROM labels", &info.Labels},
		{"SELECT COUNT(*) FROM blobs", &info.Blobs},
		{"SELECT COUNT(*) FROM blobs WHERE disk_path IS NOT NULL", &info.ExternalBlobs},
		{"SELECT COUNT(*) FROM blobs b WHERE NOT EXISTS (SELECT 1 FROM models m WHERE m.blob_id = b.id)", &info.UnreferencedBlobs},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size_bytes), 0) FROM blobs").Scan(&info.BlobBytes); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT filetype, COUNT(*) FROM blobs GROUP BY filetype")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var filetype string
		var count int
		if err := rows.Scan(&filetype, &count); err != nil {
			return nil, err
		}
		info.Filetypes[filetype] = count
	}
	return info, rows.Err()
}
