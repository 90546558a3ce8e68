package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// entryColumns lists transcript columns in scan order.
const entryColumns = `id, user_input, response, timestamp, intent, channel, failure, sentiment_label, sentiment_score, entities`

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// entryArgs returns the insert arguments for e in entryColumns order.
func entryArgs(e models.TranscriptEntry) ([]interface{}, error) {
	var label, score, entities interface{}
	if e.Sentiment != nil {
		label = e.Sentiment.Label
		score = e.Sentiment.Score
	}
	if len(e.Entities) > 0 {
		b, err := json.Marshal(e.Entities)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entities for entry %s: %w", e.ID, err)
		}
		entities = string(b)
	}
	return []interface{}{
		e.ID, e.Input, e.Response, e.Timestamp,
		nilIfEmpty(string(e.Intent)), nilIfEmpty(e.Channel), nilIfEmpty(string(e.Failure)),
		label, score, entities,
	}, nil
}

// scanEntry scans a TranscriptEntry from sql.Rows selected with entryColumns.
func scanEntry(rows *sql.Rows) (models.TranscriptEntry, error) {
	var e models.TranscriptEntry
	var intent, channel, failure, label, entities sql.NullString
	var score sql.NullFloat64
	err := rows.Scan(&e.ID, &e.Input, &e.Response, &e.Timestamp, &intent, &channel, &failure, &label, &score, &entities)
	if err != nil {
		return e, fmt.Errorf("scan transcript entry failed: %w", err)
	}
	e.Intent = models.Intent(intent.String)
	e.Channel = channel.String
	e.Failure = models.FailureKind(failure.String)
	if label.Valid {
		e.Sentiment = &models.Sentiment{Label: label.String, Score: score.Float64}
	}
	if entities.Valid && entities.String != "" {
		if err := json.Unmarshal([]byte(entities.String), &e.Entities); err != nil {
			return e, fmt.Errorf("failed to decode entities for entry %s: %w", e.ID, err)
		}
	}
	return e, nil
}

// scanEntries drains rows into a slice.
func scanEntries(rows *sql.Rows) ([]models.TranscriptEntry, error) {
	var out []models.TranscriptEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript rows: %w", err)
	}
	return out, nil
}

// tail returns a copy of the last limit entries; limit <= 0 copies all.
func tail(entries []models.TranscriptEntry, limit int) []models.TranscriptEntry {
	start := 0
	if limit > 0 && len(entries) > limit {
		start = len(entries) - limit
	}
	out := make([]models.TranscriptEntry, len(entries)-start)
	copy(out, entries[start:])
	return out
}
