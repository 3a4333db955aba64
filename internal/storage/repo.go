package storage

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	sq "github.com/Masterminds/squirrel"

	"buddy/internal/conversation"
)

const insertBatch = 500

var _ conversation.Persister = (*SQLStore)(nil)

func (s *SQLStore) Load(ctx context.Context) (conversation.Snapshot, error) {
	topicsSQL, args, err := s.sql.Select("name").From("topics").OrderBy("position ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list topics query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, topicsSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	snap := conversation.Snapshot{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan topic row: %w", err)
		}
		snap[name] = []conversation.Message{}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate topic rows: %w", err)
	}
	rows.Close()

	msgSQL, args, err := s.sql.Select("topic", "sender", "body", "stamp").
		From("messages").
		OrderBy("topic ASC", "position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages query: %w", err)
	}
	rows, err = s.db.QueryContext(ctx, msgSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var topic, sender string
		var m conversation.Message
		if err := rows.Scan(&topic, &sender, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if m.Sender, err = conversation.ParseSender(sender); err != nil {
			return nil, fmt.Errorf("message in %q: %w", topic, err)
		}
		snap[topic] = append(snap[topic], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return snap, nil
}

// Save replaces the stored snapshot in one transaction.
func (s *SQLStore) Save(ctx context.Context, snap conversation.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"messages", "topics"} {
		if err = s.exec(ctx, tx, s.sql.Delete(table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	slices.Sort(names)

	for i, name := range names {
		q := s.sql.Insert("topics").Columns("name", "position").Values(name, i)
		if err = s.exec(ctx, tx, q); err != nil {
			return fmt.Errorf("insert topic %q: %w", name, err)
		}
		if err = s.insertMessages(ctx, tx, name, snap[name]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLStore) insertMessages(ctx context.Context, tx *sql.Tx, topic string, msgs []conversation.Message) error {
	for start := 0; start < len(msgs); start += insertBatch {
		end := min(start+insertBatch, len(msgs))
		q := s.sql.Insert("messages").Columns("topic", "position", "sender", "body", "stamp")
		for i := start; i < end; i++ {
			m := msgs[i]
			q = q.Values(topic, i, string(m.Sender), m.Text, m.Timestamp)
		}
		if err := s.exec(ctx, tx, q); err != nil {
			return fmt.Errorf("insert messages for %q: %w", topic, err)
		}
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, tx *sql.Tx, q sq.Sqlizer) error {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = tx.ExecContext(ctx, sqlStr, args...)
	return err
}
