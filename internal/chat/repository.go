package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("conversation not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// privatePairKey builds the deterministic key for a private pair so two
// concurrent find-or-create calls collide on the same unique value.
func privatePairKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func (r *Repository) FindRoomByID(ctx context.Context, id int) (*Conversation, error) {
	c := &Conversation{}
	query := `SELECT id, type, name, last_activity, created_at
	          FROM conversations WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.Type, &c.Name, &c.LastActivity, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// FindOrCreatePrivateRoom resolves the private conversation between two users,
// creating it when absent. The unique private_key plus the no-op upsert makes
// this idempotent under concurrent calls for the same pair.
func (r *Repository) FindOrCreatePrivateRoom(ctx context.Context, userA, userB int) (*Conversation, error) {
	c := &Conversation{}
	query := `INSERT INTO conversations (type, private_key)
	          VALUES ('private', $1)
	          ON CONFLICT (private_key) DO UPDATE SET private_key = EXCLUDED.private_key
	          RETURNING id, type, name, last_activity, created_at`
	err := r.db.QueryRowContext(ctx, query, privatePairKey(userA, userB)).
		Scan(&c.ID, &c.Type, &c.Name, &c.LastActivity, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	insert := `INSERT INTO participants (conversation_id, user_id)
	           VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, uid := range []int{userA, userB} {
		if _, err := r.db.ExecContext(ctx, insert, c.ID, uid); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (r *Repository) CreateGroupRoom(ctx context.Context, name string, memberIDs []int) (*Conversation, error) {
	c := &Conversation{}
	query := `INSERT INTO conversations (type, name) VALUES ('group', $1)
	          RETURNING id, type, name, last_activity, created_at`
	err := r.db.QueryRowContext(ctx, query, name).
		Scan(&c.ID, &c.Type, &c.Name, &c.LastActivity, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	insert := `INSERT INTO participants (conversation_id, user_id)
	           VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, uid := range memberIDs {
		if _, err := r.db.ExecContext(ctx, insert, c.ID, uid); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (r *Repository) AddParticipant(ctx context.Context, roomID, userID int) error {
	query := `INSERT INTO participants (conversation_id, user_id)
	          VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, roomID, userID)
	return err
}

func (r *Repository) RemoveParticipant(ctx context.Context, roomID, userID int) error {
	query := `DELETE FROM participants WHERE conversation_id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, roomID, userID)
	return err
}

// IsParticipant is the authorization check for group and private sends. It
// always reads durable rows; the in-memory index is a fanout cache only.
func (r *Repository) IsParticipant(ctx context.Context, roomID, userID int) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (
	            SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2
	          )`
	err := r.db.QueryRowContext(ctx, query, roomID, userID).Scan(&exists)
	return exists, err
}

func (r *Repository) ParticipantIDs(ctx context.Context, roomID int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM participants WHERE conversation_id = $1`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) RoomIDsForUser(ctx context.Context, userID int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT conversation_id FROM participants WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) RoomsForUser(ctx context.Context, userID int) ([]Conversation, error) {
	query := `SELECT c.id, c.type, c.name, c.last_activity, c.created_at
	          FROM conversations c
	          JOIN participants p ON p.conversation_id = c.id
	          WHERE p.user_id = $1
	          ORDER BY c.last_activity DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Type, &c.Name, &c.LastActivity, &c.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// UpdateLastMessage refreshes the denormalized pointer after a send.
// Last-writer-wins is fine here; message rows are the source of truth.
func (r *Repository) UpdateLastMessage(ctx context.Context, roomID, messageID int) error {
	query := `UPDATE conversations SET last_message_id = $2, last_activity = NOW()
	          WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, roomID, messageID)
	return err
}

func (r *Repository) SaveMessage(ctx context.Context, senderID int, chatType string, roomID *int, content string) (*Message, error) {
	m := &Message{
		SenderID: senderID,
		ChatType: chatType,
		Content:  content,
	}
	query := `INSERT INTO messages (conversation_id, sender_id, chat_type, content)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at`
	var conv sql.NullInt64
	if roomID != nil {
		conv = sql.NullInt64{Int64: int64(*roomID), Valid: true}
		m.ConversationID = roomID
	}
	err := r.db.QueryRowContext(ctx, query, conv, senderID, chatType, content).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) GetWorldMessages(ctx context.Context, limit int) ([]*Message, error) {
	query := `SELECT m.id, m.sender_id, u.username, m.chat_type, m.content, m.created_at
	          FROM messages m
	          JOIN users u ON m.sender_id = u.id
	          WHERE m.chat_type = 'world'
	          ORDER BY m.created_at DESC
	          LIMIT $1`
	return r.queryMessages(ctx, query, limit)
}

func (r *Repository) GetConversationMessages(ctx context.Context, roomID, limit int) ([]*Message, error) {
	query := `SELECT m.id, m.sender_id, u.username, m.chat_type, m.content, m.created_at
	          FROM messages m
	          JOIN users u ON m.sender_id = u.id
	          WHERE m.conversation_id = $2
	          ORDER BY m.created_at DESC
	          LIMIT $1`
	return r.queryMessages(ctx, query, limit, roomID)
}

func (r *Repository) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.SenderName, &msg.ChatType, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
