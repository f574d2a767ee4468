package repository

import (
	"context"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{client: client}
}

func (r *firestoreMessageRepository) messages(roomID uint64) *firestore.CollectionRef {
	return r.client.Collection("rooms").Doc(strconv.FormatUint(roomID, 10)).Collection("messages")
}

func (r *firestoreMessageRepository) Append(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.SentAt = message.SentAt.UTC()

	_, err := r.messages(message.RoomID).Doc(message.ID).Create(ctx, message)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Message already exists", err)
		}
		return errors.Internal("Failed to append message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) ListByRoom(ctx context.Context, roomID uint64, limit, offset int) ([]*entity.Message, int64, error) {
	// sentAt desc, seq desc: document ids are uuids and carry no order, the
	// sequence number breaks sent-at ties instead.
	query := r.messages(roomID).
		OrderBy("sentAt", firestore.Desc).
		OrderBy("seq", firestore.Desc)

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while counting messages for room %d: %v", roomID, err)
		return nil, 0, errors.Internal("Failed to count messages", err)
	}
	total := int64(len(countDocs))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages for room %d: %v", roomID, err)
			return nil, 0, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Error("Error parsing message data for room %d: %v", roomID, err)
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	return messages, total, nil
}

func (r *firestoreMessageRepository) LatestByRoom(ctx context.Context, roomID uint64) (*entity.Message, error) {
	iter := r.messages(roomID).
		OrderBy("sentAt", firestore.Desc).
		OrderBy("seq", firestore.Desc).
		Limit(1).
		Documents(ctx)

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal("Failed to get latest message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

// MarkReadUpTo flips read=false to true on every message in the room sent by
// someone else at or before upTo. Only false->true transitions happen, so
// re-running with the same or an earlier upTo changes nothing.
func (r *firestoreMessageRepository) MarkReadUpTo(ctx context.Context, roomID, readerID uint64, upTo time.Time) (int64, error) {
	query := r.messages(roomID).
		Where("read", "==", false).
		Where("sentAt", "<=", upTo.UTC())

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to query unread messages", err)
	}

	bw := r.client.BulkWriter(ctx)
	var flipped int64
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Warn("Skipping unparsable message %s in room %d: %v", doc.Ref.ID, roomID, err)
			continue
		}
		// The reader's own messages are filtered here rather than in the
		// query; Firestore cannot combine != with the sentAt range.
		if message.Sender.UserID == readerID {
			continue
		}
		if _, err := bw.Update(doc.Ref, []firestore.Update{{Path: "read", Value: true}}); err != nil {
			bw.End()
			return flipped, errors.Internal("Failed to update message read flag", err)
		}
		flipped++
	}
	bw.End()

	return flipped, nil
}
