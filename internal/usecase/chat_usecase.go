package usecase

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/ratelimit"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
)

// ChatUseCase is the messaging pipeline: it orchestrates the message store,
// the participant table, the counter cache and the broker for send, read and
// retrieval. Both the REST handlers and the websocket gateway call into it.
type ChatUseCase struct {
	roomRepo        repository.RoomRepository
	participantRepo repository.ParticipantRepository
	messageRepo     repository.MessageRepository
	cache           repository.CounterCache
	publisher       repository.EventPublisher
	rateLimiter     *ratelimit.RateLimiter
	location        *time.Location
}

func NewChatUseCase(
	roomRepo repository.RoomRepository,
	participantRepo repository.ParticipantRepository,
	messageRepo repository.MessageRepository,
	cache repository.CounterCache,
	publisher repository.EventPublisher,
	rateLimiter *ratelimit.RateLimiter,
	location *time.Location,
) *ChatUseCase {
	return &ChatUseCase{
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		messageRepo:     messageRepo,
		cache:           cache,
		publisher:       publisher,
		rateLimiter:     rateLimiter,
		location:        location,
	}
}

type SendMessageInput struct {
	RoomID     uint64
	Body       string
	SenderName string
}

// UnreadSummary aggregates a user's unread counts across all their rooms.
// Always served from the participant table; cross-room aggregation is not
// worth the cache staleness.
type UnreadSummary struct {
	UserID      uint64       `json:"user_id"`
	TotalUnread int          `json:"total_unread"`
	Rooms       []RoomUnread `json:"rooms"`
}

type RoomUnread struct {
	RoomID      uint64 `json:"room_id"`
	UnreadCount int    `json:"unread_count"`
}

// bestEffort retries op a few times with exponential backoff. Used for the
// mirror and fan-out paths that must never fail a user-visible operation.
func bestEffort(ctx context.Context, what string, op func() error) {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		logger.Error("Best-effort step %q gave up: %v", what, err)
	}
}

// SendMessage appends the message, bumps recipients' unread state and fans
// the event out. The Firestore append is the durability boundary: if it
// fails nothing else happens. Everything after it is best-effort relative to
// the already-durable message and can only delay visibility, never lose it.
func (uc *ChatUseCase) SendMessage(ctx context.Context, senderID uint64, input SendMessageInput) (*entity.Message, error) {
	if allowed, wait := uc.rateLimiter.Allow(senderID, "send_message"); !allowed {
		logger.Warn("SendMessage rate limited: user %d must wait %v", senderID, wait)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message")
	}

	if input.Body == "" {
		return nil, errors.BadRequest("Message body is required", nil)
	}

	if _, err := uc.roomRepo.GetByID(ctx, input.RoomID); err != nil {
		return nil, err
	}
	if _, err := uc.participantRepo.Get(ctx, input.RoomID, senderID); err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return nil, errors.Forbidden("You are not a participant of this room", nil)
		}
		return nil, err
	}

	// The sequence is drawn before the append so the stored document carries
	// it and subscribers can gap-check against the message list. A cache
	// outage leaves seq at zero; ordering then rests on sentAt alone until
	// the counter is back.
	var seq int64
	if s, err := uc.cache.NextSeq(ctx, input.RoomID); err == nil {
		seq = s
	} else {
		logger.Error("SendMessage: sequence increment failed for room %d: %v", input.RoomID, err)
	}

	message := &entity.Message{
		RoomID: input.RoomID,
		Sender: entity.Sender{UserID: senderID, Username: input.SenderName},
		Body:   input.Body,
		Seq:    seq,
		SentAt: time.Now().UTC(),
		Read:   false,
	}
	if err := uc.messageRepo.Append(ctx, message); err != nil {
		return nil, err
	}

	// Past the durability point: the message exists regardless of what
	// happens below, and a disconnecting caller does not roll it back.
	participants, err := uc.participantRepo.ListByRoom(ctx, input.RoomID)
	if err != nil {
		logger.Error("SendMessage: listing participants of room %d failed after append: %v", input.RoomID, err)
		participants = nil
	}

	for _, p := range participants {
		if p.UserID == senderID {
			continue
		}
		recipient := p.UserID

		bestEffort(ctx, "participant unread increment", func() error {
			return uc.participantRepo.IncrementUnread(ctx, input.RoomID, recipient)
		})

		// The delta count comes from the authoritative row we just bumped;
		// the cache result only refines it when that tier is live, so both
		// tiers fan out the same events.
		count := p.UnreadCount + 1
		if cached, err := uc.cache.IncrUnread(ctx, input.RoomID, recipient); err != nil {
			logger.Warn("SendMessage: cache unread increment failed for room %d user %d: %v", input.RoomID, recipient, err)
		} else if cached > 0 {
			count = int(cached)
		}

		delta := &entity.UnreadDelta{RoomID: input.RoomID, UserID: recipient, UnreadCount: count}
		if err := uc.publisher.PublishUnreadDelta(ctx, delta); err != nil {
			logger.Warn("SendMessage: unread delta publish failed for user %d: %v", recipient, err)
		}
	}

	evt := &entity.MessageAppended{RoomID: input.RoomID, Seq: seq, Message: message}
	bestEffort(ctx, "message fan-out publish", func() error {
		return uc.publisher.PublishMessageAppended(ctx, evt)
	})

	return message, nil
}

// resolveUpTo normalizes the client-supplied cutoff. A missing value means
// "as of now"; a present one is already parsed in the canonical zone by the
// boundary and only needs converting to UTC.
func (uc *ChatUseCase) resolveUpTo(upTo *time.Time) time.Time {
	if upTo == nil {
		return time.Now().UTC()
	}
	return upTo.UTC()
}

// MarkRead clears the caller's unread state in the room as of upTo. It is
// idempotent: flags only flip false to true and lastReadAt never moves
// backward. A send that lands while this runs may leave the count at one;
// the next MarkRead catches it.
func (uc *ChatUseCase) MarkRead(ctx context.Context, userID, roomID uint64, upTo *time.Time) error {
	if _, err := uc.roomRepo.GetByID(ctx, roomID); err != nil {
		return err
	}
	if _, err := uc.participantRepo.Get(ctx, roomID, userID); err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return errors.Forbidden("You are not a participant of this room", nil)
		}
		return err
	}

	cutoff := uc.resolveUpTo(upTo)

	if err := uc.participantRepo.MarkRead(ctx, roomID, userID, cutoff); err != nil {
		return err
	}
	if _, err := uc.messageRepo.MarkReadUpTo(ctx, roomID, userID, cutoff); err != nil {
		// Flags flipped so far stay flipped; the call is safe to repeat.
		return err
	}

	bestEffort(ctx, "cache unread reset", func() error {
		return uc.cache.SetUnread(ctx, roomID, userID, 0)
	})

	receipt := &entity.ReadReceipt{RoomID: roomID, UserID: userID, UpTo: cutoff}
	if err := uc.publisher.PublishReadReceipt(ctx, receipt); err != nil {
		logger.Warn("MarkRead: read receipt publish failed for room %d: %v", roomID, err)
	}
	delta := &entity.UnreadDelta{RoomID: roomID, UserID: userID, UnreadCount: 0}
	if err := uc.publisher.PublishUnreadDelta(ctx, delta); err != nil {
		logger.Warn("MarkRead: unread delta publish failed for user %d: %v", userID, err)
	}

	return nil
}

// ListMessages returns one page of a room's history, newest first.
func (uc *ChatUseCase) ListMessages(ctx context.Context, userID, roomID uint64, page, size int) ([]*entity.Message, int64, error) {
	if _, err := uc.roomRepo.GetByID(ctx, roomID); err != nil {
		return nil, 0, err
	}
	if _, err := uc.participantRepo.Get(ctx, roomID, userID); err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return nil, 0, errors.Forbidden("You are not a participant of this room", nil)
		}
		return nil, 0, err
	}

	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	if page < 0 {
		page = 0
	}

	return uc.messageRepo.ListByRoom(ctx, roomID, size, page*size)
}

// GetUnreadCount serves the hot path from the cache when it has a sane value
// and falls back to the participant table otherwise, resetting the cache to
// the authoritative count on the way out.
func (uc *ChatUseCase) GetUnreadCount(ctx context.Context, userID, roomID uint64) (int, error) {
	if count, ok, err := uc.cache.GetUnread(ctx, roomID, userID); err == nil && ok && count >= 0 {
		return int(count), nil
	} else if err != nil {
		logger.Warn("GetUnreadCount: cache read failed for room %d user %d: %v", roomID, userID, err)
	}

	p, err := uc.participantRepo.Get(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return 0, errors.Forbidden("You are not a participant of this room", nil)
		}
		return 0, err
	}

	bestEffort(ctx, "cache unread reconcile", func() error {
		return uc.cache.SetUnread(ctx, roomID, userID, int64(p.UnreadCount))
	})

	return p.UnreadCount, nil
}

// GetUnreadSummary aggregates the authoritative rows for all of the user's
// rooms. No cache path.
func (uc *ChatUseCase) GetUnreadSummary(ctx context.Context, userID uint64) (*UnreadSummary, error) {
	parts, err := uc.participantRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &UnreadSummary{UserID: userID, Rooms: make([]RoomUnread, 0, len(parts))}
	for _, p := range parts {
		summary.TotalUnread += p.UnreadCount
		summary.Rooms = append(summary.Rooms, RoomUnread{RoomID: p.RoomID, UnreadCount: p.UnreadCount})
	}
	return summary, nil
}

// IsParticipant is used by the websocket gateway to authorize room joins.
func (uc *ChatUseCase) IsParticipant(ctx context.Context, roomID, userID uint64) (bool, error) {
	_, err := uc.participantRepo.Get(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ParseUpTo interprets a client-supplied timestamp in the canonical chat
// zone when it carries no offset of its own.
func (uc *ChatUseCase) ParseUpTo(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", value, uc.location)
	if err != nil {
		return nil, errors.BadRequest("Invalid up_to timestamp", err)
	}
	return &t, nil
}
