package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	adapterrepo "marketchat/internal/adapter/repository"
	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/ratelimit"
	apperrors "marketchat/pkg/errors"
)

// memoryMessageRepo stands in for the Firestore store: append-only slice per
// room with the same ordering and read-flip semantics.
type memoryMessageRepo struct {
	mu     sync.Mutex
	byRoom map[uint64][]*entity.Message
}

func newMemoryMessageRepo() *memoryMessageRepo {
	return &memoryMessageRepo{byRoom: make(map[uint64][]*entity.Message)}
}

func (r *memoryMessageRepo) Append(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.SentAt = message.SentAt.UTC()
	stored := *message
	r.byRoom[message.RoomID] = append(r.byRoom[message.RoomID], &stored)
	return nil
}

func (r *memoryMessageRepo) ListByRoom(ctx context.Context, roomID uint64, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*entity.Message, len(r.byRoom[roomID]))
	copy(all, r.byRoom[roomID])
	sort.Slice(all, func(i, j int) bool {
		if !all[i].SentAt.Equal(all[j].SentAt) {
			return all[i].SentAt.After(all[j].SentAt)
		}
		return all[i].Seq > all[j].Seq
	})

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *memoryMessageRepo) LatestByRoom(ctx context.Context, roomID uint64) (*entity.Message, error) {
	msgs, _, err := r.ListByRoom(ctx, roomID, 1, 0)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

func (r *memoryMessageRepo) MarkReadUpTo(ctx context.Context, roomID, readerID uint64, upTo time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped int64
	for _, m := range r.byRoom[roomID] {
		if m.Read || m.Sender.UserID == readerID || m.SentAt.After(upTo) {
			continue
		}
		m.Read = true
		flipped++
	}
	return flipped, nil
}

// fakeCounterCache is a deterministic in-process counter tier.
type fakeCounterCache struct {
	mu     sync.Mutex
	seqs   map[uint64]int64
	unread map[string]int64
	seqErr error
}

func newFakeCounterCache() *fakeCounterCache {
	return &fakeCounterCache{seqs: make(map[uint64]int64), unread: make(map[string]int64)}
}

func unreadKey(roomID, userID uint64) string {
	return fmt.Sprintf("%d:%d", roomID, userID)
}

func (c *fakeCounterCache) NextSeq(ctx context.Context, roomID uint64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seqErr != nil {
		return 0, c.seqErr
	}
	c.seqs[roomID]++
	return c.seqs[roomID], nil
}

func (c *fakeCounterCache) IncrUnread(ctx context.Context, roomID, userID uint64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unread[unreadKey(roomID, userID)]++
	return c.unread[unreadKey(roomID, userID)], nil
}

func (c *fakeCounterCache) SetUnread(ctx context.Context, roomID, userID uint64, count int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unread[unreadKey(roomID, userID)] = count
	return nil
}

func (c *fakeCounterCache) GetUnread(ctx context.Context, roomID, userID uint64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	count, ok := c.unread[unreadKey(roomID, userID)]
	return count, ok, nil
}

// recordingPublisher captures every event instead of touching a broker.
type recordingPublisher struct {
	mu       sync.Mutex
	appended []*entity.MessageAppended
	receipts []*entity.ReadReceipt
	deltas   []*entity.UnreadDelta
}

func (p *recordingPublisher) PublishMessageAppended(ctx context.Context, evt *entity.MessageAppended) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appended = append(p.appended, evt)
	return nil
}

func (p *recordingPublisher) PublishReadReceipt(ctx context.Context, evt *entity.ReadReceipt) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receipts = append(p.receipts, evt)
	return nil
}

func (p *recordingPublisher) PublishUnreadDelta(ctx context.Context, evt *entity.UnreadDelta) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas = append(p.deltas, evt)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&entity.Room{}, &entity.Participant{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type chatFixture struct {
	uc        *ChatUseCase
	roomRepo  repository.RoomRepository
	partRepo  repository.ParticipantRepository
	msgRepo   *memoryMessageRepo
	cache     *fakeCounterCache
	publisher *recordingPublisher
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := openTestDB(t)
	roomRepo := adapterrepo.NewGormRoomRepository(db)
	partRepo := adapterrepo.NewGormParticipantRepository(db)
	msgRepo := newMemoryMessageRepo()
	cache := newFakeCounterCache()
	publisher := &recordingPublisher{}

	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	return &chatFixture{
		uc:        NewChatUseCase(roomRepo, partRepo, msgRepo, cache, publisher, ratelimit.NewRateLimiter(), loc),
		roomRepo:  roomRepo,
		partRepo:  partRepo,
		msgRepo:   msgRepo,
		cache:     cache,
		publisher: publisher,
	}
}

func (f *chatFixture) seedRoom(t *testing.T, productID, buyerID, sellerID uint64) *entity.Room {
	t.Helper()
	now := time.Now().UTC()
	room := &entity.Room{ProductID: productID, BuyerID: buyerID, SellerID: sellerID, CreatedAt: now}
	participants := []*entity.Participant{
		{UserID: buyerID, LastReadAt: now},
		{UserID: sellerID, LastReadAt: now},
	}
	require.NoError(t, f.roomRepo.Create(context.Background(), room, participants))
	return room
}

func TestSendMessage_AppendsAndFansOut(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1001, 11, 12)

	msg, err := f.uc.SendMessage(ctx, 11, SendMessageInput{RoomID: room.ID, Body: "hello", SenderName: "buyer"})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, uint64(11), msg.Sender.UserID)
	assert.False(t, msg.SentAt.IsZero())

	// recipient's authoritative unread bumped, sender's untouched
	seller, err := f.partRepo.Get(ctx, room.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 1, seller.UnreadCount)
	buyer, err := f.partRepo.Get(ctx, room.ID, 11)
	require.NoError(t, err)
	assert.Equal(t, 0, buyer.UnreadCount)

	require.Len(t, f.publisher.appended, 1)
	assert.Equal(t, room.ID, f.publisher.appended[0].RoomID)
	assert.Equal(t, int64(1), f.publisher.appended[0].Seq)
	require.Len(t, f.publisher.deltas, 1)
	assert.Equal(t, uint64(12), f.publisher.deltas[0].UserID)
	assert.Equal(t, 1, f.publisher.deltas[0].UnreadCount)
}

func TestSendMessage_SeqIsMonotonicPerRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	roomA := f.seedRoom(t, 1002, 21, 22)
	roomB := f.seedRoom(t, 1003, 21, 23)

	for i := 1; i <= 3; i++ {
		msg, err := f.uc.SendMessage(ctx, 21, SendMessageInput{RoomID: roomA.ID, Body: fmt.Sprintf("a%d", i)})
		require.NoError(t, err)
		assert.Equal(t, int64(i), msg.Seq)
	}

	msg, err := f.uc.SendMessage(ctx, 21, SendMessageInput{RoomID: roomB.ID, Body: "b1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq, "rooms keep independent sequences")
}

func TestSendMessage_SeqFailureDoesNotLoseMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1004, 31, 32)
	f.cache.seqErr = fmt.Errorf("counter down")

	msg, err := f.uc.SendMessage(ctx, 31, SendMessageInput{RoomID: room.ID, Body: "still delivered"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), msg.Seq)

	msgs, total, err := f.msgRepo.ListByRoom(ctx, room.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, msgs, 1)
	assert.Equal(t, "still delivered", msgs[0].Body)
}

func TestSendMessage_ConcurrentBothSides(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1020, 191, 192)

	const perSide = 15
	var wg sync.WaitGroup
	send := func(userID uint64, prefix string) {
		defer wg.Done()
		for i := 0; i < perSide; i++ {
			_, err := f.uc.SendMessage(ctx, userID, SendMessageInput{RoomID: room.ID, Body: fmt.Sprintf("%s%d", prefix, i)})
			assert.NoError(t, err)
		}
	}

	wg.Add(2)
	go send(191, "buyer")
	go send(192, "seller")
	wg.Wait()

	// each side's unread equals the other side's send count, no increment lost
	buyer, err := f.partRepo.Get(ctx, room.ID, 191)
	require.NoError(t, err)
	assert.Equal(t, perSide, buyer.UnreadCount)
	seller, err := f.partRepo.Get(ctx, room.ID, 192)
	require.NoError(t, err)
	assert.Equal(t, perSide, seller.UnreadCount)

	_, total, err := f.msgRepo.ListByRoom(ctx, room.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2*perSide), total)
}

func TestSendMessage_DisabledCacheStillPublishesDeltas(t *testing.T) {
	db := openTestDB(t)
	roomRepo := adapterrepo.NewGormRoomRepository(db)
	partRepo := adapterrepo.NewGormParticipantRepository(db)
	msgRepo := newMemoryMessageRepo()
	publisher := &recordingPublisher{}

	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	uc := NewChatUseCase(roomRepo, partRepo, msgRepo, adapterrepo.NewMemoryCounterCache(), publisher, ratelimit.NewRateLimiter(), loc)

	ctx := context.Background()
	now := time.Now().UTC()
	room := &entity.Room{ProductID: 1021, BuyerID: 201, SellerID: 202, CreatedAt: now}
	require.NoError(t, roomRepo.Create(ctx, room, []*entity.Participant{
		{UserID: 201, LastReadAt: now},
		{UserID: 202, LastReadAt: now},
	}))

	_, err = uc.SendMessage(ctx, 201, SendMessageInput{RoomID: room.ID, Body: "first"})
	require.NoError(t, err)
	_, err = uc.SendMessage(ctx, 201, SendMessageInput{RoomID: room.ID, Body: "second"})
	require.NoError(t, err)

	// the authoritative row drives the delta when the cache tier is disabled
	require.Len(t, publisher.deltas, 2)
	assert.Equal(t, uint64(202), publisher.deltas[0].UserID)
	assert.Equal(t, 1, publisher.deltas[0].UnreadCount)
	assert.Equal(t, 2, publisher.deltas[1].UnreadCount)
}

func TestSendMessage_EmptyBody(t *testing.T) {
	f := newChatFixture(t)
	room := f.seedRoom(t, 1005, 41, 42)

	_, err := f.uc.SendMessage(context.Background(), 41, SendMessageInput{RoomID: room.ID, Body: ""})
	assert.True(t, apperrors.Is(err, "BAD_REQUEST"))
}

func TestSendMessage_NonParticipantRejectedBeforeAppend(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1006, 51, 52)

	_, err := f.uc.SendMessage(ctx, 999, SendMessageInput{RoomID: room.ID, Body: "intruder"})
	assert.True(t, apperrors.Is(err, "FORBIDDEN"))

	_, total, err := f.msgRepo.ListByRoom(ctx, room.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, f.publisher.appended)
}

func TestSendMessage_UnknownRoom(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.uc.SendMessage(context.Background(), 61, SendMessageInput{RoomID: 424242, Body: "hello"})
	assert.True(t, apperrors.Is(err, "NOT_FOUND"))
}

func TestMarkRead_ClearsUnreadAndFlipsFlags(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1007, 71, 72)

	for i := 0; i < 3; i++ {
		_, err := f.uc.SendMessage(ctx, 71, SendMessageInput{RoomID: room.ID, Body: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}
	seller, err := f.partRepo.Get(ctx, room.ID, 72)
	require.NoError(t, err)
	require.Equal(t, 3, seller.UnreadCount)

	require.NoError(t, f.uc.MarkRead(ctx, 72, room.ID, nil))

	seller, err = f.partRepo.Get(ctx, room.ID, 72)
	require.NoError(t, err)
	assert.Equal(t, 0, seller.UnreadCount)

	msgs, _, err := f.msgRepo.ListByRoom(ctx, room.ID, 10, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.True(t, m.Read, "message %s should be read", m.ID)
	}

	count, ok, err := f.cache.GetUnread(ctx, room.ID, 72)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), count)

	require.Len(t, f.publisher.receipts, 1)
	assert.Equal(t, uint64(72), f.publisher.receipts[0].UserID)
	last := f.publisher.deltas[len(f.publisher.deltas)-1]
	assert.Equal(t, uint64(72), last.UserID)
	assert.Equal(t, 0, last.UnreadCount)
}

func TestMarkRead_IsIdempotent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1008, 81, 82)

	_, err := f.uc.SendMessage(ctx, 81, SendMessageInput{RoomID: room.ID, Body: "once"})
	require.NoError(t, err)

	require.NoError(t, f.uc.MarkRead(ctx, 82, room.ID, nil))
	require.NoError(t, f.uc.MarkRead(ctx, 82, room.ID, nil))

	p, err := f.partRepo.Get(ctx, room.ID, 82)
	require.NoError(t, err)
	assert.Equal(t, 0, p.UnreadCount)
}

func TestMarkRead_DoesNotFlipReadersOwnMessages(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1009, 91, 92)

	_, err := f.uc.SendMessage(ctx, 91, SendMessageInput{RoomID: room.ID, Body: "from buyer"})
	require.NoError(t, err)
	_, err = f.uc.SendMessage(ctx, 92, SendMessageInput{RoomID: room.ID, Body: "from seller"})
	require.NoError(t, err)

	require.NoError(t, f.uc.MarkRead(ctx, 92, room.ID, nil))

	msgs, _, err := f.msgRepo.ListByRoom(ctx, room.ID, 10, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.Sender.UserID == 91 {
			assert.True(t, m.Read, "counterpart message should be flipped")
		} else {
			assert.False(t, m.Read, "reader's own message must stay untouched")
		}
	}
}

func TestMarkRead_RespectsUpToCutoff(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1010, 101, 102)

	older := &entity.Message{RoomID: room.ID, Sender: entity.Sender{UserID: 101}, Body: "old", SentAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, f.msgRepo.Append(ctx, older))
	newer := &entity.Message{RoomID: room.ID, Sender: entity.Sender{UserID: 101}, Body: "new", SentAt: time.Now().UTC().Add(time.Hour)}
	require.NoError(t, f.msgRepo.Append(ctx, newer))

	cutoff := time.Now().UTC()
	require.NoError(t, f.uc.MarkRead(ctx, 102, room.ID, &cutoff))

	msgs, _, err := f.msgRepo.ListByRoom(ctx, room.ID, 10, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.Body == "old" {
			assert.True(t, m.Read)
		} else {
			assert.False(t, m.Read, "messages after the cutoff stay unread")
		}
	}
}

func TestMarkRead_NonParticipant(t *testing.T) {
	f := newChatFixture(t)
	room := f.seedRoom(t, 1011, 111, 112)

	err := f.uc.MarkRead(context.Background(), 999, room.ID, nil)
	assert.True(t, apperrors.Is(err, "FORBIDDEN"))
}

func TestListMessages_PagesNewestFirst(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1012, 121, 122)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		m := &entity.Message{
			RoomID: room.ID,
			Sender: entity.Sender{UserID: 121},
			Body:   fmt.Sprintf("m%d", i),
			Seq:    int64(i + 1),
			SentAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, f.msgRepo.Append(ctx, m))
	}

	msgs, total, err := f.uc.ListMessages(ctx, 122, room.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m4", msgs[0].Body)
	assert.Equal(t, "m3", msgs[1].Body)

	msgs, _, err = f.uc.ListMessages(ctx, 122, room.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m0", msgs[0].Body)
}

func TestListMessages_NonParticipant(t *testing.T) {
	f := newChatFixture(t)
	room := f.seedRoom(t, 1013, 131, 132)

	_, _, err := f.uc.ListMessages(context.Background(), 999, room.ID, 0, 20)
	assert.True(t, apperrors.Is(err, "FORBIDDEN"))
}

func TestGetUnreadCount_PrefersCacheThenReconciles(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1014, 141, 142)

	_, err := f.uc.SendMessage(ctx, 141, SendMessageInput{RoomID: room.ID, Body: "hi"})
	require.NoError(t, err)

	// hot path: cache was populated by the send
	count, err := f.uc.GetUnreadCount(ctx, 142, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// cold path: drop the cache entry, the participant row answers and the
	// cache is refilled from it
	delete(f.cache.unread, unreadKey(room.ID, 142))
	count, err = f.uc.GetUnreadCount(ctx, 142, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	cached, ok, err := f.cache.GetUnread(ctx, room.ID, 142)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), cached)
}

func TestGetUnreadCount_NonParticipant(t *testing.T) {
	f := newChatFixture(t)
	room := f.seedRoom(t, 1015, 151, 152)

	_, err := f.uc.GetUnreadCount(context.Background(), 999, room.ID)
	assert.True(t, apperrors.Is(err, "FORBIDDEN"))
}

func TestGetUnreadSummary_AggregatesAcrossRooms(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	roomA := f.seedRoom(t, 1016, 161, 162)
	roomB := f.seedRoom(t, 1017, 163, 162)

	_, err := f.uc.SendMessage(ctx, 161, SendMessageInput{RoomID: roomA.ID, Body: "a1"})
	require.NoError(t, err)
	_, err = f.uc.SendMessage(ctx, 161, SendMessageInput{RoomID: roomA.ID, Body: "a2"})
	require.NoError(t, err)
	_, err = f.uc.SendMessage(ctx, 163, SendMessageInput{RoomID: roomB.ID, Body: "b1"})
	require.NoError(t, err)

	summary, err := f.uc.GetUnreadSummary(ctx, 162)
	require.NoError(t, err)
	assert.Equal(t, uint64(162), summary.UserID)
	assert.Equal(t, 3, summary.TotalUnread)
	require.Len(t, summary.Rooms, 2)

	byRoom := make(map[uint64]int)
	for _, r := range summary.Rooms {
		byRoom[r.RoomID] = r.UnreadCount
	}
	assert.Equal(t, 2, byRoom[roomA.ID])
	assert.Equal(t, 1, byRoom[roomB.ID])
}

func TestIsParticipant(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.seedRoom(t, 1018, 171, 172)

	ok, err := f.uc.IsParticipant(ctx, room.ID, 171)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.uc.IsParticipant(ctx, room.ID, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseUpTo(t *testing.T) {
	f := newChatFixture(t)

	got, err := f.uc.ParseUpTo("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.uc.ParseUpTo("2026-03-01T12:00:00+09:00")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), got.UTC())

	// no offset: interpreted in the canonical chat zone (KST)
	got, err = f.uc.ParseUpTo("2026-03-01T12:00:00")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), got.UTC())

	_, err = f.uc.ParseUpTo("not-a-timestamp")
	assert.True(t, apperrors.Is(err, "BAD_REQUEST"))
}
