package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gigroom/gigroom/internal/db"
	"github.com/gigroom/gigroom/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

type mirrored struct {
	n         models.Notification
	recipient string
}

type fakeMirror struct {
	got []mirrored
}

func (f *fakeMirror) Mirror(n *models.Notification, recipient string) {
	f.got = append(f.got, mirrored{*n, recipient})
}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	rec   *broadcast.Recorder
	relay *fakeMirror
	room  *models.Room
	org   *models.User
	vend  *models.User
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testDB(t)
	f := &fixture{
		db:    gdb,
		rec:   broadcast.NewRecorder(),
		relay: &fakeMirror{},
		org:   &models.User{Username: "ana", Role: models.RoleOrganizer},
		vend:  &models.User{Username: "vic", Role: models.RoleVendor},
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	gdb.Create(f.org)
	gdb.Create(f.vend)
	f.room = &models.Room{OrganizerID: f.org.ID, VendorID: f.vend.ID, PairKey: models.PairKey(f.org.ID, f.vend.ID)}
	gdb.Create(f.room)
	f.room.Organizer, f.room.Vendor = f.org, f.vend

	svc, err := New(Opts{DB: gdb, Broadcaster: f.rec, Relay: f.relay, Now: func() time.Time { return f.now }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.svc = svc
	return f
}

func TestNew_RequiresDB(t *testing.T) {
	_, err := New(Opts{})
	if err == nil || err.Error() != "notify: db is required" {
		t.Errorf("err = %v", err)
	}
}

func TestCreate_StoresPushesAndMirrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.Create(ctx, Params{
		RecipientID: f.vend.ID,
		SenderID:    &f.org.ID,
		Type:        models.NotifyNewBid,
		Title:       "New bid from ana",
		LinkType:    LinkChat,
		LinkID:      &f.room.ID,
		Data:        map[string]any{"bid_id": 1},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.ID == 0 || n.IsRead {
		t.Errorf("notification = %+v", n)
	}
	if n.DeepLink != "/dm/1" {
		t.Errorf("DeepLink = %q", n.DeepLink)
	}

	sent := f.rec.OfType(broadcast.EventNotification)
	if len(sent) != 1 || sent[0].Group != broadcast.UserGroup(f.vend.ID) {
		t.Fatalf("sent = %+v", sent)
	}
	if len(f.relay.got) != 1 || f.relay.got[0].recipient != "vic" {
		t.Errorf("mirrored = %+v", f.relay.got)
	}
}

func TestCreate_RecipientLookupFailureStillMirrors(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	svc, err := New(Opts{
		DB:          f.db,
		Broadcaster: f.rec,
		Relay:       f.relay,
		Logger:      slog.New(slog.NewTextHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	err = f.db.Callback().Query().Before("gorm:query").Register("test:fail_users", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			tx.AddError(errors.New("users unavailable"))
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := svc.Create(context.Background(), Params{RecipientID: f.vend.ID, Type: models.NotifyNewBid, Title: "x"})
	if err != nil {
		t.Fatalf("Create = %v, want nil when relay lookup fails", err)
	}
	if len(f.relay.got) != 1 || f.relay.got[0].recipient != fmt.Sprintf("user %d", f.vend.ID) {
		t.Errorf("mirrored = %+v", f.relay.got)
	}
	if !strings.Contains(logs.String(), "notify: load relay recipient") || !strings.Contains(logs.String(), "users unavailable") {
		t.Errorf("expected warning in logs, got: %s", logs.String())
	}
	if n.ID == 0 {
		t.Error("notification not stored")
	}
}

func TestCreate_BroadcastFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.rec.SetFail(true)

	_, err := f.svc.Create(context.Background(), Params{RecipientID: f.vend.ID, Type: models.NotifyNewMessage, Title: "x"})
	if err != nil {
		t.Fatalf("Create = %v, want nil with failing broadcaster", err)
	}
	var count int64
	f.db.Model(&models.Notification{}).Count(&count)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), Params{Type: "promo"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	e, _ := apperr.As(err)
	for _, field := range []string{"recipient", "notification_type", "title"} {
		if e.Fields[field] == "" {
			t.Errorf("missing field error for %s: %v", field, e.Fields)
		}
	}
}

func TestNotifyNewMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.NotifyNewMessage(ctx, f.room, f.org.ID, strings.Repeat("é", 150))
	if err != nil {
		t.Fatalf("NotifyNewMessage: %v", err)
	}
	if n.RecipientID != f.vend.ID {
		t.Errorf("RecipientID = %d, want vendor", n.RecipientID)
	}
	if n.Title != "New message from ana" {
		t.Errorf("Title = %q", n.Title)
	}
	if got := len([]rune(n.Message)); got != 100 {
		t.Errorf("message runes = %d, want 100", got)
	}

	n, _ = f.svc.NotifyNewMessage(ctx, f.room, f.vend.ID, "")
	if n.RecipientID != f.org.ID || n.Message != "Sent an attachment" {
		t.Errorf("vendor message notification = %+v", n)
	}
}

func TestNotifyNewBid(t *testing.T) {
	f := newFixture(t)
	bid := &models.Bid{ID: 7, Amount: 50000, Currency: "USD"}

	n, err := f.svc.NotifyNewBid(context.Background(), f.room, bid)
	if err != nil {
		t.Fatalf("NotifyNewBid: %v", err)
	}
	if n.Title != "New bid from ana" || n.Message != "Bid amount: USD 500.00" {
		t.Errorf("title/message = %q/%q", n.Title, n.Message)
	}
	if n.RecipientID != f.vend.ID || *n.SenderID != f.org.ID {
		t.Errorf("recipient/sender = %d/%d", n.RecipientID, *n.SenderID)
	}
	if n.Data["amount"] != "500.00" {
		t.Errorf("data = %v", n.Data)
	}
}

func TestNotifyBidResponse(t *testing.T) {
	counter := models.Amount(40000)
	tests := []struct {
		name      string
		bid       models.Bid
		wantType  models.NotificationType
		wantTitle string
		wantMsg   string
	}{
		{
			name:      "accepted",
			bid:       models.Bid{ID: 1, Amount: 50000, Currency: "USD", Status: models.BidAccepted},
			wantType:  models.NotifyBidAccepted,
			wantTitle: "Bid accepted by vic",
			wantMsg:   "Your bid of USD 500.00 was accepted",
		},
		{
			name:      "declined",
			bid:       models.Bid{ID: 2, Amount: 50000, Currency: "EUR", Status: models.BidDeclined},
			wantType:  models.NotifyBidDeclined,
			wantTitle: "Bid declined by vic",
			wantMsg:   "Your bid of EUR 500.00 was declined",
		},
		{
			name:      "countered",
			bid:       models.Bid{ID: 3, Amount: 50000, Currency: "USD", Status: models.BidCountered, CounterAmount: &counter},
			wantType:  models.NotifyBidCountered,
			wantTitle: "Bid countered by vic",
			wantMsg:   "Your bid of USD 500.00 was countered with USD 400.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			n, err := f.svc.NotifyBidResponse(context.Background(), f.room, &tt.bid)
			if err != nil {
				t.Fatalf("NotifyBidResponse: %v", err)
			}
			if n.NotificationType != tt.wantType || n.Title != tt.wantTitle || n.Message != tt.wantMsg {
				t.Errorf("got %s / %q / %q", n.NotificationType, n.Title, n.Message)
			}
			if n.RecipientID != f.org.ID {
				t.Errorf("RecipientID = %d, want organizer", n.RecipientID)
			}
		})
	}
}

func TestNotifyBidResponse_PendingRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.NotifyBidResponse(context.Background(), f.room, &models.Bid{ID: 1, Status: models.BidPending})
	if err == nil {
		t.Fatal("expected error for pending bid")
	}
}

func TestNotifyBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.NotifyBooking(ctx, BookingParams{Recipient: f.vend, Sender: f.org, BookingID: 42, Note: "June 3"})
	if err != nil {
		t.Fatalf("NotifyBooking: %v", err)
	}
	if n.NotificationType != models.NotifyBookingRequest || n.Title != "New booking request from ana" {
		t.Errorf("got %s / %q", n.NotificationType, n.Title)
	}
	if n.DeepLink != "/bookings/42" {
		t.Errorf("DeepLink = %q", n.DeepLink)
	}

	n, _ = f.svc.NotifyBooking(ctx, BookingParams{Recipient: f.org, BookingID: 42, Confirmed: true})
	if n.NotificationType != models.NotifyBookingConfirmed || n.Title != "Booking confirmed by a client" || n.SenderID != nil {
		t.Errorf("confirmed = %+v", n)
	}
}

func TestDeepLink(t *testing.T) {
	id := uint(5)
	zero := uint(0)
	tests := []struct {
		linkType string
		id       *uint
		want     string
	}{
		{"chat", &id, "/dm/5"},
		{"booking", &id, "/bookings/5"},
		{"event", &id, ""},
		{"chat", nil, ""},
		{"chat", &zero, ""},
	}
	for _, tt := range tests {
		if got := DeepLink(tt.linkType, tt.id); got != tt.want {
			t.Errorf("DeepLink(%q, %v) = %q, want %q", tt.linkType, tt.id, got, tt.want)
		}
	}
}

func TestList_NewestFirstLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.now
	for i := 0; i < ListLimit+5; i++ {
		f.now = base.Add(time.Duration(i) * time.Minute)
		f.svc.Create(ctx, Params{RecipientID: f.vend.ID, SenderID: &f.org.ID, Type: models.NotifyNewMessage, Title: "m"})
	}
	f.svc.Create(ctx, Params{RecipientID: f.org.ID, Type: models.NotifyNewMessage, Title: "other"})

	list, err := f.svc.List(ctx, f.vend.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != ListLimit {
		t.Fatalf("len = %d, want %d", len(list), ListLimit)
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) {
		t.Error("list not newest first")
	}
	if list[0].Sender == nil || list[0].Sender.Username != "ana" {
		t.Error("sender not preloaded")
	}
	for _, n := range list {
		if n.RecipientID != f.vend.ID {
			t.Fatalf("foreign notification in list: %+v", n)
		}
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n, _ := f.svc.Create(ctx, Params{RecipientID: f.vend.ID, Type: models.NotifyNewMessage, Title: "m"})

	if _, err := f.svc.MarkRead(ctx, f.org.ID, n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("other user MarkRead = %v, want not found", err)
	}
	if _, err := f.svc.MarkRead(ctx, f.vend.ID, 9999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing MarkRead = %v, want not found", err)
	}

	first, err := f.svc.MarkRead(ctx, f.vend.ID, n.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !first.IsRead || first.ReadAt == nil {
		t.Fatalf("first = %+v", first)
	}

	f.now = f.now.Add(time.Hour)
	second, err := f.svc.MarkRead(ctx, f.vend.ID, n.ID)
	if err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}
	if !second.ReadAt.Equal(*first.ReadAt) {
		t.Errorf("read_at changed: %v -> %v", first.ReadAt, second.ReadAt)
	}
}

func TestUnreadCountAndMarkAllRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.svc.Create(ctx, Params{RecipientID: f.vend.ID, Type: models.NotifyNewMessage, Title: "m"})
	}
	f.svc.Create(ctx, Params{RecipientID: f.org.ID, Type: models.NotifyNewMessage, Title: "m"})

	count, err := f.svc.UnreadCount(ctx, f.vend.ID)
	if err != nil || count != 3 {
		t.Fatalf("UnreadCount = %d, %v; want 3", count, err)
	}

	marked, err := f.svc.MarkAllRead(ctx, f.vend.ID)
	if err != nil || marked != 3 {
		t.Fatalf("MarkAllRead = %d, %v; want 3", marked, err)
	}
	marked, _ = f.svc.MarkAllRead(ctx, f.vend.ID)
	if marked != 0 {
		t.Errorf("second MarkAllRead = %d, want 0", marked)
	}
	count, _ = f.svc.UnreadCount(ctx, f.org.ID)
	if count != 1 {
		t.Errorf("organizer unread = %d, want 1", count)
	}
}
