package retention

import (
	"context"
	"strings"
	"testing"
	"time"

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

func TestPrune_DeletesOnlyOldReadNotifications(t *testing.T) {
	gdb := testDB(t)
	user := models.User{Username: "vic", Role: models.RoleVendor}
	gdb.Create(&user)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct {
		title string
		read  bool
		age   time.Duration
	}{
		{"old read", true, 100 * 24 * time.Hour},
		{"old unread", false, 100 * 24 * time.Hour},
		{"new read", true, 10 * 24 * time.Hour},
	}
	for _, s := range seed {
		n := models.Notification{
			RecipientID:      user.ID,
			NotificationType: models.NotifyNewMessage,
			Title:            s.title,
			IsRead:           s.read,
			CreatedAt:        now.Add(-s.age),
		}
		if err := gdb.Create(&n).Error; err != nil {
			t.Fatal(err)
		}
	}

	p := &Pruner{DB: gdb, MaxAge: 90 * 24 * time.Hour, Now: func() time.Time { return now }}
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	var left []models.Notification
	gdb.Order("id").Find(&left)
	if len(left) != 2 || left[0].Title != "old unread" || left[1].Title != "new read" {
		t.Errorf("remaining = %+v", left)
	}
}

func TestPrune_Errors(t *testing.T) {
	if _, err := (&Pruner{}).Prune(context.Background()); err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("err = %v", err)
	}
	if _, err := (&Pruner{DB: testDB(t)}).Prune(context.Background()); err == nil || !strings.Contains(err.Error(), "max age") {
		t.Errorf("err = %v", err)
	}
}

func TestSchedule(t *testing.T) {
	p := &Pruner{DB: testDB(t), MaxAge: time.Hour}

	c, err := Schedule("0 3 * * *", p)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Errorf("entries = %d, want 1", len(c.Entries()))
	}
	<-c.Stop().Done()

	if _, err := Schedule("not a cron expr", p); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 6, 1, 8, 30, 0, 0, time.Local)

	if d := NextRun("0 9 * * *", from); d != 30*time.Minute {
		t.Errorf("NextRun daily = %v, want 30m", d)
	}
	if d := NextRun("* * * * *", from); d <= 0 || d > time.Minute {
		t.Errorf("NextRun every minute = %v", d)
	}
	if d := NextRun("not a cron expr", from); d != 0 {
		t.Errorf("NextRun invalid = %v, want 0", d)
	}
}
