package main

import (
	"strings"
	"testing"

	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gigroom/gigroom/internal/config"
)

func TestNotifyPruneCmd(t *testing.T) {
	cfgPath := initTestDB(t, "")

	out, err := runCmd(t, "notify", "prune", "--days", "7", "--config", cfgPath)
	if err != nil {
		t.Fatalf("notify prune: %v", err)
	}
	if !strings.Contains(out, "Pruned 0 read notifications older than 7 days") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNotifyPruneCmd_DefaultDays(t *testing.T) {
	cfgPath := initTestDB(t, "retention:\n  read_max_age_days: 14\n")

	out, err := runCmd(t, "notify", "prune", "--config", cfgPath)
	if err != nil {
		t.Fatalf("notify prune: %v", err)
	}
	if !strings.Contains(out, "older than 14 days") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNotifyBookingCmd(t *testing.T) {
	cfgPath := initTestDB(t, "")

	out, err := runCmd(t, "notify", "booking", "--to", "vic", "--from", "ana", "--booking-id", "42", "--config", cfgPath)
	if err != nil {
		t.Fatalf("notify booking: %v\n%s", err, out)
	}
	if !strings.Contains(out, "sent to vic: New booking request from ana") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = runCmd(t, "notify", "booking", "--to", "ana", "--from", "vic", "--booking-id", "42", "--confirmed", "--config", cfgPath)
	if err != nil {
		t.Fatalf("notify booking --confirmed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Booking confirmed by vic") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNotifyBookingCmd_Help(t *testing.T) {
	out, err := runCmd(t, "notify", "booking", "--help")
	if err != nil {
		t.Fatalf("notify booking --help: %v", err)
	}
	if !strings.Contains(out, "only when broadcast.backend is redis") {
		t.Errorf("help should explain push delivery depends on the redis backend, got: %s", out)
	}
}

func TestNotifyBookingCmd_Errors(t *testing.T) {
	cfgPath := initTestDB(t, "")

	if _, err := runCmd(t, "notify", "booking", "--booking-id", "1", "--config", cfgPath); err == nil {
		t.Error("expected error without --to")
	}
	_, err := runCmd(t, "notify", "booking", "--to", "ghost", "--booking-id", "1", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), `user "ghost" not found`) {
		t.Errorf("err = %v", err)
	}
}

func TestNewBroadcaster_Backends(t *testing.T) {
	cfgPath := testConfig(t, "broadcast:\n  backend: none\n")
	cfg, _, err := connectFromConfig(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	logger := newLogger(new(strings.Builder), false)

	bc, closeBC := newBroadcaster(cfg.Broadcast, logger)
	defer closeBC()
	if bc.Send(t.Context(), "room_1", broadcast.Warning("ping")) {
		t.Error("none backend should report no delivery")
	}

	cfg.Broadcast.Backend = "memory"
	hub, closeHub := newBroadcaster(cfg.Broadcast, logger)
	defer closeHub()
	if !hub.Send(t.Context(), "room_1", broadcast.Warning("ping")) {
		t.Error("memory backend should accept sends")
	}
}

func TestStartRelay_NoPlatform(t *testing.T) {
	rl, err := startRelay(t.Context(), config.RelayConfig{}, newLogger(new(strings.Builder), false))
	if err != nil || rl != nil {
		t.Errorf("startRelay() = %v, %v; want nil, nil", rl, err)
	}
	_, err = startRelay(t.Context(), config.RelayConfig{Platform: "irc"}, newLogger(new(strings.Builder), false))
	if err == nil || !strings.Contains(err.Error(), "unsupported relay platform") {
		t.Errorf("err = %v", err)
	}
}
