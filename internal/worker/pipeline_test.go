package worker

import (
	"context"
	"testing"
	"time"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/ingest"
	"github.com/redoracle/tgsentinel/internal/store"
)

type fakeMessageStore struct {
	upserted []store.StoredMessage
}

func (f *fakeMessageStore) Upsert(_ context.Context, m store.StoredMessage) error {
	f.upserted = append(f.upserted, m)
	return nil
}
func (f *fakeMessageStore) FeedCandidates(context.Context, string, time.Time, float32) ([]store.StoredMessage, error) {
	return nil, nil
}
func (f *fakeMessageStore) MarkDigestProcessed(context.Context, []int64, []int64) error { return nil }
func (f *fakeMessageStore) PurgeRetention(context.Context, time.Time, time.Time, int) (int64, error) {
	return 0, nil
}

type fakeDispatcher struct {
	dispatched int
}

func (f *fakeDispatcher) DispatchAlert(context.Context, store.StoredMessage, config.DeliveryMode, string) error {
	f.dispatched++
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Profiles: map[string]config.ProfileDefinition{
			"security": {
				ID: "security", Name: "Security", Enabled: true,
				Keywords:       map[string][]string{"security": {"breach"}},
				ScoringWeights: map[string]float32{"security": 2.0},
				MinScore:       1.0,
				Digest:         &config.ProfileDigestConfig{Mode: config.ModeDM},
			},
		},
		Channels: []config.ChannelRule{
			{ID: -100, Name: "ops", Enabled: true, Profiles: []string{"security"}},
		},
		AlertMode: config.ModeDM,
	}
}

func TestProcessEventAlertMatchDispatchesAndUpserts(t *testing.T) {
	cfg := testConfig()
	ms := &fakeMessageStore{}
	disp := &fakeDispatcher{}
	p := &Pipeline{
		Config:     config.NewStoreWithConfig(cfg),
		Messages:   ms,
		Dispatcher: disp,
	}

	ev := ingest.ChatEvent{ChatID: -100, MsgID: 1, SenderID: 5, Text: "we found a security breach", Timestamp: time.Now()}

	msg, processed, err := p.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if !processed {
		t.Fatalf("expected event to be processed")
	}
	if !msg.FeedAlertFlag {
		t.Fatalf("expected feed_alert_flag set, got %+v", msg)
	}
	if disp.dispatched != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", disp.dispatched)
	}
	if !msg.Alerted {
		t.Fatalf("expected Alerted=true after successful dispatch")
	}
	if len(ms.upserted) != 1 {
		t.Fatalf("expected exactly one upsert, got %d", len(ms.upserted))
	}
}

func TestProcessEventSkipsUnboundChat(t *testing.T) {
	cfg := &config.Config{Profiles: map[string]config.ProfileDefinition{}}
	p := &Pipeline{Config: config.NewStoreWithConfig(cfg), Messages: &fakeMessageStore{}}

	ev := ingest.ChatEvent{ChatID: -999, MsgID: 1, Text: "hello"}
	_, processed, err := p.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatalf("expected unbound chat with no profiles to be skipped")
	}
}

func TestProcessEventDropsExcludedSender(t *testing.T) {
	cfg := testConfig()
	cfg.Profiles["security"] = func() config.ProfileDefinition {
		p := cfg.Profiles["security"]
		p.ExcludedUsers = []int64{5}
		return p
	}()
	ms := &fakeMessageStore{}
	p := &Pipeline{Config: config.NewStoreWithConfig(cfg), Messages: ms}

	ev := ingest.ChatEvent{ChatID: -100, MsgID: 2, SenderID: 5, Text: "security breach", Timestamp: time.Now()}
	_, processed, err := p.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatalf("expected excluded sender's message to be dropped")
	}
	if len(ms.upserted) != 0 {
		t.Fatalf("expected no upsert for a dropped message")
	}
}

func TestProcessEventUnmonitoredPrivateChatSkipped(t *testing.T) {
	cfg := testConfig() // no Users entries at all
	p := &Pipeline{Config: config.NewStoreWithConfig(cfg), Messages: &fakeMessageStore{}}

	ev := ingest.ChatEvent{ChatID: 777, MsgID: 1, SenderID: 1, Text: "security breach", Timestamp: time.Now()}
	_, processed, err := p.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatalf("expected an unmonitored private chat to be skipped even if a profile would auto-bind")
	}
}
