package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEventMarshalLineKeepsZeroSeq(t *testing.T) {
	raw, err := json.Marshal(Line(0, 1700000000000, "hello"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"line","seq":0,"t":1700000000000,"text":"hello"}`
	if string(raw) != want {
		t.Fatalf("line json = %s, want %s", raw, want)
	}
}

func TestEventMarshalControlEvents(t *testing.T) {
	now := time.UnixMilli(42)
	cases := []struct {
		ev   Event
		want string
	}{
		{Ping(now), `{"type":"ping","t":42}`},
		{End(now), `{"type":"end","t":42}`},
		{Error(now, errors.New("store down")), `{"type":"error","t":42,"error":"store down"}`},
	}
	for _, tc := range cases {
		raw, err := json.Marshal(tc.ev)
		if err != nil {
			t.Fatalf("Marshal(%s) error = %v", tc.ev.Type, err)
		}
		if string(raw) != tc.want {
			t.Fatalf("Marshal(%s) = %s, want %s", tc.ev.Type, raw, tc.want)
		}
	}
}

func TestEventMarshalRejectsUnknownType(t *testing.T) {
	_, err := json.Marshal(Event{Type: "wat"})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseEventAudioLine(t *testing.T) {
	raw := []byte(`{"type":"line","seq":3,"t":9,"data":"AQID","content_type":"audio/wav"}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if ev.Type != TypeLine || ev.Seq != 3 || ev.ContentType != "audio/wav" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.Data) != 3 || ev.Data[2] != 3 {
		t.Fatalf("Data = %v, want [1 2 3]", ev.Data)
	}
}

func TestParseEventRejectsUnknownType(t *testing.T) {
	_, err := ParseEvent([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseIngestRequest(t *testing.T) {
	req, err := ParseIngestRequest([]byte(`{"code":"test","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseIngestRequest() error = %v", err)
	}
	if req.Code != "test" || req.Text != "hello" || req.IsAudio() {
		t.Fatalf("unexpected request: %+v", req)
	}

	req, err = ParseIngestRequest([]byte(`{"code":"TEST","data":"AQID","content_type":"audio/wav"}`))
	if err != nil {
		t.Fatalf("ParseIngestRequest() error = %v", err)
	}
	if !req.IsAudio() || req.ContentType != "audio/wav" {
		t.Fatalf("unexpected audio request: %+v", req)
	}
}

func TestParseIngestRequestRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"code":"TEST","text":"x","data":"AQID"}`,
	} {
		if _, err := ParseIngestRequest([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("ParseIngestRequest(%s) error = %v, want ErrMalformed", raw, err)
		}
	}
}

func BenchmarkEventMarshalLine(b *testing.B) {
	ev := Line(7, 1700000000000, "the quick brown fox")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := json.Marshal(ev); err != nil {
			b.Fatalf("Marshal() error = %v", err)
		}
	}
}
