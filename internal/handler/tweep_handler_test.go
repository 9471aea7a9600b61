package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tweeper/internal/model"
)

// --- POST /api/tweeps ---

func TestTweepHandler_Create_Success(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice", "secret1")

	w := s.do(t, newUploadRequest(t, []byte("RIFF....WAVE"), "audio/wav", "clip.wav", "00:01:30"), token)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}
	var res tweepEnvelope
	decodeBody(t, w, &res)
	if res.Tweep.ID == "" {
		t.Error("expected tweep id")
	}
	if res.Tweep.Username != "alice" {
		t.Errorf("username = %q, want alice", res.Tweep.Username)
	}
	if res.Tweep.Duration != "00:01:30" {
		t.Errorf("duration = %q, want 00:01:30", res.Tweep.Duration)
	}
}

func TestTweepHandler_Create_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, newUploadRequest(t, []byte("audio"), "audio/wav", "clip.wav", "00:00:01"), "")

	assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
}

func TestTweepHandler_Create_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		audio       []byte
		contentType string
		filename    string
		duration    string
		code        string
	}{
		{"再生時間の形式が不正", []byte("audio"), "audio/wav", "clip.wav", "1:5:00", model.ErrCodeInvalidDuration},
		{"再生時間なし", []byte("audio"), "audio/wav", "clip.wav", "", model.ErrCodeInvalidDuration},
		{"再生時間の桁が多い", []byte("audio"), "audio/wav", "clip.wav", "000:01:30", model.ErrCodeInvalidDuration},
		{"音声パートなし", nil, "", "", "00:00:01", model.ErrCodeAudioRequired},
		{"空の音声", []byte{}, "audio/wav", "clip.wav", "00:00:01", model.ErrCodeAudioRequired},
		{"音声以外のファイル", []byte("hello"), "text/plain", "note.txt", "00:00:01", model.ErrCodeInvalidAudioType},
		{"画像", []byte("png"), "image/png", "a.png", "00:00:01", model.ErrCodeInvalidAudioType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			token := s.register(t, "alice", "secret1")

			w := s.do(t, newUploadRequest(t, tt.audio, tt.contentType, tt.filename, tt.duration), token)

			assertErrorCode(t, w, http.StatusBadRequest, tt.code)
		})
	}
}

func TestTweepHandler_Create_MimeFromExtension(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice", "secret1")

	for _, ct := range []string{"", "application/octet-stream"} {
		w := s.do(t, newUploadRequest(t, []byte("audio"), ct, "clip.wav", "00:00:03"), token)
		if w.Code != http.StatusCreated {
			t.Errorf("content type %q: status = %d (body: %s)", ct, w.Code, w.Body.String())
		}
	}
}

func TestTweepHandler_Create_TooLarge(t *testing.T) {
	s := newTestServer(t, withMaxAudioSize(16))
	token := s.register(t, "alice", "secret1")

	w := s.do(t, newUploadRequest(t, bytes.Repeat([]byte("a"), 17), "audio/wav", "clip.wav", "00:00:01"), token)
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeAudioTooLarge)

	w = s.do(t, newUploadRequest(t, bytes.Repeat([]byte("a"), 16), "audio/wav", "clip.wav", "00:00:01"), token)
	if w.Code != http.StatusCreated {
		t.Errorf("audio at the limit: status = %d (body: %s)", w.Code, w.Body.String())
	}
}

func TestTweepHandler_Create_BodyBeyondMultipartLimit(t *testing.T) {
	s := newTestServer(t, withMaxAudioSize(16))
	token := s.register(t, "alice", "secret1")

	huge := bytes.Repeat([]byte("a"), int(16+multipartOverhead+1))
	w := s.do(t, newUploadRequest(t, huge, "audio/wav", "clip.wav", "00:00:01"), token)

	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeAudioTooLarge)
}

func TestTweepHandler_Create_NotMultipart(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice", "secret1")

	req := httptest.NewRequest(http.MethodPost, "/api/tweeps", strings.NewReader(`{"duration":"00:00:01"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(t, req, token)

	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidRequest)
}

// --- GET /api/tweeps ---

func TestTweepHandler_List_NewestFirstWithoutAudio(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice", "secret1")
	bob := s.register(t, "bob", "secret2")

	first := s.createTweep(t, alice, []byte("first-audio"), "00:00:01")
	second := s.createTweep(t, bob, []byte("second-audio"), "00:00:02")

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/tweeps", nil), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "audio") {
		t.Errorf("list must not include audio payload: %s", w.Body.String())
	}

	var res listTweepsResponse
	decodeBody(t, w, &res)
	if len(res.Tweeps) != 2 {
		t.Fatalf("len = %d, want 2", len(res.Tweeps))
	}
	if res.Tweeps[0].ID != second || res.Tweeps[1].ID != first {
		t.Errorf("order = [%s %s], want [%s %s]", res.Tweeps[0].ID, res.Tweeps[1].ID, second, first)
	}
}

func TestTweepHandler_List_EmptyIsArray(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/tweeps", nil), "")

	if body := strings.TrimSpace(w.Body.String()); body != `{"tweeps":[]}` {
		t.Errorf("body = %s, want {\"tweeps\":[]}", body)
	}
}

func TestTweepHandler_ListByUser(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice", "secret1")
	bob := s.register(t, "bob", "secret2")
	aliceTweep := s.createTweep(t, alice, []byte("a"), "00:00:01")
	s.createTweep(t, bob, []byte("b"), "00:00:01")

	tweeps := s.listTweeps(t, "/api/tweeps/user/alice")
	if len(tweeps) != 1 || tweeps[0].ID != aliceTweep {
		t.Errorf("alice tweeps = %+v, want only %s", tweeps, aliceTweep)
	}

	if unknown := s.listTweeps(t, "/api/tweeps/user/nobody"); len(unknown) != 0 {
		t.Errorf("unknown user tweeps = %d, want 0", len(unknown))
	}
}

// --- GET /api/tweeps/:id/audio ---

func TestTweepHandler_GetAudio(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice", "secret1")
	audio := []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0x01, 0x02}
	id := s.createTweep(t, token, audio, "00:00:01")

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/tweeps/"+id+"/audio", nil), "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), audio) {
		t.Errorf("body = %v, want %v", w.Body.Bytes(), audio)
	}
	want := map[string]string{
		"Content-Type":   "audio/wav",
		"Content-Length": "7",
		"Cache-Control":  "public, max-age=31536000",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestTweepHandler_GetAudio_NotFound(t *testing.T) {
	s := newTestServer(t)

	for _, id := range []string{"not-a-uuid", "0b0e5a5e-7f43-4b64-a7a1-9c3cfd6a1f00"} {
		w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/tweeps/"+id+"/audio", nil), "")
		assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeTweepNotFound)
	}
}

// --- DELETE /api/tweeps/:id ---

func TestTweepHandler_Delete_Twice(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice", "secret1")
	id := s.createTweep(t, token, []byte("a"), "00:00:01")

	w := s.do(t, httptest.NewRequest(http.MethodDelete, "/api/tweeps/"+id, nil), token)
	if w.Code != http.StatusOK {
		t.Fatalf("first delete: status = %d (body: %s)", w.Code, w.Body.String())
	}

	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/tweeps/"+id, nil), token)
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeTweepNotFound)
}

func TestTweepHandler_Delete_OtherUsersTweep(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice", "secret1")
	bob := s.register(t, "bob", "secret2")
	id := s.createTweep(t, alice, []byte("a"), "00:00:01")

	w := s.do(t, httptest.NewRequest(http.MethodDelete, "/api/tweeps/"+id, nil), bob)
	notOwner := w.Body.String()
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeTweepNotFound)

	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/tweeps/0b0e5a5e-7f43-4b64-a7a1-9c3cfd6a1f00", nil), bob)
	if w.Body.String() != notOwner {
		t.Errorf("not-owner and not-found responses differ:\n%s\n%s", notOwner, w.Body.String())
	}

	// alice のtweepは残っている
	if tweeps := s.listTweeps(t, "/api/tweeps/user/alice"); len(tweeps) != 1 {
		t.Errorf("alice tweeps = %d, want 1", len(tweeps))
	}
}

func TestTweepHandler_Delete_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice", "secret1")
	id := s.createTweep(t, token, []byte("a"), "00:00:01")

	w := s.do(t, httptest.NewRequest(http.MethodDelete, "/api/tweeps/"+id, nil), "")

	assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
}

// --- サービスエラーの変換 ---

func TestTweepHandler_InternalErrorDoesNotLeakDetail(t *testing.T) {
	svc := &mockTweepService{
		listFn: func(context.Context) ([]*model.Tweep, error) {
			return nil, errors.New("pq: connection to 10.0.0.5 refused")
		},
	}
	h := NewTweepHandler(svc, 0)
	w := httptest.NewRecorder()

	h.ListTweeps(w, httptest.NewRequest(http.MethodGet, "/api/tweeps", nil))

	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("internal detail leaked: %s", w.Body.String())
	}
	assertErrorCode(t, w, http.StatusInternalServerError, model.ErrCodeInternal)
}

func TestTweepHandler_Delete_PassesActorAndID(t *testing.T) {
	var gotActor *model.User
	var gotID string
	svc := &mockTweepService{
		deleteFn: func(_ context.Context, actor *model.User, id string) error {
			gotActor, gotID = actor, id
			return nil
		},
	}
	h := NewTweepHandler(svc, 0)

	r := chi.NewRouter()
	r.Delete("/api/tweeps/{id}", h.DeleteTweep)

	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/tweeps/t-42", nil), &model.User{ID: "u-1", Username: "alice"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotID != "t-42" || gotActor == nil || gotActor.Username != "alice" {
		t.Errorf("Delete called with (%+v, %q)", gotActor, gotID)
	}
}

func TestAudioMediaType(t *testing.T) {
	tests := []struct {
		contentType string
		filename    string
		want        string
	}{
		{"audio/webm;codecs=opus", "rec.webm", "audio/webm"},
		{"audio/wav", "", "audio/wav"},
		{"", "CLIP.WAV", ""},
		{"text/plain", "clip.wav", "text/plain"},
	}

	for _, tt := range tests {
		got := audioMediaType(tt.contentType, tt.filename)
		if tt.want == "" {
			if !strings.HasPrefix(got, "audio/") {
				t.Errorf("audioMediaType(%q, %q) = %q, want audio/*", tt.contentType, tt.filename, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("audioMediaType(%q, %q) = %q, want %q", tt.contentType, tt.filename, got, tt.want)
		}
	}
}
