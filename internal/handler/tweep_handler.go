package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/tweeper/internal/model"
)

const (
	// DefaultMaxAudioSize は音声ファイルの既定の上限（10MiB）。
	DefaultMaxAudioSize int64 = 10 << 20

	// multipartOverhead は音声以外のパートや境界文字列に許容するバイト数。
	multipartOverhead int64 = 1 << 20

	// multipartMemory はmultipartパース時にメモリに保持する上限。超過分は一時ファイルに書き出される。
	multipartMemory int64 = 1 << 20

	audioContentType  = "audio/wav"
	audioCacheControl = "public, max-age=31536000"
)

// audioExtensions はOSのMIMEテーブルに登録がない環境向けの音声拡張子の対応表。
var audioExtensions = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
}

// TweepServiceInterface はtweepハンドラーが必要とするサービスインターフェース。
type TweepServiceInterface interface {
	Create(ctx context.Context, owner *model.User, audio []byte, duration string) (*model.Tweep, error)
	List(ctx context.Context) ([]*model.Tweep, error)
	ListByUsername(ctx context.Context, username string) ([]*model.Tweep, error)
	// GetAudio は音声データを含むtweepを返す。
	GetAudio(ctx context.Context, id string) (*model.Tweep, error)
	// Delete は所有者本人の場合のみtweepを削除する。
	Delete(ctx context.Context, actor *model.User, id string) error
}

// TweepHandler はtweepのHTTPハンドラー。
type TweepHandler struct {
	service      TweepServiceInterface
	maxAudioSize int64
}

// NewTweepHandler はTweepHandlerを生成する。
// maxAudioSizeが0以下の場合はDefaultMaxAudioSizeを使う。
func NewTweepHandler(service TweepServiceInterface, maxAudioSize int64) *TweepHandler {
	if maxAudioSize <= 0 {
		maxAudioSize = DefaultMaxAudioSize
	}
	return &TweepHandler{
		service:      service,
		maxAudioSize: maxAudioSize,
	}
}

type tweepEnvelope struct {
	Message string        `json:"message"`
	Tweep   tweepResponse `json:"tweep"`
}

type listTweepsResponse struct {
	Tweeps []tweepResponse `json:"tweeps"`
}

// CreateTweep は音声ファイルをアップロードしてtweepを作成する。
// multipartの audio フィールドに音声ファイル、duration フィールドにHH:MM:SSを指定する。
// POST /api/tweeps
func (h *TweepHandler) CreateTweep(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudioSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAudioTooLargeError(h.maxAudioSize))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("multipart/form-data形式で送信してください"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAudioRequiredError())
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return
	}
	defer file.Close()

	if header.Size > h.maxAudioSize {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAudioTooLargeError(h.maxAudioSize))
		return
	}
	if mediaType := audioMediaType(header.Header.Get("Content-Type"), header.Filename); !strings.HasPrefix(mediaType, "audio/") {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAudioTypeError(mediaType))
		return
	}

	audio, err := io.ReadAll(io.LimitReader(file, h.maxAudioSize+1))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if int64(len(audio)) > h.maxAudioSize {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAudioTooLargeError(h.maxAudioSize))
		return
	}

	tweep, err := h.service.Create(r.Context(), user, audio, r.FormValue("duration"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tweepEnvelope{
		Message: "Tweep created successfully",
		Tweep:   toTweepResponse(tweep),
	})
}

// ListTweeps は全tweepを新しい順に返す。
// GET /api/tweeps
func (h *TweepHandler) ListTweeps(w http.ResponseWriter, r *http.Request) {
	tweeps, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listTweepsResponse{Tweeps: toTweepResponses(tweeps)})
}

// ListUserTweeps は指定ユーザーのtweepを新しい順に返す。
// GET /api/tweeps/user/:username
func (h *TweepHandler) ListUserTweeps(w http.ResponseWriter, r *http.Request) {
	tweeps, err := h.service.ListByUsername(r.Context(), pathUsername(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listTweepsResponse{Tweeps: toTweepResponses(tweeps)})
}

// GetAudio はtweepの音声データを返す。
// GET /api/tweeps/:id/audio
func (h *TweepHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	tweep, err := h.service.GetAudio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", audioContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(tweep.AudioData)))
	w.Header().Set("Cache-Control", audioCacheControl)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(tweep.AudioData); err != nil {
		slog.Warn("failed to write audio response",
			slog.String("tweep_id", tweep.ID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteTweep は認証済みユーザーが所有するtweepを削除する。
// 存在しない場合と他ユーザーの所有の場合はどちらも404を返す。
// DELETE /api/tweeps/:id
func (h *TweepHandler) DeleteTweep(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	if err := h.service.Delete(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Tweep deleted successfully"})
}

// audioMediaType はパートのContent-Type、なければファイル拡張子からメディアタイプを求める。
func audioMediaType(contentType, filename string) string {
	if contentType != "" && contentType != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			return mediaType
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	if mediaType, ok := audioExtensions[ext]; ok {
		return mediaType
	}
	return contentType
}
