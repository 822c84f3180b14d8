package handler

import (
    "context"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/routine-tracker/internal/model"
)

// MaxAvatarURLLength bounds a user-supplied avatar URL.
const MaxAvatarURLLength = 2048

// allowedAvatarTypes are the accepted upload content types.
var allowedAvatarTypes = map[string]bool{
    "image/jpeg": true,
    "image/png":  true,
    "image/webp": true,
    "image/gif":  true,
}

// AvatarStore reads and sets the avatar of a user.
type AvatarStore interface {
    GetByID(ctx context.Context, id uint64) (model.User, error)
    SetImage(ctx context.Context, id uint64, image *string) error
}

// Uploader stores avatar images and returns their public URL.
type Uploader interface {
    ObjectPath(userID uint64, filename, contentType string) string
    Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
}

// AvatarHandler serves /user/avatar.
type AvatarHandler struct {
    Users    AvatarStore
    Storage  Uploader
    MaxBytes int64
    Log      *zap.Logger
}

// NewAvatarHandler panics when users or storage is nil.
func NewAvatarHandler(users AvatarStore, up Uploader, maxBytes int64, log *zap.Logger) *AvatarHandler {
    if users == nil || up == nil {
        panic("nil dependency passed to NewAvatarHandler")
    }
    if maxBytes <= 0 {
        maxBytes = 4 << 20
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &AvatarHandler{Users: users, Storage: up, MaxBytes: maxBytes, Log: log}
}

// Get handles GET /user/avatar.
func (h *AvatarHandler) Get(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"image": u.Image})
}

// validAvatarURL accepts absolute http(s) URLs up to MaxAvatarURLLength.
func validAvatarURL(raw string) (string, bool) {
    if len(raw) > MaxAvatarURLLength {
        return "url too long", false
    }
    u, err := url.Parse(raw)
    if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
        return "invalid image url", false
    }
    return "", true
}

// Patch handles PATCH /user/avatar.  An empty image clears the avatar.
func (h *AvatarHandler) Patch(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    var body struct {
        Image string `json:"image"`
    }
    if err := c.Bind(&body); err != nil {
        return jsonError(c, http.StatusBadRequest, "invalid request body")
    }

    var image *string
    if raw := strings.TrimSpace(body.Image); raw != "" {
        if msg, ok := validAvatarURL(raw); !ok {
            return jsonError(c, http.StatusBadRequest, msg)
        }
        image = &raw
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Users.SetImage(ctx, uid, image); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"ok": true, "image": image})
}

// Upload handles POST /user/avatar/upload with a multipart "file" field.
// The stored object's public URL becomes the user's avatar.
func (h *AvatarHandler) Upload(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    fh, err := c.FormFile("file")
    if err != nil {
        return jsonError(c, http.StatusBadRequest, "file is required")
    }
    if fh.Size <= 0 {
        return jsonError(c, http.StatusBadRequest, "empty file")
    }
    if fh.Size > h.MaxBytes {
        return jsonError(c, http.StatusRequestEntityTooLarge, "file too large")
    }
    mime := fh.Header.Get(echo.HeaderContentType)
    if !allowedAvatarTypes[mime] {
        return jsonError(c, http.StatusBadRequest, "unsupported file type")
    }

    f, err := fh.Open()
    if err != nil {
        return respondError(c, h.Log, err)
    }
    defer f.Close()
    data, err := io.ReadAll(io.LimitReader(f, h.MaxBytes+1))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    if int64(len(data)) > h.MaxBytes {
        return jsonError(c, http.StatusRequestEntityTooLarge, "file too large")
    }

    // uploads get a longer budget than plain database calls
    ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
    defer cancel()
    publicURL, err := h.Storage.Upload(ctx, h.Storage.ObjectPath(uid, fh.Filename, mime), mime, data)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    if err := h.Users.SetImage(ctx, uid, &publicURL); err != nil {
        return respondError(c, h.Log, err)
    }
    h.Log.Info("avatar uploaded", zap.Uint64("user_id", uid), zap.Int("bytes", len(data)))
    return c.JSON(http.StatusOK, echo.Map{"ok": true, "image": publicURL})
}
