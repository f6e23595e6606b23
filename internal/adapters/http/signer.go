package httpadapter

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

var errUploadNotAuthorized = errors.New("upload is not authorized")

// LocalSigner grants one-shot upload tokens for objects served by this
// process. It stands in for bucket presigning when no bucket is configured.
type LocalSigner struct {
	publicURL string
	now       func() time.Time

	mu     sync.Mutex
	grants map[string]uploadGrant
}

type uploadGrant struct {
	key         string
	contentType string
	expiresAt   time.Time
}

func NewLocalSigner(publicURL string) *LocalSigner {
	return &LocalSigner{
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
		grants:    make(map[string]uploadGrant),
	}
}

func (s *LocalSigner) PresignUpload(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	s.mu.Lock()
	s.pruneLocked()
	s.grants[token] = uploadGrant{key: key, contentType: contentType, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return s.publicURL + "/uploads/" + escapeKey(key) + "?token=" + url.QueryEscape(token), nil
}

func (s *LocalSigner) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return s.publicURL + "/media/" + escapeKey(key), nil
}

// Authorize consumes the grant for token. The content type must match the
// one the grant was issued for.
func (s *LocalSigner) Authorize(key, token, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[token]
	if !ok || grant.key != key || s.now().After(grant.expiresAt) {
		return domain.WrapError(domain.ErrInvalidInput, "authorize upload", errUploadNotAuthorized)
	}
	if grant.contentType != "" && !strings.EqualFold(grant.contentType, contentType) {
		return domain.WrapError(domain.ErrInvalidInput, "authorize upload", errors.New("content type does not match the upload grant"))
	}
	delete(s.grants, token)
	return nil
}

func (s *LocalSigner) pruneLocked() {
	now := s.now()
	for token, grant := range s.grants {
		if now.After(grant.expiresAt) {
			delete(s.grants, token)
		}
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
