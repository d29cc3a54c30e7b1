package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Object is a stored blob held by MemoryStorage.
type Object struct {
	Data         []byte
	ContentType  string
	CacheControl string
}

// MemoryStorage keeps objects in process memory and issues HMAC-signed URLs
// that are served back by the /objects route.
type MemoryStorage struct {
	mu           sync.RWMutex
	objects      map[string]*Object
	baseURL      string
	secret       []byte
	cacheControl string
	now          func() time.Time
}

// NewMemoryStorage creates a memory store. baseURL is the public origin of
// the web server, without a trailing slash.
func NewMemoryStorage(baseURL, secret string, cacheControl time.Duration) *MemoryStorage {
	m := &MemoryStorage{
		objects: make(map[string]*Object),
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}
	if cacheControl > 0 {
		m.cacheControl = "max-age=" + strconv.Itoa(int(cacheControl.Seconds()))
	}
	return m
}

// SetClock replaces the time source used for signing and expiry checks.
func (m *MemoryStorage) SetClock(now func() time.Time) {
	m.now = now
}

func (m *MemoryStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return ErrObjectExists
	}
	m.objects[key] = &Object{Data: buf.Bytes(), ContentType: contentType, CacheControl: m.cacheControl}
	return nil
}

func (m *MemoryStorage) PublicURL(key string) string {
	return m.baseURL + "/objects/" + escapeKey(key)
}

// SignedURL returns a link carrying the expiry and an HMAC over key and expiry.
func (m *MemoryStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrObjectNotFound
	}
	expires := strconv.FormatInt(m.now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("signature", m.sign(key, expires))
	return m.PublicURL(key) + "?" + q.Encode(), nil
}

func (m *MemoryStorage) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Fetch returns the object when the signature matches and has not expired.
func (m *MemoryStorage) Fetch(key, expires, signature string) (*Object, error) {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return nil, ErrSignatureInvalid
	}
	want := m.sign(key, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) || m.now().Unix() > exp {
		return nil, ErrSignatureInvalid
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return obj, nil
}

// Has reports whether key is stored.
func (m *MemoryStorage) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

func (m *MemoryStorage) sign(key, expires string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
