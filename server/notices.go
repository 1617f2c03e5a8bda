package server

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Movigation/moviesir-session/sessions"
)

const (
	NoticeSessionExpired = "session_expired"
	NoticeErrorView      = "error_view"

	expiredMessage  = "Your session has expired and you have been logged out. Please log in again."
	noticeDuration  = 5000
	maxNoticeBuffer = 32
)

// Notice is a one-time message for the UI shell
type Notice struct {
	Type       string    `json:"type"`
	Message    string    `json:"message,omitempty"`
	Status     int       `json:"status,omitempty"`
	Redirect   string    `json:"redirect,omitempty"`
	DurationMS int       `json:"duration_ms,omitempty"`
	At         time.Time `json:"at"`
}

// noticeBox buffers notices until the shell collects them. Each notice is
// delivered once.
type noticeBox struct {
	mu    sync.Mutex
	items []Notice
}

func (b *noticeBox) push(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == maxNoticeBuffer {
		b.items = b.items[1:]
	}
	b.items = append(b.items, n)
}

func (b *noticeBox) drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	if items == nil {
		return []Notice{}
	}
	return items
}

// OnSessionEvent turns an expiry into the "session expired" toast
func (b *noticeBox) OnSessionEvent(_ context.Context, e sessions.Event) {
	if e.Type != sessions.EventSessionExpired {
		return
	}
	b.push(Notice{Type: NoticeSessionExpired, Message: expiredMessage, DurationMS: noticeDuration, At: e.At})
}

func errorViewNotice(status int) Notice {
	return Notice{Type: NoticeErrorView, Status: status, Redirect: RouteErrorView + strconv.Itoa(status), At: time.Now()}
}
