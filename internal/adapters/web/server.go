// Package web — HTTP-поверхность релея: форма входа пользовательской сессии,
// вспомогательные проверки (/ischannelmember, /doesusernameexists) и /health.
// Слушает unix-сокет ("unix:<path>") или TCP-адрес.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"telegram-relay/internal/domain/login"
	"telegram-relay/internal/infra/logger"
	"telegram-relay/internal/infra/storage"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 60 * time.Second
	idleTimeout  = 60 * time.Second

	cleanExpiredInterval = 3 * time.Minute
	unixPrefix           = "unix:"
)

// LoginFlow — стадии веб-входа (login.Flow).
type LoginFlow interface {
	Stage(ctx context.Context, requester string) (login.Stage, error)
	Submit(ctx context.Context, requester string, sub login.Submission) (login.Stage, error)
}

// Lookup — проверки от имени пользовательской сессии.
type Lookup interface {
	Authorized(ctx context.Context) (bool, error)
	IsChannelMember(ctx context.Context, channel, user string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// Cleaner периодически вычищает брошенные попытки входа.
type Cleaner interface {
	CleanExpired() int
}

// Options — параметры сервера.
type Options struct {
	// Address — "unix:<path>" или "host:port".
	Address string
	// CookieTTL — срок жизни cookie посетителя формы.
	CookieTTL time.Duration
	Cleaner   Cleaner
}

// Server — веб-сервер релея.
type Server struct {
	srv     *http.Server
	address string
	login   LoginFlow
	lookup  Lookup
	cleaner Cleaner
	tmpl    *template.Template
	ttl     time.Duration

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer собирает роутер и http.Server. Слушать начинает Start.
func NewServer(flow LoginFlow, lookup Lookup, opts Options) *Server {
	s := &Server{
		address: opts.Address,
		login:   flow,
		lookup:  lookup,
		cleaner: opts.Cleaner,
		tmpl:    loadTemplates(),
		ttl:     opts.CookieTTL,
	}
	s.srv = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Handler отдаёт корневой обработчик (для тестов и встраивания).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ischannelmember", s.handleIsChannelMember)
	r.Get("/doesusernameexists", s.handleUsernameExists)

	r.Group(func(r chi.Router) {
		r.Use(s.requesterMiddleware)
		r.Get("/", s.handleLogin)
		r.Post("/", s.handleLogin)
	})
	return r
}

// Start начинает слушать адрес и блокируется до Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := listen(s.address)
	if err != nil {
		return err
	}
	logger.Info("Starting web server", zap.String("address", s.address))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if s.cleaner != nil {
		s.wg.Go(func() { s.cleanupLoop(runCtx) })
	}
	s.mu.Unlock()

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server error: %w", err)
	}
	return nil
}

// Shutdown корректно останавливает сервер и фоновую очистку.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down web server...")
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	err := s.srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanExpiredInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.cleaner.CleanExpired(); n > 0 {
				logger.Debug("expired login attempts removed", zap.Int("count", n))
			}
		}
	}
}

// listen открывает unix-сокет (удаляя устаревший файл) или TCP-порт.
func listen(address string) (net.Listener, error) {
	path, isUnix := strings.CutPrefix(address, unixPrefix)
	if !isUnix {
		ln, err := net.Listen("tcp", address)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", address, err)
		}
		return ln, nil
	}

	if err := storage.EnsureDir(path); err != nil {
		return nil, err
	}
	if err := storage.RemoveStaleSocket(path); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", path, err)
	}
	return ln, nil
}
