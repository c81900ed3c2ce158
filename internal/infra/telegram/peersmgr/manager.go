// Package peersmgr — обёртка над gotd peers.Manager с персистентным хранилищем на bbolt.
// Сервис отвечает за:
//   - открытие/закрытие базы сессии (в ней же живёт состояние updates.Manager);
//   - подготовку менеджера пиров и доступ к нему;
//   - загрузку сохранённых peers из файла в менеджер при старте;
//   - разрешение InputPeer/InputChannel по типу и id чата.
package peersmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"telegram-relay/internal/infra/storage"

	boltstor "github.com/gotd/contrib/bbolt"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"
)

const (
	peersBucketName             = "peers"
	dbOpenTimeout               = time.Second
	dbFileMode      os.FileMode = 0o600
)

var peersBucketBytes = []byte(peersBucketName)

// Kind — тип чата в терминах менеджера.
const (
	KindUser    = "user"
	KindChat    = "chat"
	KindChannel = "channel"
)

// Service инкапсулирует менеджер пиров и bbolt-хранилище одной сессии.
type Service struct {
	db    *bbolt.DB
	store contribstorage.PeerStorage
	Mgr   *peers.Manager
}

// New открывает bbolt-файл dbPath и создаёт поверх него сервис пиров.
// Сетевых запросов не выполняет.
func New(api *tg.Client, dbPath string) (*Service, error) {
	if api == nil {
		return nil, errors.New("peersmgr: api client is nil")
	}
	path := strings.TrimSpace(dbPath)
	if path == "" {
		return nil, errors.New("peersmgr: db path is empty")
	}
	if err := storage.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("peersmgr: %w", err)
	}

	db, err := bbolt.Open(path, dbFileMode, &bbolt.Options{Timeout: dbOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("peersmgr: open db: %w", err)
	}

	return &Service{
		db:    db,
		store: boltstor.NewPeerStorage(db, peersBucketBytes),
		Mgr:   (peers.Options{}).Build(api),
	}, nil
}

// DB отдаёт открытую базу (для boltstor.NewStateStorage той же сессии).
func (s *Service) DB() *bbolt.DB {
	return s.db
}

// Close закрывает файл базы данных.
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Store возвращает персистентное хранилище пиров (для UpdateHook).
func (s *Service) Store() contribstorage.PeerStorage {
	return s.store
}

// LoadFromStorage прогружает сохранённые peers из bbolt в оперативный peers.Manager.
// Битые записи (несовместимый JSON) сбрасываются: менеджер доучит их из апдейтов.
func (s *Service) LoadFromStorage(ctx context.Context) error {
	iter, exists, err := s.iterateStoredPeers(ctx)
	if err != nil {
		if isJSONUnmarshalError(err) {
			return s.resetPeersBucket()
		}
		return fmt.Errorf("peersmgr: iterate stored peers: %w", err)
	}
	if !exists {
		return nil
	}
	defer func() {
		_ = iter.Close()
	}()

	users := make([]tg.UserClass, 0)
	chats := make([]tg.ChatClass, 0)

	for iter.Next(ctx) {
		value := iter.Value()
		switch value.Key.Kind {
		case dialogs.User:
			user := value.User
			if user == nil {
				user = &tg.User{ID: value.Key.ID, AccessHash: value.Key.AccessHash}
			}
			users = append(users, user)
		case dialogs.Chat:
			chat := value.Chat
			if chat == nil {
				chat = &tg.Chat{ID: value.Key.ID}
			}
			chats = append(chats, chat)
		case dialogs.Channel:
			channel := value.Channel
			if channel == nil {
				channel = &tg.Channel{ID: value.Key.ID, AccessHash: value.Key.AccessHash}
			}
			chats = append(chats, channel)
		}
	}

	if err = iter.Err(); err != nil {
		if isJSONUnmarshalError(err) {
			return s.resetPeersBucket()
		}
		return fmt.Errorf("peersmgr: iterate stored peers: %w", err)
	}
	if len(users) == 0 && len(chats) == 0 {
		return nil
	}
	return s.Mgr.Apply(ctx, users, chats)
}

// InputPeerByKind подбирает tg.InputPeerClass по строковому типу и идентификатору.
func (s *Service) InputPeerByKind(ctx context.Context, kind string, id int64) (tg.InputPeerClass, error) {
	switch kind {
	case KindUser:
		user, err := s.Mgr.ResolveUserID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve user %d: %w", id, err)
		}
		return user.InputPeer(), nil
	case KindChat:
		chat, err := s.Mgr.ResolveChatID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve chat %d: %w", id, err)
		}
		return chat.InputPeer(), nil
	case KindChannel:
		channel, err := s.Mgr.ResolveChannelID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve channel %d: %w", id, err)
		}
		return channel.InputPeer(), nil
	default:
		return nil, fmt.Errorf("peersmgr: unsupported peer kind %q", kind)
	}
}

// InputChannel возвращает tg.InputChannelClass канала или супергруппы id.
func (s *Service) InputChannel(ctx context.Context, id int64) (tg.InputChannelClass, error) {
	channel, err := s.Mgr.ResolveChannelID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve channel %d: %w", id, err)
	}
	return channel.InputChannel(), nil
}

func (s *Service) iterateStoredPeers(ctx context.Context) (contribstorage.PeerIterator, bool, error) {
	exists := false
	if err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(peersBucketBytes) != nil
		return nil
	}); err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	iter, err := s.store.Iterate(ctx)
	if err != nil {
		return nil, false, err
	}
	return iter, true, nil
}

func isJSONUnmarshalError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	return strings.Contains(err.Error(), "json:")
}

func (s *Service) resetPeersBucket() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(peersBucketBytes); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(peersBucketBytes)
		return err
	})
}
