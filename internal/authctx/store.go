// Package authctx は認証コンテキストの状態管理を提供する。
// セッション復元・認証状態の遷移・加入フラグの再計算・サインアウト時の
// クリーンアップ実行を単一のストアに集約する。
package authctx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/launchpad/internal/entitlement"
	"github.com/hitoshi/launchpad/internal/model"
)

// State は認証コンテキストの状態。
type State string

const (
	// StateUninitialized は初期化前の状態。
	StateUninitialized State = "uninitialized"
	// StateLoading はセッション復元中の状態。
	StateLoading State = "loading"
	// StateAuthenticated は有効なセッションを保持している状態。
	StateAuthenticated State = "authenticated"
	// StateAnonymous はセッションを保持していない状態。
	StateAnonymous State = "anonymous"
	// StateDisposed は破棄済みの状態。以降の遷移は受け付けない。
	StateDisposed State = "disposed"
)

// Snapshot は認証コンテキストのある時点の状態。
// 参照側はスナップショット経由でのみ状態を読む。
type Snapshot struct {
	State        State
	Session      *model.Session
	IsSubscriber bool
}

// User は現在のユーザーを返す。未認証の場合はnil。
func (s Snapshot) User() *model.User {
	if s.Session == nil {
		return nil
	}
	return s.Session.User
}

// IdentityService は認証コンテキストが必要とする認証サービス操作。
type IdentityService interface {
	// RestoreSession はリフレッシュトークンからセッションを復元する。
	RestoreSession(ctx context.Context, refreshToken string) (*model.Session, error)
	// SignOut はアクセストークンに紐づくセッションを破棄する。
	SignOut(ctx context.Context, accessToken string) error
}

// CleanupFunc はサインアウト前に実行されるクリーンアップ処理。
type CleanupFunc func(ctx context.Context) error

// Observer は状態遷移の通知を受け取るコールバック。
type Observer func(Snapshot)

// Config はStoreの設定。
type Config struct {
	// InitTimeout はセッション復元の待機上限。超過時はanonymousに縮退する。
	InitTimeout time.Duration
	// PreLogoutWait はクリーンアップ完了からプロバイダーサインアウトまでの待機時間。
	PreLogoutWait time.Duration
}

// Store は認証コンテキストの状態機械。
// 遷移は uninitialized → loading → authenticated/anonymous、
// 任意の状態から disposed への一方向遷移のみ許可する。
type Store struct {
	mu           sync.Mutex
	state        State
	session      *model.Session
	isSubscriber bool
	generation   int // 遅延した復元結果を破棄するための世代カウンタ

	identity IdentityService
	checker  entitlement.Checker
	logger   *slog.Logger
	config   Config

	cleanups  []CleanupFunc
	observers map[int]Observer
	nextObsID int
}

// NewStore はStore の新しいインスタンスを生成する。
func NewStore(identity IdentityService, checker entitlement.Checker, logger *slog.Logger, config Config) *Store {
	if config.InitTimeout <= 0 {
		config.InitTimeout = 5 * time.Second
	}
	return &Store{
		state:     StateUninitialized,
		identity:  identity,
		checker:   checker,
		logger:    logger,
		config:    config,
		observers: make(map[int]Observer),
	}
}

// Snapshot は現在の状態のコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		State:        s.state,
		Session:      s.session,
		IsSubscriber: s.isSubscriber,
	}
}

// Subscribe は状態遷移の通知を購読する。戻り値は購読解除関数。
func (s *Store) Subscribe(obs Observer) func() {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = obs
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// notify は現在のスナップショットを全購読者に配信する。
func (s *Store) notify() {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	observers := make([]Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		observers = append(observers, obs)
	}
	s.mu.Unlock()

	for _, obs := range observers {
		obs(snapshot)
	}
}

// Initialize は永続化済みのリフレッシュトークンからセッションを復元する。
// 復元がInitTimeoutを超えた場合はanonymousに縮退し、遅延して届いた
// 復元結果は破棄する。リフレッシュトークンが空の場合は即anonymous。
func (s *Store) Initialize(ctx context.Context, refreshToken string) Snapshot {
	s.mu.Lock()
	if s.state == StateDisposed {
		defer s.mu.Unlock()
		return s.snapshotLocked()
	}
	s.state = StateLoading
	s.generation++
	gen := s.generation
	s.mu.Unlock()
	s.notify()

	if refreshToken == "" {
		return s.transitionAnonymous(gen)
	}

	type restoreResult struct {
		session *model.Session
		err     error
	}
	resultCh := make(chan restoreResult, 1)

	initCtx, cancel := context.WithTimeout(ctx, s.config.InitTimeout)
	defer cancel()

	go func() {
		session, err := s.identity.RestoreSession(initCtx, refreshToken)
		resultCh <- restoreResult{session: session, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			s.logger.Warn("session restore failed, degrading to anonymous",
				slog.String("error", result.err.Error()),
			)
			return s.transitionAnonymous(gen)
		}
		return s.transitionAuthenticated(ctx, gen, result.session)
	case <-initCtx.Done():
		s.logger.Warn("session restore timed out, degrading to anonymous",
			slog.Duration("timeout", s.config.InitTimeout),
		)
		return s.transitionAnonymous(gen)
	}
}

// HandleChange は認証サービス側のセッション変化を状態機械に反映する。
// sessionがnilの場合はanonymous、それ以外は加入フラグを再計算した上で
// authenticatedに遷移する。
func (s *Store) HandleChange(ctx context.Context, session *model.Session) Snapshot {
	s.mu.Lock()
	if s.state == StateDisposed {
		defer s.mu.Unlock()
		return s.snapshotLocked()
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if session == nil {
		return s.transitionAnonymous(gen)
	}
	return s.transitionAuthenticated(ctx, gen, session)
}

// RegisterCleanup はサインアウト前に実行するクリーンアップ処理を登録する。
// 実行順は登録順。
func (s *Store) RegisterCleanup(fn CleanupFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// SignOut はサインアウトシーケンスを実行する。
// 登録済みクリーンアップを登録順に実行し（失敗はログのみ）、
// PreLogoutWaitの待機後にプロバイダーのセッションを破棄し、anonymousに遷移する。
// プロバイダー側の破棄失敗もローカル状態の遷移を妨げない。
func (s *Store) SignOut(ctx context.Context) Snapshot {
	s.mu.Lock()
	if s.state == StateDisposed {
		defer s.mu.Unlock()
		return s.snapshotLocked()
	}
	s.generation++
	gen := s.generation
	session := s.session
	cleanups := make([]CleanupFunc, len(s.cleanups))
	copy(cleanups, s.cleanups)
	s.mu.Unlock()

	for i, fn := range cleanups {
		if err := fn(ctx); err != nil {
			s.logger.Error("pre-logout cleanup failed",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.config.PreLogoutWait > 0 {
		select {
		case <-time.After(s.config.PreLogoutWait):
		case <-ctx.Done():
		}
	}

	if session != nil {
		if err := s.identity.SignOut(ctx, session.AccessToken); err != nil {
			s.logger.Error("provider sign-out failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return s.transitionAnonymous(gen)
}

// Dispose はストアを破棄する。以降の遷移と遅延結果はすべて破棄される。
func (s *Store) Dispose() {
	s.mu.Lock()
	s.state = StateDisposed
	s.session = nil
	s.isSubscriber = false
	s.generation++
	s.observers = make(map[int]Observer)
	s.cleanups = nil
	s.mu.Unlock()
}

// transitionAnonymous はanonymousに遷移する。世代が古い場合は破棄する。
func (s *Store) transitionAnonymous(gen int) Snapshot {
	s.mu.Lock()
	if s.state == StateDisposed || gen != s.generation {
		defer s.mu.Unlock()
		return s.snapshotLocked()
	}
	s.state = StateAnonymous
	s.session = nil
	s.isSubscriber = false
	s.mu.Unlock()

	s.notify()
	return s.Snapshot()
}

// transitionAuthenticated は加入フラグを計算した上でauthenticatedに遷移する。
// 計算中に世代が進んだ場合、結果は破棄する。
func (s *Store) transitionAuthenticated(ctx context.Context, gen int, session *model.Session) Snapshot {
	isSubscriber := false
	if session.User != nil {
		isSubscriber = s.checker.IsSubscriber(ctx, session.User.ID)
	}

	s.mu.Lock()
	if s.state == StateDisposed || gen != s.generation {
		defer s.mu.Unlock()
		return s.snapshotLocked()
	}
	s.state = StateAuthenticated
	s.session = session
	s.isSubscriber = isSubscriber
	s.mu.Unlock()

	s.notify()
	return s.Snapshot()
}
