// Package memory はリポジトリインターフェースのインメモリ実装を提供する。
// サービス層・ハンドラー層のテストで、PostgreSQLなしにトランザクションの
// コミット・ロールバックを含む振る舞いを再現するために使う。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/tweeper/internal/model"
	"github.com/hitoshi/tweeper/internal/repository"
)

// Store はユーザーとtweepを保持するインメモリストア。
type Store struct {
	txMu sync.Mutex // トランザクションを直列化する

	mu     sync.Mutex
	users  map[string]*model.User
	tweeps map[string]*model.Tweep
	order  map[string]int64 // 作成順。created_atが同値の場合の並び順に使う
	seq    int64
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		users:  make(map[string]*model.User),
		tweeps: make(map[string]*model.Tweep),
		order:  make(map[string]int64),
	}
}

// Users はUserRepositoryを返す。
func (s *Store) Users() repository.UserRepository { return &userRepo{s: s} }

// Tweeps はTweepRepositoryを返す。
func (s *Store) Tweeps() repository.TweepRepository { return &tweepRepo{s: s} }

// Repositories はStoreに束縛したリポジトリの組を返す。
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{Users: s.Users(), Tweeps: s.Tweeps()}
}

type snapshot struct {
	users  map[string]*model.User
	tweeps map[string]*model.Tweep
	order  map[string]int64
	seq    int64
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		users:  make(map[string]*model.User, len(s.users)),
		tweeps: make(map[string]*model.Tweep, len(s.tweeps)),
		order:  make(map[string]int64, len(s.order)),
		seq:    s.seq,
	}
	for k, v := range s.users {
		c := *v
		snap.users[k] = &c
	}
	for k, v := range s.tweeps {
		c := *v
		snap.tweeps[k] = &c
	}
	for k, v := range s.order {
		snap.order[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.tweeps = snap.tweeps
	s.order = snap.order
	s.seq = snap.seq
}

// WithinTx はfnを直列に実行し、エラーまたはpanicの場合は実行前の状態に戻す。
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(ctx, s.Repositories())
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// newerFirst はcreated_at降順、同値の場合は作成順の降順で比較する。
func (s *Store) newerFirst(aID string, aAt time.Time, bID string, bAt time.Time) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return s.order[aID] > s.order[bID]
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == user.Username {
			return repository.ErrDuplicateUsername
		}
	}
	c := *user
	r.s.users[user.ID] = &c
	r.s.order[user.ID] = r.s.nextSeq()
	return nil
}

func (r *userRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *userRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	return r.FindByID(ctx, id)
}

func (r *userRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *userRepo) List(_ context.Context, limit int) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	users := make([]*model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		c := *u
		users = append(users, &c)
	}
	sort.Slice(users, func(i, j int) bool {
		return r.s.newerFirst(users[i].ID, users[i].CreatedAt, users[j].ID, users[j].CreatedAt)
	})
	if limit >= 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (r *userRepo) UpdateDisplayName(_ context.Context, id, displayName string, updatedAt time.Time) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	u.DisplayName = displayName
	u.UpdatedAt = updatedAt
	c := *u
	return &c, nil
}

func (r *userRepo) UpdateUsername(_ context.Context, id, username string, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	for otherID, other := range r.s.users {
		if otherID != id && other.Username == username {
			return repository.ErrDuplicateUsername
		}
	}
	u.Username = username
	u.UpdatedAt = updatedAt
	return nil
}

type tweepRepo struct{ s *Store }

func (r *tweepRepo) Create(_ context.Context, tweep *model.Tweep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	owner, ok := r.s.users[tweep.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	tweep.Username = owner.Username

	c := *tweep
	c.AudioData = append([]byte(nil), tweep.AudioData...)
	r.s.tweeps[tweep.ID] = &c
	r.s.order[tweep.ID] = r.s.nextSeq()
	return nil
}

func (r *tweepRepo) FindByID(_ context.Context, id string) (*model.Tweep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tweeps[id]
	if !ok {
		return nil, nil
	}
	c := *t
	c.AudioData = append([]byte(nil), t.AudioData...)
	return &c, nil
}

func (r *tweepRepo) List(_ context.Context) ([]*model.Tweep, error) {
	return r.list(func(*model.Tweep) bool { return true }), nil
}

func (r *tweepRepo) ListByUsername(_ context.Context, username string) ([]*model.Tweep, error) {
	return r.list(func(t *model.Tweep) bool { return t.Username == username }), nil
}

func (r *tweepRepo) list(match func(*model.Tweep) bool) []*model.Tweep {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tweeps := make([]*model.Tweep, 0)
	for _, t := range r.s.tweeps {
		if !match(t) {
			continue
		}
		c := *t
		c.AudioData = nil
		tweeps = append(tweeps, &c)
	}
	sort.Slice(tweeps, func(i, j int) bool {
		return r.s.newerFirst(tweeps[i].ID, tweeps[i].CreatedAt, tweeps[j].ID, tweeps[j].CreatedAt)
	})
	return tweeps
}

func (r *tweepRepo) DeleteOwned(_ context.Context, id, username string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tweeps[id]
	if !ok || t.Username != username {
		return false, nil
	}
	delete(r.s.tweeps, id)
	delete(r.s.order, id)
	return true, nil
}

func (r *tweepRepo) ReassignUsername(_ context.Context, oldUsername, newUsername string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.tweeps {
		if t.Username == oldUsername {
			t.Username = newUsername
			n++
		}
	}
	return n, nil
}

// compile-time interface checks
var (
	_ repository.TxRunner        = (*Store)(nil)
	_ repository.UserRepository  = (*userRepo)(nil)
	_ repository.TweepRepository = (*tweepRepo)(nil)
)
