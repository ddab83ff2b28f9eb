// Package service содержит бизнес-логику подсчёта голосов по матчапам.
package service

import (
	"context"
	"fmt"

	"github.com/aseptimu/matchup-votes/internal/app/matchup"
)

// Tally - число голосов за каждый вариант внутри одного матчапа.
type Tally map[string]int64

// Clone возвращает независимую копию t. Копия nil - пустой Tally.
func (t Tally) Clone() Tally {
	out := make(Tally, len(t))
	for choice, count := range t {
		out[choice] = count
	}
	return out
}

// StoreVoteGetter описывает чтение голосов из хранилища.
// Get для неизвестного ключа возвращает пустой Tally без ошибки.
type StoreVoteGetter interface {
	Dump(ctx context.Context) (map[string]Tally, error)
	Get(ctx context.Context, key string) (Tally, error)
}

// StoreVoteIncrementer атомарно увеличивает счётчик и возвращает итог по матчапу.
// Успешный возврат означает, что результат уже надёжно сохранён.
type StoreVoteIncrementer interface {
	Increment(ctx context.Context, key, choice string) (Tally, error)
}

// StoreKeyMigrator переписывает сохранённые ключи в нормализованный вид.
type StoreKeyMigrator interface {
	NormalizeKeys(ctx context.Context) (int, error)
}

type Store interface {
	StoreVoteGetter
	StoreVoteIncrementer
	StoreKeyMigrator
}

// VoteRecorder получает исход каждой попытки проголосовать.
type VoteRecorder interface {
	ObserveVote(err error)
}

type VoteCounter interface {
	GetAll(ctx context.Context) (map[string]Tally, error)
	GetOne(ctx context.Context, rawMatchup string) (Tally, error)
	Vote(ctx context.Context, rawMatchup, choice string) (Tally, error)
	Raw(ctx context.Context) (map[string]Tally, error)
}

type VoteService struct {
	store    Store
	recorder VoteRecorder
}

// NewVoteService создаёт сервис поверх store. recorder может быть nil.
func NewVoteService(store Store, recorder VoteRecorder) *VoteService {
	return &VoteService{store: store, recorder: recorder}
}

// GetAll возвращает голоса по всем матчапам с нормализованными ключами.
// Если два сохранённых ключа совпадают после нормализации, их счётчики складываются.
func (s *VoteService) GetAll(ctx context.Context) (map[string]Tally, error) {
	raw, err := s.store.Dump(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]Tally, len(raw))
	for key, tally := range raw {
		merged, ok := result[matchup.Normalize(key)]
		if !ok {
			merged = make(Tally, len(tally))
			result[matchup.Normalize(key)] = merged
		}
		for choice, count := range tally {
			merged[choice] += count
		}
	}
	return result, nil
}

// GetOne возвращает голоса по матчапу rawMatchup; неизвестный матчап даёт пустой Tally.
func (s *VoteService) GetOne(ctx context.Context, rawMatchup string) (Tally, error) {
	tally, err := s.store.Get(ctx, matchup.Normalize(rawMatchup))
	if err != nil {
		return nil, err
	}
	if tally == nil {
		tally = Tally{}
	}
	return tally, nil
}

// Vote засчитывает один голос за choice в матчапе rawMatchup.
// Повторять вызов после ошибки нельзя вслепую: голос мог быть уже записан.
func (s *VoteService) Vote(ctx context.Context, rawMatchup, choice string) (Tally, error) {
	tally, err := s.vote(ctx, rawMatchup, choice)
	if s.recorder != nil {
		s.recorder.ObserveVote(err)
	}
	return tally, err
}

func (s *VoteService) vote(ctx context.Context, rawMatchup, choice string) (Tally, error) {
	if rawMatchup == "" {
		return nil, fmt.Errorf("%w: matchup is required", ErrInvalidInput)
	}
	if choice == "" {
		return nil, fmt.Errorf("%w: vote is required", ErrInvalidInput)
	}

	return s.store.Increment(ctx, matchup.Normalize(rawMatchup), choice)
}

// Raw возвращает содержимое хранилища как есть, без нормализации ключей.
func (s *VoteService) Raw(ctx context.Context) (map[string]Tally, error) {
	return s.store.Dump(ctx)
}

// MigrateKeys однократно нормализует ключи в хранилище.
func (s *VoteService) MigrateKeys(ctx context.Context) (int, error) {
	return s.store.NormalizeKeys(ctx)
}
