package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jpkoskela/flowrun/pkg/api"
)

// RedisRunStore is a RunStore backed by Redis. It uses a simple key
// structure:
//
//	<prefix>run:<id>     => gob-encoded redisRunPayload
//	<prefix>states:<id>  => LIST of gob-encoded redisStatePayload
//
// AppendState uses WATCH on the state list so a concurrent append to the
// same run retries rather than recording a history that skips validation.
type RedisRunStore struct {
	client *redis.Client
	prefix string
}

var _ RunStore = (*RedisRunStore)(nil)

// NewRedisRunStore creates a RedisRunStore.
// prefix is optional but recommended (e.g. "flowrun:").
func NewRedisRunStore(client *redis.Client, prefix string) *RedisRunStore {
	if prefix == "" {
		prefix = "flowrun:"
	}
	return &RedisRunStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisRunStore) keyRun(id string) string    { return s.prefix + "run:" + id }
func (s *RedisRunStore) keyStates(id string) string { return s.prefix + "states:" + id }

type redisRunPayload struct {
	ID          string
	Kind        string
	Name        string
	FlowRunID   string
	FlowVersion string
	DynamicKey  string
	CreatedAt   int64
}

type redisStatePayload struct {
	Kind  string
	Name  string
	Data  []byte
	Error string
	At    int64
}

func encodeStatePayload(state api.State) ([]byte, error) {
	p := redisStatePayload{
		Kind: string(state.Kind),
		Name: state.Name,
		At:   state.At.UnixNano(),
	}
	if state.Kind == api.StateFailed {
		if e, ok := state.Data.(error); ok && e != nil {
			p.Error = e.Error()
		}
	} else {
		data, err := encodeValue(state.Data)
		if err != nil {
			return nil, err
		}
		p.Data = data
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeStatePayload(raw []byte) (*api.State, error) {
	var p redisStatePayload
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&p); err != nil {
		return nil, err
	}
	st := api.State{
		Kind: api.StateKind(p.Kind),
		Name: p.Name,
		At:   time.Unix(0, p.At),
	}
	if st.Kind == api.StateFailed {
		if p.Error != "" {
			st.Data = errors.New(p.Error)
		}
		return &st, nil
	}
	val, err := decodeValue(p.Data)
	if err != nil {
		return nil, err
	}
	st.Data = val
	return &st, nil
}

func (s *RedisRunStore) CreateRun(ctx context.Context, run *api.Run) error {
	payload := redisRunPayload{
		ID:          run.ID,
		Kind:        string(run.Kind),
		Name:        run.Name,
		FlowRunID:   run.FlowRunID,
		FlowVersion: run.FlowVersion,
		DynamicKey:  run.DynamicKey,
		CreatedAt:   run.CreatedAt.UnixNano(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.keyRun(run.ID), buf.Bytes(), 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRunExists
	}

	initial, err := encodeStatePayload(run.State)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.keyStates(run.ID), initial).Err()
}

func (s *RedisRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	raw, err := s.client.Get(ctx, s.keyRun(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	var p redisRunPayload
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&p); err != nil {
		return nil, err
	}

	lastRaw, err := s.client.LIndex(ctx, s.keyStates(id), -1).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	last, err := decodeStatePayload(lastRaw)
	if err != nil {
		return nil, err
	}

	return &api.Run{
		ID:          p.ID,
		Kind:        api.RunKind(p.Kind),
		Name:        p.Name,
		FlowRunID:   p.FlowRunID,
		FlowVersion: p.FlowVersion,
		DynamicKey:  p.DynamicKey,
		State:       *last,
		CreatedAt:   time.Unix(0, p.CreatedAt),
	}, nil
}

func (s *RedisRunStore) AppendState(ctx context.Context, id string, state api.State) error {
	key := s.keyStates(id)
	encoded, err := encodeStatePayload(state)
	if err != nil {
		return err
	}

	// Optimistic check-and-append: WATCH the list, validate against the
	// current tail, then RPUSH transactionally. On contention, retry.
	for i := 0; i < 16; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			lastRaw, err := tx.LIndex(ctx, key, -1).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrRunNotFound
				}
				return err
			}
			last, err := decodeStatePayload(lastRaw)
			if err != nil {
				return err
			}
			if err := validateTransition(*last, state); err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.RPush(ctx, key, encoded)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (s *RedisRunStore) ListStates(ctx context.Context, id string) ([]api.State, error) {
	raws, err := s.client.LRange(ctx, s.keyStates(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, ErrRunNotFound
	}

	states := make([]api.State, 0, len(raws))
	for _, raw := range raws {
		st, err := decodeStatePayload([]byte(raw))
		if err != nil {
			return nil, err
		}
		states = append(states, *st)
	}
	return states, nil
}
