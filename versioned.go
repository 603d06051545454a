package filecache

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/filecache/internal/policy"
	"github.com/unkn0wn-root/filecache/internal/wire"
)

var errNoStore = errors.New("version source has no store")

func (s VersionSource) scope(key string) string {
	if s.Scope != "" {
		return s.Scope
	}
	return key
}

func (cc *cache[V]) current(op, key string, src VersionSource) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cc.timeout)
	defer cancel()
	v, err := src.Store.Current(ctx, src.scope(key))
	if err != nil {
		return 0, opErr(op, key, ErrIO, fmt.Errorf("current version of %q: %w", src.scope(key), err))
	}
	return v, nil
}

func (cc *cache[V]) PutWithCurrentVersion(key string, value V, src VersionSource, cb PutCallback) {
	if key == "" {
		cc.failPut(key, cb, opErr("put", key, ErrInvalidArgument, errEmptyKey))
		return
	}
	if src.Store == nil {
		cc.failPut(key, cb, opErr("put", key, ErrInvalidArgument, errNoStore))
		return
	}
	cc.schedulePut(key, value, func() (wire.Envelope, error) {
		v, err := cc.current("put", key, src)
		if err != nil {
			return wire.Envelope{}, err
		}
		return wire.Envelope{Strategy: wire.StrategyVersion, Version: v}, nil
	}, cb)
}

func (cc *cache[V]) GetOrCurrentVersion(key string, src VersionSource, cb GetCallback[V]) {
	if key == "" {
		cc.failGet(key, cb, opErr("get", key, ErrInvalidArgument, errEmptyKey))
		return
	}
	if src.Store == nil {
		cc.failGet(key, cb, opErr("get", key, ErrInvalidArgument, errNoStore))
		return
	}
	cc.scheduleGet(key, func() (policy.Query, error) {
		v, err := cc.current("get", key, src)
		if err != nil {
			return policy.Query{}, err
		}
		return policy.Version(v), nil
	}, cb)
}
