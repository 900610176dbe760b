package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/calvinalkan/todo-sync/internal/config"
	"github.com/calvinalkan/todo-sync/internal/remote"
	"github.com/calvinalkan/todo-sync/internal/store"
	"github.com/calvinalkan/todo-sync/internal/syncer"
	"github.com/calvinalkan/todo-sync/internal/todo"
)

var errTodoNotFound = errors.New("todo not found")

// app holds what commands share: resolved config, the logger and the
// lazily opened local store.
type app struct {
	cfg config.Config
	log *zap.Logger
	env map[string]string

	watchExternal bool
	handle        *store.Handle
}

func (a *app) openStore() *store.Handle {
	if a.handle == nil {
		a.handle = store.NewHandle(store.Options{
			Dir:           a.cfg.DBDirAbs,
			Name:          a.cfg.DBName,
			Production:    a.cfg.Production(),
			WatchExternal: a.watchExternal,
			Logger:        a.log.Named("store"),
		})
	}

	return a.handle
}

func (a *app) todos(ctx context.Context) (*todo.Collection, error) {
	st, err := a.openStore().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	return st.Todos(), nil
}

func (a *app) remoteClient() (*remote.Client, error) {
	err := a.cfg.RequireEndpoint()
	if err != nil {
		return nil, err
	}

	return remote.New(remote.Config{
		Endpoint: a.cfg.Endpoint,
		APIKey:   a.cfg.APIKey,
		Timeout:  time.Duration(a.cfg.Timeout),
		Logger:   a.log.Named("remote"),
	})
}

// mount returns a mounted controller. The caller unmounts it.
func (a *app) mount(ctx context.Context) (*syncer.Controller, error) {
	client, err := a.remoteClient()
	if err != nil {
		return nil, err
	}

	ctrl := syncer.New(client, a.openStore(), syncer.Options{Logger: a.log.Named("syncer")})

	err = ctrl.Mount(ctx)
	if err != nil {
		return nil, err
	}

	return ctrl, nil
}

func (a *app) close() {
	if a.handle == nil {
		return
	}

	err := a.handle.Close()
	if err != nil {
		a.log.Warn("closing local store", zap.Error(err))
	}
}

// lookup finds id in the service list first, then the local list.
func lookup(v syncer.View, id string) (todo.Record, error) {
	for _, list := range [][]todo.Record{v.Remote, v.Local} {
		for _, r := range list {
			if r.ID == id {
				return r, nil
			}
		}
	}

	return todo.Record{}, fmt.Errorf("%w: %s", errTodoNotFound, id)
}
