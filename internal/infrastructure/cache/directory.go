// Package cache caché en memoria de las consultas al directorio de receptores.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/ecf-dgii/internal/application/ecf"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

const (
	defaultNumCounters = 1e4
	defaultMaxCost     = 1e3
	defaultBufferItems = 64

	listKey = "\x00listado"
)

// DirectoryGateway decora el gateway: las consultas de directorio exitosas se guardan por ttl.
// El resto de las operaciones pasan directo.
type DirectoryGateway struct {
	ecf.Gateway

	ttl   time.Duration
	cache *ristretto.Cache[string, []entity.DirectoryEntry]
	sfg   singleflight.Group
	now   func() time.Time
}

// NewDirectoryGateway envuelve next. Con ttl <= 0 retorna error: en ese caso no se debe decorar.
func NewDirectoryGateway(next ecf.Gateway, ttl time.Duration) (*DirectoryGateway, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: ttl debe ser positivo")
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []entity.DirectoryEntry]{
		NumCounters:        defaultNumCounters,
		MaxCost:            defaultMaxCost,
		BufferItems:        defaultBufferItems,
		IgnoreInternalCost: true,
		Cost:               func([]entity.DirectoryEntry) int64 { return 1 },
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &DirectoryGateway{Gateway: next, ttl: ttl, cache: c, now: time.Now}, nil
}

// Directory entradas publicadas por rnc.
func (g *DirectoryGateway) Directory(ctx context.Context, sess *entity.Session, rnc string) ([]entity.DirectoryEntry, error) {
	return g.load(ctx, sess, rnc, func(ctx context.Context) ([]entity.DirectoryEntry, error) {
		return g.Gateway.Directory(ctx, sess, rnc)
	})
}

// DirectoryList listado completo del directorio.
func (g *DirectoryGateway) DirectoryList(ctx context.Context, sess *entity.Session) ([]entity.DirectoryEntry, error) {
	return g.load(ctx, sess, listKey, func(ctx context.Context) ([]entity.DirectoryEntry, error) {
		return g.Gateway.DirectoryList(ctx, sess)
	})
}

// Purge vacía la caché.
func (g *DirectoryGateway) Purge() {
	g.cache.Clear()
	g.cache.Wait()
}

// Close libera los goroutines de ristretto.
func (g *DirectoryGateway) Close() { g.cache.Close() }

// load evita consultas concurrentes repetidas a la DGII para la misma llave. Los errores no se
// guardan. Las entradas son por token: otra sesión consulta de nuevo, y una sesión vencida
// según ExpiresAt siempre va al gateway para que el 401 llegue al llamador.
func (g *DirectoryGateway) load(ctx context.Context, sess *entity.Session, name string, fetch func(context.Context) ([]entity.DirectoryEntry, error)) ([]entity.DirectoryEntry, error) {
	if expired(sess, g.now()) {
		return fetch(ctx)
	}
	key := cacheKey(sess, name)
	if v, ok := g.cache.Get(key); ok {
		return clone(v), nil
	}
	// La consulta compartida no depende de la cancelación de quien la inició; cada llamador
	// deja de esperar con su propio ctx.
	shared := context.WithoutCancel(ctx)
	ch := g.sfg.DoChan(key, func() (any, error) {
		entries, err := fetch(shared)
		if err != nil {
			return nil, err
		}
		g.cache.SetWithTTL(key, entries, 0, g.ttl)
		g.cache.Wait()
		return entries, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]entity.DirectoryEntry)), nil
	}
}

func cacheKey(sess *entity.Session, name string) string {
	token := ""
	if sess != nil {
		token = sess.Token
	}
	return token + "\x00" + name
}

func expired(sess *entity.Session, now time.Time) bool {
	return sess != nil && !sess.ExpiresAt.IsZero() && !now.Before(sess.ExpiresAt)
}

func clone(in []entity.DirectoryEntry) []entity.DirectoryEntry {
	return append([]entity.DirectoryEntry(nil), in...)
}
