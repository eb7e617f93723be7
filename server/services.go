package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/geocode"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/resolve"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/store"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/watcher"
)

const openTimeout = 30 * time.Second

// services are the clients shared by every watcher. They are rebuilt when
// the configuration that produces them changes.
type services struct {
	store    *store.Store
	resolver *resolve.Client
	geocoder *geocode.MapsGeocoder
}

// openServices builds the shared clients. A missing setting leaves the
// corresponding client nil; watchers report what they cannot do.
func (p *Plugin) openServices(cfg *configuration) (*services, error) {
	s := &services{}
	var errs []string

	if cfg.FirebaseCredentials != "" {
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		defer cancel()

		st, err := store.Open(ctx, cfg.FirebaseCredentials, cfg.FirebaseProjectID, &p.client.Log)
		if err != nil {
			errs = append(errs, errors.Wrap(err, "failed to open document store").Error())
		} else {
			s.store = st
		}
	}

	if cfg.ResolveURL != "" {
		s.resolver = resolve.NewClient(cfg.ResolveURL, cfg.RequestTimeout(), &p.client.Log)
	}

	if cfg.GoogleMapsAPIKey != "" {
		g, err := geocode.New(cfg.GoogleMapsAPIKey)
		if err != nil {
			errs = append(errs, errors.Wrap(err, "failed to create geocoder").Error())
		} else {
			s.geocoder = g
		}
	}

	if len(errs) > 0 {
		return s, errors.Errorf("%d service(s) unavailable: %v", len(errs), errs)
	}
	return s, nil
}

func (s *services) close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

// replaceServices swaps in services built from cfg and closes the old ones.
func (p *Plugin) replaceServices(cfg *configuration) {
	next, err := p.openServices(cfg)
	if err != nil {
		p.API.LogError("Some services could not be initialized", "error", err.Error())
	}

	p.servicesLock.Lock()
	prev := p.services
	p.services = next
	p.servicesLock.Unlock()

	if err := prev.close(); err != nil {
		p.API.LogWarn("Failed to close document store", "error", err.Error())
	}
}

func (p *Plugin) getServices() *services {
	p.servicesLock.RLock()
	defer p.servicesLock.RUnlock()

	if p.services == nil {
		return &services{}
	}
	return p.services
}

// watcherDeps assembles the dependencies handed to watcher factories.
// Interfaces are only set for clients that exist.
func (p *Plugin) watcherDeps() watcher.Deps {
	cfg := p.getConfiguration()
	svc := p.getServices()

	deps := watcher.Deps{
		API:     p.API,
		Log:     &p.client.Log,
		Metrics: p.metrics,
		Poster:  p.poster,
		Timeout: cfg.RequestTimeout(),
		ToneURL: "/plugins/" + pluginID + "/api/v1/tone.wav",
		Electors: func(watcherID string) (watcher.Elector, error) {
			return watcher.NewClusterLeader(p.API, watcherID, &p.client.Log)
		},
	}

	if svc.store != nil {
		st := svc.store
		deps.Source = st
		deps.Alerts = func(collection string) watcher.AlertStore {
			return st.Alerts(collection)
		}
	}
	if svc.resolver != nil {
		deps.Resolver = svc.resolver
	}
	if svc.geocoder != nil {
		deps.Geocoder = svc.geocoder
	}

	return deps
}
