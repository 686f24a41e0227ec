package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Interface defines a common interface for all services
type Interface interface {
	Start(ctx context.Context) error
	Stop()
}

type namedService struct {
	name    string
	service Interface
}

// Registry starts services in registration order and stops them in reverse
type Registry struct {
	services []namedService
	started  int
	logger   *logrus.Entry
}

// NewRegistry creates a new core registry
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		services: make([]namedService, 0),
		logger:   logger.WithField("component", "core"),
	}
}

// Register adds a service under name
func (sr *Registry) Register(name string, service Interface) {
	sr.services = append(sr.services, namedService{name: name, service: service})
}

// Names lists the registered services in start order
func (sr *Registry) Names() []string {
	names := make([]string, len(sr.services))
	for i, s := range sr.services {
		names[i] = s.name
	}
	return names
}

// StartAll starts all registered services. When one fails, the ones already
// started are stopped again and the error names the failing service.
func (sr *Registry) StartAll(ctx context.Context) error {
	for sr.started < len(sr.services) {
		s := sr.services[sr.started]
		if err := s.service.Start(ctx); err != nil {
			sr.StopAll()
			return fmt.Errorf("start %s: %w", s.name, err)
		}
		sr.started++
		sr.logger.Debugf("Started %s", s.name)
	}
	return nil
}

// StopAll stops the started services in reverse order
func (sr *Registry) StopAll() {
	for i := sr.started - 1; i >= 0; i-- {
		sr.services[i].service.Stop()
		sr.logger.Debugf("Stopped %s", sr.services[i].name)
	}
	sr.started = 0
}
