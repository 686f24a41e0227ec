package transform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/status-im/market-hydrator/config"
	"github.com/status-im/market-hydrator/metrics"
	"github.com/status-im/market-hydrator/models"
)

// ErrStopped is returned when submitting to a worker that is not running
var ErrStopped = errors.New("transform worker is not running")

// Request asks for Coin or Coins, priced in Currency, to be re-denominated into every
// supported currency. Exactly one of Coin and Coins is set.
type Request struct {
	ID       uuid.UUID
	Coin     *models.CoinDetails
	Coins    []models.CoinOverview
	Rates    models.CurrencyRates
	Currency models.Currency
}

// Response answers the Request with the same ID. Only the map matching the request
// shape is set; records that could not be converted are listed in Skipped.
type Response struct {
	RequestID        uuid.UUID
	TransformedCoin  map[models.Currency]models.CoinDetails
	TransformedCoins map[models.Currency][]models.CoinOverview
	Currency         models.Currency
	Skipped          []Skipped
}

type job struct {
	req  Request
	resp chan Response
}

// Worker is a pool of goroutines converting requests received over a bounded queue.
// Requests carry no ordering guarantee relative to each other.
type Worker struct {
	targets []models.Currency
	workers int
	queue   chan job
	logger  *logrus.Entry

	mu      sync.Mutex
	done    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorker creates a worker converting into targets
func NewWorker(cfg config.TransformConfig, targets []models.Currency, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		targets: targets,
		workers: cfg.GetWorkers(),
		queue:   make(chan job, cfg.GetQueueSize()),
		logger:  logger.WithField("component", "transform"),
	}
}

// Start implements core.Interface
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if len(w.targets) == 0 {
		return fmt.Errorf("transform worker needs at least one target currency")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}
	w.logger.Infof("Started %d transform workers for %d currencies", w.workers, len(w.targets))
	return nil
}

// Stop implements core.Interface. Queued requests that were not picked up are dropped;
// their callers observe it through their own context.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.queue:
			j.resp <- w.handle(j.req)
		}
	}
}

func (w *Worker) handle(req Request) Response {
	start := time.Now()
	resp := Response{RequestID: req.ID, Currency: req.Currency}

	ok := 0
	switch {
	case req.Coin != nil:
		resp.TransformedCoin, resp.Skipped = DenominateCoin(*req.Coin, req.Currency, req.Rates, w.targets)
		ok = len(resp.TransformedCoin)
	default:
		resp.TransformedCoins, resp.Skipped = DenominateCoins(req.Coins, req.Currency, req.Rates, w.targets)
		for _, list := range resp.TransformedCoins {
			ok += len(list)
		}
	}

	metrics.RecordTransformItems(ok, len(resp.Skipped))
	for _, s := range resp.Skipped {
		w.logger.WithField("request", req.ID).Warnf("Skipped %s", s)
	}
	w.logger.WithField("request", req.ID).Debugf("Transformed from %s in %s", req.Currency, time.Since(start))
	return resp
}

// Submit posts req and returns the channel its Response will be delivered on.
// A zero request ID is replaced by a fresh one.
func (w *Worker) Submit(ctx context.Context, req Request) (<-chan Response, uuid.UUID, error) {
	if req.Coin == nil && req.Coins == nil {
		return nil, uuid.Nil, fmt.Errorf("transform request carries no records")
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	w.mu.Lock()
	running, done := w.running, w.done
	w.mu.Unlock()
	if !running {
		return nil, uuid.Nil, ErrStopped
	}

	j := job{req: req, resp: make(chan Response, 1)}
	select {
	case w.queue <- j:
		return j.resp, req.ID, nil
	case <-done:
		return nil, uuid.Nil, ErrStopped
	case <-ctx.Done():
		return nil, uuid.Nil, ctx.Err()
	}
}

// Transform submits req and waits for its Response
func (w *Worker) Transform(ctx context.Context, req Request) (Response, error) {
	ch, _, err := w.Submit(ctx, req)
	if err != nil {
		return Response{}, err
	}

	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	select {
	case resp := <-ch:
		return resp, nil
	case <-done:
		return Response{}, ErrStopped
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Targets returns the currencies every request is converted into
func (w *Worker) Targets() []models.Currency {
	return w.targets
}
