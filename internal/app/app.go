package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"harbor/pkg/changes"
	"harbor/pkg/config"
	"harbor/pkg/daemon"
	"harbor/pkg/ingest"
	"harbor/pkg/logger"
	"harbor/pkg/relay"
	"harbor/pkg/retention"
	"harbor/pkg/signer"
	"harbor/pkg/store"
	"harbor/pkg/subs"
	"harbor/pkg/worker"
)

// App wires the engine's components and owns their lifecycle.
type App struct {
	cfg *config.Config

	pool     *relay.Pool
	queue    *ingest.Queue
	pipeline *ingest.Pipeline
	bus      *changes.Bus
	subs     *subs.Manager
	worker   *worker.Worker
	signer   signer.Signer
	bunker   *signer.BunkerSigner
	sweeper  *retention.Sweeper
	control  *daemon.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New initializes everything that does not need a running context: the
// logger, the store, and the component graph. Run starts the tasks.
func New(cfg *config.Config) (*App, error) {
	_ = godotenv.Load(".env")

	if err := logger.Init(cfg.Logging.Level, cfg.LogPath); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := store.Open(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.DataDir, err)
	}

	a := &App{cfg: cfg}
	a.pool = relay.NewPool(cfg.Relays)
	ingest.SetMaxPooledBuffer(int(cfg.Ingest.MaxPooledBufferBytes.Int64()))
	a.queue = ingest.NewQueue(cfg.Ingest.QueueCapacity)
	a.bus = changes.NewBus(cfg.Changes.CoalesceWindow.Duration(), cfg.Changes.SubscriberCap)
	a.subs = subs.NewManager(a.pool)
	a.pipeline = ingest.NewPipeline(a.queue, a.pool, a.bus.Publish,
		cfg.Ingest.MaxBatch, cfg.Ingest.FlushInterval.Duration())

	sg, bunker, err := buildSigner(cfg, a.pool)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.signer = sg
	a.bunker = bunker

	a.worker = worker.New(a.pool, a.queue, a.subs, a.bus, a.signer)

	a.sweeper, err = retention.New(cfg.Retention.Cron, cfg.Retention.StatusTTL.Duration())
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

// Run starts the engine tasks and blocks until ctx is cancelled, then
// shuts down in dependency order: stop intake first, drain, then close
// the store.
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.control = daemon.NewServer(a.cfg.Daemon.Socket, a.worker, a.pool, a.queue, a.cancel)
	if err := a.control.Listen(); err != nil {
		return err
	}

	a.pool.Start(ctx)
	a.spawn(func() { a.bus.Run(ctx) })
	a.spawn(func() { a.pipeline.Run(ctx) })
	a.spawn(func() { a.worker.Run(ctx) })
	a.spawn(func() { a.sweeper.Run(ctx) })
	a.spawn(func() { a.control.Serve(ctx) })
	if a.cfg.Metrics.Addr != "" {
		a.spawn(func() { a.serveMetrics(ctx) })
	}

	a.bootstrap(ctx)

	logger.Log.Info("harbor_started",
		zap.Strings("relays", a.cfg.Relays),
		zap.String("socket", a.cfg.Daemon.Socket),
		zap.String("data_dir", a.cfg.DataDir))

	<-ctx.Done()
	a.shutdown()
	return nil
}

func (a *App) spawn(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// bootstrap installs the identity-scoped subscriptions and, for a bunker
// signer, the response tap.
func (a *App) bootstrap(ctx context.Context) {
	if a.bunker != nil {
		a.installBunkerTap()
	}
	user := a.cfg.UserPubkey
	if user == "" && a.bunker != nil {
		pk, err := a.bunker.PublicKey(ctx)
		if err != nil {
			logger.Log.Warn("bunker_pubkey_failed", zap.Error(err))
		} else {
			user = pk
		}
	}
	if user == "" {
		logger.Log.Info("no_user_configured")
		return
	}
	if err := a.worker.SetUser(ctx, user); err != nil {
		logger.Log.Warn("set_user_failed", zap.Error(err))
		return
	}
	a.subs.Acquire(subs.UserProjectsName(user), subs.UserProjectsFilters(user))
	a.subs.Acquire(subs.InboxName(user), subs.InboxFilters(user))
}

const bunkerSub = "bunker"

func (a *App) installBunkerTap() {
	a.worker.RegisterTap(bunkerSub, func(raw []byte) {
		var ev nostr.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return
		}
		a.bunker.HandleResponse(&ev)
	})
	a.subs.Acquire(bunkerSub, []nostr.Filter{{
		Kinds: []int{24133},
		Tags:  nostr.TagMap{"p": []string{a.bunker.ClientPubkey()}},
	}})
}

func (a *App) shutdown() {
	a.pool.Close()
	a.queue.Close()
	a.wg.Wait()
	if err := store.Close(); err != nil {
		logger.Log.Error("store_close_failed", zap.Error(err))
	}
	logger.Log.Info("harbor_stopped")
	logger.Sync()
}

// buildSigner picks the signing backend from config. Local signing reads
// the secret key from HARBOR_SECRET_KEY so it never sits in the config
// file.
func buildSigner(cfg *config.Config, pool *relay.Pool) (signer.Signer, *signer.BunkerSigner, error) {
	if cfg.Signer == "local" || cfg.Signer == "" {
		sk := os.Getenv("HARBOR_SECRET_KEY")
		if sk == "" {
			return signer.Unavailable{}, nil, nil
		}
		ls, err := signer.NewLocalSigner(sk)
		if err != nil {
			return nil, nil, fmt.Errorf("local signer: %w", err)
		}
		return ls, nil, nil
	}
	bs, err := signer.NewBunkerSigner(cfg.Signer, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("bunker signer: %w", err)
	}
	return bs, bs, nil
}
