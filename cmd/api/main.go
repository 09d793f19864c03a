package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	linkscache "shortd.local/internal/app/links/cache"
	linkshttpapi "shortd.local/internal/app/links/httpapi"
	"shortd.local/internal/app/links/repo"
	"shortd.local/internal/app/links/snapshot"
	"shortd.local/internal/app/links/stats"
	"shortd.local/internal/platform/auth"
	platformcache "shortd.local/internal/platform/cache"
	"shortd.local/internal/platform/config"
	"shortd.local/internal/platform/db"
	"shortd.local/internal/platform/httpmiddleware"
	"shortd.local/internal/platform/httpserver"
	"shortd.local/internal/platform/metrics"
	"shortd.local/internal/platform/migrate"
	"shortd.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	slog.SetDefault(slog.New(h))

	rootCtx := context.Background()

	// 快照后端按配置选择。postgres 后端和点击统计共用一个连接池。
	var dbPool *pgxpool.Pool
	needDB := cfg.SnapshotBackend == "postgres" || cfg.StatsEnabled
	if needDB {
		dbCtx, cancel := context.WithTimeout(rootCtx, 3*time.Second)
		pool, errDB := db.New(dbCtx, cfg.DBDSN)
		cancel()
		if errDB != nil {
			log.Fatal(errDB)
		}
		dbPool = pool
		defer dbPool.Close()
		slog.Info("数据库连接成功")

		migCtx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
		res, errMig := migrate.Up(migCtx, dbPool, "")
		cancel()
		if errMig != nil {
			log.Fatal(errMig)
		}
		slog.Info("migrations done", "dir", res.Dir, "applied", len(res.Applied), "skipped", len(res.Skipped))
	}

	blob, closeBlob, errBlob := newSnapshotStore(cfg, dbPool)
	if errBlob != nil {
		log.Fatal(errBlob)
	}
	if closeBlob != nil {
		defer closeBlob()
	}

	openCtx, cancelOpen := context.WithTimeout(rootCtx, 10*time.Second)
	store, errOpen := repo.Open(openCtx, blob)
	cancelOpen()
	if errOpen != nil {
		log.Fatal(errOpen)
	}

	//创建布隆过滤器 预期 100 万 slug，1% 误判率
	slugFilter := linkscache.NewSlugFilter(1_000_000, 0.01)
	missCache, errMiss := linkscache.NewMissCache(100000) // 10万条目
	if errMiss != nil {
		log.Fatal(errMiss)
	}
	defer missCache.Close()

	linksRepo := repo.NewLinksRepo(store, slugFilter, missCache)
	accountsRepo := repo.NewAccountsRepo(store)

	// 管理员账号幂等种子（配置了才有）
	if cfg.AdminUsername != "" && cfg.AdminPasswordHash != "" {
		seedCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		_, errSeed := accountsRepo.EnsureAdmin(seedCtx, cfg.AdminUsername, cfg.AdminPasswordHash)
		cancel()
		if errSeed != nil {
			log.Fatal(errSeed)
		}
	}

	//初始化统计收集器（根据配置选择 Channel 或 Kafka）
	var collector stats.Collector
	var statsReader *stats.Reader
	var kafkaConsumer *stats.KafkaConsumer
	var channelConsumer *stats.Consumer
	if cfg.StatsEnabled {
		statsReader = stats.NewReader(dbPool)
		if cfg.KafkaEnabled {
			slog.Info("使用 Kafka 收集点击统计", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
			collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
			kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, dbPool)
		} else {
			slog.Info("使用 Channel 收集点击统计")
			channelCollector := stats.NewChannelCollector(10000)
			collector = channelCollector
			channelConsumer = stats.NewConsumer(dbPool, channelCollector)
		}
	} else {
		slog.Warn("Click stats disabled by config", "STATS_ENABLED", false)
	}

	// JWT
	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}

	metrics.Init()

	var shutdown func(context.Context) error
	if cfg.TracingEnabled {
		shutdown = trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), httpmiddleware.ReqID(), httpmiddleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())

	api := r.Group("/api/v1")

	linkshttpapi.RegisterPublicRoutes(r, linksRepo, collector)
	linkshttpapi.RegisterAPIRoutes(api, linksRepo, accountsRepo, ts, statsReader)

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 快照后端可用性检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := blob.Load(ctx); err != nil && err != snapshot.ErrNoSnapshot {
			w.WriteHeader(500)
			w.Write([]byte("snapshot backend err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := &http.Server{
		Addr:              cfg.AdminAddr, // 推荐：127.0.0.1:6060
		Handler:           adminMux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errch := make(chan error, 2)

	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()

	// 后台定时清扫过期链接（访问路径上也会触发，这里兜底）
	if cfg.SweepInterval > 0 {
		go runSweepLoop(stopCtx, linksRepo, cfg.SweepInterval)
	}
	// 启动 Kafka consumer（如果启用）
	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	// 启动 Channel consumer（如果启用）
	if channelConsumer != nil {
		go channelConsumer.Run(stopCtx)
	}
	if collector != nil {
		defer collector.Close()
	}

	err := <-errch
	if err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		log.Fatal(err)
	}

	stop()
	<-errch
}

func runSweepLoop(ctx context.Context, linksRepo *repo.LinksRepo, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			swept, err := linksRepo.SweepExpired(sweepCtx, now)
			cancel()
			if err != nil {
				slog.Error("sweep expired links failed", "err", err)
				continue
			}
			if swept > 0 {
				metrics.SweptLinks.Add(float64(swept))
				slog.Info("swept expired links", "count", swept)
			}
		}
	}
}

// newSnapshotStore 按配置创建快照后端。返回的 close 用于释放后端自己的连接。
func newSnapshotStore(cfg config.Config, dbPool *pgxpool.Pool) (snapshot.Store, func(), error) {
	switch cfg.SnapshotBackend {
	case "file":
		return snapshot.NewFileStore(cfg.SnapshotPath), nil, nil
	case "memory":
		return snapshot.NewMemoryStore(), nil, nil
	case "redis":
		client, err := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return snapshot.NewRedisStore(client, cfg.SnapshotKey), func() { client.Close() }, nil
	case "postgres":
		return snapshot.NewPostgresStore(dbPool, cfg.SnapshotKey), nil, nil
	default:
		return snapshot.NewFileStore(cfg.SnapshotPath), nil, nil
	}
}
