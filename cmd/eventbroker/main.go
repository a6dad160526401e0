// Event broker frontend: exposes event types over HTTP, publishing to and
// streaming from the underlying Kafka topics.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/helixagent/eventbroker/internal/breaker"
	"github.com/helixagent/eventbroker/internal/config"
	"github.com/helixagent/eventbroker/internal/httpapi"
	"github.com/helixagent/eventbroker/internal/kafkaclient"
	"github.com/helixagent/eventbroker/internal/metrics"
	"github.com/helixagent/eventbroker/internal/producerpool"
	"github.com/helixagent/eventbroker/internal/slotlimiter"
	"github.com/helixagent/eventbroker/internal/streamctl"
	"github.com/helixagent/eventbroker/internal/topicrepo"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.Monitoring.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	log := logger.WithField("component", "eventbroker")

	admin := kafkaclient.NewAdmin(cfg.Kafka.Brokers)

	pool, err := producerpool.New(cfg.Kafka.ProducerPoolSize, func() (kafkaclient.Producer, error) {
		return kafkaclient.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.SendTimeout, logger.WithField("component", "producer")), nil
	})
	if err != nil {
		log.WithError(err).Fatal("building producer pool failed")
	}
	defer pool.Close()

	repo := topicrepo.New(admin, pool, breaker.NewRegistry(breaker.DefaultConfig()), cfg.Kafka,
		func(topic string, partition int32, startOffset int64) (kafkaclient.Consumer, error) {
			return kafkaclient.NewConsumer(cfg.Kafka.Brokers, topic, partition, startOffset)
		}, log)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promRegistry)

	registry := loadEventTypes()
	controller := streamctl.New(registry, repo, slotlimiter.New(cfg.Streaming.MaxConnectionsPerPartition),
		streamctl.NoBlacklist{}, m, cfg.Streaming, log)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	httpapi.NewServer(controller, registry, repo, log).RegisterRoutes(router)
	if cfg.Monitoring.MetricsEnabled {
		router.GET(cfg.Monitoring.MetricsPath, func(c *gin.Context) {
			m.ObserveBreakers(repo.Breakers().States())
			promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
		})
	}

	srv := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout stays unset: streaming responses are open-ended.
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("event broker listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown did not finish cleanly")
	}
}

// loadEventTypes builds the event-type registry. Event-type metadata
// persistence lives outside the core; the registry is seeded from the
// EVENT_TYPES environment variable as name=topic pairs.
func loadEventTypes() streamctl.InMemoryRegistry {
	registry := streamctl.InMemoryRegistry{}
	raw := os.Getenv("EVENT_TYPES")
	if raw == "" {
		return registry
	}
	for _, entry := range strings.Split(raw, ",") {
		name, topic, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		registry[name] = &streamctl.EventType{Name: name, TopicID: topic}
	}
	return registry
}
