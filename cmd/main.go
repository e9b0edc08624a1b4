package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sql-fanout/configs"
	"sql-fanout/internal/history"
	"sql-fanout/internal/query"
	"sql-fanout/pkg/db"
	"sql-fanout/pkg/redis"
)

func App(conf *configs.Config) http.Handler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var store history.Store
	if conf.HistoryConfig.DBPath != "" {
		sqliteStore, err := history.NewSQLiteStore(conf.HistoryConfig.DBPath)
		if err != nil {
			log.Fatalf("Failed to open history store: %v", err)
		}
		store = sqliteStore
	} else {
		store = history.NewMemoryStore(conf.HistoryConfig.Limit)
	}

	var cache query.ReportCache
	if conf.RedisConfig.Addr != "" {
		redisCache, err := redis.NewCache(conf)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		cache = redisCache
	}

	connector := query.NewManagerConnector(db.NewManager(logger))
	dispatcher := query.NewDispatcher(
		connector,
		conf.EngineConfig.MaxWorkers,
		time.Duration(conf.EngineConfig.DefaultTimeoutMs)*time.Millisecond,
		time.Duration(conf.EngineConfig.MaxTimeoutMs)*time.Millisecond,
		logger,
	)

	queryService := query.NewService(query.ServiceDeps{
		Dispatcher: dispatcher,
		Connector:  connector,
		Store:      store,
		Cache:      cache,
		MaxReports: conf.HistoryConfig.Limit,
		Log:        logger,
	})

	router := http.NewServeMux()

	query.NewController(router, query.ControllerDeps{
		Service: queryService,
	})
	history.NewController(router, history.ControllerDeps{
		Store: store,
	})

	return router
}

func main() {
	conf := configs.LoadConfig()
	app := App(conf)
	server := http.Server{
		Addr:    conf.Addr,
		Handler: app,
	}
	fmt.Printf("Server is listening on %s\n", conf.Addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
