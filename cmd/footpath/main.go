package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/footpath.report/internal/config"
	"github.com/banshee-data/footpath.report/internal/db"
	"github.com/banshee-data/footpath.report/internal/footpath/pipeline"
	"github.com/banshee-data/footpath.report/internal/monitoring"
	"github.com/banshee-data/footpath.report/internal/version"
)

var (
	configPath   = flag.String("config", config.ExampleConfigPath, "Path to the footpath configuration file (.yaml or .json)")
	dbPathFlag   = flag.String("db-path", "", "Override database_path from the configuration")
	listen       = flag.String("listen", "", "Override debug_listen from the configuration")
	healthListen = flag.String("health-listen", "", "Override health_listen; gRPC health is disabled when empty")
	speed        = flag.Float64("speed", 0, "Replay speed multiplier (0 replays as fast as possible)")
	verbose      = flag.Bool("verbose", false, "Log every processed frame")
	diag         = flag.Bool("diag", false, "Enable the pipeline diag log stream")
	trace        = flag.Bool("trace", false, "Enable the pipeline trace log stream")
	showVersion  = flag.Bool("version", false, "Print the version and exit")
)

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: footpath [flags] [command]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  (none)    Replay every configured camera and serve the debug endpoints\n")
	fmt.Fprintf(os.Stderr, "  migrate   Manage database schema migrations (run 'footpath migrate help')\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadFootpathConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyOverrides(cfg)

	if flag.NArg() > 0 {
		switch command := flag.Arg(0); command {
		case "migrate":
			db.RunMigrateCommand(flag.Args()[1:], cfg.GetDatabasePath())
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
			printUsage()
			os.Exit(1)
		}
	}

	log.Print(version.String())
	pipeline.SetLogWriters(logWriters(*diag, *trace))

	database, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	metrics := monitoring.NewMetricsSink(0)
	healthSink := monitoring.NewHealthSink(nil)
	sink := monitoring.MultiSink{monitoring.LogSink{Verbose: *verbose}, metrics, healthSink}

	cams, err := newCameras(cfg, database, sink, *speed)
	if err != nil {
		log.Fatalf("Failed to set up cameras: %v", err)
	}
	if len(cams) == 0 {
		log.Fatalf("No cameras configured in %s", *configPath)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// one session per camera; the process keeps serving debug routes after a
	// replay finishes until it is signalled
	for _, cam := range cams {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runCamera(ctx, cam)
		}()
	}

	if addr := cfg.GetHealthListen(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatalf("failed to listen on %s: %v", addr, err)
		}
		srv := grpc.NewServer()
		healthpb.RegisterHealthServer(srv, healthSink.Server())

		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
					log.Printf("gRPC health server error: %v", err)
				}
			}()
			log.Printf("gRPC health server listening on %s", addr)
			<-ctx.Done()
			srv.GracefulStop()
			log.Printf("gRPC health server stopped")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		database.AttachAdminRoutes(mux)
		attachCameraRoutes(mux, cams, metrics)

		server := &http.Server{
			Addr:    cfg.GetDebugListen(),
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("debug server listening on %s", server.Addr)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// applyOverrides copies non-empty command-line overrides into cfg.
func applyOverrides(cfg *config.FootpathConfig) {
	if *dbPathFlag != "" {
		cfg.DatabasePath = dbPathFlag
	}
	if *listen != "" {
		cfg.DebugListen = listen
	}
	if *healthListen != "" {
		cfg.HealthListen = healthListen
	}
}
