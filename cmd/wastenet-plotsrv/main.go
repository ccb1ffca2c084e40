// Command wastenet-plotsrv runs the plot viewer service. The trainer posts
// plot payloads here after each run; this service keeps them in memory,
// serves them as browsable chart pages, and pushes new arrivals to open
// dashboard tabs over a websocket. Restarting the service drops the plots it
// held, so keep it running across a sweep.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tsawler/wastenet/logging"
	"github.com/tsawler/wastenet/plotserve"
)

// shutdownGrace is how long in-flight requests get to finish after a signal
// before the listener is torn down.
const shutdownGrace = 5 * time.Second

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	logFile := flag.String("log", "", "debug log file, empty disables")
	noColor := flag.Bool("no-color", false, "disable console colors")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	// Unlike the trainer there is no progress display to talk over, so the
	// console can carry the request log.
	logCfg.ConsoleLevel = slog.LevelInfo
	logCfg.FilePath = *logFile
	logCfg.NoColor = *noColor
	log, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	viewer := plotserve.NewServer(log)

	server := &http.Server{
		Addr:    *addr,
		Handler: viewer.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("plot viewer listening", "addr", *addr)
		fmt.Printf("wastenet plot viewer listening on %s\n", *addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		err = server.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			log.Error("shutdown failed", "error", err)
		}
		<-errCh
	case err = <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			log.Close()
			os.Exit(1)
		}
	}
	log.Close()
}
