package main

import (
	"embed"
	"flag"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"realtime-notes/collab"
	"realtime-notes/handlers/api/notes"
	"realtime-notes/handlers/auth"
	authMiddleware "realtime-notes/middleware"
	"realtime-notes/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

//go:embed all:frontend
var assets embed.FS

func handleUI() http.HandlerFunc {
	sub, err := fs.Sub(assets, "frontend")
	if err != nil {
		panic(err)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" || path == "" {
			path = "/index.html"
		}

		f, err := sub.Open(strings.TrimPrefix(path, "/"))
		if err != nil {
			// Unknown extensionless paths are client-side routes: serve the
			// index and let the frontend router take over.
			if os.IsNotExist(err) && !strings.Contains(path, ".") {
				path = "/index.html"
				f, err = sub.Open("index.html")
			}
			if err != nil {
				http.NotFound(w, r)
				return
			}
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "Error reading file", http.StatusInternalServerError)
			return
		}

		contentType := http.DetectContentType(content)
		switch {
		case strings.HasSuffix(path, ".js"):
			contentType = "application/javascript"
		case strings.HasSuffix(path, ".html"):
			contentType = "text/html"
		case strings.HasSuffix(path, ".css"):
			contentType = "text/css"
		}

		w.Header().Set("Content-Type", contentType)
		w.Write(content)
	}
}

func setupRouter(store stores.Store) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-Requested-With", "Origin"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", auth.HandleRegister(store))
		r.Post("/login", auth.HandleLogin(store))
		r.Post("/refresh", auth.HandleRefresh(store))
		r.Post("/logout", auth.HandleLogout(store))
	})

	// OAuth entry points live outside /api so provider redirects stay simple.
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", auth.HandleGitHubLogin)
		r.Get("/callback", auth.HandleGitHubCallback(store))
	})

	r.Route("/api/notes", func(r chi.Router) {
		r.Use(authMiddleware.AuthJWT)
		r.Post("/", notes.HandleCreate(store))
		r.Get("/", notes.HandleList(store))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", notes.HandleGet(store))
			r.Patch("/", notes.HandleUpdate(store))
			r.Delete("/", notes.HandleDelete(store))
			r.Post("/share", notes.HandleShare(store))
		})
	})

	return r
}

func waitForShutdown(ioo *socketio.Server) {
	exit := make(chan struct{})
	signalC := make(chan os.Signal, 1)

	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range signalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")
	ioo.Close(nil)
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":4000", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.InitAuth()
	store := stores.GetStore()

	r := setupRouter(store)

	ioo, _ := collab.NewServer(collab.NewRegistry(), collab.NewOracle(store), auth.VerifySubject)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))
	r.NotFound(handleUI())

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(ioo)
}
